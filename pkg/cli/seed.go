package cli

import (
	"context"

	"github.com/LalaIAm/case-agent/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func cmdSeedRules() *cli.Command {
	var appCfg appConfig

	return &cli.Command{
		Name:  "seed-rules",
		Usage: "Embed the static rule corpus into the configured repository",
		Flags: appCfg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			app, err := appCfg.build(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			corpus := app.uc.Retrieval.Corpus()
			logging.Default().Info("Seeding rules",
				"version", corpus.Version(),
				"jurisdiction", corpus.Jurisdiction(),
				"rules", len(corpus.All()),
			)

			n, err := app.uc.Retrieval.SeedRules(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to seed rules")
			}

			logging.Default().Info("Rules seeded", "stored", n)
			return nil
		},
	}
}
