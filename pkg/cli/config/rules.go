package config

import (
	"log/slog"

	"github.com/LalaIAm/case-agent/pkg/service/rules"
	"github.com/LalaIAm/case-agent/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// Rules holds CLI flags for the static rule corpus
type Rules struct {
	corpusPath string
}

// Flags returns CLI flags for rule corpus configuration
func (r *Rules) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "rules-file",
			Usage:       "TOML file replacing the built-in static rule corpus",
			Category:    "Rules",
			Sources:     cli.EnvVars("CASE_AGENT_RULES_FILE"),
			Destination: &r.corpusPath,
		},
	}
}

// LogAttrs returns log attributes for the rule corpus configuration
func (r *Rules) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("rules_file", r.corpusPath),
	}
}

// Configure returns the corpus from --rules-file, or the built-in corpus when unset
func (r *Rules) Configure() (*rules.Corpus, error) {
	if r.corpusPath == "" {
		return rules.Default(), nil
	}

	corpus, err := rules.LoadFile(r.corpusPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load rule corpus", goerr.V(ConfigPathKey, r.corpusPath))
	}
	logging.Default().Info("Using custom rule corpus",
		"path", r.corpusPath,
		"version", corpus.Version(),
		"rules", len(corpus.All()),
	)
	return corpus, nil
}
