package cli

import (
	"context"
	"log/slog"

	"github.com/LalaIAm/case-agent/pkg/agent/stage"
	"github.com/LalaIAm/case-agent/pkg/cli/config"
	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/LalaIAm/case-agent/pkg/service/broadcast"
	"github.com/LalaIAm/case-agent/pkg/usecase"
	"github.com/LalaIAm/case-agent/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// appConfig gathers the flag groups shared by commands that need the full application
type appConfig struct {
	repo      config.Repository
	gemini    config.Gemini
	embedding config.Embedding
	workflow  config.Workflow
	rules     config.Rules
	caseLaw   config.CaseLaw
}

func (a *appConfig) Flags() []cli.Flag {
	var flags []cli.Flag
	flags = append(flags, a.repo.Flags()...)
	flags = append(flags, a.gemini.Flags()...)
	flags = append(flags, a.embedding.Flags()...)
	flags = append(flags, a.workflow.Flags()...)
	flags = append(flags, a.rules.Flags()...)
	flags = append(flags, a.caseLaw.Flags()...)
	return flags
}

// application is the wired set of components a command runs against
type application struct {
	repo        interfaces.Repository
	broadcaster *broadcast.Broadcaster
	uc          *usecase.UseCases
}

func (a *application) Close() {
	a.broadcaster.Close()
	if err := a.repo.Close(); err != nil {
		logging.Default().Error("failed to close repository", "error", err.Error())
	}
}

func (a *appConfig) build(ctx context.Context) (*application, error) {
	logger := logging.Default()

	tuning, err := a.workflow.Configure()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load tuning configuration")
	}
	ucCfg, err := tuning.UseCaseConfig()
	if err != nil {
		return nil, err
	}

	corpus, err := a.rules.Configure()
	if err != nil {
		return nil, err
	}

	llm, err := a.gemini.Configure(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize LLM client")
	}

	embedder, err := a.embedding.Configure(llm)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize embedding client")
	}

	searcher, err := a.caseLaw.Configure()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize case law search")
	}

	repo, err := a.repo.Configure(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize repository")
	}

	broadcaster := a.workflow.Broadcaster()

	opts := []usecase.Option{
		usecase.WithEmbedder(embedder),
		usecase.WithPublisher(broadcaster),
		usecase.WithCorpus(corpus),
		usecase.WithConfig(ucCfg),
	}
	if llm != nil {
		opts = append(opts,
			usecase.WithLLMClient(llm),
			usecase.WithProcessors(stage.New(llm, tuning.StageConfig())...),
		)
	} else {
		logger.Warn("Gemini is not configured, workflow stages and the advisor are unavailable")
	}
	if searcher != nil {
		opts = append(opts, usecase.WithCaseLawSearcher(searcher))
	}

	logger.Info("Application configured",
		"repository", slog.GroupValue(a.repo.LogAttrs()...),
		"gemini", slog.GroupValue(a.gemini.LogAttrs()...),
		"embedding", slog.GroupValue(a.embedding.LogAttrs()...),
		"workflow", slog.GroupValue(a.workflow.LogAttrs()...),
		"rules", slog.GroupValue(a.rules.LogAttrs()...),
		"case_law", slog.GroupValue(a.caseLaw.LogAttrs()...),
	)

	return &application{
		repo:        repo,
		broadcaster: broadcaster,
		uc:          usecase.New(repo, opts...),
	}, nil
}
