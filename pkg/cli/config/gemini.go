package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gollem/llm/gemini"
	"github.com/urfave/cli/v3"
)

// Gemini selects the Vertex AI model that reasons over cases. Without a project
// the server still serves memory and rules, and workflow runs fail fast.
type Gemini struct {
	projectID   string
	location    string
	model       string
	temperature float64
	maxTokens   int
}

func (g *Gemini) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Vertex AI project that hosts the case reasoning model; leave empty to run without stage processing",
			Category:    "LLM",
			Sources:     cli.EnvVars("CASE_AGENT_GEMINI_PROJECT"),
			Destination: &g.projectID,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Vertex AI region the case reasoning model is called in",
			Category:    "LLM",
			Value:       "us-central1",
			Sources:     cli.EnvVars("CASE_AGENT_GEMINI_LOCATION"),
			Destination: &g.location,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Model name for intake, research, strategy and drafting (provider default when empty)",
			Category:    "LLM",
			Sources:     cli.EnvVars("CASE_AGENT_GEMINI_MODEL"),
			Destination: &g.model,
		},
		&cli.FloatFlag{
			Name:        "gemini-temperature",
			Usage:       "Sampling temperature for stage answers, 0 to 2 (provider default when negative)",
			Category:    "LLM",
			Value:       -1,
			Sources:     cli.EnvVars("CASE_AGENT_GEMINI_TEMPERATURE"),
			Destination: &g.temperature,
		},
		&cli.IntFlag{
			Name:        "gemini-max-tokens",
			Usage:       "Upper bound on tokens per stage answer (provider default when 0)",
			Category:    "LLM",
			Sources:     cli.EnvVars("CASE_AGENT_GEMINI_MAX_TOKENS"),
			Destination: &g.maxTokens,
		},
	}
}

func (g *Gemini) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("project_id", g.projectID),
		slog.String("location", g.location),
		slog.String("model", g.model),
		slog.Float64("temperature", g.temperature),
		slog.Int("max_tokens", g.maxTokens),
	}
}

// IsConfigured reports whether a reasoning model is available
func (g *Gemini) IsConfigured() bool {
	return g.projectID != ""
}

func (g *Gemini) options() ([]gemini.Option, error) {
	var opts []gemini.Option
	if g.model != "" {
		opts = append(opts, gemini.WithModel(g.model))
	}
	if g.temperature > 2 {
		return nil, goerr.New("gemini temperature must be between 0 and 2", goerr.V("temperature", g.temperature))
	}
	if g.temperature >= 0 {
		opts = append(opts, gemini.WithTemperature(float32(g.temperature)))
	}
	if g.maxTokens < 0 {
		return nil, goerr.New("gemini max tokens must not be negative", goerr.V("max_tokens", g.maxTokens))
	}
	if g.maxTokens > 0 {
		opts = append(opts, gemini.WithMaxTokens(int32(g.maxTokens)))
	}
	return opts, nil
}

// Configure returns the reasoning client, or nil when no project is set.
func (g *Gemini) Configure(ctx context.Context) (gollem.LLMClient, error) {
	if !g.IsConfigured() {
		return nil, nil
	}
	if g.location == "" {
		return nil, goerr.New("gemini location is required when a project is set", goerr.V("project_id", g.projectID))
	}

	opts, err := g.options()
	if err != nil {
		return nil, err
	}

	client, err := gemini.New(ctx, g.projectID, g.location, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Gemini client",
			goerr.V("project_id", g.projectID),
			goerr.V("location", g.location))
	}
	return client, nil
}
