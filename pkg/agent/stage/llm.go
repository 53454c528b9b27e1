package stage

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
)

var codeFence = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// generateJSON asks the model for a single JSON object matching schema and decodes it into out
func generateJSON(ctx context.Context, llm gollem.LLMClient, systemPrompt string, schema *gollem.Parameter, userMessage string, out any) error {
	session, err := llm.NewSession(ctx,
		gollem.WithSessionSystemPrompt(systemPrompt),
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(schema),
	)
	if err != nil {
		return classifyLLMError(err, "failed to create LLM session")
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(userMessage))
	if err != nil {
		return classifyLLMError(err, "failed to generate content")
	}
	if resp == nil || len(resp.Texts) == 0 {
		return goerr.Wrap(model.ErrPermanentStage, "LLM returned an empty response", goerr.V("schema", schema.Title))
	}

	return decodeJSON(strings.Join(resp.Texts, ""), out)
}

// decodeJSON parses a JSON object, tolerating a surrounding markdown code fence
func decodeJSON(text string, out any) error {
	text = strings.TrimSpace(text)
	if m := codeFence.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	if text == "" {
		return goerr.Wrap(model.ErrPermanentStage, "LLM response has no JSON content")
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return goerr.Wrap(model.ErrPermanentStage, "failed to parse LLM response as JSON",
			goerr.V("error", err.Error()),
			goerr.V("response", truncate(text, 500)))
	}
	return nil
}

// classifyLLMError marks rate limits, timeouts and outages as transient so the orchestrator retries them
func classifyLLMError(err error, msg string) error {
	if model.IsTransientMessage(err.Error()) {
		return goerr.Wrap(model.ErrTransientService, msg, goerr.V("error", err.Error()))
	}
	return goerr.Wrap(err, msg)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
