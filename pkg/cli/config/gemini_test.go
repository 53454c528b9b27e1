package config_test

import (
	"testing"

	"github.com/LalaIAm/case-agent/pkg/cli/config"
	"github.com/m-mizutani/gt"
)

func TestGemini_Configure(t *testing.T) {
	t.Run("returns nil client when project ID is empty", func(t *testing.T) {
		cfg := config.NewGeminiForTest("", "us-central1", -1, 0)
		client, err := cfg.Configure(t.Context())
		gt.NoError(t, err)
		gt.Value(t, client).Nil()
		gt.Bool(t, cfg.IsConfigured()).False()
	})

	t.Run("project without location is rejected", func(t *testing.T) {
		_, err := config.NewGeminiForTest("proj", "", -1, 0).Configure(t.Context())
		gt.Error(t, err)
	})

	t.Run("temperature above range is rejected", func(t *testing.T) {
		_, err := config.NewGeminiForTest("proj", "us-central1", 2.5, 0).Configure(t.Context())
		gt.Error(t, err)
	})

	t.Run("negative max tokens is rejected", func(t *testing.T) {
		_, err := config.NewGeminiForTest("proj", "us-central1", 0.2, -1).Configure(t.Context())
		gt.Error(t, err)
	})

	t.Run("returns flags", func(t *testing.T) {
		cfg := config.NewGeminiForTest("", "", -1, 0)
		gt.Array(t, cfg.Flags()).Length(5)
	})
}
