package config

import (
	"log/slog"
	"time"

	"github.com/LalaIAm/case-agent/pkg/service/broadcast"
	"github.com/urfave/cli/v3"
)

// Workflow holds CLI flags for orchestrator tuning and the progress stream
type Workflow struct {
	configPath string
	heartbeat  time.Duration
	bufferSize int
}

// Flags returns CLI flags for workflow configuration
func (w *Workflow) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to a TOML tuning file ([workflow], [retry], [rules], [intake], [memory], [documents], [advisor])",
			Category:    "Workflow",
			Sources:     cli.EnvVars("CASE_AGENT_CONFIG"),
			Destination: &w.configPath,
		},
		&cli.DurationFlag{
			Name:        "heartbeat",
			Usage:       "Interval between websocket pings",
			Category:    "Workflow",
			Value:       30 * time.Second,
			Sources:     cli.EnvVars("CASE_AGENT_HEARTBEAT"),
			Destination: &w.heartbeat,
		},
		&cli.IntFlag{
			Name:        "broadcast-buffer",
			Usage:       "Undelivered events kept per observer before it is dropped",
			Category:    "Workflow",
			Value:       broadcast.DefaultBufferSize,
			Sources:     cli.EnvVars("CASE_AGENT_BROADCAST_BUFFER"),
			Destination: &w.bufferSize,
		},
	}
}

// LogAttrs returns log attributes for the workflow configuration
func (w *Workflow) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("config", w.configPath),
		slog.Duration("heartbeat", w.heartbeat),
		slog.Int("broadcast_buffer", w.bufferSize),
	}
}

// Heartbeat returns the websocket ping interval
func (w *Workflow) Heartbeat() time.Duration {
	return w.heartbeat
}

// Configure loads the tuning file, falling back to defaults when none is set
func (w *Workflow) Configure() (*Tuning, error) {
	return LoadTuning(w.configPath)
}

// Broadcaster creates the per-case event registry
func (w *Workflow) Broadcaster() *broadcast.Broadcaster {
	return broadcast.New(broadcast.WithBufferSize(w.bufferSize))
}
