package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/LalaIAm/case-agent/pkg/service/broadcast"
	"github.com/LalaIAm/case-agent/pkg/usecase"
	"github.com/LalaIAm/case-agent/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func cmdRun() *cli.Command {
	var caseID string
	var stageName string
	var force bool
	var appCfg appConfig

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "case-id",
			Usage:       "Case to process",
			Required:    true,
			Destination: &caseID,
		},
		&cli.StringFlag{
			Name:        "stage",
			Usage:       "Run only this stage (intake, research, document, strategy, drafting)",
			Destination: &stageName,
		},
		&cli.BoolFlag{
			Name:        "force",
			Usage:       "Pre-empt a workflow already running for the case",
			Destination: &force,
		},
	}
	flags = append(flags, appCfg.Flags()...)

	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Run the workflow of a case and print its final state",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			app, err := appCfg.build(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			return runWorkflow(ctx, app, model.CaseID(caseID), usecase.RunOptions{
				Stage:        types.Stage(stageName),
				ForceRestart: force,
			}, os.Stdout)
		},
	}
}

func runWorkflow(ctx context.Context, app *application, caseID model.CaseID, opts usecase.RunOptions, w io.Writer) error {
	sub := app.broadcaster.Subscribe(caseID)
	done := make(chan struct{})
	go func() {
		defer close(done)
		logEvents(ctx, sub)
	}()

	state, err := app.uc.Workflow.RunSync(ctx, caseID, opts)
	sub.Close()
	<-done
	if err != nil {
		return goerr.Wrap(err, "workflow failed", goerr.V(model.CaseIDKey, caseID))
	}

	out, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to marshal workflow state")
	}
	if _, err := fmt.Fprintln(w, string(out)); err != nil {
		return goerr.Wrap(err, "failed to write workflow state")
	}

	if state.Status == types.WorkflowStatusFailed {
		return goerr.New("workflow finished with a failed stage",
			goerr.V(model.CaseIDKey, caseID),
			goerr.V("error", state.Error))
	}
	return nil
}

// logEvents writes progress events to the log until the subscription closes
func logEvents(ctx context.Context, sub *broadcast.Subscription) {
	logger := logging.From(ctx)
	for ev := range sub.Events() {
		switch ev.Type {
		case types.EventStageProgress:
			logger.Info(ev.Reasoning, "stage", ev.Stage)
		case types.EventStageFailed:
			logger.Warn("stage failed", "stage", ev.Stage, "error", ev.Error, "error_kind", ev.ErrorKind)
		case types.EventWorkflowUpdate:
			logger.Info("workflow progress", "status", ev.Workflow.Status, "progress", ev.Progress)
		default:
			logger.Info(string(ev.Type), "stage", ev.Stage, "progress", ev.Progress)
		}
	}
}
