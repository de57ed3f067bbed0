// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/engine"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

// stopGrace is how long a foreground run may take to reach a step boundary
// after an interrupt before the current step is cancelled.
var stopGrace = 10 * time.Second

func newRunCmd() *cobra.Command {
	var file string

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a program in the foreground without the control server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			defer observability.Sync()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			program, err := readProgramFile(file)
			if err != nil {
				return err
			}
			if len(program) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Program is empty, nothing to run.")
				return nil
			}

			comps, err := initializeComponents(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer comps.Shutdown()

			return runForeground(ctx, comps.Executor, program, cmd.OutOrStdout(), logger)
		},
	}

	runCmd.Flags().StringVarP(&file, "file", "f", "", "program file (JSON or YAML)")
	_ = runCmd.MarkFlagRequired("file")
	runCmd.Flags().Bool("headless", true, "run the browser without a window")
	runCmd.Flags().String("driver", "", "browser driver: chromedp or rod")
	runCmd.Flags().String("store", "", "run-state backend: file or postgres")
	runCmd.Flags().String("state", "", "path of the run-state file")
	return runCmd
}

// foregroundRunner is the part of the executor a foreground run drives.
type foregroundRunner interface {
	Subscribe() (<-chan schemas.RunEvent, func())
	Start(ctx context.Context, program schemas.Program) error
	Stop(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Wait(ctx context.Context) error
	LastResult() (engine.RunResult, bool)
}

// runForeground starts program and prints its events until it finishes. An
// interrupt requests a stop; if the run does not reach a step boundary
// within stopGrace the executor is shut down. The end of the run is taken
// from Wait when the run_finished event was dropped.
func runForeground(ctx context.Context, exec foregroundRunner, program schemas.Program, out io.Writer, logger *zap.Logger) error {
	events, release := exec.Subscribe()
	defer release()

	if err := exec.Start(context.WithoutCancel(ctx), program); err != nil {
		return err
	}

	waitCtx, cancelWait := context.WithCancel(context.Background())
	defer cancelWait()
	finished := make(chan struct{})
	go func() {
		if exec.Wait(waitCtx) == nil {
			close(finished)
		}
	}()

	var (
		lastErr string
		grace   <-chan time.Time
		done    = ctx.Done()
	)
	// handle prints ev and reports whether it ended the run.
	handle := func(ev schemas.RunEvent) (bool, error) {
		printEvent(out, ev)
		if ev.Type == schemas.EventStepFinished && ev.Error != "" {
			lastErr = ev.Error
		}
		if ev.Type != schemas.EventRunFinished {
			return false, nil
		}
		return true, outcomeError(ev.Outcome, ev.StepIndex, lastErr)
	}

	for {
		select {
		case <-done:
			done = nil
			logger.Info("Interrupt received, stopping at the next step boundary.")
			if err := exec.Stop(context.Background()); err != nil {
				logger.Warn("Failed to request stop", zap.Error(err))
			}
			grace = time.After(stopGrace)

		case <-grace:
			grace = nil
			logger.Warn("Run did not stop in time, interrupting the current step.")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), componentShutdownTimeout)
			err := exec.Shutdown(shutdownCtx)
			cancel()
			if err != nil {
				return err
			}

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if end, err := handle(ev); end {
				return err
			}

		case <-finished:
			// run_finished is queued before Wait returns, so anything still
			// buffered is drained first.
			for drained := false; !drained; {
				select {
				case ev, ok := <-events:
					if !ok {
						drained = true
						break
					}
					if end, err := handle(ev); end {
						return err
					}
				default:
					drained = true
				}
			}
			result, ok := exec.LastResult()
			if !ok {
				return nil
			}
			logger.Warn("Run finished event was not received, using the executor result.",
				zap.String("run_id", result.RunID), zap.String("outcome", result.Outcome))
			fmt.Fprintf(out, "run %s %s after %d step(s)\n", result.RunID, result.Outcome, result.Steps)
			return outcomeError(result.Outcome, result.Steps, lastErr)
		}
	}
}

func outcomeError(outcome string, steps int, lastErr string) error {
	switch outcome {
	case engine.OutcomeFailed:
		if lastErr == "" {
			lastErr = "see log for details"
		}
		return fmt.Errorf("run failed at step %d: %s", steps, lastErr)
	case engine.OutcomeInterrupted:
		return context.Canceled
	default:
		return nil
	}
}

func printEvent(out io.Writer, ev schemas.RunEvent) {
	ts := ev.Timestamp.Local().Format("15:04:05.000")
	switch ev.Type {
	case schemas.EventRunStarted:
		fmt.Fprintf(out, "%s  run %s started\n", ts, ev.RunID)
	case schemas.EventStepStarted:
		fmt.Fprintf(out, "%s  step %d %s\n", ts, ev.StepIndex, ev.StepType)
	case schemas.EventStepFinished:
		if ev.Error != "" {
			fmt.Fprintf(out, "%s  step %d %s failed: %s\n", ts, ev.StepIndex, ev.StepType, ev.Error)
		}
	case schemas.EventRunFinished:
		fmt.Fprintf(out, "%s  run %s %s after %d step(s)\n", ts, ev.RunID, ev.Outcome, ev.StepIndex)
	}
}
