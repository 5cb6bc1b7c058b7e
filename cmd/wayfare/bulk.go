package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/wayfare-dev/wayfare/internal/engine"
	"github.com/wayfare-dev/wayfare/internal/model"
	"github.com/wayfare-dev/wayfare/internal/tasks"
)

func bulkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Reprocess transactions as a background task",
		Long: `Submit a reprocessing job to the background task manager and follow
its progress. The job runs in chunks and can be interrupted with Ctrl-C;
cancellation takes effect at the next chunk boundary, so already-committed
chunks are kept.

Task state is mirrored to the database and can be inspected later with
"wayfare tasks".`,
		RunE: runBulk,
	}

	addDateRangeFlags(cmd)

	return cmd
}

func runBulk(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	spec, err := dateRangeSpec(cmd, "reprocess")
	if err != nil {
		return err
	}

	store, opts, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	eng, err := buildEngine(ctx, store, opts)
	if err != nil {
		return err
	}

	run := func(jobCtx context.Context, jobSpec model.JobSpec, report func(progress int)) (any, error) {
		return eng.Run(jobCtx, jobSpec, report)
	}

	manager := tasks.NewManager(run, tasks.Config{
		Store:            store,
		Workers:          opts.MaxConcurrentTasks,
		WatchdogInterval: opts.WatchdogInterval,
		WatchdogStale:    opts.WatchdogStale,
	})
	manager.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = manager.Shutdown(shutdownCtx)
	}()

	taskID, err := manager.Submit(spec)
	if err != nil {
		return err
	}
	cmd.Printf("Task %s submitted\n", taskID)

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("Reprocessing"),
		progressbar.OptionClearOnFinish(),
	)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	// A nil done channel blocks forever, so cancellation is requested once
	// and then the loop just polls until the task reaches a terminal state.
	done := ctx.Done()

	for {
		select {
		case <-done:
			_ = manager.Cancel(taskID)
			done = nil
		case <-ticker.C:
		}

		task, err := manager.Status(taskID)
		if err != nil {
			return err
		}
		_ = bar.Set(task.Progress)

		if !task.State.Terminal() {
			continue
		}
		_ = bar.Finish()

		switch task.State {
		case model.TaskCompleted:
			if result, ok := task.Result.(*engine.Result); ok {
				printRunSummary(cmd, result)
			} else if data, err := json.Marshal(task.Result); err == nil {
				cmd.Println(string(data))
			}
			return nil
		case model.TaskCancelled:
			cmd.Println("Task cancelled")
			return nil
		default:
			return fmt.Errorf("task %s failed: %s", taskID, task.Error)
		}
	}
}
