package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func tasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect background task history",
		Long: `Background tasks mirror their state into the database as they run.
These commands read that audit trail, including tasks from previous
invocations.`,
	}

	cmd.AddCommand(tasksListCmd())
	cmd.AddCommand(tasksShowCmd())

	return cmd
}

func tasksListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent tasks, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			limit, _ := cmd.Flags().GetInt("limit")

			store, _, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			tasks, err := store.ListTasks(ctx, limit)
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				cmd.Println("No tasks recorded")
				return nil
			}

			for _, task := range tasks {
				cmd.Printf("%s  %-10s %-10s %3d%%  %s\n",
					task.ID, task.Kind, task.State, task.Progress,
					task.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().Int("limit", 20, "maximum number of tasks to show")
	return cmd
}

func tasksShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task including its result payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, _, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			task, err := store.GetTask(ctx, args[0])
			if err != nil {
				return err
			}

			cmd.Printf("ID:       %s\n", task.ID)
			cmd.Printf("Kind:     %s\n", task.Kind)
			cmd.Printf("State:    %s\n", task.State)
			cmd.Printf("Progress: %d%%\n", task.Progress)
			cmd.Printf("Created:  %s\n", task.CreatedAt.Format("2006-01-02 15:04:05"))
			cmd.Printf("Updated:  %s\n", task.UpdatedAt.Format("2006-01-02 15:04:05"))
			if task.Error != "" {
				cmd.Printf("Error:    %s\n", task.Error)
			}
			if task.Result != nil {
				if data, err := json.MarshalIndent(task.Result, "", "  "); err == nil {
					cmd.Printf("Result:\n%s\n", data)
				}
			}
			return nil
		},
	}
}
