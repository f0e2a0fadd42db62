package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/me/agentq/internal/queue"
	"github.com/me/agentq/pkg/model"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage individual tasks",
	}
	cmd.AddCommand(newTaskAddCmd(), newTaskProgressCmd())
	return cmd
}

func newTaskAddCmd() *cobra.Command {
	var req queue.EnqueueRequest

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Enqueue a single task with explicit dependencies",
		Long:  "Enqueue a single task under a job. Unlike 'job agent', no agent dependencies are resolved: --depends names task ids directly.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.JobID == 0 {
				return fmt.Errorf("--job is required")
			}
			id, err := mgr.EnqueueTask(cmd.Context(), req)
			if err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "task %d enqueued\n", id)
			return nil
		},
	}

	cmd.Flags().Int64Var(&req.JobID, "job", 0, "Job id")
	cmd.Flags().StringVar(&req.AgentType, "agent", "", "Agent type")
	cmd.Flags().StringVar(&req.Args, "args", "", "Task arguments")
	cmd.Flags().StringVar(&req.RunOnFile, "run-on-file", "", "Run-on-file hint for the scheduler")
	cmd.Flags().Int64SliceVar(&req.DependsOn, "depends", nil, "Task ids this task waits for")
	return cmd
}

func newTaskProgressCmd() *cobra.Command {
	var (
		started  bool
		finished bool
		p        model.TaskProgress
	)

	cmd := &cobra.Command{
		Use:   "progress <task-id>",
		Short: "Record scheduler progress for a task",
		Long:  "Record the scheduler-owned columns of a task. --started and --finished stamp the current time.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			now := time.Now()
			if started || finished {
				p.StartTime = &now
			}
			if finished {
				p.EndTime = &now
			}
			if err := mgr.RecordTaskProgress(cmd.Context(), id, p); err != nil {
				return err
			}
			t := model.Task{StartTime: p.StartTime, EndTime: p.EndTime}
			fmt.Fprintf(cmd.OutOrStdout(), "task %d %s\n", id, stateColor(t.State()).Sprint(t.State()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&started, "started", false, "Mark the task started now")
	cmd.Flags().BoolVar(&finished, "finished", false, "Mark the task finished now (implies --started)")
	cmd.Flags().IntVar(&p.EndBits, "bits", 0, "End bits reported by the scheduler")
	cmd.Flags().StringVar(&p.EndText, "text", "", "Status text, e.g. Completed")
	return cmd
}

func newTasksCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List ids of tasks whose status text contains --status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := mgr.TasksWithStatus(cmd.Context(), status)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, id := range ids {
				fmt.Fprintln(w, id)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Status text to match, e.g. Completed")
	return cmd
}
