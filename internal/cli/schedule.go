package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/me/agentq/internal/queue"
)

func newScheduleCmd() *cobra.Command {
	var (
		uploads []int64
		all     bool
		agents  []string
		owner   int64
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Schedule agents on uploads, one job per upload",
		Example: `  agentq schedule --upload 12,13 --agent nomos,copyright
  agentq schedule --all --agent nomos --verbose`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(agents) == 0 {
				return fmt.Errorf("at least one --agent is required")
			}
			if !all && len(uploads) == 0 {
				return fmt.Errorf("--upload or --all is required")
			}
			if owner == 0 {
				owner = cfg.UserID
			}

			var report *queue.BulkReport
			if all {
				var err error
				report, err = mgr.ScheduleAll(cmd.Context(), owner, agents, verbose)
				if err != nil {
					return err
				}
			} else {
				report = mgr.BulkSchedule(cmd.Context(), queue.BulkRequest{
					Owner:     owner,
					UploadIDs: uploads,
					Agents:    agents,
					Verbose:   verbose,
				})
			}

			printReport(cmd.OutOrStdout(), report)
			if n := report.Failures(); n > 0 {
				return fmt.Errorf("%d scheduling failure(s)", n)
			}
			return nil
		},
	}

	cmd.Flags().Int64SliceVar(&uploads, "upload", nil, "Upload ids (comma separated or repeated)")
	cmd.Flags().BoolVar(&all, "all", false, "Schedule every upload")
	cmd.Flags().StringSliceVar(&agents, "agent", nil, "Agent types to schedule (comma separated or repeated)")
	cmd.Flags().Int64Var(&owner, "owner", 0, "Job owner user id (default: config user_id)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log every queued agent")
	return cmd
}

func printReport(w io.Writer, report *queue.BulkReport) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)
	cyan := color.New(color.FgCyan)

	for _, u := range report.Uploads {
		if u.Error != "" {
			red.Fprintf(w, "upload %d: %s\n", u.UploadID, u.Error)
			continue
		}
		cyan.Fprintf(w, "upload %d (%s)", u.UploadID, u.Filename)
		fmt.Fprintf(w, " job %d\n", u.JobID)
		for _, a := range u.Agents {
			switch {
			case !a.OK():
				red.Fprintf(w, "  %-16s failed: %s\n", a.Agent, a.Error)
			case a.AlreadyDone:
				yellow.Fprintf(w, "  %-16s already done\n", a.Agent)
			default:
				green.Fprintf(w, "  %-16s queued as task %d\n", a.Agent, a.TaskID)
			}
		}
	}
}
