package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/me/agentq/pkg/model"
)

func newJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Create and inspect jobs",
	}
	cmd.AddCommand(newJobCreateCmd(), newJobShowCmd(), newJobListCmd(), newJobAgentCmd())
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func newJobCreateCmd() *cobra.Command {
	var (
		name     string
		uploadID int64
		priority int
		owner    int64
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an empty job",
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == 0 {
				owner = cfg.UserID
			}
			var upload *int64
			if uploadID != 0 {
				u, err := st.GetUpload(cmd.Context(), uploadID)
				if err != nil {
					return err
				}
				if u == nil {
					return &model.RecordNotFoundError{Resource: "upload", ID: uploadID}
				}
				upload = &u.ID
				if name == "" {
					name = u.Filename
				}
			}
			if name == "" {
				return fmt.Errorf("--name is required without --upload")
			}

			job, err := mgr.CreateJob(cmd.Context(), owner, name, upload, priority)
			if err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "job %d created\n", job.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Job name (default: upload file name)")
	cmd.Flags().Int64Var(&uploadID, "upload", 0, "Upload the job works on")
	cmd.Flags().IntVar(&priority, "priority", 0, "Job priority")
	cmd.Flags().Int64Var(&owner, "owner", 0, "Owner user id (default: config user_id)")
	return cmd
}

func newJobShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <job_id>",
		Short: "Show a job with its tasks and dependencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			status, err := mgr.JobStatus(cmd.Context(), id)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			job := status.Job
			fmt.Fprintf(w, "Job:      %d\n", job.ID)
			fmt.Fprintf(w, "  Name:   %s\n", job.Name)
			fmt.Fprintf(w, "  Owner:  %d\n", job.OwnerUserID)
			if job.UploadID != nil {
				fmt.Fprintf(w, "  Upload: %d\n", *job.UploadID)
			}
			fmt.Fprintf(w, "  Queued: %s\n", job.QueuedTime.Format("2006-01-02 15:04:05"))

			if len(status.Tasks) == 0 {
				fmt.Fprintln(w, "  No tasks.")
				return nil
			}
			fmt.Fprintln(w, "  Tasks:")
			for _, t := range status.Tasks {
				line := fmt.Sprintf("    %-6d %-16s %-9s", t.ID, t.AgentType, t.State())
				if len(t.DependsOn) > 0 {
					deps := make([]string, len(t.DependsOn))
					for i, d := range t.DependsOn {
						deps[i] = strconv.FormatInt(d, 10)
					}
					line += " after " + strings.Join(deps, ",")
				}
				if t.EndText != "" {
					line += "  " + t.EndText
				}
				stateColor(t.State()).Fprintln(w, line)
			}
			return nil
		},
	}
}

func stateColor(s model.TaskState) *color.Color {
	switch s {
	case model.TaskStateFinished:
		return color.New(color.FgGreen)
	case model.TaskStateStarted:
		return color.New(color.FgCyan)
	default:
		return color.New(color.Reset)
	}
}

func newJobListCmd() *cobra.Command {
	opts := model.DefaultListOptions()

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Clamp()
			jobs, total, err := st.ListJobs(cmd.Context(), opts)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(w, "No jobs found.")
				return nil
			}
			fmt.Fprintf(w, "%-8s  %-8s  %-8s  %-30s  %s\n", "ID", "OWNER", "UPLOAD", "NAME", "QUEUED")
			for _, j := range jobs {
				upload := "-"
				if j.UploadID != nil {
					upload = strconv.FormatInt(*j.UploadID, 10)
				}
				fmt.Fprintf(w, "%-8d  %-8d  %-8s  %-30s  %s\n", j.ID, j.OwnerUserID, upload, j.Name,
					j.QueuedTime.Format("2006-01-02 15:04:05"))
			}
			if opts.Offset+len(jobs) < total {
				fmt.Fprintf(w, "\n(%d of %d shown)\n", len(jobs), total)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", opts.Limit, "Maximum rows")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Rows to skip")
	cmd.Flags().Int64Var(&opts.UserID, "user", 0, "Only jobs owned by this user")
	return cmd
}

func newJobAgentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agent <job_id> <agent>",
		Short: "Schedule an agent and its dependencies on the job's upload",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			job, err := st.GetJob(cmd.Context(), id)
			if err != nil {
				return err
			}
			if job == nil {
				return &model.RecordNotFoundError{Resource: "job", ID: id}
			}
			if job.UploadID == nil {
				return fmt.Errorf("job %d has no upload", id)
			}

			w := cmd.OutOrStdout()
			res, err := mgr.AddAgent(cmd.Context(), job.ID, *job.UploadID, args[1])
			if err != nil {
				if res.TaskID != 0 && errors.Is(err, model.ErrTransport) {
					color.New(color.FgYellow).Fprintf(w, "%s queued as task %d, scheduler not notified\n", args[1], res.TaskID)
				}
				return err
			}
			if res.AlreadyDone {
				color.New(color.FgYellow).Fprintf(w, "%s already done for upload %d\n", args[1], *job.UploadID)
				return nil
			}
			color.New(color.FgGreen).Fprintf(w, "%s queued as task %d\n", args[1], res.TaskID)
			return nil
		},
	}
}
