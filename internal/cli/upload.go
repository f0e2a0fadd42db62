package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/me/agentq/internal/queue"
	"github.com/me/agentq/pkg/model"
)

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Manage uploads",
	}
	cmd.AddCommand(newUploadAddCmd(), newUploadListCmd(), newUploadShowCmd())
	return cmd
}

func newUploadAddCmd() *cobra.Command {
	var (
		req  queue.AddUploadRequest
		mode string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a new upload",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch mode {
			case "file":
				req.Mode = model.UploadModeFile
			case "url":
				req.Mode = model.UploadModeURL
			default:
				return fmt.Errorf("--mode must be file or url, got %q", mode)
			}
			if req.UserID == 0 {
				req.UserID = cfg.UserID
			}

			u, err := mgr.AddUpload(cmd.Context(), req)
			if err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "upload %d added\n", u.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "Upload file name")
	cmd.Flags().StringVar(&req.Origin, "origin", "", "Where the content came from (path or URL)")
	cmd.Flags().StringVar(&req.Description, "description", "", "Free-form description")
	cmd.Flags().StringVar(&mode, "mode", "file", "Upload mode (file, url)")
	cmd.Flags().Int64Var(&req.FolderID, "folder", 1, "Folder id")
	cmd.Flags().Int64Var(&req.UserID, "user", 0, "Owning user id (default: config user_id)")
	return cmd
}

func newUploadListCmd() *cobra.Command {
	opts := model.DefaultListOptions()

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List uploads",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Clamp()
			uploads, total, err := st.ListUploads(cmd.Context(), opts)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(uploads) == 0 {
				fmt.Fprintln(w, "No uploads found.")
				return nil
			}
			fmt.Fprintf(w, "%-8s  %-8s  %-30s  %s\n", "ID", "USER", "FILENAME", "ORIGIN")
			for _, u := range uploads {
				fmt.Fprintf(w, "%-8d  %-8d  %-30s  %s\n", u.ID, u.UserID, u.Filename, u.Origin)
			}
			if opts.Offset+len(uploads) < total {
				fmt.Fprintf(w, "\n(%d of %d shown)\n", len(uploads), total)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", opts.Limit, "Maximum rows")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Rows to skip")
	cmd.Flags().Int64Var(&opts.UserID, "user", 0, "Only uploads of this user")
	return cmd
}

func newUploadShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|filename>",
		Short: "Show one upload",
		Long:  "Show one upload. A filename resolves to the most recent upload with that name.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := mgr.FindUpload(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Upload:   %d\n", u.ID)
			fmt.Fprintf(w, "Filename: %s\n", u.Filename)
			fmt.Fprintf(w, "Origin:   %s\n", u.Origin)
			fmt.Fprintf(w, "User:     %d\n", u.UserID)
			fmt.Fprintf(w, "Folder:   %d\n", u.FolderID)
			if u.Description != "" {
				fmt.Fprintf(w, "Desc:     %s\n", u.Description)
			}
			fmt.Fprintf(w, "Created:  %s\n", u.CreatedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}
