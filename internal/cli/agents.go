package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAgentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List configured agents and their latest registered revision",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := mgr.Registry()
			w := cmd.OutOrStdout()

			names := reg.Names()
			if len(names) == 0 {
				fmt.Fprintln(w, "No agents configured.")
				return nil
			}

			fmt.Fprintf(w, "%-16s  %-24s  %s\n", "AGENT", "DEPENDS ON", "REVISION")
			for _, name := range names {
				a, err := reg.Get(name)
				if err != nil {
					return err
				}
				latest, err := st.LatestAgent(cmd.Context(), name)
				if err != nil {
					return err
				}
				rev := "-"
				if latest != nil {
					rev = fmt.Sprintf("%d (%s)", latest.ID, latest.Revision)
				}
				deps := strings.Join(a.Dependencies(), ",")
				if deps == "" {
					deps = "-"
				}
				fmt.Fprintf(w, "%-16s  %-24s  %s\n", name, deps, rev)
			}
			return nil
		},
	}
}
