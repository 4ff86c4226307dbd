package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cjhyy/interview-QA-help/internal/app"
)

func newProvidersCommand(ctx *commandContext) *cobra.Command {
	var use string

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Show configured AI providers and which one is active",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.Application) error {
				selector := a.Providers()
				if use != "" {
					if err := selector.Switch(cmd.Context(), use); err != nil {
						return err
					}
				} else {
					// Resolve the default selection so the table shows it.
					_, _ = selector.Active(cmd.Context())
				}

				statuses := selector.Statuses(cmd.Context())
				if !ctx.wantTable(cmd) {
					return writeJSON(cmd, statuses)
				}
				rows := make([][]string, 0, len(statuses))
				for _, st := range statuses {
					rows = append(rows, []string{st.Name, yesNo(st.Configured), yesNo(st.Healthy), yesNo(st.Active)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Provider", "Configured", "Healthy", "Active"}, rows, nil))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&use, "use", "", "Switch to the named provider if it is usable")
	return cmd
}
