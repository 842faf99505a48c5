package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"folio/internal/api"
)

func newTypesCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List the job types the daemon accepts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *api.Client) error {
				types, err := client.JobTypes(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.JobTypesResponse{Types: types})
				}
				rows := make([][]string, 0, len(types))
				for _, jt := range types {
					rows = append(rows, []string{jt.Name, jt.Label})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Type", "Label"}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the job types as JSON")
	return cmd
}

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show daemon readiness checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *api.Client) error {
				health, err := client.Health(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, health)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Healthy: %s\n", yesNo(health.Healthy))
				fmt.Fprintf(out, "Active batches: %d\n", health.ActiveBatches)
				rows := make([][]string, 0, len(health.Checks))
				for _, check := range health.Checks {
					status := "ok"
					if !check.Passed {
						status = "failed"
					}
					rows = append(rows, []string{check.Name, status, check.Detail})
				}
				fmt.Fprint(out, renderTable([]string{"Check", "Status", "Detail"}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
