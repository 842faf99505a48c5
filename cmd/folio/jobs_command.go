package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"folio/internal/api"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect submitted job trees",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var user string
	var all bool
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List batches submitted by a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner := resolveUser(user)
			if owner == "" {
				return fmt.Errorf("--user is required (or set FOLIO_USER)")
			}
			return ctx.withClient(func(client *api.Client) error {
				jobs, err := client.List(cmd.Context(), owner, all)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.JobListResponse{Jobs: jobs})
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintf(out, "No jobs for %s\n", owner)
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Type", "Label", "State", "Children", "Created"},
					buildJobRows(jobs, shouldColorize(out)),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "Owner of the jobs (defaults to FOLIO_USER or USER)")
	cmd.Flags().BoolVar(&all, "all", false, "Include chain and task nodes, not only batches")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the jobs as JSON")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job node with its children",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				detail, err := client.Show(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, detail)
				}
				out := cmd.OutOrStdout()
				writeJobDetail(out, detail, shouldColorize(out))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the job as JSON")
	return cmd
}

func buildJobRows(jobs []api.JobNode, colorize bool) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.ID,
			job.Type,
			job.Label,
			stateText(job.State, colorize),
			strconv.Itoa(len(job.ChildIDs)),
			formatTimestamp(job.CreatedAt),
		})
	}
	return rows
}

func writeJobDetail(out io.Writer, detail *api.JobDetailResponse, colorize bool) {
	job := detail.Job
	fmt.Fprintf(out, "ID:      %s\n", job.ID)
	fmt.Fprintf(out, "Type:    %s\n", job.Type)
	if job.Label != "" {
		fmt.Fprintf(out, "Label:   %s\n", job.Label)
	}
	fmt.Fprintf(out, "User:    %s\n", job.User)
	fmt.Fprintf(out, "State:   %s\n", stateText(job.State, colorize))
	if job.ParentID != "" {
		fmt.Fprintf(out, "Parent:  %s\n", job.ParentID)
	}
	if created := formatTimestamp(job.CreatedAt); created != "" {
		fmt.Fprintf(out, "Created: %s\n", created)
	}
	if job.Description != "" {
		fmt.Fprintf(out, "\n%s\n", job.Description)
	}
	if len(job.Errors) > 0 {
		fmt.Fprintln(out, "\nErrors:")
		for _, e := range job.Errors {
			fmt.Fprintf(out, "  [%s] %s\n", e.Source, e.Message)
		}
	}
	if len(detail.Children) == 0 {
		return
	}
	fmt.Fprintf(out, "\nChildren (%s):\n", formatCounts(detail.Counts))
	fmt.Fprint(out, renderTable(
		[]string{"ID", "Label", "State", "Errors"},
		buildChildRows(detail.Children, colorize),
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
	))
}

func buildChildRows(children []api.JobNode, colorize bool) [][]string {
	rows := make([][]string, 0, len(children))
	for _, child := range children {
		label := child.Label
		if label == "" {
			label = child.Type
		}
		rows = append(rows, []string{
			child.ID,
			label,
			stateText(child.State, colorize),
			strconv.Itoa(len(child.Errors)),
		})
	}
	return rows
}

func formatCounts(counts api.StateCounts) string {
	if len(counts) == 0 {
		return "none"
	}
	states := make([]string, 0, len(counts))
	for state := range counts {
		states = append(states, state)
	}
	sort.Strings(states)
	parts := make([]string, 0, len(states))
	for _, state := range states {
		parts = append(parts, fmt.Sprintf("%d %s", counts[state], state))
	}
	return strings.Join(parts, ", ")
}

func formatTimestamp(value string) string {
	t := api.ParseTime(value)
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(time.DateTime)
}
