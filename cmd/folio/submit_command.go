package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"folio/internal/api"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var user string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "submit <job-type> <params.json|->",
		Short: "Submit an ingestion request to the daemon",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobType := strings.TrimSpace(args[0])
			body, err := readParams(cmd, args[1])
			if err != nil {
				return err
			}
			if !json.Valid(body) {
				return fmt.Errorf("%s does not contain valid JSON", args[1])
			}
			submitter := resolveUser(user)
			if submitter == "" {
				return fmt.Errorf("--user is required (or set FOLIO_USER)")
			}

			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Submit(cmd.Context(), jobType, submitter, body)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Submitted %s batch %s for %s\n", displayName(resp.JobType), resp.BatchID, resp.User)
				fmt.Fprintf(out, "Chains: %d\n", len(resp.ChainIDs))
				for _, id := range resp.ChainIDs {
					fmt.Fprintf(out, "  %s\n", id)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "Submitting user (defaults to FOLIO_USER or USER)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the response as JSON")
	return cmd
}

func readParams(cmd *cobra.Command, source string) ([]byte, error) {
	if source == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read params from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("read params: %w", err)
	}
	return data, nil
}

func resolveUser(flagValue string) string {
	for _, candidate := range []string{flagValue, os.Getenv("FOLIO_USER"), os.Getenv("USER")} {
		if value := strings.TrimSpace(candidate); value != "" {
			return value
		}
	}
	return ""
}
