package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"encodefleet/internal/api"
	"encodefleet/internal/apiclient"
)

func newOutputsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outputs",
		Short: "Inspect and manage job outputs",
	}
	cmd.AddCommand(newOutputsListCommand(ctx))
	cmd.AddCommand(newOutputsRetryCommand(ctx))
	cmd.AddCommand(newOutputsDeleteCommand(ctx))
	return cmd
}

func newOutputsListCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List outputs",
	}
	filters := addFilterFlags(cmd, "key", "job_key", "status")
	page := addPageFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return ctx.withClient(func(client *apiclient.Client) error {
			result, err := client.ListOutputs(cmd.Context(), page.options(filters))
			if err != nil {
				return err
			}
			return printPage(cmd, ctx, result,
				[]column{left("Key"), left("Job"), left("Name"), statusColumn("Status"), left("Error"), left("Updated")},
				func(o api.Output) []string {
					return []string{
						o.Key,
						o.JobKey,
						o.Name,
						o.Status,
						orDash(o.Error),
						shortTime(o.UpdatedAt),
					}
				})
		})
	}
	return cmd
}

func newOutputsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <key>",
		Short: "Reset a failed output and re-queue its job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				output, err := client.RetryOutput(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, output)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Output %s is %s; job %s re-queued\n",
					output.Key, statusLabel(output.Status, false), output.JobKey)
				return nil
			})
		},
	}
}

func newOutputsDeleteCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete outputs matching filters",
	}
	filters := addFilterFlags(cmd, "key", "job_key", "status")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		values := filters.values()
		if err := requireFilters(values); err != nil {
			return err
		}
		return ctx.withClient(func(client *apiclient.Client) error {
			result, err := client.DeleteOutputs(cmd.Context(), values)
			if err != nil {
				return err
			}
			return printDeleted(cmd, ctx, "output(s)", result, result.Deleted)
		})
	}
	return cmd
}
