package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"encodefleet/internal/api"
	"encodefleet/internal/apiclient"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Browse the fleet audit log",
	}

	list := &cobra.Command{Use: "list", Short: "List audit log entries"}
	listFilters := addFilterFlags(list, "key", "level", "job_key")
	page := addPageFlags(list)
	list.RunE = func(cmd *cobra.Command, args []string) error {
		return ctx.withClient(func(client *apiclient.Client) error {
			result, err := client.ListLogs(cmd.Context(), page.options(listFilters))
			if err != nil {
				return err
			}
			return printPage(cmd, ctx, result,
				[]column{left("Time"), left("Level"), left("Message"), left("Job"), left("Instance")},
				func(e api.LogEntry) []string {
					return []string{
						shortTime(e.CreatedAt),
						e.Level,
						e.Message,
						orDash(e.JobKey),
						orDash(e.InstanceKey),
					}
				})
		})
	}

	remove := &cobra.Command{Use: "delete", Short: "Delete audit log entries"}
	removeFilters := addFilterFlags(remove, "key", "level", "job_key")
	remove.RunE = func(cmd *cobra.Command, args []string) error {
		values := removeFilters.values()
		if err := requireFilters(values); err != nil {
			return err
		}
		return ctx.withClient(func(client *apiclient.Client) error {
			result, err := client.DeleteLogs(cmd.Context(), values)
			if err != nil {
				return err
			}
			return printDeleted(cmd, ctx, "log entr(ies)", result, result.Deleted)
		})
	}

	cmd.AddCommand(list, remove)
	return cmd
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Browse sampled fleet statistics",
	}

	list := &cobra.Command{Use: "list", Short: "List stat samples"}
	listFilters := addFilterFlags(list, "key", "name")
	page := addPageFlags(list)
	list.RunE = func(cmd *cobra.Command, args []string) error {
		return ctx.withClient(func(client *apiclient.Client) error {
			result, err := client.ListStats(cmd.Context(), page.options(listFilters))
			if err != nil {
				return err
			}
			return printPage(cmd, ctx, result,
				[]column{left("Time"), left("Name"), right("Value"), left("Labels")},
				func(s api.Stat) []string {
					labels := "-"
					if len(s.Labels) > 0 && string(s.Labels) != "null" {
						labels = string(s.Labels)
					}
					return []string{
						shortTime(s.CreatedAt),
						s.Name,
						strconv.FormatFloat(s.Value, 'f', -1, 64),
						labels,
					}
				})
		})
	}

	remove := &cobra.Command{Use: "delete", Short: "Delete stat samples"}
	removeFilters := addFilterFlags(remove, "key", "name")
	remove.RunE = func(cmd *cobra.Command, args []string) error {
		values := removeFilters.values()
		if err := requireFilters(values); err != nil {
			return err
		}
		return ctx.withClient(func(client *apiclient.Client) error {
			result, err := client.DeleteStats(cmd.Context(), values)
			if err != nil {
				return err
			}
			return printDeleted(cmd, ctx, "stat sample(s)", result, result.Deleted)
		})
	}

	cmd.AddCommand(list, remove)
	return cmd
}

func newPurgeCommand(ctx *commandContext) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every fleet record and stored blob",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("purge deletes all jobs, outputs, notifications, instances, workers, logs and stats; rerun with --yes")
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				result, err := client.Purge(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(
					[]column{left("Table"), right("Deleted")},
					[][]string{
						{"jobs", strconv.FormatInt(result.Jobs, 10)},
						{"outputs", strconv.FormatInt(result.Outputs, 10)},
						{"notifications", strconv.FormatInt(result.Notifications, 10)},
						{"workers", strconv.FormatInt(result.Workers, 10)},
						{"instances", strconv.FormatInt(result.Instances, 10)},
						{"logs", strconv.FormatInt(result.Logs, 10)},
						{"stats", strconv.FormatInt(result.Stats, 10)},
					},
					false,
				))
				if result.BlobError != "" {
					fmt.Fprintf(out, "Blob cleanup failed: %s\n", result.BlobError)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the purge")
	return cmd
}
