package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"encodefleet/internal/api"
	"encodefleet/internal/apiclient"
)

func newInstancesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instances",
		Short: "Inspect and remove fleet instances",
	}

	list := &cobra.Command{Use: "list", Short: "List instances"}
	listFilters := addFilterFlags(list, "key", "type", "status")
	page := addPageFlags(list)
	list.RunE = func(cmd *cobra.Command, args []string) error {
		return ctx.withClient(func(client *apiclient.Client) error {
			result, err := client.ListInstances(cmd.Context(), page.options(listFilters))
			if err != nil {
				return err
			}
			return printPage(cmd, ctx, result,
				[]column{left("Key"), left("Type"), statusColumn("Status"), left("Host"), right("CPUs"), right("Workers"), left("Heartbeat")},
				func(i api.Instance) []string {
					return []string{
						i.Key,
						i.Type,
						i.Status,
						orDash(i.Specs.Hostname),
						strconv.Itoa(i.Specs.CPUCores),
						strconv.Itoa(i.WorkersMax),
						shortTime(i.LastHeartbeat),
					}
				})
		})
	}

	remove := &cobra.Command{Use: "delete", Short: "Delete instances and their workers"}
	removeFilters := addFilterFlags(remove, "key", "type", "status")
	remove.RunE = func(cmd *cobra.Command, args []string) error {
		values := removeFilters.values()
		if err := requireFilters(values); err != nil {
			return err
		}
		return ctx.withClient(func(client *apiclient.Client) error {
			result, err := client.DeleteInstances(cmd.Context(), values)
			if err != nil {
				return err
			}
			return printDeleted(cmd, ctx, "instance(s)", result, result.Deleted)
		})
	}

	cmd.AddCommand(list, remove)
	return cmd
}

func newWorkersCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "Inspect and remove worker slots",
	}

	list := &cobra.Command{Use: "list", Short: "List workers"}
	listFilters := addFilterFlags(list, "key", "instance_key")
	page := addPageFlags(list)
	list.RunE = func(cmd *cobra.Command, args []string) error {
		return ctx.withClient(func(client *apiclient.Client) error {
			result, err := client.ListWorkers(cmd.Context(), page.options(listFilters))
			if err != nil {
				return err
			}
			return printPage(cmd, ctx, result,
				[]column{left("Key"), left("Instance"), right("Index"), statusColumn("Status"), left("Job")},
				func(w api.Worker) []string {
					return []string{
						w.Key,
						w.InstanceKey,
						strconv.Itoa(w.Index),
						w.Status,
						orDash(w.JobKey),
					}
				})
		})
	}

	remove := &cobra.Command{Use: "delete", Short: "Delete workers"}
	removeFilters := addFilterFlags(remove, "key", "instance_key")
	remove.RunE = func(cmd *cobra.Command, args []string) error {
		values := removeFilters.values()
		if err := requireFilters(values); err != nil {
			return err
		}
		return ctx.withClient(func(client *apiclient.Client) error {
			result, err := client.DeleteWorkers(cmd.Context(), values)
			if err != nil {
				return err
			}
			return printDeleted(cmd, ctx, "worker(s)", result, result.Deleted)
		})
	}

	cmd.AddCommand(list, remove)
	return cmd
}

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show daemon health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				health, err := client.Health(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, health)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Status:    %s\n", health.Status)
				fmt.Fprintf(out, "Instance:  %s (%s)\n", health.InstanceKey, health.InstanceType)
				fmt.Fprintf(out, "Running:   %t\n", health.Running)
				fmt.Fprintf(out, "Database:  %s (schema %d, integrity %t)\n",
					health.Database.Path, health.Database.SchemaVersion, health.Database.Integrity)
				fmt.Fprintf(out, "Workers:   %d/%d busy\n", health.Fleet.BusyWorkers, health.Fleet.TotalWorkers)
				if len(health.ActiveJobs) > 0 {
					fmt.Fprintf(out, "Active:    %d job(s)\n", len(health.ActiveJobs))
				}
				if health.LastError != "" {
					fmt.Fprintf(out, "Last error: %s\n", health.LastError)
				}
				return nil
			})
		},
	}
}
