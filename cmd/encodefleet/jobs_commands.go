package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"encodefleet/internal/api"
	"encodefleet/internal/apiclient"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage encoding jobs",
	}
	cmd.AddCommand(newJobsListCommand(ctx))
	cmd.AddCommand(newJobsCreateCommand(ctx))
	cmd.AddCommand(newJobsPriorityCommand(ctx))
	cmd.AddCommand(newJobsRetryCommand(ctx))
	cmd.AddCommand(newJobsDeleteCommand(ctx))
	cmd.AddCommand(newJobsPreviewCommand(ctx))
	return cmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
	}
	filters := addFilterFlags(cmd, "key", "status")
	page := addPageFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return ctx.withClient(func(client *apiclient.Client) error {
			result, err := client.ListJobs(cmd.Context(), page.options(filters))
			if err != nil {
				return err
			}
			return printPage(cmd, ctx, result,
				[]column{left("Key"), statusColumn("Status"), right("Priority"), right("Attempt"), left("Worker"), left("Updated")},
				func(job api.Job) []string {
					return []string{
						job.Key,
						job.Status,
						itoa(job.Priority),
						itoa(job.Attempt),
						orDash(job.WorkerKey),
						shortTime(job.UpdatedAt),
					}
				})
		})
	}
	return cmd
}

func newJobsCreateCommand(ctx *commandContext) *cobra.Command {
	var input string
	var inputFile string
	var priority int

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Submit a job",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readJobInput(input, inputFile)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				job, err := client.CreateJob(cmd.Context(), api.CreateJobRequest{Input: raw, Priority: priority})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, job)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created job %s (%s)\n", job.Key, statusLabel(job.Status, false))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "Job input as inline JSON")
	cmd.Flags().StringVar(&inputFile, "input-file", "", "Read job input JSON from a file")
	cmd.Flags().IntVar(&priority, "priority", 0, "Job priority; lower runs first")
	cmd.MarkFlagsMutuallyExclusive("input", "input-file")
	cmd.MarkFlagsOneRequired("input", "input-file")
	return cmd
}

func readJobInput(inline, path string) (json.RawMessage, error) {
	data := []byte(strings.TrimSpace(inline))
	if path != "" {
		contents, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read input file: %w", err)
		}
		data = contents
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("job input is not valid JSON")
	}
	return json.RawMessage(data), nil
}

func newJobsPriorityCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "priority <key> <value>",
		Short: "Change the priority of a job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value int
			if _, err := fmt.Sscan(args[1], &value); err != nil {
				return fmt.Errorf("priority must be an integer: %q", args[1])
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				job, message, err := client.UpdateJob(cmd.Context(), api.UpdateJobRequest{Key: args[0], Priority: &value})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, job)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s priority %d\n", orDash(message), job.Key, job.Priority)
				return nil
			})
		},
	}
}

func newJobsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <key>...",
		Short: "Move failed jobs back to pending",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				jobs, err := client.RetryJobs(cmd.Context(), args)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, jobs)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retried %d job(s)\n", len(jobs))
				return nil
			})
		},
	}
}

func newJobsDeleteCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete jobs matching filters",
	}
	filters := addFilterFlags(cmd, "key", "status")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		values := filters.values()
		if err := requireFilters(values); err != nil {
			return err
		}
		return ctx.withClient(func(client *apiclient.Client) error {
			result, err := client.DeleteJobs(cmd.Context(), values)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, result)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Deleted %d job(s)\n", result.Deleted)
			if result.CancelledRuns > 0 {
				fmt.Fprintf(out, "Cancelled %d running job(s)\n", result.CancelledRuns)
			}
			return nil
		})
	}
	return cmd
}

func newJobsPreviewCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preview <key>",
		Short: "Show the public summary of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				preview, err := client.PreviewJob(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, preview)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(
					[]column{left("Key"), statusColumn("Status"), right("Priority"), right("Outputs"), left("Created"), left("Updated")},
					[][]string{{
						preview.Key,
						preview.Status,
						itoa(preview.Priority),
						itoa(preview.OutputCount),
						shortTime(preview.CreatedAt),
						shortTime(preview.UpdatedAt),
					}},
					shouldColorize(out),
				))
				return nil
			})
		},
	}
}
