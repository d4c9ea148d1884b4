package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"encodefleet/internal/api"
	"encodefleet/internal/apiclient"
)

func newNotificationsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notify"},
		Short:   "Inspect and manage the notification queue",
	}
	cmd.AddCommand(newNotificationsListCommand(ctx))
	cmd.AddCommand(newNotificationsSendCommand(ctx))
	cmd.AddCommand(newNotificationsKeysCommand(ctx, "retry", "Make failed notifications due again", (*apiclient.Client).RetryNotifications, "Retried"))
	cmd.AddCommand(newNotificationsKeysCommand(ctx, "skip", "Skip pending notifications", (*apiclient.Client).SkipNotifications, "Skipped"))
	cmd.AddCommand(newNotificationsDeleteCommand(ctx))
	return cmd
}

func newNotificationsListCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications",
	}
	filters := addFilterFlags(cmd, "key", "job_key", "type", "status")
	page := addPageFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return ctx.withClient(func(client *apiclient.Client) error {
			result, err := client.ListNotifications(cmd.Context(), page.options(filters))
			if err != nil {
				return err
			}
			return printPage(cmd, ctx, result,
				[]column{left("Key"), left("Type"), statusColumn("Status"), right("Tries"), left("Job"), left("Retry At"), left("Last Error")},
				func(n api.Notification) []string {
					return []string{
						n.Key,
						n.Type,
						n.Status,
						strconv.Itoa(n.TryCount) + "/" + strconv.Itoa(n.TryMax),
						orDash(n.JobKey),
						shortTime(n.RetryAt),
						orDash(n.LastError),
					}
				})
		})
	}
	return cmd
}

func newNotificationsSendCommand(ctx *commandContext) *cobra.Command {
	var req api.EnqueueNotificationRequest
	var payload string
	var tryMax int

	cmd := &cobra.Command{
		Use:   "send <type>",
		Short: "Queue a notification by hand",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Type = args[0]
			if payload != "" {
				if !json.Valid([]byte(payload)) {
					return fmt.Errorf("payload is not valid JSON")
				}
				req.Payload = json.RawMessage(payload)
			}
			if cmd.Flags().Changed("try-max") {
				req.TryMax = &tryMax
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				n, err := client.EnqueueNotification(cmd.Context(), req)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, n)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued notification %s\n", n.Key)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.JobKey, "job-key", "", "Job the notification refers to")
	cmd.Flags().StringVar(&payload, "payload", "", "Payload as inline JSON")
	cmd.Flags().IntVar(&tryMax, "try-max", 0, "Delivery attempts before giving up")
	return cmd
}

type notificationKeysFunc func(*apiclient.Client, context.Context, []string) ([]api.Notification, error)

func newNotificationsKeysCommand(ctx *commandContext, use, short string, fn notificationKeysFunc, verb string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <key>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				items, err := fn(client, cmd.Context(), args)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, items)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d notification(s)\n", verb, len(items))
				return nil
			})
		},
	}
}

func newNotificationsDeleteCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete notifications matching filters",
	}
	filters := addFilterFlags(cmd, "key", "job_key", "type", "status")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		values := filters.values()
		if err := requireFilters(values); err != nil {
			return err
		}
		return ctx.withClient(func(client *apiclient.Client) error {
			result, err := client.DeleteNotifications(cmd.Context(), values)
			if err != nil {
				return err
			}
			return printDeleted(cmd, ctx, "notification(s)", result, result.Deleted)
		})
	}
	return cmd
}
