package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"encodefleet/internal/apiclient"
)

// filterFlags binds one string flag per filter name.
type filterFlags map[string]*string

func addFilterFlags(cmd *cobra.Command, names ...string) filterFlags {
	flags := make(filterFlags, len(names))
	for _, name := range names {
		value := new(string)
		cmd.Flags().StringVar(value, strings.ReplaceAll(name, "_", "-"), "", "Filter by "+strings.ReplaceAll(name, "_", " "))
		flags[name] = value
	}
	return flags
}

func (f filterFlags) values() url.Values {
	values := url.Values{}
	for name, value := range f {
		if v := strings.TrimSpace(*value); v != "" {
			values.Set(name, v)
		}
	}
	return values
}

type pageFlags struct {
	limit int
	page  int
}

func addPageFlags(cmd *cobra.Command) *pageFlags {
	p := &pageFlags{}
	cmd.Flags().IntVar(&p.limit, "limit", 0, "Rows per page (server default when 0)")
	cmd.Flags().IntVar(&p.page, "page", 0, "Page number, starting at 1")
	return p
}

func (p *pageFlags) options(filters filterFlags) apiclient.ListOptions {
	return apiclient.ListOptions{Filters: filters.values(), Limit: p.limit, Page: p.page}
}

// requireFilters guards bulk deletes from wiping a whole table by accident.
func requireFilters(filters url.Values) error {
	if len(filters) == 0 {
		return fmt.Errorf("at least one filter is required; use `encodefleet purge` to delete everything")
	}
	return nil
}

// printPage renders rows and the pagination footer, or the raw page in JSON mode.
func printPage[T any](cmd *cobra.Command, ctx *commandContext, page apiclient.Page[T], columns []column, row func(T) []string) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, map[string]any{"items": page.Items, "pagination": page.Pagination})
	}
	out := cmd.OutOrStdout()
	if len(page.Items) == 0 {
		fmt.Fprintln(out, "No results")
		return nil
	}
	rows := make([][]string, 0, len(page.Items))
	for _, item := range page.Items {
		rows = append(rows, row(item))
	}
	fmt.Fprintln(out, renderTable(columns, rows, shouldColorize(out)))
	if footer := paginationFooter(page.Pagination); footer != "" {
		fmt.Fprintln(out, footer)
	}
	return nil
}

func printDeleted(cmd *cobra.Command, ctx *commandContext, noun string, result any, count int64) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d %s\n", count, noun)
	return nil
}
