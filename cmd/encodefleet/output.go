package main

import (
	"encoding/json"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// column describes one table column. Status columns carry raw API status
// values and are rendered through statusLabel.
type column struct {
	header string
	right  bool
	status bool
}

func left(header string) column         { return column{header: header} }
func right(header string) column        { return column{header: header, right: true} }
func statusColumn(header string) column { return column{header: header, status: true} }

func renderTable(columns []column, rows [][]string, colorize bool) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, c := range columns {
		header[i] = c.header
		cfg := table.ColumnConfig{Number: i + 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft}
		if c.right {
			cfg.Align = text.AlignRight
		}
		if c.status {
			cfg.Transformer = func(val any) string {
				s, _ := val.(string)
				if s == "" {
					return "-"
				}
				return statusLabel(s, colorize)
			}
		}
		configs[i] = cfg
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range columns {
			r[i] = ""
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}
	return tw.Render()
}

// writeJSON prints v as indented JSON. Webhook URLs and payloads keep their
// '&' and '<' unescaped so the output can be pasted back into requests.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
