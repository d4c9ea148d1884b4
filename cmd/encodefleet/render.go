package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"encodefleet/internal/api"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

var titleCaser = cases.Title(language.Und)

func shouldColorize(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// statusLabel renders a wire status such as SUCCESSFUL as "Successful".
func statusLabel(status string, colorize bool) string {
	label := titleCaser.String(strings.ReplaceAll(strings.ToLower(status), "_", " "))
	if !colorize {
		return label
	}
	if color := statusColor(status); color != "" {
		return color + label + ansiReset
	}
	return label
}

func statusColor(status string) string {
	switch strings.ToUpper(status) {
	case "SUCCESSFUL", "ONLINE", "IDLE":
		return ansiGreen
	case "FAILED", "OFFLINE":
		return ansiRed
	case "RUNNING", "BUSY":
		return ansiBlue
	case "PENDING", "QUEUED", "SKIPPED":
		return ansiYellow
	default:
		return ""
	}
}

func paginationFooter(p *api.Pagination) string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("Page %d of %d (%d total)", p.Page, p.TotalPages, p.Total)
}

// shortTime trims an RFC3339 timestamp to local minutes.
func shortTime(value string) string {
	if value == "" {
		return "-"
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return value
	}
	return ts.Local().Format("2006-01-02 15:04")
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func itoa(v int) string {
	return strconv.Itoa(v)
}
