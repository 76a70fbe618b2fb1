package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

func (e *env) colorize(color, text string) string {
	if e.noColor || e.jsonOut {
		return text
	}
	return color + text + colorReset
}

func (e *env) printSuccess(format string, args ...any) {
	fmt.Fprintln(e.err, e.colorize(colorGreen, "✓ "+fmt.Sprintf(format, args...)))
}

func (e *env) printError(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, e.colorize(colorRed, "✗ "+fmt.Sprintf(format, args...)))
}

func (e *env) printWarning(format string, args ...any) {
	fmt.Fprintln(e.err, e.colorize(colorYellow, "⚠ "+fmt.Sprintf(format, args...)))
}

func (e *env) printStep(format string, args ...any) {
	fmt.Fprintln(e.err, e.colorize(colorCyan, "→ "+fmt.Sprintf(format, args...)))
}

func (e *env) printField(label, format string, args ...any) {
	fmt.Fprintf(e.out, "%s %s\n", e.colorize(colorBold, fmt.Sprintf("%-10s", label+":")), fmt.Sprintf(format, args...))
}

func (e *env) writeJSON(v any) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// table writes tab-aligned rows under a header.
func (e *env) table(header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	return tw.Flush()
}

// oneLine collapses whitespace so message text fits a table cell.
func oneLine(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); width > 0 && len(r) > width {
		return string(r[:width-1]) + "…"
	}
	return s
}
