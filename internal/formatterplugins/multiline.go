package formatterplugins

import (
	"strings"

	"github.com/mireiodev/gemforge/internal/pluginregistry"
)

type formatTablesAsUnicode struct{}

func (formatTablesAsUnicode) Name() string         { return "format_tables_as_unicode" }
func (formatTablesAsUnicode) ValidTypes() []string { return []string{"md", "mdx"} }
func (formatTablesAsUnicode) Priority() int        { return pluginregistry.DontCare }
func (formatTablesAsUnicode) Description() string {
	return "Parses a 2-column markdown table and draws a box-drawing unicode table in its place."
}
func (formatTablesAsUnicode) StartPattern() string { return `^\|.*\|` }
func (formatTablesAsUnicode) EndPattern() string   { return `^(?:[^|]|$)` }

// Apply parses buffer as a pipe-delimited markdown table and renders a
// fixed-width box-drawing table, wrapping the second column to fit
// cfg.PreformattedColumns(). Only 2-column tables are supported (spec
// §4.2's built-in plugin inventory).
func (formatTablesAsUnicode) Apply(buffer []string, cfg pluginregistry.Config, _ *pluginregistry.Flags) []string {
	if len(buffer) == 0 {
		return nil
	}

	rows := make([][]string, 0, len(buffer))
	for _, line := range buffer {
		rows = append(rows, splitRow(line))
	}

	tableWidth := cfg.PreformattedColumns()
	if tableWidth <= 0 {
		tableWidth = 80
	}

	columnWidth := 0
	for _, cell := range rows[0] {
		if n := len(strings.TrimSpace(cell)); n > columnWidth {
			columnWidth = n
		}
	}

	var clean [][2]string
	for _, row := range rows {
		if len(row) < 2 || isSeparatorCell(row[0]) {
			continue
		}
		c0 := strings.TrimSpace(row[0])
		c1 := strings.TrimSpace(row[1])
		wrapWidth := (tableWidth - columnWidth) - 5
		if wrapWidth < 1 {
			wrapWidth = 1
		}
		segments := wrapText(c1, wrapWidth)
		clean = append(clean, [2]string{c0, segments[0]})
		for _, seg := range segments[1:] {
			clean = append(clean, [2]string{strings.Repeat(" ", columnWidth), seg})
		}
		clean = append(clean, [2]string{"", ""})
	}

	valueWidth := (tableWidth - 3) - columnWidth
	if valueWidth < 1 {
		valueWidth = 1
	}

	out := make([]string, 0, len(clean)+4)
	out = append(out, "```\n")
	out = append(out, "┌"+strings.Repeat("─", columnWidth+2)+"┬"+strings.Repeat("─", valueWidth)+"┐\n")
	for idx, row := range clean {
		if idx == 1 {
			out = append(out, "├"+strings.Repeat("─", columnWidth+2)+"┼"+strings.Repeat("─", valueWidth)+"┤\n")
		}
		out = append(out, "│ "+padRight(row[0], columnWidth)+" │ "+padRight(row[1], valueWidth-1)+"│\n")
	}
	out = append(out, "└"+strings.Repeat("─", columnWidth+2)+"┴"+strings.Repeat("─", valueWidth)+"┘\n")
	out = append(out, "```\n")
	return out
}

// splitRow parses a markdown table row "|a|b|" (or "| a | b |") into its
// cell values, tolerating either spacing convention.
func splitRow(line string) []string {
	line = strings.TrimRight(line, "\n")
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	parts := strings.Split(line, "|")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func isSeparatorCell(cell string) bool {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return false
	}
	for _, c := range cell {
		if c != '-' {
			return false
		}
	}
	return true
}

func padRight(s string, width int) string {
	if n := width - len(s); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}

// wrapText greedily wraps s into lines no wider than width, always
// returning at least one (possibly empty) segment.
func wrapText(s string, width int) []string {
	if width < 1 {
		width = 1
	}
	words := strings.Fields(s)
	if len(words) == 0 {
		return []string{""}
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) > width {
			lines = append(lines, line)
			line = w
			continue
		}
		line += " " + w
	}
	lines = append(lines, line)
	return lines
}
