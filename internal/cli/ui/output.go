// Package ui formats command output for the terminal.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Level represents the severity of a message
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
)

// Problem is a failure reported to the user, with optional hints on what to
// run next
type Problem struct {
	Level  Level
	Title  string
	Detail string
	Hints  []string
}

// Printer writes colored output, or plain text when color is disabled
type Printer struct {
	w       io.Writer
	noColor bool
}

// NewPrinter creates a printer writing to w
func NewPrinter(w io.Writer, noColor bool) *Printer {
	return &Printer{w: w, noColor: noColor}
}

func (p *Printer) color(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if p.noColor {
		c.DisableColor()
	}
	return c
}

// Problem writes a formatted problem report
//
// Example output:
//
//	✗ PUBLISH FAILED
//	   column "email" of relation "contacts" already exists
//
//	   → Preview the plan: pagecraft diff <model-id>
func (p *Printer) Problem(pr Problem) {
	var header, body *color.Color
	var symbol string
	switch pr.Level {
	case LevelWarning:
		header, body, symbol = p.color(color.FgYellow, color.Bold), p.color(color.FgYellow), "!"
	case LevelInfo:
		header, body, symbol = p.color(color.FgCyan, color.Bold), p.color(color.FgCyan), "i"
	default:
		header, body, symbol = p.color(color.FgRed, color.Bold), p.color(color.FgRed), "✗"
	}

	header.Fprintf(p.w, "%s %s\n", symbol, strings.ToUpper(pr.Title))
	if pr.Detail != "" {
		body.Fprintf(p.w, "   %s\n", pr.Detail)
	}
	if len(pr.Hints) > 0 {
		fmt.Fprintln(p.w)
		cyan := p.color(color.FgCyan)
		for _, h := range pr.Hints {
			cyan.Fprintf(p.w, "   → %s\n", h)
		}
	}
}

// Success writes a success line
func (p *Printer) Success(format string, args ...interface{}) {
	p.color(color.FgGreen, color.Bold).Fprintf(p.w, "✓ %s\n", fmt.Sprintf(format, args...))
}

// Warn writes a warning line
func (p *Printer) Warn(format string, args ...interface{}) {
	p.color(color.FgYellow).Fprintf(p.w, "! %s\n", fmt.Sprintf(format, args...))
}

// Header writes a bold title underlined to its width
func (p *Printer) Header(title string) {
	p.color(color.Bold, color.FgCyan).Fprintln(p.w, title)
	p.color(color.FgHiBlack).Fprintln(p.w, strings.Repeat("─", len([]rune(title))))
}

// KeyValues writes aligned "key: value" rows in the given order
func (p *Printer) KeyValues(rows [][2]string) {
	width := 0
	for _, r := range rows {
		if len(r[0]) > width {
			width = len(r[0])
		}
	}
	cyan := p.color(color.FgCyan)
	for _, r := range rows {
		cyan.Fprint(p.w, padRight(r[0]+":", width+1))
		fmt.Fprintf(p.w, " %s\n", r[1])
	}
}

// Table writes rows under headers with columns padded to the widest cell
func (p *Printer) Table(headers []string, rows [][]string) {
	if len(headers) == 0 {
		return
	}
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	head := make([]string, len(headers))
	for i, h := range headers {
		head[i] = padRight(h, widths[i])
	}
	p.color(color.Bold, color.FgCyan).Fprintln(p.w, strings.TrimRight(strings.Join(head, "  "), " "))

	gray := p.color(color.FgHiBlack)
	seps := make([]string, len(widths))
	for i, w := range widths {
		seps[i] = strings.Repeat("─", w)
	}
	gray.Fprintln(p.w, strings.Join(seps, "  "))

	for _, row := range rows {
		cells := make([]string, 0, len(widths))
		for i := range widths {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			cells = append(cells, padRight(cell, widths[i]))
		}
		fmt.Fprintln(p.w, strings.TrimRight(strings.Join(cells, "  "), " "))
	}
}

// Plan writes numbered DDL statements; destructive statements are highlighted
func (p *Printer) Plan(ops []string) {
	if len(ops) == 0 {
		p.color(color.FgHiBlack).Fprintln(p.w, "No changes.")
		return
	}
	num := p.color(color.FgCyan)
	danger := p.color(color.FgRed, color.Bold)
	for i, op := range ops {
		num.Fprintf(p.w, "%3d. ", i+1)
		if IsDestructive(op) {
			danger.Fprintln(p.w, op)
			continue
		}
		fmt.Fprintln(p.w, op)
	}
}

// IsDestructive reports whether a statement drops a column or table
func IsDestructive(op string) bool {
	upper := strings.ToUpper(op)
	return strings.Contains(upper, "DROP COLUMN") || strings.Contains(upper, "DROP TABLE")
}

func padRight(s string, width int) string {
	if n := len(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
