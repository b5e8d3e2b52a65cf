// Package output formats CLI output. Color is used only when writing to a
// terminal.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/Aman-CERP/codechat/internal/chat"
)

// Palette.
const (
	ColorAccent = "154"
	ColorGray   = "245"
	ColorDim    = "238"
	ColorRed    = "196"
	ColorYellow = "220"
)

// Styles holds the styles used by Writer.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Label   lipgloss.Style
	Dim     lipgloss.Style
	Code    lipgloss.Style
}

// ColorStyles returns the styles for terminals.
func ColorStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDim)),
		Code: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorDim)).
			Padding(0, 1),
	}
}

// PlainStyles returns unstyled styles.
func PlainStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle(),
		Success: lipgloss.NewStyle(),
		Warning: lipgloss.NewStyle(),
		Error:   lipgloss.NewStyle(),
		Label:   lipgloss.NewStyle(),
		Dim:     lipgloss.NewStyle(),
		Code:    lipgloss.NewStyle(),
	}
}

// Writer provides formatted output for CLI.
type Writer struct {
	out      io.Writer
	styles   Styles
	useColor bool
}

// New creates a Writer. Color is enabled when out is a terminal and
// NO_COLOR is unset.
func New(out io.Writer) *Writer {
	color := IsTerminal(out) && os.Getenv("NO_COLOR") == ""
	return NewWithColor(out, color)
}

// NewWithColor creates a Writer with color explicitly on or off.
func NewWithColor(out io.Writer, color bool) *Writer {
	styles := PlainStyles()
	if color {
		styles = ColorStyles()
	}
	return &Writer{out: out, styles: styles, useColor: color}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Color reports whether styled output is enabled.
func (w *Writer) Color() bool { return w.useColor }

// Status prints a message with an optional icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	w.Status(w.styles.Success.Render("✓"), msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status(w.styles.Warning.Render("!"), msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status(w.styles.Error.Render("✗"), msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Header prints a bold section title.
func (w *Writer) Header(title string) {
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(title))
}

// KeyValue prints an aligned "key: value" line.
func (w *Writer) KeyValue(key string, value any) {
	_, _ = fmt.Fprintf(w.out, "  %s %v\n", w.styles.Label.Render(fmt.Sprintf("%-12s", key+":")), value)
}

// Code prints a code block, boxed on terminals and indented otherwise.
func (w *Writer) Code(content string) {
	content = strings.TrimRight(content, "\n")
	if w.useColor {
		_, _ = fmt.Fprintln(w.out, w.styles.Code.Render(content))
		return
	}
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Answer prints a chat response: the answer, its sources and follow-ups.
func (w *Writer) Answer(resp *chat.Response) {
	if resp == nil {
		return
	}
	_, _ = fmt.Fprintln(w.out, strings.TrimSpace(resp.Answer))

	if len(resp.Sources) > 0 {
		w.Newline()
		w.Header("Sources")
		for i, src := range resp.Sources {
			_, _ = fmt.Fprintf(w.out, "  %d. %s %s\n", i+1, src.FilePath,
				w.styles.Dim.Render(fmt.Sprintf("(%.2f)", src.Score)))
		}
	}
	if len(resp.FollowUpQuestions) > 0 {
		w.Newline()
		w.Header("Follow-up questions")
		for _, q := range resp.FollowUpQuestions {
			_, _ = fmt.Fprintf(w.out, "  - %s\n", q)
		}
	}

	w.Newline()
	meta := fmt.Sprintf("request %s, %dms", resp.RequestID, resp.DurationMs)
	if resp.FromCache {
		meta += ", cached"
	}
	_, _ = fmt.Fprintln(w.out, w.styles.Dim.Render(meta))
}

// Sources prints search results with their snippets.
func (w *Writer) Sources(sources []chat.Source) {
	if len(sources) == 0 {
		w.Warning("No matching code found")
		return
	}
	for i, src := range sources {
		w.Header(fmt.Sprintf("%d. %s", i+1, src.FilePath))
		w.KeyValue("score", fmt.Sprintf("%.3f", src.Score))
		w.Code(src.CodeSnippet)
	}
}
