// Package output prints amanrag's human-facing CLI text. Terminals get
// lipgloss colour; pipes, files and NO_COLOR get plain text.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	iconSuccess = "✅"
	iconWarning = "⚠️ "
	iconError   = "❌"

	labelWidth = 16
	barWidth   = 30
)

// Writer prints CLI lines. Write errors are ignored; there is nowhere
// better to report them.
type Writer struct {
	out      io.Writer
	useColor bool
	styles   Styles
}

func New(out io.Writer) *Writer {
	return NewWithColor(out, colorEnabled(out))
}

func NewWithColor(out io.Writer, useColor bool) *Writer {
	w := &Writer{out: out, useColor: useColor, styles: PlainStyles()}
	if useColor {
		w.styles = DefaultStyles()
	}
	return w
}

func (w *Writer) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(w.out, format, args...)
}

// Status prints msg after icon, or indented under the previous line when
// icon is empty.
func (w *Writer) Status(icon, msg string) {
	if icon == "" {
		w.printf("   %s\n", msg)
		return
	}
	w.printf("%s %s\n", icon, msg)
}

func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

func (w *Writer) styled(icon string, style lipgloss.Style, msg string) {
	w.Status(icon, style.Render(msg))
}

func (w *Writer) Success(msg string) { w.styled(iconSuccess, w.styles.Success, msg) }
func (w *Writer) Warning(msg string) { w.styled(iconWarning, w.styles.Warning, msg) }
func (w *Writer) Error(msg string)   { w.styled(iconError, w.styles.Error, msg) }

func (w *Writer) Successf(format string, args ...any) { w.Success(fmt.Sprintf(format, args...)) }
func (w *Writer) Warningf(format string, args ...any) { w.Warning(fmt.Sprintf(format, args...)) }
func (w *Writer) Errorf(format string, args ...any)   { w.Error(fmt.Sprintf(format, args...)) }

func (w *Writer) Header(title string) {
	w.printf("%s\n", w.styles.Header.Render(title))
}

// KeyValue prints "label: value" with values aligned in one column.
func (w *Writer) KeyValue(label string, value any) {
	padded := fmt.Sprintf("%-*s", labelWidth, label+":")
	w.printf("  %s %v\n", w.styles.Label.Render(padded), value)
}

// Hit prints one retrieval result: rank, similarity and text, with the
// document's source underneath when known.
func (w *Writer) Hit(rank int, similarity float64, text, source string) {
	w.printf("%d. [%s] %s\n", rank, w.styles.Score.Render(fmt.Sprintf("%.3f", similarity)), text)
	if source != "" {
		w.printf("   %s\n", w.styles.Dim.Render("source: "+source))
	}
}

// Panel boxes content on a terminal and falls back to Code elsewhere.
func (w *Writer) Panel(content string) {
	if !w.useColor {
		w.Code(content)
		return
	}
	w.printf("%s\n", w.styles.Panel.Render(content))
}

// Code prints content indented by two spaces between blank lines.
func (w *Writer) Code(content string) {
	var b strings.Builder
	b.WriteByte('\n')
	for line := range strings.SplitSeq(content, "\n") {
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	w.printf("%s", b.String())
}

func (w *Writer) Newline() { w.printf("\n") }

// Progress redraws a bar in place on a terminal. Plain output prints a
// single line once current reaches total.
func (w *Writer) Progress(current, total int, msg string) {
	if total <= 0 {
		return
	}
	pct := 100 * float64(current) / float64(total)
	bar := renderProgressBar(current, total, barWidth)

	if !w.useColor {
		if current >= total {
			w.printf("[%s] %.0f%% %s\n", bar, pct, msg)
		}
		return
	}
	w.printf("\r[%s] %.0f%% %s", w.styles.Success.Render(bar), pct, msg)
	if current >= total {
		w.Newline()
	}
}

func renderProgressBar(current, total, width int) string {
	filled := 0
	if total > 0 {
		filled = max(0, min(width, current*width/total))
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
