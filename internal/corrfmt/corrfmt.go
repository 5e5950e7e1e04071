// Package corrfmt renders CorrelatedEvent values as human-readable, color
// highlighted text for debug logging and CLI tooling. It carries no
// correlation logic of its own.
package corrfmt

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/platformbuilds/logcorrelate/internal/models"
)

// Printer formats CorrelatedEvent values. The zero value always emits color
// escapes; NewPrinter auto-detects color support for a given writer and
// NewPlainPrinter never colors.
type Printer struct {
	noColor bool
}

// NewPrinter builds a Printer. Color is auto-detected by fatih/color itself
// (via its own isatty check and the NO_COLOR/TERM conventions) when w is
// os.Stdout or os.Stderr; any other writer gets plain text.
func NewPrinter(w io.Writer) *Printer {
	if w == os.Stdout || w == os.Stderr {
		return &Printer{noColor: color.NoColor}
	}
	return &Printer{noColor: true}
}

// NewPlainPrinter builds a Printer with color forced off, for log sinks and
// files that should never carry ANSI escapes.
func NewPlainPrinter() *Printer {
	return &Printer{noColor: true}
}

func (p *Printer) colorize(text string, attrs ...color.Attribute) string {
	if p.noColor {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

func (p *Printer) completenessColor(c models.Completeness) []color.Attribute {
	if c == models.Complete {
		return []color.Attribute{color.FgGreen, color.Bold}
	}
	return []color.Attribute{color.FgYellow, color.Bold}
}

// Sprint renders ce as a multi-line string: a header line naming the join
// key/value and completeness, with the matched/total stream counts and the
// window duration, followed by one line per
// participating event ordered time-ascending.
func (p *Printer) Sprint(ce *models.CorrelatedEvent) string {
	if ce == nil {
		return ""
	}
	var b strings.Builder

	header := fmt.Sprintf("[%s] %s=%s", ce.CorrelationID, ce.JoinKey, ce.JoinValue)
	b.WriteString(p.colorize(header, color.FgCyan, color.Bold))
	b.WriteString(" ")
	b.WriteString(p.colorize(string(ce.Metadata.Completeness), p.completenessColor(ce.Metadata.Completeness)...))
	b.WriteString(fmt.Sprintf(" (%d/%d streams, window %s)\n",
		len(ce.Metadata.MatchedStreams), ce.Metadata.TotalStreams, ce.TimeWindow.Duration()))

	for _, ev := range ce.Events {
		stream := p.colorize(ev.StreamName(), color.FgMagenta)
		ts := ev.Timestamp.Format("15:04:05.000")
		b.WriteString(fmt.Sprintf("  %s %s %s\n", ts, stream, ev.Message))
	}
	return b.String()
}

// Fprint writes the rendering of ce to w.
func (p *Printer) Fprint(w io.Writer, ce *models.CorrelatedEvent) error {
	_, err := io.WriteString(w, p.Sprint(ce))
	return err
}
