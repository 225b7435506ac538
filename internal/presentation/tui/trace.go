package tui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aretw0/fsmlink/pkg/domain"
	"github.com/aretw0/fsmlink/pkg/protocol"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Formatter renders protocol messages as single monitor lines.
type Formatter struct {
	profile termenv.Profile
}

// NewFormatter creates a formatter. Colour is used only when color is true
// and the environment supports it.
func NewFormatter(color bool) *Formatter {
	p := termenv.Ascii
	if color {
		p = termenv.EnvColorProfile()
	}
	return &Formatter{profile: p}
}

func (f *Formatter) paint(s, color string) termenv.Style {
	return f.profile.String(s).Foreground(f.profile.Color(color))
}

// Format returns the line for msg, without a trailing newline.
func (f *Formatter) Format(msg protocol.Message) string {
	tag := fmt.Sprintf("%-10s", msg.Type)
	switch msg.Type {
	case protocol.TypeLog:
		return f.formatLog(msg)
	case protocol.TypeInput:
		return fmt.Sprintf("%s %s=%s", f.paint(tag, "#38bdf8"), msg.InputName, msg.InputValue)
	case protocol.TypeJSON:
		return fmt.Sprintf("%s %s", f.paint(tag, "#a78bfa"), msg.JSONName)
	case protocol.TypeAccept:
		return f.paint(tag, "#4ade80").Bold().String()
	case protocol.TypeReject:
		return fmt.Sprintf("%s %s", f.paint(tag, "#f87171").Bold(), msg.OtherInfo)
	case protocol.TypeStop:
		return f.paint(tag, "#fbbf24").Bold().String()
	default:
		return f.paint(tag, "#6b7280").Faint().String()
	}
}

func (f *Formatter) formatLog(msg protocol.Message) string {
	ts := msg.Timestamp
	if t, err := time.Parse(protocol.TimestampLayout, msg.Timestamp); err == nil {
		ts = t.Local().Format("15:04:05.000")
	}

	var sb strings.Builder
	sb.WriteString(f.paint(ts, "#6b7280").Faint().String())
	sb.WriteByte(' ')

	if msg.ElementType == domain.ElementTransition {
		sb.WriteString(f.paint(fmt.Sprintf("%-10s", msg.ElementType), "#c084fc").String())
		sb.WriteByte(' ')
		sb.WriteString(msg.CurrentElement)
		return sb.String()
	}

	sb.WriteString(f.paint(fmt.Sprintf("%-10s", msg.ElementType), "#818cf8").String())
	sb.WriteByte(' ')
	sb.WriteString(f.paint(msg.CurrentElement, "#f472b6").Bold().String())

	groups := []string{pairs(msg.Inputs), pairs(msg.Outputs), pairs(msg.Internals)}
	if strings.Join(groups, "") != "" {
		sb.WriteString("  ")
		sb.WriteString(f.paint(strings.Join(groups, " | "), "#9ca3af").String())
	}
	return sb.String()
}

func pairs(ps []protocol.Pair) string {
	parts := make([]string, 0, len(ps))
	for _, p := range ps {
		parts = append(parts, p.Name+"="+p.Value)
	}
	return strings.Join(parts, " ")
}
