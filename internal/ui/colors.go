package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/songbook/internal/repositories"
	"github.com/desertthunder/songbook/internal/tasks"
)

// Styles is the default palette used by the CLI.
var Styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// interface Painter defines coloring text with [lipgloss] styles
type Painter interface {
	On(string, lipgloss.Color) string // Sets background color
	As(string, lipgloss.Color) string // Sets foreground color
}

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
	label lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
		label: NewStyle(h).Width(18),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

func (p *Palette) On(s string, c lipgloss.Color) string { return lipgloss.NewStyle().Background(c).Render(s) }
func (p *Palette) As(s string, c lipgloss.Color) string { return lipgloss.NewStyle().Foreground(c).Render(s) }

func (p *Palette) Title(s string) string { return p.title.Render(s) }
func (p *Palette) OK(s string) string    { return p.ok.Render(s) }
func (p *Palette) Err(s string) string   { return p.err.Render(s) }
func (p *Palette) Warn(s string) string  { return p.warn.Render(s) }
func (p *Palette) Help(s string) string  { return p.help.Render(s) }

// Field renders one aligned "label value" line.
func (p *Palette) Field(label, value string) string {
	return p.label.Render(label) + value
}

// Online renders a connectivity state.
func (p *Palette) Online(online bool) string {
	if online {
		return p.OK("online")
	}
	return p.Warn("offline")
}

// Outcome colors a sub-sync outcome by severity.
func (p *Palette) Outcome(o repositories.Outcome) string {
	switch o {
	case repositories.OutcomeSynced:
		return p.OK(o.String())
	case repositories.OutcomeSkipped:
		return p.Warn(o.String())
	default:
		return p.Err(o.String())
	}
}

// Time renders t, or "never" for the zero time.
func (p *Palette) Time(t time.Time) string {
	if t.IsZero() {
		return p.Help("never")
	}
	return t.Local().Format(time.RFC3339)
}

// Pass renders a pass result as a short multi-line summary.
func (p *Palette) Pass(r tasks.PassResult) string {
	var b strings.Builder

	head := fmt.Sprintf("sync %s (%s, %s)", r.RunID, r.Reason, r.Duration.Round(time.Millisecond))
	switch {
	case r.Skipped:
		b.WriteString(p.Warn(head + ": skipped, offline"))
	case r.Err != nil:
		b.WriteString(p.Err(head + ": aborted"))
	default:
		b.WriteString(p.OK(head + ": ok"))
	}
	b.WriteString("\n")

	for _, s := range r.Steps {
		line := fmt.Sprintf("  %-12s %s %d", s.Collection, p.Outcome(s.Outcome), s.Count)
		if s.Err != nil {
			line += " " + p.Help(s.Err.Error())
		}
		b.WriteString(line + "\n")
	}

	return b.String()
}
