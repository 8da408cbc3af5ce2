package tasks

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/songbook/internal/models"
	"github.com/desertthunder/songbook/internal/repositories"
	"github.com/desertthunder/songbook/internal/shared"
)

// Reason records what started a reconciliation pass.
type Reason int

const (
	ReasonStartup Reason = iota
	ReasonTimer
	ReasonConnectivity
	ReasonManual
	ReasonSettings
)

func (r Reason) String() string {
	switch r {
	case ReasonStartup:
		return "startup"
	case ReasonTimer:
		return "timer"
	case ReasonConnectivity:
		return "connectivity"
	case ReasonManual:
		return "manual"
	case ReasonSettings:
		return "settings"
	default:
		return ""
	}
}

// StepResult is the outcome of one sub-sync within a pass.
type StepResult struct {
	Collection models.Collection
	Outcome    repositories.Outcome
	Count      int
	Err        error
}

func stepFrom(r repositories.SyncResult) StepResult {
	return StepResult{Collection: r.Collection, Outcome: r.Outcome, Count: r.Count, Err: r.Err}
}

// PassResult describes one reconciliation pass.
type PassResult struct {
	RunID    string
	Reason   Reason
	Started  time.Time
	Duration time.Duration
	Skipped  bool         // offline; nothing was attempted
	Steps    []StepResult // in execution order
	Err      error        // the error that aborted the pass, if any
}

// OK reports whether the pass ran to completion.
func (p PassResult) OK() bool { return !p.Skipped && p.Err == nil }

// Step returns the result for collection c, if that step ran.
func (p PassResult) Step(c models.Collection) (StepResult, bool) {
	for _, s := range p.Steps {
		if s.Collection == c {
			return s, true
		}
	}
	return StepResult{}, false
}

// StepView is the serializable form of a [StepResult].
type StepView struct {
	Collection string `json:"collection"`
	Outcome    string `json:"outcome"`
	Count      int    `json:"count"`
	ErrorKind  string `json:"error_kind,omitempty"`
	Error      string `json:"error,omitempty"`
}

// PassView is the serializable form of a [PassResult].
type PassView struct {
	RunID     string     `json:"run_id"`
	Reason    string     `json:"reason"`
	Started   time.Time  `json:"started"`
	Duration  string     `json:"duration"`
	Skipped   bool       `json:"skipped"`
	OK        bool       `json:"ok"`
	Steps     []StepView `json:"steps"`
	ErrorKind string     `json:"error_kind,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// View converts the result for JSON output.
func (p PassResult) View() PassView {
	v := PassView{
		RunID:     p.RunID,
		Reason:    p.Reason.String(),
		Started:   p.Started,
		Duration:  p.Duration.String(),
		Skipped:   p.Skipped,
		OK:        p.OK(),
		Steps:     make([]StepView, 0, len(p.Steps)),
		ErrorKind: shared.ErrorKind(p.Err),
	}
	if p.Err != nil {
		v.Error = p.Err.Error()
	}

	for _, s := range p.Steps {
		sv := StepView{
			Collection: s.Collection.String(),
			Outcome:    s.Outcome.String(),
			Count:      s.Count,
			ErrorKind:  shared.ErrorKind(s.Err),
		}
		if s.Err != nil {
			sv.Error = s.Err.Error()
		}
		v.Steps = append(v.Steps, sv)
	}

	return v
}

// Reporter receives every completed pass.
type Reporter interface {
	Report(PassResult)
}

// LogReporter writes a summary line per pass.
type LogReporter struct {
	Logger *log.Logger
}

func (r LogReporter) Report(p PassResult) {
	if r.Logger == nil {
		return
	}

	kv := []any{"run", p.RunID, "reason", p.Reason, "duration", p.Duration}
	for _, s := range p.Steps {
		kv = append(kv, s.Collection.String(), s.Outcome.String())
	}

	switch {
	case p.Skipped:
		r.Logger.Info("sync skipped, offline", kv...)
	case p.Err != nil:
		r.Logger.Error("sync aborted", append(kv, "kind", shared.ErrorKind(p.Err), "error", p.Err)...)
	default:
		r.Logger.Info("sync complete", kv...)
	}
}

// ChannelReporter forwards results to a channel without blocking.
// Results are dropped while the channel is full.
type ChannelReporter struct {
	ch chan<- PassResult
}

func NewChannelReporter(ch chan<- PassResult) ChannelReporter {
	return ChannelReporter{ch: ch}
}

func (r ChannelReporter) Report(p PassResult) {
	if r.ch == nil {
		return
	}
	select {
	case r.ch <- p:
	default:
	}
}

// MultiReporter fans a result out to each reporter in order.
type MultiReporter []Reporter

func (m MultiReporter) Report(p PassResult) {
	for _, r := range m {
		if r != nil {
			r.Report(p)
		}
	}
}
