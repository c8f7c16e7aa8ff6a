// Package report is the fire-and-forget sink for problems worth a human's
// attention. Nothing in it returns an error.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/five82/jpdict/internal/jpdict"
	"github.com/five82/jpdict/internal/localstore"
	"github.com/five82/jpdict/internal/telemetry"
)

// Severity of a report.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	default:
		return "error"
	}
}

func (s Severity) level() slog.Level {
	switch s {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Reporter accepts reports and breadcrumbs.
type Reporter interface {
	Notify(err error, severity Severity)
	NotifyMessage(msg string, severity Severity)
	Breadcrumb(msg string, args ...any)
}

// Options configures a LogReporter.
type Options struct {
	InstallID    string
	ReleaseStage string
	Metrics      *telemetry.Metrics
}

// LogReporter writes reports as structured log records.
type LogReporter struct {
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

var _ Reporter = (*LogReporter)(nil)

// NewLogReporter creates a LogReporter. A nil logger discards output.
func NewLogReporter(logger *slog.Logger, opts Options) *LogReporter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.ReleaseStage == "" {
		opts.ReleaseStage = "production"
	}
	attrs := []any{"component", "report", "release_stage", opts.ReleaseStage}
	if opts.InstallID != "" {
		attrs = append(attrs, "install_id", opts.InstallID)
	}
	return &LogReporter{
		logger:  logger.With(attrs...),
		metrics: opts.Metrics,
	}
}

// Notify reports err.
func (r *LogReporter) Notify(err error, severity Severity) {
	if err == nil {
		err = errors.New("(nil error)")
	}
	attrs := []any{
		"severity", severity.String(),
		"kind", jpdict.ErrorKind(err),
		"error", err,
	}
	if hash := GroupingHash(err); hash != "" {
		attrs = append(attrs, "group", hash)
	}
	r.logger.Log(context.Background(), severity.level(), "report", attrs...)
	r.metrics.RecordReport(severity.String())
}

// NotifyMessage reports a plain message.
func (r *LogReporter) NotifyMessage(msg string, severity Severity) {
	r.logger.Log(context.Background(), severity.level(), "report", "severity", severity.String(), "message", msg)
	r.metrics.RecordReport(severity.String())
}

// Breadcrumb records a trail entry that gives later reports context.
func (r *LogReporter) Breadcrumb(msg string, args ...any) {
	r.logger.Info(fmt.Sprintf(msg, args...), "breadcrumb", true)
}

// GroupingHash returns a key that groups reports of the same underlying
// problem, or "" when err has no natural grouping.
func GroupingHash(err error) string {
	var dl *jpdict.DownloadError
	if errors.As(err, &dl) {
		return fmt.Sprintf("%d%s", dl.Code, dl.URL)
	}
	var storeErr *localstore.Error
	if errors.As(err, &storeErr) {
		return storeErr.Action + ":" + storeErr.Key
	}
	return ""
}

// Report is one entry captured by a Recorder.
type Report struct {
	Err      error
	Message  string
	Severity Severity
}

// Recorder keeps reports in memory. It is used by tests and by the debug
// surface.
type Recorder struct {
	mu          sync.Mutex
	reports     []Report
	breadcrumbs []string
}

var _ Reporter = (*Recorder)(nil)

func (r *Recorder) Notify(err error, severity Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	r.reports = append(r.reports, Report{Err: err, Message: msg, Severity: severity})
}

func (r *Recorder) NotifyMessage(msg string, severity Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, Report{Message: msg, Severity: severity})
}

func (r *Recorder) Breadcrumb(msg string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breadcrumbs = append(r.breadcrumbs, fmt.Sprintf(msg, args...))
}

// Reports returns a copy of everything reported so far.
func (r *Recorder) Reports() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Report(nil), r.reports...)
}

// Count returns how many reports had at least the given severity.
func (r *Recorder) Count(atLeast Severity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rep := range r.reports {
		if rep.Severity >= atLeast {
			n++
		}
	}
	return n
}

// Breadcrumbs returns a copy of the recorded breadcrumbs.
func (r *Recorder) Breadcrumbs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.breadcrumbs...)
}
