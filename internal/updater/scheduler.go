package updater

import (
	"context"
	"log/slog"
	"time"

	"github.com/five82/jpdict/internal/future"
	"github.com/five82/jpdict/internal/jpdict"
	"github.com/five82/jpdict/internal/lifecycle"
	"github.com/five82/jpdict/internal/loop"
	"github.com/five82/jpdict/internal/report"
)

// DefaultThreshold is how old the last successful update must be before
// MaybeUpdate runs another one.
const DefaultThreshold = 12 * time.Hour

// loudRetryCount is the retry at which a transient failure stops looking
// like one user's bad connection.
const loudRetryCount = 5

// Lifecycle is the part of lifecycle.Manager the scheduler needs.
type Lifecycle interface {
	Initialized() *future.Future[lifecycle.Handle]
	Handle() lifecycle.Handle
}

// Store persists the last successful update time.
type Store interface {
	LastUpdate() (time.Time, bool, error)
	SetLastUpdate(time.Time) error
}

// Options configures a Scheduler.
type Options struct {
	Lifecycle Lifecycle
	Retrier   *Retrier
	Store     Store
	Loop      loop.Scheduler
	Reporter  report.Reporter
	// Notify triggers the broadcaster.
	Notify func()
	// SetLastError records the outcome of the most recent attempt; nil clears it.
	SetLastError func(*jpdict.UpdateErrorState)
	// Lang returns the preferred dictionary language.
	Lang      func() string
	Threshold time.Duration
	Now       func() time.Time
	Logger    *slog.Logger
}

// Scheduler decides when to update the database and records the outcome.
type Scheduler struct {
	lifecycle    Lifecycle
	retrier      *Retrier
	store        Store
	loop         loop.Scheduler
	reporter     report.Reporter
	notify       func()
	setLastError func(*jpdict.UpdateErrorState)
	lang         func() string
	threshold    time.Duration
	now          func() time.Time
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Scheduler.
func New(opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	retrier := opts.Retrier
	if retrier == nil {
		retrier = NewRetrier(RetrierOptions{Logger: logger})
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = report.NewLogReporter(logger, report.Options{})
	}
	notify := opts.Notify
	if notify == nil {
		notify = func() {}
	}
	setLastError := opts.SetLastError
	if setLastError == nil {
		setLastError = func(*jpdict.UpdateErrorState) {}
	}
	lang := opts.Lang
	if lang == nil {
		lang = func() string { return "en" }
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		lifecycle:    opts.Lifecycle,
		retrier:      retrier,
		store:        opts.Store,
		loop:         opts.Loop,
		reporter:     reporter,
		notify:       notify,
		setLastError: setLastError,
		lang:         lang,
		threshold:    threshold,
		now:          now,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// MaybeUpdate starts an update when the database is open and its data is
// missing or stale. An open still in progress is awaited first; a failed
// open means nothing is done. The returned future resolves once the update
// has been started or skipped.
func (s *Scheduler) MaybeUpdate() *future.Future[struct{}] {
	done := future.New[struct{}]()
	go func() {
		defer done.Resolve(struct{}{})

		h, ok := s.openedHandle()
		if !ok {
			return
		}

		lang := s.lang()
		s.reporter.Breadcrumb("Setting preferred language to %s", lang)
		if err := h.SetPreferredLang(s.ctx, lang); err != nil {
			s.reporter.Notify(err, report.SeverityError)
		} else {
			s.reporter.Breadcrumb("Preferred language set to %s", lang)
		}

		if h.State() == jpdict.Ok && s.fresh() {
			s.logger.Info("no update needed, data is up to date")
			return
		}

		s.reporter.Breadcrumb("Downloading kanji database")
		s.start(h, false)
	}()
	return done
}

// ForceUpdate starts an update regardless of how recent the data is. If an
// update is already waiting to retry, it retries now.
func (s *Scheduler) ForceUpdate() *future.Future[struct{}] {
	return s.update(true)
}

// Update starts an update without consulting the freshness gate. Unlike
// ForceUpdate, the database still skips series whose version is current.
func (s *Scheduler) Update() *future.Future[struct{}] {
	return s.update(false)
}

func (s *Scheduler) update(force bool) *future.Future[struct{}] {
	done := future.New[struct{}]()
	go func() {
		defer done.Resolve(struct{}{})
		h, ok := s.openedHandle()
		if !ok {
			return
		}
		s.start(h, force)
	}()
	return done
}

// Cancel stops the update running on the current handle.
func (s *Scheduler) Cancel() {
	if s.lifecycle == nil {
		return
	}
	h := s.lifecycle.Handle()
	if h == nil {
		return
	}
	if s.retrier.Cancel(h) {
		s.logger.Info("update cancelled")
	}
}

// Running reports whether an update sequence is active on the current handle.
func (s *Scheduler) Running() bool {
	if s.lifecycle == nil {
		return false
	}
	h := s.lifecycle.Handle()
	return h != nil && s.retrier.Running(h)
}

// Close cancels any running update sequence.
func (s *Scheduler) Close() {
	s.cancel()
}

func (s *Scheduler) openedHandle() (lifecycle.Handle, bool) {
	if s.lifecycle == nil {
		return nil, false
	}
	init := s.lifecycle.Initialized()
	if init == nil {
		return nil, false
	}
	h, err := init.Wait(s.ctx)
	if err != nil {
		return nil, false
	}
	return h, true
}

// fresh reports whether the last successful update is within the threshold.
// A store failure counts as never updated.
func (s *Scheduler) fresh() bool {
	if s.store == nil {
		return false
	}
	last, ok, err := s.store.LastUpdate()
	if err != nil {
		s.reporter.Notify(err, report.SeverityWarning)
		return false
	}
	if !ok {
		return false
	}
	return s.now().Sub(last) < s.threshold
}

func (s *Scheduler) start(h lifecycle.Handle, force bool) {
	s.post(func() {
		s.retrier.Run(s.ctx, RetryParams{
			Handle:     h,
			Force:      force,
			OnStart:    func() { s.post(s.notify) },
			OnComplete: func() { s.post(s.completed) },
			OnError: func(ev ErrorEvent) {
				s.post(func() { s.failed(ev) })
			},
		})
	})
}

func (s *Scheduler) post(fn func()) {
	if s.loop == nil {
		fn()
		return
	}
	s.loop.Post(fn)
}

func (s *Scheduler) completed() {
	s.reporter.Breadcrumb("Successfully updated kanji database")
	s.setLastError(nil)
	s.notify()

	if s.store == nil {
		return
	}
	now := s.now()
	go func() {
		if err := s.store.SetLastUpdate(now); err != nil {
			s.reporter.Notify(err, report.SeverityWarning)
		}
	}()
}

func (s *Scheduler) failed(ev ErrorEvent) {
	switch {
	case ev.NextRetry != nil:
		s.reporter.Breadcrumb("Got error while downloading database: %s, retry %d at %s",
			ev.Kind, ev.RetryCount, ev.NextRetry.Format(time.RFC3339))
		if ev.RetryCount == loudRetryCount {
			s.reporter.Notify(ev.Err, report.SeverityWarning)
		}
	case ev.Kind == jpdict.KindAbort || ev.Kind == jpdict.KindOffline:
		s.reporter.Breadcrumb("Got error while downloading database: %s", ev.Kind)
	default:
		s.reporter.Notify(ev.Err, report.SeverityError)
	}

	msg := ""
	if ev.Err != nil {
		msg = ev.Err.Error()
	}
	s.setLastError(&jpdict.UpdateErrorState{
		Kind:       ev.Kind,
		Message:    msg,
		RetryCount: ev.RetryCount,
		NextRetry:  ev.NextRetry,
	})
	s.notify()
}
