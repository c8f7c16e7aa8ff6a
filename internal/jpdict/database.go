package jpdict

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/five82/jpdict/internal/future"
)

// Source fetches published data from the data server.
type Source interface {
	FetchVersions(ctx context.Context, lang string) (DataVersions, error)
	FetchKanji(ctx context.Context, lang string, major int, progress func(float64)) ([]KanjiRecord, error)
	FetchRadicals(ctx context.Context, lang string, major int, progress func(float64)) ([]Radical, error)
}

// Options configures a Database.
type Options struct {
	// Path is the sqlite file. ":memory:" keeps everything in memory.
	Path   string
	Source Source
	// Lang is the preferred data language until SetPreferredLang says otherwise.
	Lang   string
	Logger *slog.Logger

	// OnChange and OnWarning are registered before opening starts so that no
	// change is missed.
	OnChange  func()
	OnWarning func(message string)

	Now func() time.Time
}

// Database is a handle to the local kanji store.
type Database struct {
	path   string
	source Source
	logger *slog.Logger
	now    func() time.Time
	ready  *future.Future[struct{}]

	mu          sync.Mutex
	db          *sql.DB
	closed      bool
	updating    bool
	state       Availability
	updateState UpdateState
	versions    DataVersions
	lang        string
	onChange    []func()
	onWarning   []func(string)
}

// New creates a handle and starts opening the store in the background. Use
// Ready to wait for the outcome.
func New(opts Options) *Database {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	lang := opts.Lang
	if lang == "" {
		lang = "en"
	}
	path := opts.Path
	if path == "" {
		path = ":memory:"
	}

	d := &Database{
		path:   path,
		source: opts.Source,
		logger: logger,
		now:    now,
		ready:  future.New[struct{}](),
		state:  Unavailable,
		lang:   lang,
	}
	if opts.OnChange != nil {
		d.onChange = append(d.onChange, opts.OnChange)
	}
	if opts.OnWarning != nil {
		d.onWarning = append(d.onWarning, opts.OnWarning)
	}

	go d.open()
	return d
}

func (d *Database) open() {
	db, err := openStore(context.Background(), d.path)
	if err == nil {
		var meta storedMeta
		meta, err = loadMeta(context.Background(), db)
		if err != nil {
			_ = db.Close()
		} else {
			d.mu.Lock()
			if d.closed {
				d.mu.Unlock()
				_ = db.Close()
				d.ready.Reject(ErrClosed)
				return
			}
			d.db = db
			d.versions = meta.versions
			d.state = availabilityFor(meta.versions)
			state := d.state
			d.mu.Unlock()

			d.logger.Info("kanji database ready", "path", d.path, "state", state)
			d.ready.Resolve(struct{}{})
			d.changed()
			return
		}
	}

	err = &DatabaseError{Op: "open database", Err: err}
	d.logger.Warn("kanji database failed to open", "path", d.path, "error", err)
	d.ready.Reject(err)
	d.changed()
}

func availabilityFor(v DataVersions) Availability {
	if v.Complete() {
		return Ok
	}
	return Empty
}

// Ready blocks until the store has opened or failed to open.
func (d *Database) Ready(ctx context.Context) error {
	_, err := d.ready.Wait(ctx)
	return err
}

// OnChange registers fn to run after every state change.
func (d *Database) OnChange(fn func()) {
	d.mu.Lock()
	d.onChange = append(d.onChange, fn)
	d.mu.Unlock()
}

// OnWarning registers fn to receive non-fatal data problems.
func (d *Database) OnWarning(fn func(string)) {
	d.mu.Lock()
	d.onWarning = append(d.onWarning, fn)
	d.mu.Unlock()
}

// State returns the current availability.
func (d *Database) State() Availability {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// UpdateState returns a copy of the current update state.
func (d *Database) UpdateState() UpdateState {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.updateState
	if s.LastCheck != nil {
		t := *s.LastCheck
		s.LastCheck = &t
	}
	return s
}

// DataVersions returns a copy of the stored series versions.
func (d *Database) DataVersions() DataVersions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.versions.clone()
}

// Lang returns the preferred data language.
func (d *Database) Lang() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lang
}

// SetPreferredLang changes the language fetched by the next Update. Stored
// data in another language is replaced on that update.
func (d *Database) SetPreferredLang(ctx context.Context, lang string) error {
	if err := d.Ready(ctx); err != nil {
		return err
	}
	if lang == "" {
		lang = "en"
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.lang != lang {
		d.logger.Info("preferred language changed", "from", d.lang, "to", lang)
		d.lang = lang
	}
	return nil
}

// Update runs one check/download/apply attempt. Series whose stored version
// matches the server's are skipped unless force is set.
func (d *Database) Update(ctx context.Context, force bool) error {
	if err := d.Ready(ctx); err != nil {
		return err
	}

	d.mu.Lock()
	switch {
	case d.closed:
		d.mu.Unlock()
		return ErrClosed
	case d.updating:
		d.mu.Unlock()
		return ErrUpdateInProgress
	case d.db == nil:
		d.mu.Unlock()
		return &DatabaseError{Op: "update", Err: errors.New("store is not open")}
	}
	d.updating = true
	db := d.db
	lang := d.lang
	d.updateState.Phase = PhaseChecking
	d.updateState.Progress = 0
	d.updateState.Series = ""
	d.mu.Unlock()
	d.changed()

	err := d.update(ctx, db, lang, force)

	d.mu.Lock()
	d.updating = false
	d.updateState.Phase = PhaseIdle
	d.updateState.Progress = 0
	d.updateState.Series = ""
	d.mu.Unlock()
	d.changed()

	if err != nil && ctx.Err() != nil && !errors.Is(err, context.Canceled) {
		err = fmt.Errorf("%w: %w", ErrAborted, err)
	}
	return err
}

func (d *Database) update(ctx context.Context, db *sql.DB, lang string, force bool) error {
	remote, err := d.source.FetchVersions(ctx, lang)
	if err != nil {
		return err
	}

	checked := d.now()
	d.mu.Lock()
	d.updateState.LastCheck = &checked
	local := d.versions.clone()
	d.mu.Unlock()

	if !remote.Complete() {
		return &DatabaseError{Op: "check versions", Err: errors.New("server did not publish every series")}
	}

	if force || !local.Kanji.Same(remote.Kanji) {
		d.setPhase(PhaseDownloading, "kanji")
		records, err := d.source.FetchKanji(ctx, lang, remote.Kanji.Major, d.progress)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		d.setPhase(PhaseApplying, "kanji")
		skipped, err := replaceKanji(ctx, db, records, *remote.Kanji)
		if err != nil {
			return &DatabaseError{Op: "apply kanji", Err: err}
		}
		if skipped > 0 {
			d.warn(fmt.Sprintf("skipped %d kanji records without a character", skipped))
		}
		d.setVersion(func(v *DataVersions) { k := *remote.Kanji; v.Kanji = &k })
		d.logger.Info("kanji data applied", "version", remote.Kanji.String(), "records", len(records)-skipped)
	}

	if force || !local.Radicals.Same(remote.Radicals) {
		d.setPhase(PhaseDownloading, "radicals")
		radicals, err := d.source.FetchRadicals(ctx, lang, remote.Radicals.Major, d.progress)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		d.setPhase(PhaseApplying, "radicals")
		if err := replaceRadicals(ctx, db, radicals, *remote.Radicals); err != nil {
			return &DatabaseError{Op: "apply radicals", Err: err}
		}
		d.setVersion(func(v *DataVersions) { r := *remote.Radicals; v.Radicals = &r })
		d.logger.Info("radical data applied", "version", remote.Radicals.String(), "records", len(radicals))
	}
	return nil
}

func (d *Database) setPhase(phase UpdatePhase, series string) {
	d.mu.Lock()
	d.updateState.Phase = phase
	d.updateState.Progress = 0
	d.updateState.Series = series
	d.mu.Unlock()
	d.changed()
}

func (d *Database) progress(p float64) {
	d.mu.Lock()
	if d.updateState.Phase != PhaseDownloading {
		d.mu.Unlock()
		return
	}
	d.updateState.Progress = min(max(p, 0), 1)
	d.mu.Unlock()
	d.changed()
}

func (d *Database) setVersion(fn func(*DataVersions)) {
	d.mu.Lock()
	fn(&d.versions)
	d.state = availabilityFor(d.versions)
	d.mu.Unlock()
	d.changed()
}

// GetKanji looks up each character in chars, in order. Characters without an
// entry are omitted.
func (d *Database) GetKanji(ctx context.Context, chars []string) ([]KanjiResult, error) {
	if err := d.Ready(ctx); err != nil {
		return nil, err
	}
	d.mu.Lock()
	db, closed := d.db, d.closed
	d.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if db == nil {
		return nil, &DatabaseError{Op: "get kanji", Err: errors.New("store is not open")}
	}
	if len(chars) == 0 {
		return nil, nil
	}

	results, err := queryKanji(ctx, db, chars)
	if err != nil {
		return nil, &DatabaseError{Op: "get kanji", Err: err}
	}
	return results, nil
}

// Close releases the store. Listeners are detached, so a closed handle
// produces no further change notifications.
func (d *Database) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	db := d.db
	d.db = nil
	d.state = Unavailable
	d.onChange = nil
	d.onWarning = nil
	d.mu.Unlock()

	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return &DatabaseError{Op: "close database", Err: err}
	}
	return nil
}

// Destroy deletes the stored data and recreates an empty store behind the
// same handle.
func (d *Database) Destroy(ctx context.Context) error {
	select {
	case <-d.ready.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	d.mu.Lock()
	switch {
	case d.closed:
		d.mu.Unlock()
		return ErrClosed
	case d.updating:
		d.mu.Unlock()
		return ErrUpdateInProgress
	}
	old := d.db
	d.db = nil
	d.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			d.logger.Warn("closing store before destroy failed", "error", err)
		}
	}
	if err := removeStore(d.path); err != nil {
		return d.destroyFailed(&DatabaseError{Op: "remove database", Err: err})
	}

	db, err := openStore(ctx, d.path)
	if err != nil {
		return d.destroyFailed(&DatabaseError{Op: "recreate database", Err: err})
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		_ = db.Close()
		return ErrClosed
	}
	d.db = db
	d.versions = DataVersions{}
	d.state = Empty
	d.updateState = UpdateState{}
	d.mu.Unlock()

	d.logger.Info("kanji database destroyed", "path", d.path)
	d.changed()
	return nil
}

func (d *Database) destroyFailed(err error) error {
	d.mu.Lock()
	d.versions = DataVersions{}
	d.state = Unavailable
	d.mu.Unlock()
	d.changed()
	return err
}

func (d *Database) changed() {
	d.mu.Lock()
	listeners := append([]func(){}, d.onChange...)
	d.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func (d *Database) warn(msg string) {
	d.logger.Warn(msg)
	d.mu.Lock()
	listeners := append([]func(string){}, d.onWarning...)
	d.mu.Unlock()
	for _, fn := range listeners {
		fn(msg)
	}
}
