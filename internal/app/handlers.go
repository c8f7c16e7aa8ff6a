package app

import (
	"context"
	"fmt"
	"net"
	"slices"

	"github.com/five82/jpdict/internal/config"
	"github.com/five82/jpdict/internal/flatdict"
	"github.com/five82/jpdict/internal/indicator"
	"github.com/five82/jpdict/internal/jpdict"
	"github.com/five82/jpdict/internal/port"
	"github.com/five82/jpdict/internal/protocol"
	"github.com/five82/jpdict/internal/report"
	"github.com/five82/jpdict/internal/search"
	"github.com/five82/jpdict/internal/state"
)

// Toggle switches lookups on or off.
func (a *App) Toggle(ctx context.Context) error {
	var enabled bool
	if err := a.loop.Call(ctx, func() { enabled = a.state.Enabled() }); err != nil {
		return err
	}
	if enabled {
		return a.disable(ctx)
	}
	a.reporter.Breadcrumb("Enabling from toggle")
	return a.enable(ctx)
}

// enable loads the word dictionary and switches lookups on. A load failure
// is reported and leaves lookups off with the dictionary unloaded so the
// next attempt starts over.
func (a *App) enable(ctx context.Context) error {
	a.toggleMu.Lock()
	defer a.toggleMu.Unlock()

	err := a.loop.Call(ctx, func() {
		a.state.SetDictState(state.DictLoading)
		in := a.indicatorInput()
		in.Enabled = true
		a.applyIndicator(in)
	})
	if err != nil {
		return err
	}

	dict, loadErr := flatdict.Load(a.config().DictDir())

	return a.loop.Call(ctx, func() {
		if loadErr != nil {
			a.state.SetDictState(state.DictError)
			a.setDict(nil)
			a.reporter.Notify(fmt.Errorf("load dictionary: %w", loadErr), report.SeverityError)
			in := a.indicatorInput()
			in.Enabled = true
			a.applyIndicator(in)
			return
		}

		a.setDict(dict)
		a.state.SetDictState(state.DictOk)
		a.reporter.Breadcrumb("Loaded dictionary successfully")

		a.reporter.Breadcrumb("Triggering database update from enable")
		a.updater.MaybeUpdate()

		a.state.SetEnabled(true)
		go func() {
			if err := a.store.SetEnabled(true); err != nil {
				a.reporter.Notify(err, report.SeverityWarning)
			}
		}()
		a.refreshIndicator()
	})
}

func (a *App) disable(ctx context.Context) error {
	a.toggleMu.Lock()
	defer a.toggleMu.Unlock()

	return a.loop.Call(ctx, func() {
		a.state.SetEnabled(false)
		go func() {
			if err := a.store.RemoveEnabled(); err != nil {
				a.logger.Debug("removing persisted enabled flag failed", "error", err)
			}
		}()
		a.refreshIndicator()
	})
}

func (a *App) indicatorInput() indicator.Input {
	snap := a.state.Snapshot()
	in := indicator.Input{
		PopupStyle: a.config().PopupStyle,
		Enabled:    snap.Enabled,
		DictState:  snap.DictState,
		DbState:    jpdict.Unavailable,
		LastError:  snap.LastUpdateError,
	}
	if h := a.lifecycle.Handle(); h != nil {
		in.DbState = h.State()
		in.Update = h.UpdateState()
	}
	return in
}

// refreshIndicator recomputes the action button from current state.
func (a *App) refreshIndicator() {
	a.applyIndicator(a.indicatorInput())
}

func (a *App) applyIndicator(in indicator.Input) {
	vi := indicator.Project(in)
	for _, sink := range append([]indicator.Sink{a.recording}, a.sinks...) {
		if err := indicator.Apply(a.ctx, sink, vi); err != nil {
			a.logger.Warn("updating indicator failed", "error", err)
		}
	}
}

// Indicator returns the action button state most recently applied.
func (a *App) Indicator() indicator.Applied {
	return a.recording.Current()
}

// ServeListener registers conn as a listener, sends it the current state and
// handles its requests until it disconnects.
func (a *App) ServeListener(ctx context.Context, nc net.Conn) {
	c := port.NewConn(nc, port.Options{Logger: a.logger.With("component", "port")})

	a.broadcaster.Register(c)
	a.broadcaster.Notify(c)
	a.logger.Debug("listener connected", "listeners", a.broadcaster.Len())

	err := c.Serve(ctx, func(msg protocol.ListenerMessage) {
		a.loop.Post(func() { a.handleListenerMessage(msg) })
	})
	a.broadcaster.Unregister(c)
	if err != nil {
		a.logger.Debug("listener connection ended", "error", err)
	}
}

func (a *App) handleListenerMessage(msg protocol.ListenerMessage) {
	switch msg.Type {
	case protocol.TypeUpdateDB:
		h := a.lifecycle.Handle()
		if h != nil && h.State() != jpdict.Unavailable {
			a.updater.ForceUpdate()
			return
		}
		opened := a.lifecycle.DestroyAndReopen()
		go func() {
			if _, err := opened.Wait(a.ctx); err != nil {
				return
			}
			a.reporter.Breadcrumb("Manually triggering database update")
			a.updater.MaybeUpdate()
		}()

	case protocol.TypeCancelUpdateDB:
		a.reporter.Breadcrumb("Manually canceling database update")
		a.updater.Cancel()

	case protocol.TypeDeleteDB:
		a.reporter.Breadcrumb("Manually deleting database")
		go func() {
			if err := a.lifecycle.Destroy(a.ctx); err != nil {
				a.logger.Warn("deleting database failed", "error", err)
			}
		}()

	case protocol.TypeReportError:
		a.reporter.NotifyMessage(msg.Message, report.SeverityError)
	}
}

// HandleRuntime answers a request from a content surface.
func (a *App) HandleRuntime(ctx context.Context, req protocol.RuntimeRequest) (any, error) {
	switch req.Type {
	case protocol.TypeEnableQuery:
		var reply *protocol.EnableMessage
		err := a.loop.Call(ctx, func() {
			if a.state.Enabled() {
				reply = protocol.NewEnableMessage(a.contentConfig())
			}
		})
		return reply, err

	case protocol.TypeSearch:
		mode, err := search.ParseMode(req.DictOption)
		if err != nil {
			return nil, err
		}
		res, err := a.cycler.Search(ctx, req.Text, mode)
		if err != nil || res == nil {
			return nil, err
		}
		return res, nil

	case protocol.TypeTranslate:
		dict := a.currentDict()
		if dict == nil {
			a.reporter.NotifyMessage("Dictionary not initialized in translate request", report.SeverityWarning)
			return nil, flatdict.ErrNotLoaded
		}
		res, err := dict.Translate(ctx, req.Title, a.config().ShowRomaji)
		if err != nil || res == nil {
			return nil, err
		}
		return res, nil

	case protocol.TypeToggleDefinition:
		var cfg protocol.ContentConfig
		err := a.loop.Call(ctx, func() {
			next := a.config()
			next.ReadingOnly = !next.ReadingOnly
			a.setConfig(next)
			cfg = a.contentConfig()
		})
		return cfg, err

	case protocol.TypeReportWarning:
		a.reporter.NotifyMessage(req.Message, report.SeverityWarning)
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown runtime message type %q", req.Type)
	}
}

func (a *App) contentConfig() protocol.ContentConfig {
	cfg := a.config()
	return protocol.ContentConfig{
		PopupStyle:  cfg.PopupStyle,
		ShowRomaji:  cfg.ShowRomaji,
		ReadingOnly: cfg.ReadingOnly,
		ToggleKey:   cfg.ToggleKey,
	}
}

// configChanged is called from the config watcher.
func (a *App) configChanged(cfg config.Config, changed []string) {
	a.loop.Post(func() {
		prev := a.config()
		// reading_only may have been toggled in memory; keep that unless the
		// file itself changed it.
		if !slices.Contains(changed, "reading_only") {
			cfg.ReadingOnly = prev.ReadingOnly
		}
		a.setConfig(cfg)

		if slices.Contains(changed, "popup_style") && a.state.Enabled() {
			a.refreshIndicator()
		}
		if slices.Contains(changed, "dict_lang") {
			a.changeLang(cfg.DictLang)
		}
	})
}

func (a *App) changeLang(lang string) {
	h := a.lifecycle.Handle()
	if h == nil {
		return
	}
	a.reporter.Breadcrumb("Changing language of kanji database to %s", lang)
	go func() {
		if err := h.SetPreferredLang(a.ctx, lang); err != nil {
			a.reporter.Notify(err, report.SeverityError)
			return
		}
		a.reporter.Breadcrumb("Changed language of kanji database to %s, running update", lang)
		a.updater.Update()
	}()
}
