// Package orchestrator ties page contexts to stored records: it resolves
// which key a page uses, loads and renders its active preset, and writes
// edits back.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"mosaic-keeper/geometry"
	"mosaic-keeper/identity"
	"mosaic-keeper/page"
	"mosaic-keeper/preset"
)

// ErrNotLoaded means the page has not completed a load, so it has no key.
var ErrNotLoaded = page.ErrNotLoaded

type Orchestrator struct {
	presets  *preset.Manager
	resolver *identity.Resolver
	pages    *page.Manager
	log      *slog.Logger
}

type Option func(*Orchestrator)

func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.log = l } }

func New(presets *preset.Manager, resolver *identity.Resolver, pages *page.Manager, opts ...Option) *Orchestrator {
	o := &Orchestrator{presets: presets, resolver: resolver, pages: pages, log: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.With(slog.String("component", "orchestrator"))
	return o
}

// LoadResult describes a finished navigation.
type LoadResult struct {
	Key    string               `json:"key"`
	Record preset.Record        `json:"record"`
	Rects  []geometry.Rectangle `json:"rects"`
	// Stale is set when a newer navigation started before this one finished;
	// nothing was rendered.
	Stale bool `json:"stale,omitempty"`
}

// Navigate resolves the key for url, loads its record and renders the active
// preset. The page's peer serves as DOM accessor when one is connected.
func (o *Orchestrator) Navigate(ctx context.Context, p *page.Page, url string) (LoadResult, error) {
	gen := p.BeginNavigation(url)

	var dom identity.DOMAccessor
	if p.Connected() {
		dom = p
	}
	key := o.resolver.ResolveKey(ctx, url, dom)

	rec, err := o.presets.LoadRecord(ctx, key)
	if err != nil {
		return LoadResult{Key: key}, err
	}
	res := LoadResult{Key: key, Record: rec, Rects: rec.Active()}
	if !p.CommitLoad(gen, key, rec.ActivePreset, res.Rects) {
		o.log.Debug("discarding stale load", slog.String("page", p.ID), slog.String("key", key))
		res.Stale = true
	}
	return res, nil
}

// Toggle shows or hides the page's overlay. Nothing is stored.
func (o *Orchestrator) Toggle(p *page.Page, enabled bool) {
	p.SetEnabled(enabled)
}

// SwitchPreset activates name for the page's key and renders it. On failure
// the page keeps showing what it showed.
func (o *Orchestrator) SwitchPreset(ctx context.Context, p *page.Page, name string) error {
	return p.WithCommitLock(func(key string) error {
		rec, err := o.presets.SwitchActivePreset(ctx, key, name)
		if err != nil {
			return err
		}
		p.Render(rec.ActivePreset, rec.Active())
		return nil
	})
}

// DeleteKey removes the record under key and clears every page showing it.
func (o *Orchestrator) DeleteKey(ctx context.Context, key string) error {
	if err := o.presets.DeleteRecord(ctx, key); err != nil {
		return err
	}
	for _, p := range o.pages.Showing(key) {
		p.ClearFor(key)
	}
	return nil
}

// SavePreset stores the page's live geometry as name and activates it.
// Unless overwrite is set an existing name fails with ErrPresetExists.
func (o *Orchestrator) SavePreset(ctx context.Context, p *page.Page, name string, overwrite bool) (existed bool, err error) {
	name = strings.TrimSpace(name)
	err = p.WithCommitLock(func(key string) error {
		if !overwrite {
			names, _, err := o.presets.PresetNames(ctx, key)
			if err != nil {
				return err
			}
			for _, n := range names {
				if n == name {
					return fmt.Errorf("%w: %q", preset.ErrPresetExists, name)
				}
			}
		}
		rec, ex, err := o.presets.CreateOrOverwritePreset(ctx, key, name, p.Geometry().List())
		if err != nil {
			return err
		}
		existed = ex
		p.SetActivePreset(key, rec.ActivePreset)
		return nil
	})
	return existed, err
}

// DeletePreset removes name from the page's key and renders whichever preset
// is active afterwards.
func (o *Orchestrator) DeletePreset(ctx context.Context, p *page.Page, name string) (newActive string, err error) {
	err = p.WithCommitLock(func(key string) error {
		active, rec, err := o.presets.DeletePreset(ctx, key, name)
		if err != nil {
			return err
		}
		newActive = active
		p.Render(active, rec.Active())
		return nil
	})
	return newActive, err
}

// CommitGeometry applies mutate to the page's live geometry and saves the
// result as the active preset. Commits on one page are serialised with each
// other and with loads, so the last snapshot taken is the last one saved and
// it always goes to the record the geometry was loaded from.
func (o *Orchestrator) CommitGeometry(ctx context.Context, p *page.Page, mutate func(*geometry.Store) error) error {
	return p.WithCommitLock(func(key string) error {
		if err := mutate(p.Geometry()); err != nil {
			return err
		}
		rec, err := o.presets.SaveActivePreset(ctx, key, p.Geometry().List())
		if err != nil {
			return err
		}
		p.SetActivePreset(key, rec.ActivePreset)
		return nil
	})
}

// CurrentMosaics returns the page's live rectangles.
func (o *Orchestrator) CurrentMosaics(p *page.Page) []geometry.Rectangle {
	return p.Geometry().List()
}

// StorageKey returns the key the page loaded under.
func (o *Orchestrator) StorageKey(p *page.Page) (string, error) {
	key, ok := p.Key()
	if !ok {
		return "", ErrNotLoaded
	}
	return key, nil
}

// Presets lists preset names and the active one for the page's key.
func (o *Orchestrator) Presets(ctx context.Context, p *page.Page) (names []string, active string, err error) {
	key, ok := p.Key()
	if !ok {
		return nil, "", ErrNotLoaded
	}
	return o.presets.PresetNames(ctx, key)
}

// Records summarises every stored key that has overlays.
func (o *Orchestrator) Records(ctx context.Context) ([]preset.Summary, error) {
	return o.presets.ListSummaries(ctx, identity.IsStorageKey)
}
