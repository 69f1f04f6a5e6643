// Package page tracks the browsing contexts the overlay runs in. Each Page
// holds the live geometry its script edits and at most one connected peer.
package page

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"mosaic-keeper/geometry"
)

var ErrNotFound = errors.New("page not found")

// ErrNotLoaded means the page has not completed a load, so it has no key.
var ErrNotLoaded = errors.New("page has no loaded record")

// ErrPeerUnreachable means the page has no connected script or it did not
// answer in time.
var ErrPeerUnreachable = errors.New("page peer unreachable")

const outboxSize = 64

// Message types pushed to the page script.
const (
	MsgRender          = "render"
	MsgClear           = "clear"
	MsgToggle          = "toggle"
	MsgDocumentRequest = "documentRequest"
	MsgClosed          = "closed"
	MsgError           = "error"
)

// Outbound is one message to the page script.
type Outbound struct {
	Type      string               `json:"type"`
	Preset    string               `json:"preset,omitempty"`
	Rects     []geometry.Rectangle `json:"rects,omitempty"`
	Enabled   *bool                `json:"enabled,omitempty"`
	RequestID string               `json:"requestId,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// Info is the JSON view of a page for listings.
type Info struct {
	ID           string    `json:"id"`
	URL          string    `json:"url,omitempty"`
	Key          string    `json:"key,omitempty"`
	ActivePreset string    `json:"activePreset,omitempty"`
	Enabled      bool      `json:"enabled"`
	Connected    bool      `json:"connected"`
	Mosaics      int       `json:"mosaics"`
	CreatedAt    time.Time `json:"created_at"`
}

type Page struct {
	ID        string
	CreatedAt time.Time

	mu          sync.RWMutex
	url         string
	key         string
	preset      string
	loaded      bool
	enabled     bool
	interaction geometry.Interaction
	generation  uint64

	geom     *geometry.Store
	commitMu sync.Mutex

	outMu     sync.Mutex
	outChan   chan Outbound
	kickChan  chan struct{}
	connected bool

	reqMu       sync.Mutex
	pending     map[string]chan string
	peerTimeout time.Duration

	done     chan struct{}
	doneOnce sync.Once
}

func newPage(peerTimeout time.Duration) *Page {
	return &Page{
		ID:          uuid.NewString(),
		CreatedAt:   time.Now(),
		enabled:     true,
		geom:        geometry.NewStore(),
		pending:     make(map[string]chan string),
		peerTimeout: peerTimeout,
		done:        make(chan struct{}),
	}
}

func (p *Page) Info() Info {
	p.mu.RLock()
	info := Info{
		ID:           p.ID,
		URL:          p.url,
		Key:          p.key,
		ActivePreset: p.preset,
		Enabled:      p.enabled,
		CreatedAt:    p.CreatedAt,
	}
	p.mu.RUnlock()
	info.Connected = p.Connected()
	info.Mosaics = p.geom.Len()
	return info
}

// Geometry is the live rectangle set shown on the page.
func (p *Page) Geometry() *geometry.Store { return p.geom }

// Key returns the storage key of the last completed load. ok is false until
// a load has completed.
func (p *Page) Key() (key string, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.key, p.loaded
}

func (p *Page) URL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.url
}

func (p *Page) ActivePreset() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.preset
}

// SetActivePreset records name as shown without touching geometry. It is a
// no-op if the page has moved on from key.
func (p *Page) SetActivePreset(key, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loaded && p.key == key {
		p.preset = name
	}
}

func (p *Page) Enabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.enabled
}

// SetEnabled shows or hides the overlay. Disabling drops any interaction in
// progress.
func (p *Page) SetEnabled(enabled bool) {
	p.mu.Lock()
	p.enabled = enabled
	if !enabled {
		p.interaction = geometry.Interaction{}
	}
	p.mu.Unlock()
	p.send(Outbound{Type: MsgToggle, Enabled: &enabled})
}

func (p *Page) Interaction() geometry.Interaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.interaction
}

// SetInteraction records the pointer state reported by the page script.
func (p *Page) SetInteraction(in geometry.Interaction) error {
	if err := in.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled && in.Mode != geometry.Idle {
		return fmt.Errorf("overlay disabled: cannot enter %s", in.Mode)
	}
	p.interaction = in
	return nil
}

// BeginNavigation starts a load of url and returns its generation. Only the
// newest generation may commit.
func (p *Page) BeginNavigation(url string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generation++
	p.url = url
	return p.generation
}

// CommitLoad installs the result of a load and renders it. It reports false
// and changes nothing when a newer navigation has started since gen. It waits
// for any commit in progress, so a commit never sees the key of one record
// next to the geometry of another.
func (p *Page) CommitLoad(gen uint64, key, preset string, rects []geometry.Rectangle) bool {
	p.commitMu.Lock()
	defer p.commitMu.Unlock()
	p.mu.Lock()
	if gen != p.generation {
		p.mu.Unlock()
		return false
	}
	p.key = key
	p.preset = preset
	p.loaded = true
	p.mu.Unlock()
	p.Render(preset, rects)
	return true
}

// Render replaces the live geometry with rects and pushes it to the peer.
func (p *Page) Render(preset string, rects []geometry.Rectangle) {
	p.geom.Reset(rects)
	p.mu.Lock()
	p.preset = preset
	p.mu.Unlock()
	p.send(Outbound{Type: MsgRender, Preset: preset, Rects: p.geom.List()})
}

// Clear removes every overlay from the page. The key stays, so a later save
// writes to the same record.
func (p *Page) Clear() {
	p.geom.Reset(nil)
	p.send(Outbound{Type: MsgClear})
}

// ClearFor clears the page only if it still shows key, checked under the
// commit lock.
func (p *Page) ClearFor(key string) bool {
	p.commitMu.Lock()
	defer p.commitMu.Unlock()
	if cur, ok := p.Key(); !ok || cur != key {
		return false
	}
	p.Clear()
	return true
}

// RenderState is what a newly connected peer is sent first.
func (p *Page) RenderState() Outbound {
	return Outbound{Type: MsgRender, Preset: p.ActivePreset(), Rects: p.geom.List()}
}

// WithCommitLock runs fn with the page's key while holding the commit lock.
// Snapshots reach storage in the order they were taken, and no load can
// replace the key or the geometry until fn returns. It fails with
// ErrNotLoaded before the first load.
func (p *Page) WithCommitLock(fn func(key string) error) error {
	p.commitMu.Lock()
	defer p.commitMu.Unlock()
	key, ok := p.Key()
	if !ok {
		return ErrNotLoaded
	}
	return fn(key)
}

// SetClient registers ch as the page's peer. A previous peer is kicked: its
// kick channel is closed so its connection can be shut. The returned channel
// is closed if this peer is itself displaced later.
func (p *Page) SetClient(ch chan Outbound) <-chan struct{} {
	p.outMu.Lock()
	defer p.outMu.Unlock()
	if p.kickChan != nil {
		close(p.kickChan)
	}
	kick := make(chan struct{})
	p.kickChan = kick
	p.outChan = ch
	p.connected = true
	return kick
}

// ClearClient ends ch's connection. Page state is only cleared if ch is still
// the current peer. ch is always closed.
func (p *Page) ClearClient(ch chan Outbound) {
	p.outMu.Lock()
	if p.outChan == ch {
		p.outChan = nil
		p.kickChan = nil
		p.connected = false
	}
	p.outMu.Unlock()
	close(ch)
}

func (p *Page) Connected() bool {
	p.outMu.Lock()
	defer p.outMu.Unlock()
	return p.connected
}

// Done is closed when the page is removed from its manager.
func (p *Page) Done() <-chan struct{} { return p.done }

func (p *Page) close() {
	p.doneOnce.Do(func() { close(p.done) })
}

// send queues msg for the peer. It never blocks: with no peer or a full
// outbox the message is dropped, and the peer resyncs from RenderState on
// reconnect.
func (p *Page) send(msg Outbound) bool {
	p.outMu.Lock()
	defer p.outMu.Unlock()
	if p.outChan == nil {
		return false
	}
	select {
	case p.outChan <- msg:
		return true
	default:
		return false
	}
}

// Document asks the peer for a snapshot of its document and parses it.
func (p *Page) Document(ctx context.Context) (*html.Node, error) {
	src, err := p.requestDocument(ctx)
	if err != nil {
		return nil, err
	}
	return html.Parse(strings.NewReader(src))
}

func (p *Page) requestDocument(ctx context.Context) (string, error) {
	id := uuid.NewString()
	reply := make(chan string, 1)
	p.reqMu.Lock()
	p.pending[id] = reply
	p.reqMu.Unlock()
	defer func() {
		p.reqMu.Lock()
		delete(p.pending, id)
		p.reqMu.Unlock()
	}()

	if !p.send(Outbound{Type: MsgDocumentRequest, RequestID: id}) {
		return "", ErrPeerUnreachable
	}
	timer := time.NewTimer(p.peerTimeout)
	defer timer.Stop()
	select {
	case src := <-reply:
		return src, nil
	case <-timer.C:
		return "", fmt.Errorf("%w: no reply to %s within %s", ErrPeerUnreachable, id, p.peerTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Deliver hands a document reply to the request waiting on requestID. It
// reports false for unknown or already answered requests.
func (p *Page) Deliver(requestID, src string) bool {
	p.reqMu.Lock()
	reply, ok := p.pending[requestID]
	if ok {
		delete(p.pending, requestID)
	}
	p.reqMu.Unlock()
	if !ok {
		return false
	}
	reply <- src
	return true
}
