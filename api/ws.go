package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"mosaic-keeper/geometry"
	"mosaic-keeper/page"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsMessage is what the page script sends. Which fields are set depends on
// Type.
type wsMessage struct {
	Type string `json:"type"`

	URL string `json:"url,omitempty"`

	RequestID string `json:"requestId,omitempty"`
	HTML      string `json:"html,omitempty"`

	X1 float64 `json:"x1,omitempty"`
	Y1 float64 `json:"y1,omitempty"`
	X2 float64 `json:"x2,omitempty"`
	Y2 float64 `json:"y2,omitempty"`

	ID        string             `json:"id,omitempty"`
	Left      float64            `json:"left,omitempty"`
	Top       float64            `json:"top,omitempty"`
	Direction geometry.Direction `json:"direction,omitempty"`
	DX        float64            `json:"dx,omitempty"`
	DY        float64            `json:"dy,omitempty"`

	State *geometry.Interaction `json:"state,omitempty"`
}

func (h *handler) handleWS(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupPage(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", slog.Any("err", err))
		return
	}
	defer conn.Close()

	// gorilla/websocket forbids concurrent writes.
	var writeMu sync.Mutex
	writeMsg := func(msg page.Outbound) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(msg)
	}

	outChan := make(chan page.Outbound, 64)
	kick := p.SetClient(outChan)
	defer p.ClearClient(outChan)

	// Bring the new peer up to date before live updates.
	enabled := p.Enabled()
	if err := writeMsg(p.RenderState()); err != nil {
		return
	}
	if err := writeMsg(page.Outbound{Type: page.MsgToggle, Enabled: &enabled}); err != nil {
		return
	}

	// Exits when ClearClient closes outChan.
	go func() {
		for msg := range outChan {
			if err := writeMsg(msg); err != nil {
				return
			}
		}
	}()

	connDone := make(chan struct{})
	go func() {
		select {
		case <-p.Done():
			_ = writeMsg(page.Outbound{Type: page.MsgClosed})
			conn.Close()
		case <-kick:
			// Displaced by a newer peer: close without "closed" so the old
			// script knows the page itself still exists.
			conn.Close()
		case <-connDone:
		}
	}()
	defer close(connDone)

	ctx := r.Context()
	log := h.log.With(slog.String("page", p.ID))
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if err := h.dispatch(ctx, p, msg); err != nil {
			log.Debug("ws message rejected", slog.String("type", msg.Type), slog.Any("err", err))
			_ = writeMsg(page.Outbound{Type: page.MsgError, Error: err.Error()})
		}
	}
}

func (h *handler) dispatch(ctx context.Context, p *page.Page, msg wsMessage) error {
	switch msg.Type {
	case "load":
		if msg.URL == "" {
			return errors.New("load: url is required")
		}
		// Navigation may ask this same peer for its document, and the reply
		// arrives on this read loop, so it cannot block here.
		go func() {
			if _, err := h.orch.Navigate(ctx, p, msg.URL); err != nil {
				h.log.Warn("load failed", slog.String("page", p.ID), slog.String("url", msg.URL), slog.Any("err", err))
			}
		}()
		return nil
	case "document":
		p.Deliver(msg.RequestID, msg.HTML)
		return nil
	case "draw":
		err := h.orch.CommitGeometry(ctx, p, func(s *geometry.Store) error {
			_, err := s.Draw(msg.X1, msg.Y1, msg.X2, msg.Y2)
			return err
		})
		if errors.Is(err, geometry.ErrTooSmall) {
			// A plain click, not a drag.
			return nil
		}
		return err
	case "move":
		return h.orch.CommitGeometry(ctx, p, func(s *geometry.Store) error {
			_, err := s.Move(msg.ID, msg.Left, msg.Top)
			return err
		})
	case "resize":
		return h.orch.CommitGeometry(ctx, p, func(s *geometry.Store) error {
			_, err := s.Resize(msg.ID, msg.Direction, msg.DX, msg.DY)
			return err
		})
	case "remove":
		return h.orch.CommitGeometry(ctx, p, func(s *geometry.Store) error {
			if !s.Remove(msg.ID) {
				return geometry.ErrNotFound
			}
			return nil
		})
	case "interaction":
		if msg.State == nil {
			return errors.New("interaction: state is required")
		}
		return p.SetInteraction(*msg.State)
	}
	return errors.New("unknown message type " + msg.Type)
}
