package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mosaic-keeper/geometry"
	"mosaic-keeper/page"
)

func dialWS(t *testing.T, srv *httptest.Server, path string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	return websocket.DefaultDialer.Dial(wsURL, nil)
}

// readUntil reads messages until one of type want arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want string) page.Outbound {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg page.Outbound
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %q: %v", want, err)
		}
		if msg.Type == want {
			return msg
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestWSNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, resp, err := dialWS(t, env.srv, "/api/pages/nonexistent/ws")
	if err == nil {
		t.Fatal("expected error connecting to nonexistent page")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", resp)
	}
}

func TestWSReplaysRenderState(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "https://a.example/", workRecord)
	id := env.createLoadedPage(t, "https://a.example/")

	conn, _, err := dialWS(t, env.srv, "/api/pages/"+id+"/ws")
	if err != nil {
		t.Fatalf("WS dial: %v", err)
	}
	defer conn.Close()

	msg := readUntil(t, conn, page.MsgRender)
	if msg.Preset != "Work" || len(msg.Rects) != 1 || msg.Rects[0].ID != "w1" {
		t.Fatalf("unexpected render %+v", msg)
	}
	toggle := readUntil(t, conn, page.MsgToggle)
	if toggle.Enabled == nil || !*toggle.Enabled {
		t.Fatalf("unexpected toggle %+v", toggle)
	}
}

func TestWSLoadResolvesChannelThroughPeer(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "youtube.com/channel/UCpeer", `[{"id":"c","left":0,"top":0,"width":20,"height":20}]`)
	p := env.pages.Create()

	conn, _, err := dialWS(t, env.srv, "/api/pages/"+p.ID+"/ws")
	if err != nil {
		t.Fatalf("WS dial: %v", err)
	}
	defer conn.Close()
	readUntil(t, conn, page.MsgToggle)

	if err := conn.WriteJSON(map[string]string{"type": "load", "url": "https://www.youtube.com/watch?v=1"}); err != nil {
		t.Fatal(err)
	}
	req := readUntil(t, conn, page.MsgDocumentRequest)
	if err := conn.WriteJSON(map[string]string{
		"type":      "document",
		"requestId": req.RequestID,
		"html":      `<html><head><meta itemprop="channelId" content="UCpeer"></head></html>`,
	}); err != nil {
		t.Fatal(err)
	}
	render := readUntil(t, conn, page.MsgRender)
	if len(render.Rects) != 1 || render.Rects[0].ID != "c" {
		t.Fatalf("unexpected render %+v", render)
	}
	if key, _ := p.Key(); key != "youtube.com/channel/UCpeer" {
		t.Fatalf("key = %q", key)
	}
}

func TestWSEditsArePersisted(t *testing.T) {
	env := newTestEnv(t)
	id := env.createLoadedPage(t, "https://a.example/")
	p, _ := env.pages.Get(id)

	conn, _, err := dialWS(t, env.srv, "/api/pages/"+id+"/ws")
	if err != nil {
		t.Fatalf("WS dial: %v", err)
	}
	defer conn.Close()
	readUntil(t, conn, page.MsgToggle)

	conn.WriteJSON(map[string]any{"type": "draw", "x1": 10, "y1": 10, "x2": 110, "y2": 60})
	conn.WriteJSON(map[string]any{"type": "draw", "x1": 0, "y1": 0, "x2": 2, "y2": 2})
	waitFor(t, func() bool { return p.Geometry().Len() == 1 })
	rect := p.Geometry().List()[0]

	conn.WriteJSON(map[string]any{"type": "move", "id": rect.ID, "left": 50, "top": 70})
	conn.WriteJSON(map[string]any{"type": "resize", "id": rect.ID, "direction": "se", "dx": 5, "dy": 5})
	// Live geometry changes before the save lands, so poll storage.
	waitFor(t, func() bool {
		raw, ok, err := env.store.Get(context.Background(), "https://a.example/")
		if err != nil || !ok {
			return false
		}
		return strings.Contains(string(raw), `"left":50`) && strings.Contains(string(raw), `"width":105`)
	})

	conn.WriteJSON(map[string]any{"type": "remove", "id": rect.ID})
	waitFor(t, func() bool { return p.Geometry().Len() == 0 })
}

func TestWSRejectsBadMessages(t *testing.T) {
	env := newTestEnv(t)
	id := env.createLoadedPage(t, "https://a.example/")

	conn, _, err := dialWS(t, env.srv, "/api/pages/"+id+"/ws")
	if err != nil {
		t.Fatalf("WS dial: %v", err)
	}
	defer conn.Close()
	readUntil(t, conn, page.MsgToggle)

	conn.WriteJSON(map[string]any{"type": "move", "id": "missing", "left": 1, "top": 1})
	if msg := readUntil(t, conn, page.MsgError); msg.Error == "" {
		t.Fatal("expected error text")
	}
	conn.WriteJSON(map[string]any{"type": "interaction", "state": geometry.Interaction{Mode: geometry.Resizing, ID: "x"}})
	readUntil(t, conn, page.MsgError)
	conn.WriteJSON(map[string]any{"type": "bogus"})
	readUntil(t, conn, page.MsgError)
}

func TestWSTogglePushed(t *testing.T) {
	env := newTestEnv(t)
	id := env.createLoadedPage(t, "https://a.example/")
	conn, _, err := dialWS(t, env.srv, "/api/pages/"+id+"/ws")
	if err != nil {
		t.Fatalf("WS dial: %v", err)
	}
	defer conn.Close()
	readUntil(t, conn, page.MsgToggle)

	env.do(t, http.MethodPost, "/api/pages/"+id+"/toggle", map[string]bool{"enabled": false})
	msg := readUntil(t, conn, page.MsgToggle)
	if msg.Enabled == nil || *msg.Enabled {
		t.Fatalf("expected disabled toggle, got %+v", msg)
	}
}

func TestWSClosedOnPageRemoval(t *testing.T) {
	env := newTestEnv(t)
	p := env.pages.Create()
	conn, _, err := dialWS(t, env.srv, "/api/pages/"+p.ID+"/ws")
	if err != nil {
		t.Fatalf("WS dial: %v", err)
	}
	defer conn.Close()
	readUntil(t, conn, page.MsgToggle)

	env.pages.Remove(p.ID)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg page.Outbound
	if err := conn.ReadJSON(&msg); err != nil {
		// Closed without a message is acceptable.
		return
	}
	if msg.Type != page.MsgClosed {
		t.Fatalf("expected 'closed' message, got %q", msg.Type)
	}
}

func TestWSClientDisplacement(t *testing.T) {
	env := newTestEnv(t)
	p := env.pages.Create()

	conn1, _, err := dialWS(t, env.srv, "/api/pages/"+p.ID+"/ws")
	if err != nil {
		t.Fatalf("conn1 dial: %v", err)
	}
	defer conn1.Close()
	readUntil(t, conn1, page.MsgToggle)

	conn2, _, err := dialWS(t, env.srv, "/api/pages/"+p.ID+"/ws")
	if err != nil {
		t.Fatalf("conn2 dial: %v", err)
	}
	defer conn2.Close()
	readUntil(t, conn2, page.MsgToggle)

	conn1.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg page.Outbound
	if err := conn1.ReadJSON(&msg); err == nil {
		t.Logf("conn1 received message after displacement: %q (not a failure)", msg.Type)
	}
	if !p.Connected() {
		t.Fatal("displacing client left the page disconnected")
	}
}
