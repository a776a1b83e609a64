package integration

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"slidecast/internal/agent/presenter"
	"slidecast/internal/agent/remote"
	"slidecast/internal/api"
	"slidecast/internal/coordinator"
	"slidecast/internal/deck"
	"slidecast/internal/history"
	relaypkg "slidecast/internal/relay"
	"slidecast/internal/session"
	"slidecast/internal/websocket"
	"slidecast/pkg/protocol"
)

const testDeck = `# Slide one

---

# Slide two

---

# Slide three
`

// testServer runs the full server stack behind an httptest listener.
type testServer struct {
	registry *session.Registry
	store    *history.Store
	server   *httptest.Server
}

func startServer(t *testing.T) *testServer {
	t.Helper()

	store, err := history.NewStore(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("failed to open event log: %v", err)
	}

	registry := session.NewRegistry()
	table := websocket.NewTable()
	rly := relaypkg.NewRelay(registry, table, store)
	coord := coordinator.NewCoordinator(rly)
	if err := coord.Start(context.Background()); err != nil {
		t.Fatalf("failed to start coordinator: %v", err)
	}

	opts := websocket.DefaultOptions()
	opts.JoinTimeout = 2 * time.Second
	wsHandler := websocket.NewHandler(coord, opts)

	engine := api.NewServer(registry, store).Router("release", wsHandler.ServeWS)
	server := httptest.NewServer(engine)

	t.Cleanup(func() {
		server.Close()
		_ = coord.Stop()
		_ = store.Close()
	})

	return &testServer{registry: registry, store: store, server: server}
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.server.URL, "http") + "/ws"
}

type remoteView struct {
	mu      sync.Mutex
	current int
	total   int
	html    string
	scroll  int
	ended   int
}

func (v *remoteView) handlers() remote.Handlers {
	return remote.Handlers{
		OnSlide: func(current, total int) {
			v.mu.Lock()
			v.current, v.total = current, total
			v.mu.Unlock()
		},
		OnContent: func(m protocol.Mirror) {
			v.mu.Lock()
			v.html = m.HTML
			v.scroll = m.ScrollPosition
			if m.Structured {
				v.current, v.total = m.CurrentSlide, m.TotalSlides
			}
			v.mu.Unlock()
		},
		OnScroll: func(position int) {
			v.mu.Lock()
			v.scroll = position
			v.mu.Unlock()
		},
		OnEnded: func() {
			v.mu.Lock()
			v.ended++
			v.mu.Unlock()
		},
	}
}

func (v *remoteView) wait(t *testing.T, check func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		v.mu.Lock()
		done := check()
		v.mu.Unlock()
		if done {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func startTestPresenter(t *testing.T, ts *testServer, sessionID string) *presenter.Presenter {
	t.Helper()

	d, err := deck.Parse([]byte(testDeck))
	if err != nil {
		t.Fatalf("failed to parse deck: %v", err)
	}

	p, err := presenter.New(presenter.Options{
		ServerURL:         ts.wsURL(),
		SessionID:         sessionID,
		ReconnectInterval: 50 * time.Millisecond,
	}, d)
	if err != nil {
		t.Fatalf("failed to create presenter: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		p.Close()
	})
	go p.Run(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for p.State() != presenter.StateJoined {
		if time.Now().After(deadline) {
			t.Fatalf("presenter never joined, state %s", p.State())
		}
		time.Sleep(10 * time.Millisecond)
	}
	return p
}

func startTestRemote(t *testing.T, ts *testServer, sessionID string) (*remote.Remote, *remoteView) {
	t.Helper()

	view := &remoteView{}
	r, err := remote.New(remote.Options{
		ServerURL:         ts.wsURL(),
		SessionID:         sessionID,
		ReconnectInterval: 50 * time.Millisecond,
	}, view.handlers())
	if err != nil {
		t.Fatalf("failed to create remote: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		r.Close()
	})
	go r.Run(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for r.State() != remote.StateConnected {
		if time.Now().After(deadline) {
			t.Fatalf("remote never connected, state %s", r.State())
		}
		time.Sleep(10 * time.Millisecond)
	}
	return r, view
}

func TestPresenterDrivesRemote(t *testing.T) {
	ts := startServer(t)

	p := startTestPresenter(t, ts, "lecture-1")
	_, view := startTestRemote(t, ts, "lecture-1")

	// The remote sees the initial mirror without waiting for a publish.
	view.wait(t, func() bool { return strings.Contains(view.html, "Slide one") }, "initial mirror")

	p.Next()
	view.wait(t, func() bool { return view.current == 1 }, "slide advance")
	view.wait(t, func() bool { return strings.Contains(view.html, "Slide two") }, "mirror update")

	p.ScrollTo(240)
	view.wait(t, func() bool { return view.scroll == 240 }, "scroll update")
}

func TestRemoteSteersPresenter(t *testing.T) {
	ts := startServer(t)

	p := startTestPresenter(t, ts, "lecture-2")
	r, view := startTestRemote(t, ts, "lecture-2")
	view.wait(t, func() bool { return view.total == 3 }, "deck size")

	if err := r.Next(); err != nil {
		t.Fatalf("next failed: %v", err)
	}
	view.wait(t, func() bool { return view.current == 1 }, "remote next round trip")

	current, _ := p.Slide()
	if current != 1 {
		t.Errorf("presenter did not follow the remote, at slide %d", current)
	}

	if err := r.Goto(2); err != nil {
		t.Fatalf("goto failed: %v", err)
	}
	view.wait(t, func() bool { return view.current == 2 }, "remote goto round trip")

	// At the last slide the boundary check blocks the command locally.
	if err := r.Next(); !errors.Is(err, remote.ErrAtLastSlide) {
		t.Errorf("expected ErrAtLastSlide, got %v", err)
	}

	if err := r.SyncScroll(300); err != nil {
		t.Fatalf("sync scroll failed: %v", err)
	}
	view.wait(t, func() bool { return view.scroll == 300 }, "remote scroll round trip")
}

func TestRemoteJoinUnknownSessionFails(t *testing.T) {
	ts := startServer(t)

	r, err := remote.New(remote.Options{
		ServerURL: ts.wsURL(),
		SessionID: "never-started",
	}, remote.Handlers{})
	if err != nil {
		t.Fatalf("failed to create remote: %v", err)
	}
	defer r.Close()

	if err := r.Run(context.Background()); !errors.Is(err, remote.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestPresenterDisconnectEndsPresentation(t *testing.T) {
	ts := startServer(t)

	p := startTestPresenter(t, ts, "lecture-3")
	_, view := startTestRemote(t, ts, "lecture-3")
	view.wait(t, func() bool { return view.total == 3 }, "deck size")

	p.Close()

	view.wait(t, func() bool { return view.ended >= 1 }, "presentation-ended")
	time.Sleep(100 * time.Millisecond)

	view.mu.Lock()
	ended := view.ended
	view.mu.Unlock()
	if ended != 1 {
		t.Errorf("expected exactly one ended notification, got %d", ended)
	}

	// State is retained for the next presenter.
	snap, err := ts.registry.Snapshot("lecture-3")
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if snap.HasPresenter {
		t.Error("presenter slot must be empty after disconnect")
	}
	if snap.TotalSlides != 3 {
		t.Errorf("retained state lost: %+v", snap)
	}
}

func TestLateJoinerGetsSnapshot(t *testing.T) {
	ts := startServer(t)

	p := startTestPresenter(t, ts, "lecture-4")
	p.Next()
	p.Next()

	// Give the publishes time to land in the registry.
	deadline := time.Now().Add(3 * time.Second)
	for {
		snap, err := ts.registry.Snapshot("lecture-4")
		if err == nil && snap.CurrentSlide == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("registry never saw slide 2")
		}
		time.Sleep(10 * time.Millisecond)
	}

	r, view := startTestRemote(t, ts, "lecture-4")
	view.wait(t, func() bool { return view.current == 2 }, "late join snapshot")
	view.wait(t, func() bool { return strings.Contains(view.html, "Slide three") }, "late join mirror")

	current, total := r.Slide()
	if current != 2 || total != 3 {
		t.Errorf("late joiner at %d/%d", current, total)
	}
}

func TestPresenterHandoff(t *testing.T) {
	ts := startServer(t)

	startTestPresenter(t, ts, "lecture-5")
	_, view := startTestRemote(t, ts, "lecture-5")
	view.wait(t, func() bool { return view.total == 3 }, "deck size")

	// A second presenter takes the slot; the session continues without
	// any ended notification.
	p2 := startTestPresenter(t, ts, "lecture-5")
	p2.Next()
	view.wait(t, func() bool { return view.current == 1 }, "new presenter publish")

	view.mu.Lock()
	ended := view.ended
	view.mu.Unlock()
	if ended != 0 {
		t.Errorf("takeover must not end the presentation, got %d notifications", ended)
	}
}
