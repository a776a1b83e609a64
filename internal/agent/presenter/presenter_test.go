package presenter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"slidecast/pkg/protocol"
)

type stubDeck struct {
	slides []string
}

func (d *stubDeck) Len() int { return len(d.slides) }
func (d *stubDeck) HTML(i int) string {
	if i < 0 || i >= len(d.slides) {
		return ""
	}
	return d.slides[i]
}

// stubRelay accepts one presenter connection, acks the join, records every
// published envelope, and lets tests inject remote commands.
type stubRelay struct {
	server   *httptest.Server
	received chan protocol.Envelope
	outbound chan protocol.Envelope
	acceptOK bool
}

func newStubRelay(t *testing.T, acceptOK bool) *stubRelay {
	t.Helper()

	s := &stubRelay{
		received: make(chan protocol.Envelope, 64),
		outbound: make(chan protocol.Envelope, 16),
		acceptOK: acceptOK,
	}

	upgrader := websocket.Upgrader{}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.ParseEnvelope(frame)
		if err != nil || env.Event != protocol.EventJoinPresenter {
			return
		}

		zero := 0
		ack := protocol.JoinAck{Success: true, CurrentSlide: &zero, TotalSlides: &zero}
		if !s.acceptOK {
			ack = protocol.JoinAck{Success: false, Error: "invalid session ID"}
		}
		ackEnv, _ := protocol.NewEnvelope(protocol.EventJoinAck, ack)
		ackFrame, _ := ackEnv.Encode()
		if err := conn.WriteMessage(websocket.TextMessage, ackFrame); err != nil {
			return
		}
		if !s.acceptOK {
			return
		}

		go func() {
			for out := range s.outbound {
				frame, err := out.Encode()
				if err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					return
				}
			}
		}()

		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			env, err := protocol.ParseEnvelope(frame)
			if err != nil {
				continue
			}
			s.received <- env
		}
	}))

	t.Cleanup(s.server.Close)
	return s
}

func (s *stubRelay) wsURL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

func (s *stubRelay) nextEvent(t *testing.T, event string) protocol.Envelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-s.received:
			if env.Event == event {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", event)
		}
	}
}

func (s *stubRelay) sendCommand(t *testing.T, cmd protocol.Command) {
	t.Helper()
	env, err := protocol.NewEnvelope(protocol.EventRemoteCommand, cmd)
	if err != nil {
		t.Fatalf("failed to build command: %v", err)
	}
	s.outbound <- env
}

func startPresenter(t *testing.T, relay *stubRelay) *Presenter {
	t.Helper()

	p, err := New(Options{
		ServerURL:         relay.wsURL(),
		SessionID:         "demo",
		ReconnectInterval: 50 * time.Millisecond,
	}, &stubDeck{slides: []string{"<p>one</p>", "<p>two</p>", "<p>three</p>"}})
	if err != nil {
		t.Fatalf("failed to create presenter: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		p.Close()
	})
	go p.Run(ctx)

	return p
}

func TestNewValidation(t *testing.T) {
	deck := &stubDeck{slides: []string{"<p>x</p>"}}

	if _, err := New(Options{SessionID: "demo"}, deck); err == nil {
		t.Error("expected an error for a missing server URL")
	}
	if _, err := New(Options{ServerURL: "ws://x", SessionID: "bad id"}, deck); !errors.Is(err, protocol.ErrInvalidSessionID) {
		t.Errorf("expected ErrInvalidSessionID, got %v", err)
	}
	if _, err := New(Options{ServerURL: "ws://x", SessionID: "demo"}, &stubDeck{}); !errors.Is(err, ErrEmptyDeck) {
		t.Errorf("expected ErrEmptyDeck, got %v", err)
	}
}

func TestInitialPublishOnJoin(t *testing.T) {
	relay := newStubRelay(t, true)
	startPresenter(t, relay)

	stateEnv := relay.nextEvent(t, protocol.EventSyncSlide)
	var state protocol.SlideState
	if err := stateEnv.Decode(&state); err != nil {
		t.Fatalf("state decode failed: %v", err)
	}
	if state.CurrentSlide != 0 || state.TotalSlides != 3 {
		t.Errorf("unexpected initial state: %+v", state)
	}

	contentEnv := relay.nextEvent(t, protocol.EventPresentationContent)
	var payload protocol.ContentPayload
	if err := contentEnv.Decode(&payload); err != nil {
		t.Fatalf("content decode failed: %v", err)
	}
	mirror := protocol.DecodeMirror(payload)
	if !mirror.Structured || mirror.HTML != "<p>one</p>" {
		t.Errorf("unexpected initial mirror: %+v", mirror)
	}
}

func TestNavigationPublishesAndClamps(t *testing.T) {
	relay := newStubRelay(t, true)
	p := startPresenter(t, relay)

	relay.nextEvent(t, protocol.EventPresentationContent)

	p.Next()
	stateEnv := relay.nextEvent(t, protocol.EventSyncSlide)
	var state protocol.SlideState
	if err := stateEnv.Decode(&state); err != nil {
		t.Fatalf("state decode failed: %v", err)
	}
	if state.CurrentSlide != 1 {
		t.Errorf("expected slide 1, got %d", state.CurrentSlide)
	}

	p.Goto(99)
	if current, _ := p.Slide(); current != 2 {
		t.Errorf("goto must clamp to the last slide, got %d", current)
	}

	// Next at the last slide is a no-op.
	p.Next()
	if current, _ := p.Slide(); current != 2 {
		t.Errorf("next at the last slide moved to %d", current)
	}

	p.Goto(0)
	p.Previous()
	if current, _ := p.Slide(); current != 0 {
		t.Errorf("previous at slide 0 moved to %d", current)
	}
}

func TestRemoteCommandsApplied(t *testing.T) {
	relay := newStubRelay(t, true)
	p := startPresenter(t, relay)

	relay.nextEvent(t, protocol.EventPresentationContent)

	relay.sendCommand(t, protocol.Command{SessionID: "demo", Command: protocol.CommandNext})
	stateEnv := relay.nextEvent(t, protocol.EventSyncSlide)
	var state protocol.SlideState
	if err := stateEnv.Decode(&state); err != nil {
		t.Fatalf("state decode failed: %v", err)
	}
	if state.CurrentSlide != 1 {
		t.Errorf("expected slide 1 after remote next, got %d", state.CurrentSlide)
	}

	idx := 2
	relay.sendCommand(t, protocol.Command{SessionID: "demo", Command: protocol.CommandGoto, SlideIndex: &idx})
	deadline := time.Now().Add(2 * time.Second)
	for {
		if current, _ := p.Slide(); current == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("remote goto never applied")
		}
		time.Sleep(5 * time.Millisecond)
	}

	pos := 300
	relay.sendCommand(t, protocol.Command{SessionID: "demo", Command: protocol.CommandScrollSync, ScrollPosition: &pos})
	scrollEnv := relay.nextEvent(t, protocol.EventScrollSync)
	var scroll protocol.ScrollPayload
	if err := scrollEnv.Decode(&scroll); err != nil {
		t.Fatalf("scroll decode failed: %v", err)
	}
	if scroll.ScrollPosition != 300 {
		t.Errorf("expected scroll 300, got %d", scroll.ScrollPosition)
	}
}

func TestRejectedJoinKeepsRetrying(t *testing.T) {
	relay := newStubRelay(t, false)

	p, err := New(Options{
		ServerURL:         relay.wsURL(),
		SessionID:         "demo",
		ReconnectInterval: 20 * time.Millisecond,
	}, &stubDeck{slides: []string{"<p>x</p>"}})
	if err != nil {
		t.Fatalf("failed to create presenter: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = p.Run(ctx)

	if p.State() != StateEnded {
		t.Errorf("expected the presenter to end with the context, got %s", p.State())
	}
}
