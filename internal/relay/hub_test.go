package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"PricePulse/internal/domain/models"
	applogger "PricePulse/pkg/logger"
)

type fakeConn struct {
	mu     sync.Mutex
	ready  bool
	frames [][]byte
	sendCh chan struct{}
	err    error
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{ready: true, sendCh: make(chan struct{}, 64)}
}

func (c *fakeConn) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.frames = append(c.frames, cp)
	select {
	case c.sendCh <- struct{}{}:
	default:
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.ready = false
	return nil
}

func (c *fakeConn) waitFrames(t *testing.T, n int) []Frame {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		c.mu.Lock()
		got := len(c.frames)
		c.mu.Unlock()
		if got >= n {
			break
		}
		select {
		case <-c.sendCh:
		case <-deadline:
			t.Fatalf("timed out waiting for %d frames, got %d", n, got)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Frame, len(c.frames))
	for i, raw := range c.frames {
		if err := json.Unmarshal(raw, &out[i]); err != nil {
			t.Fatalf("frame %d unmarshal: %v", i, err)
		}
	}
	return out
}

type fakeMessageStore struct {
	rows []models.Message
	err  error
}

func (s *fakeMessageStore) Recent(_ context.Context, n int) ([]models.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.rows) > n {
		return s.rows[:n], nil
	}
	return s.rows, nil
}

type fakeFeed struct {
	ch chan models.ChangeEvent
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{ch: make(chan models.ChangeEvent, 16)}
}

func (f *fakeFeed) Events() <-chan models.ChangeEvent { return f.ch }

type nopMetrics struct{}

func (nopMetrics) RecordPoll(string)            {}
func (nopMetrics) SetBackoff(bool)              {}
func (nopMetrics) SetCacheSize(int)             {}
func (nopMetrics) SetRelayClients(int)          {}
func (nopMetrics) RecordBroadcast(string)       {}
func (nopMetrics) RecordError(string)           {}
func (nopMetrics) RecordLatency(string, float64) {}

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	log, err := applogger.New(&applogger.Config{Level: "error", Format: "console"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func newTestHub(t *testing.T, msgs *fakeMessageStore, feed *fakeFeed, snapshot int) *Hub {
	t.Helper()
	return NewHub(msgs, feed, nopMetrics{}, testLogger(t), snapshot)
}

func TestHelloSnapshotOnJoin(t *testing.T) {
	rows := []models.Message{
		{ID: "1", Body: "first"},
		{ID: "2", Body: "second"},
	}
	feed := newFakeFeed()
	hub := newTestHub(t, &fakeMessageStore{rows: rows}, feed, 25)

	conn := newFakeConn()
	hub.OnConnect(context.Background(), conn)

	frames := conn.waitFrames(t, 1)
	if frames[0].Type != FrameHello {
		t.Fatalf("expected hello frame, got %q", frames[0].Type)
	}
	if len(frames[0].Rows) != 2 {
		t.Fatalf("expected 2 snapshot rows, got %d", len(frames[0].Rows))
	}
	if frames[0].Rows[0].ID != "1" || frames[0].Rows[1].ID != "2" {
		t.Fatalf("unexpected snapshot rows: %+v", frames[0].Rows)
	}
}

func TestHelloSnapshotCapped(t *testing.T) {
	rows := make([]models.Message, 40)
	for i := range rows {
		rows[i] = models.Message{Body: "row"}
	}
	feed := newFakeFeed()
	hub := newTestHub(t, &fakeMessageStore{rows: rows}, feed, 25)

	conn := newFakeConn()
	hub.OnConnect(context.Background(), conn)

	frames := conn.waitFrames(t, 1)
	if len(frames[0].Rows) != 25 {
		t.Fatalf("expected snapshot capped at 25 rows, got %d", len(frames[0].Rows))
	}
}

func TestHelloSnapshotEmptyStore(t *testing.T) {
	feed := newFakeFeed()
	hub := newTestHub(t, &fakeMessageStore{}, feed, 25)

	conn := newFakeConn()
	hub.OnConnect(context.Background(), conn)

	frames := conn.waitFrames(t, 1)
	if frames[0].Type != FrameHello {
		t.Fatalf("expected hello frame, got %q", frames[0].Type)
	}
	if frames[0].Rows == nil || len(frames[0].Rows) != 0 {
		t.Fatalf("expected empty rows array, got %+v", frames[0].Rows)
	}
}

func TestSnapshotFailureSkipsHello(t *testing.T) {
	feed := newFakeFeed()
	hub := newTestHub(t, &fakeMessageStore{err: errors.New("store down")}, feed, 25)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := newFakeConn()
	hub.OnConnect(ctx, conn)

	// The connection must stay usable for live events even without a hello.
	feed.ch <- models.ChangeEvent{Op: models.OpInsert, Row: &models.Message{ID: "7", Body: "live"}}

	frames := conn.waitFrames(t, 1)
	if frames[0].Type != FrameInsert {
		t.Fatalf("expected insert frame, got %q", frames[0].Type)
	}
}

func TestInsertFanOut(t *testing.T) {
	feed := newFakeFeed()
	hub := newTestHub(t, &fakeMessageStore{}, feed, 25)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	a := newFakeConn()
	b := newFakeConn()
	hub.OnConnect(ctx, a)
	hub.OnConnect(ctx, b)
	a.waitFrames(t, 1)
	b.waitFrames(t, 1)

	feed.ch <- models.ChangeEvent{Op: models.OpInsert, Row: &models.Message{ID: "9", Body: "new row"}}

	for _, conn := range []*fakeConn{a, b} {
		frames := conn.waitFrames(t, 2)
		last := frames[len(frames)-1]
		if last.Type != FrameInsert {
			t.Fatalf("expected insert frame, got %q", last.Type)
		}
		if last.Row == nil || last.Row.ID != "9" {
			t.Fatalf("unexpected insert row: %+v", last.Row)
		}
	}
}

func TestDeleteByID(t *testing.T) {
	feed := newFakeFeed()
	hub := newTestHub(t, &fakeMessageStore{}, feed, 25)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := newFakeConn()
	hub.OnConnect(ctx, conn)
	conn.waitFrames(t, 1)

	feed.ch <- models.ChangeEvent{Op: models.OpDelete, ID: "42"}

	frames := conn.waitFrames(t, 2)
	last := frames[len(frames)-1]
	if last.Type != FrameDelete || last.ID != "42" {
		t.Fatalf("unexpected delete frame: %+v", last)
	}
	if last.Match != nil {
		t.Fatalf("expected no match tuple when id present")
	}
}

func TestDeleteByMatchTuple(t *testing.T) {
	feed := newFakeFeed()
	hub := newTestHub(t, &fakeMessageStore{}, feed, 25)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := newFakeConn()
	hub.OnConnect(ctx, conn)
	conn.waitFrames(t, 1)

	feed.ch <- models.ChangeEvent{Op: models.OpDelete, Match: &models.Message{Body: "stale"}}

	frames := conn.waitFrames(t, 2)
	last := frames[len(frames)-1]
	if last.Type != FrameDelete {
		t.Fatalf("expected delete frame, got %q", last.Type)
	}
	if last.Match == nil || last.Match.Body != "stale" {
		t.Fatalf("unexpected match tuple: %+v", last.Match)
	}
}

func TestDisconnectedConnGetsNoSends(t *testing.T) {
	feed := newFakeFeed()
	hub := newTestHub(t, &fakeMessageStore{}, feed, 25)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	gone := newFakeConn()
	stay := newFakeConn()
	hub.OnConnect(ctx, gone)
	hub.OnConnect(ctx, stay)
	gone.waitFrames(t, 1)
	stay.waitFrames(t, 1)

	hub.OnDisconnect(gone)
	if hub.Clients() != 1 {
		t.Fatalf("expected 1 client after disconnect, got %d", hub.Clients())
	}

	feed.ch <- models.ChangeEvent{Op: models.OpInsert, Row: &models.Message{ID: "3"}}
	stay.waitFrames(t, 2)

	gone.mu.Lock()
	n := len(gone.frames)
	gone.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected disconnected conn to keep only its hello, got %d frames", n)
	}
}

func TestNotReadyConnSkipped(t *testing.T) {
	feed := newFakeFeed()
	hub := newTestHub(t, &fakeMessageStore{}, feed, 25)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	stuck := newFakeConn()
	ok := newFakeConn()
	hub.OnConnect(ctx, stuck)
	hub.OnConnect(ctx, ok)
	stuck.waitFrames(t, 1)
	ok.waitFrames(t, 1)

	stuck.mu.Lock()
	stuck.ready = false
	stuck.mu.Unlock()

	feed.ch <- models.ChangeEvent{Op: models.OpInsert, Row: &models.Message{ID: "5"}}
	ok.waitFrames(t, 2)

	stuck.mu.Lock()
	n := len(stuck.frames)
	stuck.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected not-ready conn to be skipped, got %d frames", n)
	}
}

func TestSendErrorDoesNotStopFanOut(t *testing.T) {
	feed := newFakeFeed()
	hub := newTestHub(t, &fakeMessageStore{}, feed, 25)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	broken := newFakeConn()
	healthy := newFakeConn()
	hub.OnConnect(ctx, healthy)
	healthy.waitFrames(t, 1)

	broken.mu.Lock()
	broken.err = errors.New("write failed")
	broken.mu.Unlock()
	hub.OnConnect(ctx, broken)

	feed.ch <- models.ChangeEvent{Op: models.OpInsert, Row: &models.Message{ID: "6"}}

	frames := healthy.waitFrames(t, 2)
	if frames[len(frames)-1].Type != FrameInsert {
		t.Fatalf("healthy conn did not receive insert after peer send error")
	}
}

func TestRunClosesConnsOnCancel(t *testing.T) {
	feed := newFakeFeed()
	hub := newTestHub(t, &fakeMessageStore{}, feed, 25)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	conn := newFakeConn()
	hub.OnConnect(ctx, conn)
	conn.waitFrames(t, 1)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop on cancel")
	}

	conn.mu.Lock()
	closed := conn.closed
	conn.mu.Unlock()
	if !closed {
		t.Fatal("expected connection closed on shutdown")
	}
	if hub.Clients() != 0 {
		t.Fatalf("expected 0 clients after shutdown, got %d", hub.Clients())
	}
}
