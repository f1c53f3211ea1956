package relay

import (
	"context"
	"encoding/json"
	"sync"

	"PricePulse/internal/domain/models"
	domrepo "PricePulse/internal/domain/repository"
	applogger "PricePulse/pkg/logger"
)

// Conn is one live subscriber connection. Send failures and not-ready
// connections are skipped silently; the hub never blocks on a slow consumer.
type Conn interface {
	Ready() bool
	Send(data []byte) error
	Close() error
}

// Frame is the wire format for relay messages.
type Frame struct {
	Type  string           `json:"type"`
	Rows  []models.Message `json:"rows,omitempty"`
	Row   *models.Message  `json:"row,omitempty"`
	ID    string           `json:"id,omitempty"`
	Match *models.Message  `json:"match,omitempty"`
}

const (
	FrameHello  = "hello"
	FrameInsert = "insert"
	FrameDelete = "delete"
)

// Hub maintains the set of live subscribers, sends a snapshot of recent
// broadcast-message rows on join, and fans change-feed events out to every
// ready connection. Delivery is best-effort with no retry and no
// backpressure queue: slow or dead consumers simply miss messages.
type Hub struct {
	msgs      domrepo.MessageStore
	feed      domrepo.ChangeFeed
	metrics   domrepo.Metrics
	log       *applogger.Logger
	snapshotN int

	mu    sync.RWMutex
	conns map[Conn]struct{}
}

// NewHub creates a Hub that snapshots the snapshotN most recent rows on join.
func NewHub(
	msgs domrepo.MessageStore,
	feed domrepo.ChangeFeed,
	metrics domrepo.Metrics,
	log *applogger.Logger,
	snapshotN int,
) *Hub {
	if snapshotN <= 0 {
		snapshotN = 25
	}
	return &Hub{
		msgs:      msgs,
		feed:      feed,
		metrics:   metrics,
		log:       log,
		snapshotN: snapshotN,
		conns:     make(map[Conn]struct{}),
	}
}

// Run consumes change-feed events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("relay hub started")
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.log.Info("relay hub stopped")
			return
		case ev, ok := <-h.feed.Events():
			if !ok {
				h.closeAll()
				h.log.Info("change feed closed, relay hub stopping")
				return
			}
			h.dispatch(ev)
		}
	}
}

// OnConnect registers a subscriber and sends its hello snapshot
// asynchronously. The connection is usable immediately; snapshot delivery
// may race with live events and clients de-duplicate by record identity.
func (h *Hub) OnConnect(ctx context.Context, c Conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	n := len(h.conns)
	h.mu.Unlock()

	h.metrics.SetRelayClients(n)
	h.log.Info("relay subscriber joined", applogger.Int("clients", n))

	go h.sendSnapshot(ctx, c)
}

// OnDisconnect removes a subscriber. No further sends are attempted on it.
func (h *Hub) OnDisconnect(c Conn) {
	h.mu.Lock()
	_, ok := h.conns[c]
	delete(h.conns, c)
	n := len(h.conns)
	h.mu.Unlock()

	if !ok {
		return
	}
	h.metrics.SetRelayClients(n)
	h.log.Info("relay subscriber left", applogger.Int("clients", n))
}

// Clients returns the current subscriber count.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) sendSnapshot(ctx context.Context, c Conn) {
	rows, err := h.msgs.Recent(ctx, h.snapshotN)
	if err != nil {
		h.log.Error("snapshot query failed", applogger.Error(err))
		h.metrics.RecordError("snapshot_query")
		return
	}
	if rows == nil {
		rows = []models.Message{}
	}

	data, err := json.Marshal(&Frame{Type: FrameHello, Rows: rows})
	if err != nil {
		h.log.Error("frame marshal failed", applogger.Error(err))
		return
	}
	h.send(c, data)
	h.metrics.RecordBroadcast(FrameHello)
}

func (h *Hub) dispatch(ev models.ChangeEvent) {
	var f *Frame
	switch ev.Op {
	case models.OpInsert:
		if ev.Row == nil {
			h.metrics.RecordError("feed_insert_empty")
			return
		}
		f = &Frame{Type: FrameInsert, Row: ev.Row}
	case models.OpDelete:
		if ev.ID != "" {
			f = &Frame{Type: FrameDelete, ID: ev.ID}
		} else if ev.Match != nil {
			// Degraded mode: no durable identifier on the deleted row, so
			// broadcast its content fields for equality matching.
			f = &Frame{Type: FrameDelete, Match: ev.Match}
		} else {
			h.metrics.RecordError("feed_delete_empty")
			return
		}
	default:
		h.metrics.RecordError("feed_unknown_op")
		return
	}

	h.broadcast(f)
	h.metrics.RecordBroadcast(f.Type)
}

// broadcast sends a frame to a stable snapshot of the membership, so
// concurrent connect/disconnect cannot disturb the iteration.
func (h *Hub) broadcast(f *Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		h.log.Error("frame marshal failed", applogger.Error(err))
		h.metrics.RecordError("frame_marshal")
		return
	}

	h.mu.RLock()
	members := make([]Conn, 0, len(h.conns))
	for c := range h.conns {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		h.send(c, data)
	}
}

// send writes one marshalled frame to a connection, skipping silently on
// not-ready or error.
func (h *Hub) send(c Conn, data []byte) {
	if !c.Ready() {
		return
	}
	if err := c.Send(data); err != nil {
		h.log.Debug("relay send failed", applogger.Error(err))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.conns {
		_ = c.Close()
	}
	h.conns = make(map[Conn]struct{})
	h.mu.Unlock()
	h.metrics.SetRelayClients(0)
}
