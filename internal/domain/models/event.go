package models

import "time"

// ChangeOp is the kind of change-feed event.
type ChangeOp string

const (
	OpInsert ChangeOp = "insert"
	OpDelete ChangeOp = "delete"
)

// Message is one broadcast-message row from the watched table.
type Message struct {
	ID        string    `json:"id,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// ChangeEvent is a single insert/delete notification from the change feed.
// For deletes, ID carries the durable identifier when the source row had
// one; otherwise Match carries the row's content fields so clients can
// remove by equality (degraded mode, not an error).
type ChangeEvent struct {
	Op    ChangeOp
	Row   *Message // insert payload
	ID    string   // delete identity, when known
	Match *Message // delete fallback tuple
}
