package domain

import (
	"context"
	"time"
)

// EventKind names a state change recorded in the audit log.
type EventKind string

const (
	EventInitialized         EventKind = "initialized"
	EventAdminAdded          EventKind = "admin_added"
	EventAdminRemoved        EventKind = "admin_removed"
	EventMarketCreated       EventKind = "market_created"
	EventBetPlaced           EventKind = "bet_placed"
	EventMarketSettled       EventKind = "market_settled"
	EventWinningsClaimed     EventKind = "winnings_claimed"
	EventHouseFundsAdded     EventKind = "house_funds_added"
	EventHouseFundsWithdrawn EventKind = "house_funds_withdrawn"
)

// Event is one committed state change. Seq is assigned inside the same
// transaction as the change itself, so an event exists iff its change
// committed.
type Event struct {
	Seq      uint64         `json:"seq"`
	ID       string         `json:"id"`
	Kind     EventKind      `json:"kind"`
	MarketID uint64         `json:"market_id,omitempty"`
	Actor    string         `json:"actor"`
	At       int64          `json:"at"`
	Message  string         `json:"message"`
	Detail   map[string]any `json:"detail,omitempty"`
}

// Time returns the event timestamp.
func (e Event) Time() time.Time {
	return time.UnixMilli(e.At).UTC()
}

// EventSink receives events after their transaction committed. A sink
// failure never rolls back state.
type EventSink interface {
	Publish(ctx context.Context, events []Event) error
	Name() string
}
