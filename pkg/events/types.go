package events

import (
	"time"

	"verdant/pkg/captable"
	"verdant/pkg/registry"
)

const (
	TypeStartupRegistered = "startup_registered"
	TypeCapTableUpdated   = "cap_table_updated"
)

// Event is pushed to every subscriber whose filter matches StartupID.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"event_type"`
	StartupID  uint64            `json:"startup_id"`
	Startup    *registry.Startup `json:"startup,omitempty"`
	CapTable   *captable.Summary `json:"cap_table,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}
