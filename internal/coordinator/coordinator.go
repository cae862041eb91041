// Package coordinator polls one cook-status snapshot per oven per cycle,
// derives the remaining cook time from the vendor's end timestamp, and emits
// a single timer_finished event when a running cook reaches zero.
package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// State values of a derived snapshot. The vendor payload may carry others;
// anything unrecognized passes through verbatim with "unknown" as the
// absent-field default.
const (
	StateIdle    = "idle"
	StateCooking = "cooking"
	StateUnknown = "unknown"
)

// endTimeKeys are the accepted spellings of the cook end timestamp.
var endTimeKeys = []string{"estimatedEndTime", "estimated_end_time"}

// StatusClient is the slice of the API client the coordinator needs.
// Implemented by *tovala.Client.
type StatusClient interface {
	CookStatus(ctx context.Context, ovenID string) (map[string]any, error)
}

// Snapshot is one cycle's normalized status result.
type Snapshot struct {
	State            string         `json:"state"`
	RemainingSeconds int            `json:"remaining_seconds"`
	UpdatedAt        time.Time      `json:"updated_at"`
	Data             map[string]any `json:"data,omitempty"` // raw payload merged with derived fields
}

// Coordinator runs the update cycle for a single oven. The poller serializes
// cycles, so Refresh is never called concurrently and the latch needs no lock
// of its own; the published snapshot is guarded for concurrent readers.
type Coordinator struct {
	client  StatusClient
	account string
	ovenID  string
	events  *EventBus
	logger  *slog.Logger

	// latch: remaining seconds observed by the previous cycle, nil before
	// the first successful cycle. Used solely to edge-detect counting→zero.
	lastRemaining *int

	mu          sync.RWMutex
	last        Snapshot
	lastSuccess bool

	now func() time.Time
}

// New creates a Coordinator for one oven. An empty ovenID is valid: the
// coordinator then publishes empty snapshots until discovery supplies one.
func New(client StatusClient, account, ovenID string, events *EventBus, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		client:  client,
		account: account,
		ovenID:  ovenID,
		events:  events,
		logger:  logger.With("component", "coordinator", "account", account),
		now:     time.Now,
	}
}

// Account returns the account name this coordinator belongs to.
func (c *Coordinator) Account() string { return c.account }

// OvenID returns the oven this coordinator polls, or "" if none is configured.
func (c *Coordinator) OvenID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ovenID
}

// SetOvenID installs a late-discovered oven id and resets the latch.
func (c *Coordinator) SetOvenID(id string) {
	c.mu.Lock()
	c.ovenID = id
	c.mu.Unlock()
	c.lastRemaining = nil
}

// Last returns the last published snapshot and whether the most recent
// update cycle succeeded.
func (c *Coordinator) Last() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last, c.lastSuccess
}

// Refresh runs one update cycle: fetch, derive, edge-detect, publish.
// Fetch errors propagate to the caller unchanged; retry policy belongs to
// the poller.
func (c *Coordinator) Refresh(ctx context.Context) (Snapshot, error) {
	ovenID := c.OvenID()
	if ovenID == "" {
		// Valid steady state: discovery may not have produced an oven yet.
		c.logger.Warn("no oven configured, publishing empty snapshot")
		snap := Snapshot{State: StateUnknown, UpdatedAt: c.now(), Data: map[string]any{}}
		c.publish(snap, true)
		return snap, nil
	}

	raw, err := c.client.CookStatus(ctx, ovenID)
	if err != nil {
		c.mu.Lock()
		c.lastSuccess = false
		c.mu.Unlock()
		c.events.Emit(Event{Type: EventUpdateFailed, Data: FailureData{
			Account: c.account, OvenID: ovenID, Error: err.Error(),
		}})
		return Snapshot{}, err
	}

	state := StateUnknown
	if s, ok := raw["state"].(string); ok && s != "" {
		state = s
	}
	remaining := c.deriveRemaining(state, raw)

	snap := Snapshot{
		State:            state,
		RemainingSeconds: remaining,
		UpdatedAt:        c.now(),
		Data:             mergeSnapshot(raw, state, remaining),
	}

	// One-shot edge: a known positive remaining dropping to exactly zero.
	// Never fires on the first cycle or while remaining stays at zero.
	if c.lastRemaining != nil && *c.lastRemaining > 0 && remaining == 0 {
		c.logger.Info("cook timer finished", "oven", ovenID)
		c.events.Emit(Event{Type: EventTimerFinished, Data: StatusData{
			Account: c.account, OvenID: ovenID, Snapshot: snap,
		}})
	}
	c.lastRemaining = &remaining

	c.publish(snap, true)
	c.events.Emit(Event{Type: EventStatusUpdate, Data: StatusData{
		Account: c.account, OvenID: ovenID, Snapshot: snap,
	}})
	return snap, nil
}

// deriveRemaining computes seconds left in the current cook. The vendor does
// not reliably send a live countdown, so it is derived from the absolute end
// timestamp, which also survives missed polling cycles.
func (c *Coordinator) deriveRemaining(state string, raw map[string]any) int {
	if state != StateCooking {
		return 0
	}
	for _, key := range endTimeKeys {
		s, ok := raw[key].(string)
		if !ok || s == "" {
			continue
		}
		end, err := time.Parse(time.RFC3339, s)
		if err != nil {
			// A malformed timestamp must not abort the update.
			c.logger.Warn("parse cook end time", "value", s, "err", err)
			return 0
		}
		if d := end.Sub(c.now()); d > 0 {
			return int(d.Seconds())
		}
		return 0
	}
	return 0
}

func (c *Coordinator) publish(snap Snapshot, ok bool) {
	c.mu.Lock()
	c.last = snap
	c.lastSuccess = ok
	c.mu.Unlock()
}

// mergeSnapshot copies the raw payload and folds the derived fields in under
// normalized keys, leaving the vendor's own fields untouched.
func mergeSnapshot(raw map[string]any, state string, remaining int) map[string]any {
	data := make(map[string]any, len(raw)+2)
	for k, v := range raw {
		data[k] = v
	}
	data["state"] = state
	data["remaining_seconds"] = remaining
	return data
}
