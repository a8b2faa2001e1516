package events

import (
	"time"

	"github.com/rs/zerolog"
)

// EventType represents different ledger event types
type EventType string

const (
	SyncStarted    EventType = "SYNC_STARTED"
	SyncCompleted  EventType = "SYNC_COMPLETED"
	PositionOpened EventType = "POSITION_OPENED"
	PositionClosed EventType = "POSITION_CLOSED"
	PositionFlip   EventType = "POSITION_FLIPPED"
	BasketCreated  EventType = "BASKET_CREATED"
	BasketExtended EventType = "BASKET_EXTENDED"
	BasketClosed   EventType = "BASKET_CLOSED"
	ErrorOccurred  EventType = "ERROR_OCCURRED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// Manager handles event emission. Events currently land in the
// structured log; subscribers can be added behind Emit later without
// touching the emitters.
type Manager struct {
	log zerolog.Logger
}

// NewManager creates a new event manager
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log: log.With().Str("service", "events").Logger(),
	}
}

// Emit records an event
func (m *Manager) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	}

	m.log.Info().
		Str("event", string(event.Type)).
		Str("module", event.Module).
		Fields(event.Data).
		Msg("Event emitted")
}
