package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	EventReservationCreated   = "reservation_created"
	EventReservationCancelled = "reservation_cancelled"
	EventAttendanceRecorded   = "attendance_recorded"
)

// Types lists every event the studio emits.
var Types = []string{EventReservationCreated, EventReservationCancelled, EventAttendanceRecorded}

// ReservationEventPayload is the snapshot handed to subscribers after a
// reservation is written or cancelled.
type ReservationEventPayload struct {
	ReservationID    int64  `json:"reservation_id"`
	ClientID         int64  `json:"client_id"`
	ClientName       string `json:"client_name"`
	ClientEmail      string `json:"client_email"`
	SlotID           int64  `json:"slot_id"`
	Date             string `json:"date"`
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`
	Status           string `json:"status"`
	CapacityCurrent  int    `json:"capacity_current"`
	CapacityMax      int    `json:"capacity_max"`
	ClassesRemaining int    `json:"classes_remaining"`
}

// AttendanceEventPayload summarizes one committed attendance sheet.
type AttendanceEventPayload struct {
	SlotID       int64          `json:"slot_id"`
	Date         string         `json:"date"`
	StartTime    string         `json:"start_time"`
	InstructorID int64          `json:"instructor_id"`
	RecordedBy   int64          `json:"recorded_by"`
	Marks        map[int64]bool `json:"marks"`
	Attended     int            `json:"attended"`
	Absent       int            `json:"absent"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events. Handlers run
// synchronously in subscription order; a failing handler is logged and does
// not stop the others.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

func NewEventBus(logger *zerolog.Logger) *EventBus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers handler for every type in Types.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	for _, t := range Types {
		b.Subscribe(t, handler)
	}
}

func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil {
			b.logger.Warn().Err(err).Str("event", event.Type).Msg("event handler failed")
		}
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
