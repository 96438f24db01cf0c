// Package events defines the event types passed through the Lure event bus.
package events

import "github.com/lure-project/lure/internal/ping"

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// EventContact is emitted once per observed request. Payload: ping.Request.
	EventContact EventType = "contact"

	// EventShutdown is emitted when the process begins shutting down.
	EventShutdown EventType = "shutdown"

	// EventHeartbeat carries periodic health data. Payload: map[string]interface{}.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents a single event in the system.
type Event struct {
	Type    EventType
	Source  string
	Payload interface{}
}

// NewContactEvent wraps an observed request.
func NewContactEvent(source string, req ping.Request) Event {
	return Event{
		Type:    EventContact,
		Source:  source,
		Payload: req,
	}
}

// ContactPayload extracts the request from a contact event.
func ContactPayload(event Event) (ping.Request, bool) {
	req, ok := event.Payload.(ping.Request)
	return req, ok
}
