package domain

import "time"

type EventType string

const (
	EventSweetCreated   EventType = "sweet.created"
	EventSweetUpdated   EventType = "sweet.updated"
	EventSweetDeleted   EventType = "sweet.deleted"
	EventSweetPurchased EventType = "sweet.purchased"
	EventSweetRestocked EventType = "sweet.restocked"
)

// SweetEvent is published after every accepted inventory mutation.
type SweetEvent struct {
	Type      EventType `json:"type"`
	SweetID   string    `json:"sweetId"`
	Name      string    `json:"name,omitempty"`
	Quantity  int       `json:"quantity"`
	Delta     int       `json:"delta,omitempty"`
	ActorID   string    `json:"actorId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
