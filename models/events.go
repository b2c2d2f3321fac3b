package models

import "time"

// ChangeEvent is published to subscribers after a store transaction commits.
type ChangeEvent struct {
	Entity        EntityKind   `json:"entity"`
	Action        ChangeAction `json:"action"`
	ID            string       `json:"id"`
	At            time.Time    `json:"at"`
	CorrelationId string       `json:"correlationId,omitempty"`
}
