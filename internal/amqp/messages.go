package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Ledger event types.
const (
	EventCategoryCreated = "category.created"
	EventCategoryUpdated = "category.updated"
	EventCategoryDeleted = "category.deleted"
	EventIncomeRecorded  = "entry.income_recorded"
	EventExpenseRecorded = "entry.expense_recorded"
	EventEntryDeleted    = "entry.deleted"
)

// LedgerEvent announces a committed ledger mutation. It carries identifiers
// only; consumers re-read the ledger for anything else.
type LedgerEvent struct {
	Type            string    `json:"type"`
	OwnerID         string    `json:"ownerId"`
	CategoryID      string    `json:"categoryId,omitempty"`
	EntryID         string    `json:"entryId,omitempty"`
	Policy          string    `json:"policy,omitempty"`
	RemovedExpenses int       `json:"removedExpenses,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// NewLedgerEvent creates an event stamped with the current time.
func NewLedgerEvent(eventType, ownerID string) *LedgerEvent {
	return &LedgerEvent{
		Type:      eventType,
		OwnerID:   ownerID,
		Timestamp: time.Now().UTC(),
	}
}

func (e *LedgerEvent) Validate() error {
	switch e.Type {
	case EventCategoryCreated, EventCategoryUpdated, EventCategoryDeleted,
		EventIncomeRecorded, EventExpenseRecorded, EventEntryDeleted:
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.OwnerID == "" {
		return errors.New("event without owner")
	}
	return nil
}

// ToJSON converts the event to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes and validates an event.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
