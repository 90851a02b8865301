package services

import (
	"context"
	"errors"
	"fmt"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/log"
)

// EntryStore is what EntryService needs from a ledger store.
type EntryStore interface {
	ledger.EntryWriter
	ledger.CategoryReader
}

// EntryService records incomes and expenses and publishes an event for each
// committed write.
type EntryService struct {
	store  EntryStore
	events EventPublisher
}

func NewEntryService(store EntryStore, events EventPublisher) *EntryService {
	return &EntryService{store: store, events: events}
}

func (s *EntryService) RecordIncome(ctx context.Context, e core.IncomeEntry) (core.IncomeEntry, error) {
	if err := e.Validate(); err != nil {
		return core.IncomeEntry{}, err
	}

	saved, err := s.store.AddIncome(ctx, e)
	if err != nil {
		return core.IncomeEntry{}, fmt.Errorf("save income: %w", err)
	}

	log.FromContext(ctx).InfoContext(ctx, "Income recorded",
		log.FieldOwnerID, saved.OwnerID,
		log.FieldEntryID, saved.ID,
		log.FieldAmountCents, saved.Amount.Cents)

	ev := amqp.NewLedgerEvent(amqp.EventIncomeRecorded, saved.OwnerID)
	ev.EntryID = saved.ID
	publish(ctx, s.events, ev)

	return saved, nil
}

// RecordExpense saves an expense. An empty kind defaults to one-time. The
// category must exist and belong to the same owner.
func (s *EntryService) RecordExpense(ctx context.Context, e core.ExpenseEntry) (core.ExpenseEntry, error) {
	if e.Kind == "" {
		e.Kind = core.OneTime
	}
	if err := e.Validate(); err != nil {
		return core.ExpenseEntry{}, err
	}
	if _, err := s.store.GetCategory(ctx, e.OwnerID, e.CategoryID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.ExpenseEntry{}, core.Invalid("categoryId", core.ErrUnknownCategory)
		}
		return core.ExpenseEntry{}, fmt.Errorf("resolve category: %w", err)
	}

	saved, err := s.store.AddExpense(ctx, e)
	if err != nil {
		return core.ExpenseEntry{}, fmt.Errorf("save expense: %w", err)
	}

	log.FromContext(ctx).InfoContext(ctx, "Expense recorded",
		log.FieldOwnerID, saved.OwnerID,
		log.FieldEntryID, saved.ID,
		log.FieldCategoryID, saved.CategoryID,
		log.FieldAmountCents, saved.Amount.Cents)

	ev := amqp.NewLedgerEvent(amqp.EventExpenseRecorded, saved.OwnerID)
	ev.EntryID = saved.ID
	ev.CategoryID = saved.CategoryID
	publish(ctx, s.events, ev)

	return saved, nil
}

// DeleteEntry removes an income or expense owned by ownerID.
func (s *EntryService) DeleteEntry(ctx context.Context, ownerID, entryID string) error {
	if err := s.store.DeleteEntry(ctx, ownerID, entryID); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}

	log.FromContext(ctx).InfoContext(ctx, "Entry deleted",
		log.FieldOwnerID, ownerID,
		log.FieldEntryID, entryID)

	ev := amqp.NewLedgerEvent(amqp.EventEntryDeleted, ownerID)
	ev.EntryID = entryID
	publish(ctx, s.events, ev)

	return nil
}
