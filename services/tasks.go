package services

import (
	"context"
	"encoding/json"
	"fmt"

	"card-stock-tracker/domain"
)

// RegisterTasks binds every queueable task to its service method. Args
// are positional, matching what the dispatcher marshals.
func RegisterTasks(registry *TaskRegistry, availability *AvailabilityService, catalog *CatalogService) {
	registry.Register(domain.TaskUpdateSingleCard, func(ctx context.Context, args []json.RawMessage) error {
		var (
			username  string
			storeSlug string
			card      domain.CardData
		)
		if err := decodeArgs(args, &username, &storeSlug, &card); err != nil {
			return fmt.Errorf("bad args for %s: %w", domain.TaskUpdateSingleCard, err)
		}
		return availability.UpdateSingleCard(ctx, username, storeSlug, card)
	})

	registry.Register(domain.TaskUpdateWantedCards, func(ctx context.Context, args []json.RawMessage) error {
		// Single optional arg: the username scoping the sweep. Absent or
		// empty means a system-wide sweep.
		username := ""
		if len(args) > 0 {
			if err := decodeArgs(args[:1], &username); err != nil {
				return fmt.Errorf("bad args for %s: %w", domain.TaskUpdateWantedCards, err)
			}
		}
		return availability.Sweep(ctx, username)
	})

	registry.Register(domain.TaskUpdateCardCatalog, func(ctx context.Context, _ []json.RawMessage) error {
		return catalog.UpdateCardCatalog(ctx)
	})

	registry.Register(domain.TaskUpdateSetCatalog, func(ctx context.Context, _ []json.RawMessage) error {
		return catalog.UpdateSetCatalog(ctx)
	})

	registry.Register(domain.TaskUpdateFullCatalog, func(ctx context.Context, _ []json.RawMessage) error {
		return catalog.UpdateFullCatalog(ctx)
	})
}

// RegisterTaskIDs declares every task id without binding an executable
// body. Processes that only enqueue jobs (the scheduler role) use this
// so the dispatcher recognizes the ids; actually running one of these
// stubs is a wiring mistake.
func RegisterTaskIDs(registry *TaskRegistry) {
	ids := []string{
		domain.TaskUpdateSingleCard,
		domain.TaskUpdateWantedCards,
		domain.TaskUpdateCardCatalog,
		domain.TaskUpdateSetCatalog,
		domain.TaskUpdateFullCatalog,
	}
	for _, id := range ids {
		id := id
		registry.Register(id, func(ctx context.Context, _ []json.RawMessage) error {
			return fmt.Errorf("task %s is not runnable in this process", id)
		})
	}
}

// decodeArgs unmarshals positional args into the given targets. Fewer
// args than targets is an error; extra args are ignored.
func decodeArgs(args []json.RawMessage, targets ...interface{}) error {
	if len(args) < len(targets) {
		return fmt.Errorf("expected %d args, got %d", len(targets), len(args))
	}
	for i, target := range targets {
		if err := json.Unmarshal(args[i], target); err != nil {
			return fmt.Errorf("arg %d: %w", i, err)
		}
	}
	return nil
}
