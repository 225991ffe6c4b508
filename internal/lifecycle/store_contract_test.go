package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cshealth/internal/domain"
)

// exerciseStore runs backend-independent lifecycle contract checks.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.Get(ctx, "churn_risk-acc-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}

	result, err := store.Upsert(ctx, "churn_risk-acc-1", domain.AlertUpdate{
		Status:         statusPtr(domain.StatusAcknowledged),
		AcknowledgedBy: strPtr("sam"),
	})
	if err != nil {
		t.Fatalf("upsert unknown id: %v", err)
	}
	if len(result.Changed) != 3 || result.Stored.AcknowledgedAt == nil {
		t.Fatalf("unexpected first upsert result %+v", result)
	}

	result, err = store.Upsert(ctx, "churn_risk-acc-1", domain.AlertUpdate{
		Note: &domain.NoteInput{Content: "left voicemail", CreatedBy: "sam"},
	})
	if err != nil {
		t.Fatalf("upsert note: %v", err)
	}
	if result.Note == nil || result.Note.ID == "" || result.Note.AlertID != "churn_risk-acc-1" {
		t.Fatalf("expected created note, got %+v", result.Note)
	}

	stored, err := store.Get(ctx, "churn_risk-acc-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.StatusAcknowledged || stored.AcknowledgedBy != "sam" || len(stored.Notes) != 1 {
		t.Fatalf("unexpected stored state %+v", stored)
	}

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Upsert(ctx, "health_drop-acc 2", domain.AlertUpdate{
				Note: &domain.NoteInput{Content: fmt.Sprintf("note %d", i), CreatedBy: "bot"},
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent upsert: %v", err)
		}
	}
	stored, err = store.Get(ctx, "health_drop-acc 2")
	if err != nil {
		t.Fatalf("get concurrent: %v", err)
	}
	if len(stored.Notes) != writers {
		t.Fatalf("expected %d notes after concurrent upserts, got %d", writers, len(stored.Notes))
	}

	seen := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if _, err := store.Upsert(ctx, "churn_risk-acc-1", domain.AlertUpdate{FirstSeenAt: &seen}); err != nil {
		t.Fatalf("upsert first seen: %v", err)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].AlertID != "churn_risk-acc-1" || all[1].AlertID != "health_drop-acc 2" {
		t.Fatalf("unexpected list %+v", all)
	}
	if all[0].FirstSeenAt == nil || !all[0].FirstSeenAt.Equal(seen) {
		t.Fatalf("first seen not persisted: %+v", all[0])
	}
}
