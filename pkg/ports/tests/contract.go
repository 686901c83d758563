// Package tests provides reusable contract suites that verify adapter
// implementations against the ports interfaces.
package tests

import (
	"context"
	"errors"
	"testing"

	"github.com/surreyclinic/intake/pkg/domain"
	"github.com/surreyclinic/intake/pkg/ports"
)

// SessionStoreContract verifies that a store complies with ports.SessionStore.
func SessionStoreContract(t *testing.T, store ports.SessionStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("Load_NotFound", func(t *testing.T) {
		_, err := store.Load(ctx, "missing")
		if !errors.Is(err, domain.ErrSessionNotFound) {
			t.Fatalf("expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("Save_Load", func(t *testing.T) {
		sess := domain.NewSession("contract-1", "entry")
		sess.Record.Set("chief_complaint", "cough")

		if err := store.Save(ctx, sess); err != nil {
			t.Fatalf("save: %v", err)
		}

		loaded, err := store.Load(ctx, "contract-1")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if loaded.CurrentNodeID != "entry" {
			t.Errorf("current node: got %q, want %q", loaded.CurrentNodeID, "entry")
		}
		if v, _ := loaded.Record.Get("chief_complaint"); v != "cough" {
			t.Errorf("record field: got %v, want %q", v, "cough")
		}
	})

	t.Run("Load_ReturnsCopy", func(t *testing.T) {
		sess := domain.NewSession("contract-2", "entry")
		if err := store.Save(ctx, sess); err != nil {
			t.Fatalf("save: %v", err)
		}

		first, err := store.Load(ctx, "contract-2")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		first.Record.Set("age", 40)
		first.MoveTo("wrap_up")

		second, err := store.Load(ctx, "contract-2")
		if err != nil {
			t.Fatalf("reload: %v", err)
		}
		if second.Record.Has("age") {
			t.Error("mutating a loaded session leaked into the store")
		}
		if second.CurrentNodeID != "entry" {
			t.Errorf("current node: got %q, want %q", second.CurrentNodeID, "entry")
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		sess := domain.NewSession("contract-3", "entry")
		if err := store.Save(ctx, sess); err != nil {
			t.Fatalf("save: %v", err)
		}
		sess.Status = domain.StatusEscalated
		sess.EndReason = "severe respiratory distress"
		if err := store.Save(ctx, sess); err != nil {
			t.Fatalf("resave: %v", err)
		}

		loaded, err := store.Load(ctx, "contract-3")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if loaded.Status != domain.StatusEscalated {
			t.Errorf("status: got %q, want %q", loaded.Status, domain.StatusEscalated)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		sess := domain.NewSession("contract-4", "entry")
		if err := store.Save(ctx, sess); err != nil {
			t.Fatalf("save: %v", err)
		}
		if err := store.Delete(ctx, "contract-4"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := store.Load(ctx, "contract-4"); !errors.Is(err, domain.ErrSessionNotFound) {
			t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
		}
		// Idempotent
		if err := store.Delete(ctx, "contract-4"); err != nil {
			t.Fatalf("second delete: %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		sess := domain.NewSession("contract-5", "entry")
		if err := store.Save(ctx, sess); err != nil {
			t.Fatalf("save: %v", err)
		}
		ids, err := store.List(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		found := false
		for _, id := range ids {
			if id == "contract-5" {
				found = true
			}
		}
		if !found {
			t.Error("contract-5 missing from list")
		}
	})
}
