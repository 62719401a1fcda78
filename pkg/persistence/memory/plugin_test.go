package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/osvaldoandrade/riskdesk/pkg/domain"
	"github.com/osvaldoandrade/riskdesk/pkg/persistence"
)

func TestMemoryPlugin(t *testing.T) {
	plugin, err := persistence.NewPersistence(
		persistence.ProviderConfig{Type: "memory"},
		persistence.PluginConfig{RecentLimit: 3},
	)
	if err != nil {
		t.Fatalf("Failed to create plugin: %v", err)
	}
	defer plugin.Close()

	ctx := context.Background()
	if err := plugin.Health(ctx); err != nil {
		t.Errorf("Health check failed: %v", err)
	}

	runs := plugin.RunStorage()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c", "d"} {
		rec := domain.RunRecord{
			Identifier: id,
			RiskType:   domain.RiskTrading,
			Outcome:    domain.OutcomeCompleted,
			Result:     map[string]any{"risk_score_raw": i},
			FinishedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := runs.Save(ctx, rec); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}

	// The bound of 3 evicts the oldest run.
	if _, err := runs.Get(ctx, "a"); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("expected a to be evicted, got %v", err)
	}

	recent, err := runs.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 3 || recent[0].Identifier != "d" || recent[2].Identifier != "b" {
		t.Fatalf("Recent = %+v", recent)
	}

	got, err := runs.Get(ctx, "c")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got.Result["risk_score_raw"] = 99
	again, _ := runs.Get(ctx, "c")
	if again.Result["risk_score_raw"] != 2 {
		t.Errorf("stored run was mutated through a returned copy: %v", again.Result)
	}

	n, err := runs.Prune(ctx, base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned %d, want 2", n)
	}
	recent, _ = runs.Recent(ctx, 0)
	if len(recent) != 1 || recent[0].Identifier != "d" {
		t.Errorf("after prune Recent = %+v", recent)
	}

	if err := runs.Save(ctx, domain.RunRecord{}); err == nil {
		t.Error("expected error for a run without identifier")
	}
}
