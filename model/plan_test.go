package model

import (
	"errors"
	"testing"
)

func snap(name string, at int64) *Snapshot {
	return &Snapshot{Dataset: "tank/home", Name: name, CreatedAt: at}
}

func TestPlan_NoSourceSnapshot(t *testing.T) {
	_, err := Plan(NewSnapshots(), "")
	if !errors.Is(err, ErrNoSourceSnapshot) {
		t.Errorf("Expected ErrNoSourceSnapshot, got %v", err)
	}

	_, err = Plan(NewSnapshots(), "2024-01-01")
	if !errors.Is(err, ErrNoSourceSnapshot) {
		t.Errorf("Expected ErrNoSourceSnapshot with a checkpoint too, got %v", err)
	}
}

func TestPlan_FullWhenNeverSynced(t *testing.T) {
	source := NewSnapshots(
		snap("2024-01-01", 100),
		snap("2024-02-01", 200),
	)

	plan, err := Plan(source, "")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if plan.Kind != Full {
		t.Errorf("Expected a full plan, got %s", plan.Kind)
	}
	if plan.Target.Name != "2024-02-01" {
		t.Errorf("Expected the newest snapshot as target, got %s", plan.Target.Name)
	}
	if plan.Base != nil {
		t.Errorf("Full plan should have no base, got %s", plan.Base)
	}
}

func TestPlan_UpToDate(t *testing.T) {
	source := NewSnapshots(
		snap("2024-01-01", 100),
		snap("2024-02-01", 200),
	)

	plan, err := Plan(source, "2024-02-01")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if plan.Kind != UpToDate {
		t.Errorf("Expected up-to-date, got %s", plan)
	}

	// idempotent: same inputs, same verdict
	again, err := Plan(source, "2024-02-01")
	if err != nil || again.Kind != UpToDate {
		t.Errorf("Expected up-to-date on replan, got %s (%v)", again, err)
	}
}

func TestPlan_Incremental(t *testing.T) {
	source := NewSnapshots(
		snap("2024-01-01", 100),
		snap("2024-02-01", 200),
		snap("2024-03-01", 300),
	)

	plan, err := Plan(source, "2024-02-01")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if plan.Kind != Incremental {
		t.Fatalf("Expected incremental, got %s", plan)
	}
	if plan.Base.Name != "2024-02-01" || plan.Target.Name != "2024-03-01" {
		t.Errorf("Expected 2024-02-01 → 2024-03-01, got %s → %s", plan.Base, plan.Target)
	}
}

func TestPlan_Desync(t *testing.T) {
	// the checkpoint's snapshot was deleted on the source
	source := NewSnapshots(snap("2024-03-01", 300))

	_, err := Plan(source, "2024-02-01")
	var desync *DesyncError
	if !errors.As(err, &desync) {
		t.Fatalf("Expected DesyncError, got %v", err)
	}
	if desync.Checkpoint != "2024-02-01" {
		t.Errorf("Expected checkpoint 2024-02-01 in error, got %s", desync.Checkpoint)
	}
}

func TestPlan_ExactLabelMatchOnly(t *testing.T) {
	source := NewSnapshots(
		snap("2024-02-01-extra", 100),
		snap("2024-03-01", 300),
	)

	// prefix of an existing name must not match
	_, err := Plan(source, "2024-02-01")
	var desync *DesyncError
	if !errors.As(err, &desync) {
		t.Errorf("Expected DesyncError for prefix-only match, got %v", err)
	}
}

// The §8-style round trip: full sync, commit, new snapshot appears, next
// plan is the incremental from the committed checkpoint.
func TestPlan_RoundTrip(t *testing.T) {
	source := NewSnapshots(
		snap("2024-01-01", 100),
		snap("2024-02-01", 200),
	)

	plan, err := Plan(source, "")
	if err != nil || plan.Kind != Full || plan.Target.Name != "2024-02-01" {
		t.Fatalf("Expected Full(2024-02-01), got %s (%v)", plan, err)
	}

	// transfer succeeds, checkpoint commits as the target's name
	checkpoint := plan.Target.Name

	plan, err = Plan(source, checkpoint)
	if err != nil || plan.Kind != UpToDate {
		t.Fatalf("Expected up-to-date after commit, got %s (%v)", plan, err)
	}

	source.Add(snap("2024-03-01", 300))

	plan, err = Plan(source, checkpoint)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if plan.Kind != Incremental || plan.Base.Name != "2024-02-01" || plan.Target.Name != "2024-03-01" {
		t.Errorf("Expected Incremental(2024-02-01, 2024-03-01), got %s", plan)
	}
}

func TestForceFullPlan(t *testing.T) {
	source := NewSnapshots(snap("2024-03-01", 300))

	plan, err := ForceFullPlan(source)
	if err != nil || plan.Kind != Full || plan.Target.Name != "2024-03-01" {
		t.Errorf("Expected Full(2024-03-01), got %s (%v)", plan, err)
	}

	if _, err := ForceFullPlan(NewSnapshots()); !errors.Is(err, ErrNoSourceSnapshot) {
		t.Errorf("Expected ErrNoSourceSnapshot, got %v", err)
	}
}
