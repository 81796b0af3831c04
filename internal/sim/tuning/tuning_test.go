package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_RepoTuningMatchesDefaults(t *testing.T) {
	got, err := Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load tuning.yaml: %v", err)
	}
	if got != Defaults() {
		t.Fatalf("configs/tuning.yaml drifted from Defaults():\n got=%+v\nwant=%+v", got, Defaults())
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("ticks_per_month: 6\neconomy:\n  debt:\n    emergency_penalty: 1.2\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.TicksPerMonth != 6 || got.Economy.Debt.EmergencyPenalty != 1.2 {
		t.Fatalf("overrides not applied: %+v", got)
	}
	if got.Economy.Debt.Installments != 120 || got.Economy.Growth.Base != 2.5 {
		t.Fatalf("defaults lost: %+v", got.Economy)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []func(*Tuning){
		func(t *Tuning) { t.TickPeriodMs = 0 },
		func(t *Tuning) { t.TicksPerMonth = 0 },
		func(t *Tuning) { t.Economy.Debt.Installments = 0 },
		func(t *Tuning) { t.Economy.Debt.EmergencyPenalty = 0.9 },
		func(t *Tuning) { t.Economy.Popularity.Inertia = 1.5 },
	}
	for i, mutate := range cases {
		tu := Defaults()
		mutate(&tu)
		if err := tu.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}
