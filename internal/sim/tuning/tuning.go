package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickPeriodMs   int   `yaml:"tick_period_ms"`
	TicksPerMonth  int   `yaml:"ticks_per_month"`
	HistoryLen     int   `yaml:"history_len"`
	PersistEveryMs int   `yaml:"persist_every_ms"`
	Seed           int64 `yaml:"seed"`

	Economy Economy `yaml:"economy"`
}

type Economy struct {
	Growth       Growth       `yaml:"growth"`
	Inflation    Inflation    `yaml:"inflation"`
	Unemployment Unemployment `yaml:"unemployment"`
	Popularity   Popularity   `yaml:"popularity"`
	Debt         Debt         `yaml:"debt"`
	Treasury     Treasury     `yaml:"treasury"`
}

type Growth struct {
	Base                float64 `yaml:"base"`
	InterestEquilibrium float64 `yaml:"interest_equilibrium"`
	TaxEquilibrium      float64 `yaml:"tax_equilibrium"`
	ServicesFloor       float64 `yaml:"services_floor"`
	DebtThreshold       float64 `yaml:"debt_threshold"`
	Jitter              float64 `yaml:"jitter"`
	Min                 float64 `yaml:"min"`
	Max                 float64 `yaml:"max"`
}

type Inflation struct {
	Inertia float64 `yaml:"inertia"`
	Floor   float64 `yaml:"floor"`
	Jitter  float64 `yaml:"jitter"`
	// Above this rate the GDP drag of high inflation applies.
	DragThreshold float64 `yaml:"drag_threshold"`
	DragFactor    float64 `yaml:"drag_factor"`
}

type Unemployment struct {
	Natural float64 `yaml:"natural"`
	Inertia float64 `yaml:"inertia"`
	Jitter  float64 `yaml:"jitter"`
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
}

type Popularity struct {
	Base              float64 `yaml:"base"`
	IdealUnemployment float64 `yaml:"ideal_unemployment"`
	Inertia           float64 `yaml:"inertia"`
	Jitter            float64 `yaml:"jitter"`
	Min               float64 `yaml:"min"`
	Max               float64 `yaml:"max"`
}

type Debt struct {
	Installments     int     `yaml:"installments"`
	MaxBondAmount    float64 `yaml:"max_bond_amount"`
	EmergencyPenalty float64 `yaml:"emergency_penalty"`
}

type Treasury struct {
	RevenueFactor float64 `yaml:"revenue_factor"`
	ExpenseFactor float64 `yaml:"expense_factor"`
	// Treasury deficit floor as a fraction of GDP (0.10 => -10% of GDP).
	DeficitFloor float64 `yaml:"deficit_floor"`
}

func Defaults() Tuning {
	return Tuning{
		TickPeriodMs:   2000,
		TicksPerMonth:  3,
		HistoryLen:     120,
		PersistEveryMs: 10000,
		Seed:           1337,
		Economy: Economy{
			Growth: Growth{
				Base:                2.5,
				InterestEquilibrium: 8,
				TaxEquilibrium:      40,
				ServicesFloor:       30,
				DebtThreshold:       0.6,
				Jitter:              0.3,
				Min:                 -8,
				Max:                 12,
			},
			Inflation: Inflation{
				Inertia:       0.7,
				Floor:         -0.05,
				Jitter:        0.002,
				DragThreshold: 0.10,
				DragFactor:    0.01,
			},
			Unemployment: Unemployment{
				Natural: 7,
				Inertia: 0.8,
				Jitter:  0.2,
				Min:     3,
				Max:     35,
			},
			Popularity: Popularity{
				Base:              50,
				IdealUnemployment: 8,
				Inertia:           0.7,
				Jitter:            1,
				Min:               10,
				Max:               90,
			},
			Debt: Debt{
				Installments:     120,
				MaxBondAmount:    1000,
				EmergencyPenalty: 1.15,
			},
			Treasury: Treasury{
				RevenueFactor: 1,
				ExpenseFactor: 1,
				DeficitFloor:  0.10,
			},
		},
	}
}

// Load reads a tuning file on top of Defaults, so a partial file only
// overrides what it names.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickPeriodMs <= 0 {
		return fmt.Errorf("tick_period_ms must be > 0")
	}
	if t.TicksPerMonth <= 0 {
		return fmt.Errorf("ticks_per_month must be > 0")
	}
	if t.HistoryLen < 0 {
		return fmt.Errorf("history_len must be >= 0")
	}
	if t.Economy.Debt.Installments <= 0 {
		return fmt.Errorf("economy.debt.installments must be > 0")
	}
	if t.Economy.Debt.EmergencyPenalty < 1 {
		return fmt.Errorf("economy.debt.emergency_penalty must be >= 1")
	}
	for name, w := range map[string]float64{
		"inflation.inertia":    t.Economy.Inflation.Inertia,
		"unemployment.inertia": t.Economy.Unemployment.Inertia,
		"popularity.inertia":   t.Economy.Popularity.Inertia,
	} {
		if w < 0 || w > 1 {
			return fmt.Errorf("economy.%s must be within [0,1]", name)
		}
	}
	return nil
}
