package economy

import (
	"errors"
	"fmt"
	"math"
	"time"

	"nationsim.io/internal/sim/tuning"
)

var (
	ErrInvalidSeed      = errors.New("invalid seed")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInvalidAmount    = errors.New("invalid bond amount")
)

// Seed is the static starting point of one country. Zero values for
// unemployment, popularity and the need shares fall back to tuning defaults.
type Seed struct {
	Name           string  `json:"name"`
	GDP            float64 `json:"gdp"`
	GDPGrowth      float64 `json:"gdp_growth,omitempty"`
	Treasury       float64 `json:"treasury,omitempty"`
	PublicDebt     float64 `json:"public_debt,omitempty"`
	Inflation      float64 `json:"inflation,omitempty"`
	Unemployment   float64 `json:"unemployment,omitempty"`
	Popularity     float64 `json:"popularity,omitempty"`
	InterestRate   float64 `json:"interest_rate"`
	TaxBurden      float64 `json:"tax_burden"`
	PublicServices float64 `json:"public_services"`
	CreditRating   Rating  `json:"credit_rating,omitempty"`

	Services     float64 `json:"services,omitempty"`
	Commodities  float64 `json:"commodities,omitempty"`
	Manufactures float64 `json:"manufactures,omitempty"`

	ServicesNeedShare     float64 `json:"services_need_share,omitempty"`
	CommoditiesNeedShare  float64 `json:"commodities_need_share,omitempty"`
	ManufacturesNeedShare float64 `json:"manufactures_need_share,omitempty"`
}

// Country is the mutable economy of one country inside one room. It is
// owned by the room and must only be touched under the room lock.
type Country struct {
	Name string `json:"name"`

	GDP            float64 `json:"gdp"`
	GDPGrowth      float64 `json:"gdp_growth"`
	Treasury       float64 `json:"treasury"`
	PublicDebt     float64 `json:"public_debt"`
	Inflation      float64 `json:"inflation"`
	Unemployment   float64 `json:"unemployment"`
	Popularity     float64 `json:"popularity"`
	InterestRate   float64 `json:"interest_rate"`
	TaxBurden      float64 `json:"tax_burden"`
	PublicServices float64 `json:"public_services"`
	CreditRating   Rating  `json:"credit_rating"`

	Services     float64 `json:"services"`
	Commodities  float64 `json:"commodities"`
	Manufactures float64 `json:"manufactures"`

	ServicesNeedShare     float64 `json:"services_need_share"`
	CommoditiesNeedShare  float64 `json:"commodities_need_share"`
	ManufacturesNeedShare float64 `json:"manufactures_need_share"`

	ServicesOutput      float64 `json:"services_output"`
	CommoditiesOutput   float64 `json:"commodities_output"`
	ManufacturesOutput  float64 `json:"manufactures_output"`
	ServicesNeeds       float64 `json:"services_needs"`
	CommoditiesNeeds    float64 `json:"commodities_needs"`
	ManufacturesNeeds   float64 `json:"manufactures_needs"`
	ServicesBalance     float64 `json:"services_balance"`
	CommoditiesBalance  float64 `json:"commodities_balance"`
	ManufacturesBalance float64 `json:"manufactures_balance"`

	GDPHistory          []float64 `json:"gdp_history"`
	InflationHistory    []float64 `json:"inflation_history"`
	PopularityHistory   []float64 `json:"popularity_history"`
	UnemploymentHistory []float64 `json:"unemployment_history"`

	DebtContracts  []DebtContract `json:"debt_contracts"`
	NextContractID uint64         `json:"next_contract_id"`
	Ticks          uint64         `json:"ticks"`
}

// DebtContract is one bond issuance with its own amortization schedule.
type DebtContract struct {
	ID                    string    `json:"id"`
	OriginalValue         float64   `json:"original_value"`
	RemainingValue        float64   `json:"remaining_value"`
	InterestRate          float64   `json:"interest_rate"`
	MonthlyPayment        float64   `json:"monthly_payment"`
	RemainingInstallments int       `json:"remaining_installments"`
	IssueTick             uint64    `json:"issue_tick"`
	IssueDate             time.Time `json:"issue_date"`
	Emergency             bool      `json:"emergency,omitempty"`
	// Ticks already paid inside the current installment month.
	MonthProgress int `json:"month_progress,omitempty"`
}

// Indicators is the view of a country the rating evaluator needs.
type Indicators struct {
	DebtToGDP    float64 `json:"debt_to_gdp"`
	Inflation    float64 `json:"inflation"`
	Unemployment float64 `json:"unemployment"`
	Growth       float64 `json:"growth"`
}

func (c *Country) Indicators() Indicators {
	return Indicators{
		DebtToGDP:    c.DebtToGDP(),
		Inflation:    c.Inflation,
		Unemployment: c.Unemployment,
		Growth:       c.GDPGrowth,
	}
}

func (c *Country) DebtToGDP() float64 {
	if c.GDP <= 0 {
		return 0
	}
	return c.PublicDebt / c.GDP
}

// NewCountry builds a country from its seed. Initial public debt becomes a
// single consolidated contract so the debt ledger covers it from tick 0.
func (e *Engine) NewCountry(seed Seed, now time.Time) (*Country, error) {
	if seed.Name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidSeed)
	}
	if !(seed.GDP > 0) || math.IsInf(seed.GDP, 0) {
		return nil, fmt.Errorf("%w: %s: gdp must be > 0", ErrInvalidSeed, seed.Name)
	}
	if seed.PublicDebt < 0 {
		return nil, fmt.Errorf("%w: %s: public_debt must be >= 0", ErrInvalidSeed, seed.Name)
	}
	for _, p := range []struct {
		name  Parameter
		value float64
	}{
		{ParamInterestRate, seed.InterestRate},
		{ParamTaxBurden, seed.TaxBurden},
		{ParamPublicServices, seed.PublicServices},
	} {
		if err := checkParameter(p.name, p.value); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSeed, seed.Name, err)
		}
	}
	if seed.CreditRating != "" && !seed.CreditRating.Valid() {
		return nil, fmt.Errorf("%w: %s: unknown credit rating %q", ErrInvalidSeed, seed.Name, seed.CreditRating)
	}

	cfg := e.cfg.Economy
	c := &Country{
		Name:           seed.Name,
		GDP:            seed.GDP,
		GDPGrowth:      seed.GDPGrowth,
		Treasury:       seed.Treasury,
		Inflation:      math.Max(seed.Inflation, cfg.Inflation.Floor),
		Unemployment:   seed.Unemployment,
		Popularity:     seed.Popularity,
		InterestRate:   seed.InterestRate,
		TaxBurden:      seed.TaxBurden,
		PublicServices: seed.PublicServices,
		CreditRating:   seed.CreditRating,

		Services:     seed.Services,
		Commodities:  seed.Commodities,
		Manufactures: seed.Manufactures,

		ServicesNeedShare:     seed.ServicesNeedShare,
		CommoditiesNeedShare:  seed.CommoditiesNeedShare,
		ManufacturesNeedShare: seed.ManufacturesNeedShare,

		DebtContracts: []DebtContract{},
	}
	if c.Unemployment == 0 {
		c.Unemployment = cfg.Unemployment.Natural
	}
	if c.Popularity == 0 {
		c.Popularity = cfg.Popularity.Base
	}
	c.Unemployment = clamp(c.Unemployment, cfg.Unemployment.Min, cfg.Unemployment.Max)
	c.Popularity = clamp(c.Popularity, cfg.Popularity.Min, cfg.Popularity.Max)
	if c.ServicesNeedShare == 0 && c.CommoditiesNeedShare == 0 && c.ManufacturesNeedShare == 0 {
		c.ServicesNeedShare = c.Services
		c.CommoditiesNeedShare = c.Commodities
		c.ManufacturesNeedShare = c.Manufactures
	}
	updateSectors(c)

	if c.CreditRating == "" {
		c.PublicDebt = seed.PublicDebt
		c.CreditRating = Rate(c.Indicators())
	}
	if seed.PublicDebt > 0 {
		lo, hi := bondRateBand(c.CreditRating)
		ct := e.newContract(c, "SEED", seed.PublicDebt, (lo+hi)/2, now)
		c.DebtContracts = append(c.DebtContracts, ct)
	}
	c.PublicDebt = totalRemaining(c.DebtContracts)
	return c, nil
}

// Clone returns a deep copy suitable for handing outside the room lock.
func (c *Country) Clone() *Country {
	if c == nil {
		return nil
	}
	out := *c
	out.GDPHistory = append([]float64(nil), c.GDPHistory...)
	out.InflationHistory = append([]float64(nil), c.InflationHistory...)
	out.PopularityHistory = append([]float64(nil), c.PopularityHistory...)
	out.UnemploymentHistory = append([]float64(nil), c.UnemploymentHistory...)
	out.DebtContracts = append([]DebtContract{}, c.DebtContracts...)
	return &out
}

func updateSectors(c *Country) {
	c.ServicesOutput = c.GDP * c.Services / 100
	c.CommoditiesOutput = c.GDP * c.Commodities / 100
	c.ManufacturesOutput = c.GDP * c.Manufactures / 100
	c.ServicesNeeds = c.GDP * c.ServicesNeedShare / 100
	c.CommoditiesNeeds = c.GDP * c.CommoditiesNeedShare / 100
	c.ManufacturesNeeds = c.GDP * c.ManufacturesNeedShare / 100
	c.ServicesBalance = c.ServicesOutput - c.ServicesNeeds
	c.CommoditiesBalance = c.CommoditiesOutput - c.CommoditiesNeeds
	c.ManufacturesBalance = c.ManufacturesOutput - c.ManufacturesNeeds
}

func (c *Country) netTradeBalance() float64 {
	return c.ServicesBalance + c.CommoditiesBalance + c.ManufacturesBalance
}

func appendBounded(h []float64, v float64, max int) []float64 {
	if max <= 0 {
		return h[:0]
	}
	h = append(h, v)
	if len(h) > max {
		h = append(h[:0], h[len(h)-max:]...)
	}
	return h
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// finite returns v, or fallback when v is NaN or infinite.
func finite(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

// NewEngine returns the tick engine for one room. The engine is not safe for
// concurrent use; the room lock serializes it together with the countries.
func NewEngine(cfg tuning.Tuning, rng Rand) *Engine {
	if rng == nil {
		rng = NoJitter{}
	}
	return &Engine{cfg: cfg, rng: rng}
}

func (e *Engine) Tuning() tuning.Tuning { return e.cfg }
