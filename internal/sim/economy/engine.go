package economy

import (
	"math"
	"time"

	"nationsim.io/internal/sim/tuning"
)

// Engine advances country economies. Every step reads the state left by the
// previous step of the same tick.
type Engine struct {
	cfg tuning.Tuning
	rng Rand
}

// Tick advances c by one simulation step. It never fails: every value is
// clamped and non-finite results fall back to the previous tick's value.
func (e *Engine) Tick(c *Country, now time.Time) {
	prev := *c
	c.Ticks++

	c.GDPGrowth = e.growth(c)
	c.GDP *= 1 + c.GDPGrowth/100/12
	c.Inflation = e.inflation(c)
	c.Unemployment = e.unemployment(c)
	c.Popularity = e.popularity(c)
	e.amortize(c, now)
	e.treasuryFlow(c)
	e.inflationDrag(c)

	e.sanitize(c, &prev)
	updateSectors(c)

	n := e.cfg.HistoryLen
	c.GDPHistory = appendBounded(c.GDPHistory, c.GDP, n)
	c.InflationHistory = appendBounded(c.InflationHistory, c.Inflation, n)
	c.PopularityHistory = appendBounded(c.PopularityHistory, c.Popularity, n)
	c.UnemploymentHistory = appendBounded(c.UnemploymentHistory, c.Unemployment, n)

	c.CreditRating = Rate(c.Indicators())
}

func (e *Engine) growth(c *Country) float64 {
	g := e.cfg.Economy.Growth
	out := g.Base

	r := c.InterestRate
	if r > g.InterestEquilibrium {
		out -= 0.15 * math.Min(r-g.InterestEquilibrium, 4)
		if over := r - (g.InterestEquilibrium + 4); over > 0 {
			out -= 0.12 * math.Pow(over, 1.5)
		}
	} else {
		out += 0.1 * (g.InterestEquilibrium - r)
	}

	if t := c.TaxBurden; t > g.TaxEquilibrium {
		out -= 0.08 * (t - g.TaxEquilibrium)
	} else {
		out += 0.03 * (g.TaxEquilibrium - t)
	}

	if s := c.PublicServices; s >= g.ServicesFloor {
		out += 0.04 * (s - g.ServicesFloor)
	} else {
		gap := (g.ServicesFloor - s) / 10
		out -= 0.5 * gap * gap
	}

	if d := c.DebtToGDP(); d > g.DebtThreshold {
		out -= math.Min(3*(d-g.DebtThreshold), 4)
	}

	// Sector balances are those of the previous tick.
	if c.GDP > 0 {
		out += clamp(0.05*math.Abs(c.netTradeBalance())/c.GDP*100, 0, 1.5)
	}

	out += jitter(e.rng, g.Jitter)
	return clamp(out, g.Min, g.Max)
}

func (e *Engine) inflation(c *Country) float64 {
	cfg := e.cfg.Economy.Inflation
	eq := e.cfg.Economy.Growth
	prev := c.Inflation
	target := prev

	r := c.InterestRate
	switch {
	case r < eq.InterestEquilibrium:
		target += math.Max(prev, 0.01) * (eq.InterestEquilibrium - r) * 0.03 / (1 + math.Max(prev, 0)*4)
	case r > eq.InterestEquilibrium:
		target -= (r - eq.InterestEquilibrium) * 0.002
		if r > 15 {
			target -= 0.0004 * (r - 15) * (r - 15)
		}
	}

	target += (c.TaxBurden - eq.TaxEquilibrium) * 0.0002

	switch g := c.GDPGrowth; {
	case g > 2:
		target += 0.002 * math.Pow(g-2, 1.5)
	case g < 0:
		target += 0.001 * g
	}

	if d := c.DebtToGDP(); d > eq.DebtThreshold {
		target += 0.02 * (d - eq.DebtThreshold)
	}

	target += jitter(e.rng, cfg.Jitter)
	out := cfg.Inertia*prev + (1-cfg.Inertia)*target
	return math.Max(out, cfg.Floor)
}

func (e *Engine) unemployment(c *Country) float64 {
	cfg := e.cfg.Economy.Unemployment
	eq := e.cfg.Economy.Growth
	target := cfg.Natural

	target -= 0.4 * (c.GDPGrowth - eq.Base)

	switch infl := c.Inflation; {
	case infl < 0.01:
		target += 50 * (0.01 - infl)
	case infl > 0.10:
		target += 30 * (infl - 0.10)
	}

	target -= 0.05 * (c.PublicServices - eq.ServicesFloor)
	target += 0.05 * (c.TaxBurden - eq.TaxEquilibrium)

	if r := c.InterestRate; r > eq.InterestEquilibrium {
		target += 0.15 * (r - eq.InterestEquilibrium)
	} else {
		target -= 0.05 * (eq.InterestEquilibrium - r)
	}

	target += jitter(e.rng, cfg.Jitter)
	out := cfg.Inertia*c.Unemployment + (1-cfg.Inertia)*target
	return clamp(out, cfg.Min, cfg.Max)
}

func (e *Engine) popularity(c *Country) float64 {
	cfg := e.cfg.Economy.Popularity
	eq := e.cfg.Economy.Growth
	target := cfg.Base

	switch g := c.GDPGrowth; {
	case g < -1:
		target += 4 * (g + 1)
	case g > 1:
		target += 2.5 * (g - 1)
	}

	switch infl := c.Inflation; {
	case infl < 0:
		target -= 5 + 100*(-infl)
	case infl <= 0.02:
		target += 5
	case infl > 0.06:
		target -= 150 * (infl - 0.06)
	}

	if u := c.Unemployment; u > cfg.IdealUnemployment {
		target -= 1.2 * math.Pow(u-cfg.IdealUnemployment, 1.3)
	} else {
		target += cfg.IdealUnemployment - u
	}

	if t := c.TaxBurden; t > eq.TaxEquilibrium {
		target -= 0.5 * (t - eq.TaxEquilibrium)
	} else {
		target += 0.2 * (eq.TaxEquilibrium - t)
	}
	target += 0.3 * (c.PublicServices - eq.ServicesFloor)

	// Misery index: stagflation hurts more than its parts.
	if c.Unemployment > 15 && c.Inflation > 0.08 {
		target -= 10 + 0.5*(c.Unemployment-15) + 50*(c.Inflation-0.08)
	}

	target += jitter(e.rng, cfg.Jitter)
	out := cfg.Inertia*c.Popularity + (1-cfg.Inertia)*target
	return clamp(out, cfg.Min, cfg.Max)
}

func (e *Engine) treasuryFlow(c *Country) {
	cfg := e.cfg.Economy.Treasury
	periods := 12 * float64(e.cfg.TicksPerMonth)
	revenue := c.GDP * c.TaxBurden / 100 * cfg.RevenueFactor / periods
	expense := c.GDP * c.PublicServices / 100 * cfg.ExpenseFactor / periods
	c.Treasury = roundMoney(math.Max(c.Treasury+revenue-expense, -cfg.DeficitFloor*c.GDP))
}

func (e *Engine) inflationDrag(c *Country) {
	cfg := e.cfg.Economy.Inflation
	if c.Inflation <= cfg.DragThreshold {
		return
	}
	c.GDP *= math.Max(1-(c.Inflation-cfg.DragThreshold)*cfg.DragFactor, 0.5)
}

const minGDP = 1e-3

func (e *Engine) sanitize(c, prev *Country) {
	cfg := e.cfg.Economy
	c.GDPGrowth = clamp(finite(finite(c.GDPGrowth, prev.GDPGrowth), cfg.Growth.Base), cfg.Growth.Min, cfg.Growth.Max)
	c.GDP = math.Max(finite(finite(c.GDP, prev.GDP), minGDP), minGDP)
	c.Inflation = math.Max(finite(finite(c.Inflation, prev.Inflation), 0), cfg.Inflation.Floor)
	c.Unemployment = clamp(finite(finite(c.Unemployment, prev.Unemployment), cfg.Unemployment.Natural), cfg.Unemployment.Min, cfg.Unemployment.Max)
	c.Popularity = clamp(finite(finite(c.Popularity, prev.Popularity), cfg.Popularity.Base), cfg.Popularity.Min, cfg.Popularity.Max)
	c.Treasury = finite(finite(c.Treasury, prev.Treasury), 0)
	for i := range c.DebtContracts {
		ct := &c.DebtContracts[i]
		ct.RemainingValue = math.Max(finite(ct.RemainingValue, 0), 0)
	}
	c.PublicDebt = totalRemaining(c.DebtContracts)
}
