package economy

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvariant = errors.New("invariant violated")

// CheckInvariants reports the first state invariant c breaks after a tick.
func (e *Engine) CheckInvariants(c *Country) error {
	cfg := e.cfg.Economy
	for name, v := range map[string]float64{
		"gdp":          c.GDP,
		"gdp_growth":   c.GDPGrowth,
		"treasury":     c.Treasury,
		"public_debt":  c.PublicDebt,
		"inflation":    c.Inflation,
		"unemployment": c.Unemployment,
		"popularity":   c.Popularity,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s: %s is not finite", ErrInvariant, c.Name, name)
		}
	}
	switch {
	case !(c.GDP > 0):
		return fmt.Errorf("%w: %s: gdp=%v", ErrInvariant, c.Name, c.GDP)
	case c.Inflation < cfg.Inflation.Floor:
		return fmt.Errorf("%w: %s: inflation=%v below floor", ErrInvariant, c.Name, c.Inflation)
	case c.Unemployment < cfg.Unemployment.Min || c.Unemployment > cfg.Unemployment.Max:
		return fmt.Errorf("%w: %s: unemployment=%v", ErrInvariant, c.Name, c.Unemployment)
	case c.Popularity < cfg.Popularity.Min || c.Popularity > cfg.Popularity.Max:
		return fmt.Errorf("%w: %s: popularity=%v", ErrInvariant, c.Name, c.Popularity)
	case !c.CreditRating.Valid():
		return fmt.Errorf("%w: %s: rating=%q", ErrInvariant, c.Name, c.CreditRating)
	}
	if sum := totalRemaining(c.DebtContracts); math.Abs(c.PublicDebt-sum) > moneyEpsilon {
		return fmt.Errorf("%w: %s: public_debt=%v sum(remaining)=%v", ErrInvariant, c.Name, c.PublicDebt, sum)
	}
	for _, ct := range c.DebtContracts {
		if ct.RemainingValue < 0 || ct.RemainingInstallments < 0 {
			return fmt.Errorf("%w: %s: contract %s remaining=%v installments=%d", ErrInvariant, c.Name, ct.ID, ct.RemainingValue, ct.RemainingInstallments)
		}
	}
	if n := e.cfg.HistoryLen; len(c.GDPHistory) > n || len(c.InflationHistory) > n ||
		len(c.PopularityHistory) > n || len(c.UnemploymentHistory) > n {
		return fmt.Errorf("%w: %s: history longer than %d", ErrInvariant, c.Name, n)
	}
	return nil
}
