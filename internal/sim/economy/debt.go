package economy

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Balances below this are treated as fully repaid.
const moneyEpsilon = 1e-6

type DebtSummary struct {
	TotalMonthlyPayment float64 `json:"total_monthly_payment"`
	TotalFuturePayments float64 `json:"total_future_payments"`
	DebtToGDPRatio      float64 `json:"debt_to_gdp_ratio"`
	NumberOfContracts   int     `json:"number_of_contracts"`
}

// IssueBond raises amount on the market. Treasury and public debt grow by
// amount immediately; the contract is repaid over the configured number of
// monthly installments at a rate drawn from the current rating's band.
func (e *Engine) IssueBond(c *Country, amount float64, now time.Time) (DebtContract, error) {
	limit := e.cfg.Economy.Debt.MaxBondAmount
	if !(amount > 0) || amount > limit {
		return DebtContract{}, fmt.Errorf("%w: %v not within (0,%v]", ErrInvalidAmount, amount, limit)
	}
	lo, hi := bondRateBand(c.CreditRating)
	rate := lo + e.rng.Float64()*(hi-lo)
	ct := e.newContract(c, "", amount, rate, now)
	c.DebtContracts = append(c.DebtContracts, ct)
	c.Treasury = roundMoney(c.Treasury + amount)
	c.PublicDebt = roundMoney(c.PublicDebt + amount)
	return ct, nil
}

func Summarize(c *Country) DebtSummary {
	s := DebtSummary{
		DebtToGDPRatio:    c.DebtToGDP(),
		NumberOfContracts: len(c.DebtContracts),
	}
	for _, ct := range c.DebtContracts {
		if ct.RemainingInstallments <= 0 {
			continue
		}
		s.TotalMonthlyPayment += ct.MonthlyPayment
		s.TotalFuturePayments += ct.MonthlyPayment * float64(ct.RemainingInstallments)
	}
	s.TotalMonthlyPayment = roundMoney(s.TotalMonthlyPayment)
	s.TotalFuturePayments = roundMoney(s.TotalFuturePayments)
	return s
}

func (e *Engine) newContract(c *Country, id string, amount, rate float64, now time.Time) DebtContract {
	if id == "" {
		c.NextContractID++
		id = fmt.Sprintf("B%06d", c.NextContractID)
	}
	n := e.cfg.Economy.Debt.Installments
	amount = roundMoney(amount)
	return DebtContract{
		ID:                    id,
		OriginalValue:         amount,
		RemainingValue:        amount,
		InterestRate:          rate,
		MonthlyPayment:        roundMoney(annuity(amount, rate, n)),
		RemainingInstallments: n,
		IssueTick:             c.Ticks,
		IssueDate:             now.UTC(),
	}
}

// annuity is the fixed monthly payment that repays principal at annualRate
// (percent) over n months.
func annuity(principal, annualRate float64, n int) float64 {
	if n <= 0 {
		return principal
	}
	i := annualRate / 100 / 12
	if i == 0 {
		return principal / float64(n)
	}
	return principal * i / (1 - math.Pow(1+i, -float64(n)))
}

// amortize pays one tick's share of every contract and covers a negative
// treasury with an emergency bond. A country without contracts skips the
// whole step, including the emergency bond.
func (e *Engine) amortize(c *Country, now time.Time) {
	tpm := e.cfg.TicksPerMonth
	frac := 1 / float64(tpm)

	// Contracts settled on the previous tick are dropped here, so a finished
	// contract stays observable with zero installments for one tick.
	live := c.DebtContracts[:0]
	for _, ct := range c.DebtContracts {
		if ct.RemainingInstallments > 0 {
			live = append(live, ct)
		}
	}
	c.DebtContracts = live
	if len(c.DebtContracts) == 0 {
		c.PublicDebt = 0
		return
	}

	var paid float64
	for i := range c.DebtContracts {
		ct := &c.DebtContracts[i]
		interest := ct.RemainingValue * ct.InterestRate / 100 / 12 * frac
		principal := ct.MonthlyPayment*frac - interest

		ct.MonthProgress++
		if ct.MonthProgress >= tpm {
			ct.MonthProgress = 0
			ct.RemainingInstallments--
		}
		if ct.RemainingInstallments <= 0 {
			ct.RemainingInstallments = 0
			principal = ct.RemainingValue
		}
		principal = clamp(principal, 0, ct.RemainingValue)
		ct.RemainingValue = roundMoney(ct.RemainingValue - principal)
		if ct.RemainingValue < moneyEpsilon {
			ct.RemainingValue = 0
		}
		paid += interest + principal
	}
	c.Treasury = roundMoney(c.Treasury - paid)

	if c.Treasury < 0 {
		shortfall := -c.Treasury
		c.Treasury = 0
		e.issueEmergency(c, shortfall, now)
	}
	c.PublicDebt = totalRemaining(c.DebtContracts)
}

// issueEmergency books a penalty bond of shortfall × penalty at the top of
// the rating band. Its full face value is paid into the treasury.
func (e *Engine) issueEmergency(c *Country, shortfall float64, now time.Time) {
	if shortfall < moneyEpsilon {
		return
	}
	_, hi := bondRateBand(c.CreditRating)
	face := shortfall * e.cfg.Economy.Debt.EmergencyPenalty
	c.NextContractID++
	ct := e.newContract(c, fmt.Sprintf("E%06d", c.NextContractID), face, hi, now)
	ct.Emergency = true
	c.DebtContracts = append(c.DebtContracts, ct)
	c.Treasury = roundMoney(c.Treasury + ct.OriginalValue)
}

func totalRemaining(contracts []DebtContract) float64 {
	var sum float64
	for _, ct := range contracts {
		sum += ct.RemainingValue
	}
	return roundMoney(sum)
}

// roundMoney rounds a currency amount to 1e-8 so repeated subtraction does
// not accumulate binary drift.
func roundMoney(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(8).InexactFloat64()
}
