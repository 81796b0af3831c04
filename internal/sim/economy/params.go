package economy

import "fmt"

type Parameter string

const (
	ParamInterestRate   Parameter = "interestRate"
	ParamTaxBurden      Parameter = "taxBurden"
	ParamPublicServices Parameter = "publicServices"
)

func parameterRange(name Parameter) (lo, hi float64, ok bool) {
	switch name {
	case ParamInterestRate:
		return 0, 25, true
	case ParamTaxBurden:
		return 0, 60, true
	case ParamPublicServices:
		return 0, 60, true
	}
	return 0, 0, false
}

func checkParameter(name Parameter, value float64) error {
	lo, hi, ok := parameterRange(name)
	if !ok {
		return fmt.Errorf("%w: unknown parameter %q", ErrInvalidParameter, name)
	}
	// Written so NaN fails too.
	if !(value >= lo && value <= hi) {
		return fmt.Errorf("%w: %s=%v outside [%v,%v]", ErrInvalidParameter, name, value, lo, hi)
	}
	return nil
}

// SetParameter applies a policy lever. The next tick sees the new value.
func SetParameter(c *Country, name Parameter, value float64) error {
	if err := checkParameter(name, value); err != nil {
		return err
	}
	switch name {
	case ParamInterestRate:
		c.InterestRate = value
	case ParamTaxBurden:
		c.TaxBurden = value
	case ParamPublicServices:
		c.PublicServices = value
	}
	return nil
}
