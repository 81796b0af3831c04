package economy

type Rating string

const (
	RatingAAA Rating = "AAA"
	RatingAA  Rating = "AA"
	RatingA   Rating = "A"
	RatingBBB Rating = "BBB"
	RatingBB  Rating = "BB"
	RatingB   Rating = "B"
	RatingCCC Rating = "CCC"
	RatingCC  Rating = "CC"
	RatingC   Rating = "C"
	RatingD   Rating = "D"
)

// ratingScale is ordered best to worst; shifts move along it.
var ratingScale = []Rating{RatingAAA, RatingAA, RatingA, RatingBBB, RatingBB, RatingB, RatingCCC, RatingCC, RatingC, RatingD}

func (r Rating) Valid() bool { return r.index() >= 0 }

func (r Rating) index() int {
	for i, v := range ratingScale {
		if v == r {
			return i
		}
	}
	return -1
}

// Rate maps an economy to its credit rating. Pure.
func Rate(in Indicators) Rating {
	if in.Inflation > 0.20 && in.Growth < -3 {
		return RatingD
	}
	if in.Inflation > 0.12 && in.DebtToGDP > 1.0 && in.Growth < -2 {
		return RatingD
	}

	idx := inflationTier(in.Inflation)
	// Healthy economies are lifted to their override tier before any shift.
	if in.DebtToGDP < 0.4 && in.Inflation < 0.04 && in.Unemployment < 10 {
		override := RatingA.index()
		switch {
		case in.Inflation < 0.01 && in.Unemployment < 5:
			override = RatingAAA.index()
		case in.Inflation < 0.02 && in.Unemployment < 7:
			override = RatingAA.index()
		}
		if override < idx {
			idx = override
		}
	}

	switch {
	case in.DebtToGDP > 1.2:
		idx += 3
	case in.DebtToGDP > 0.9:
		idx += 2
	case in.DebtToGDP > 0.6:
		idx++
	}
	switch {
	case in.Growth < -3:
		idx += 2
	case in.Growth < -1:
		idx++
	case in.Growth > 4:
		idx--
	}

	if idx < 0 {
		idx = 0
	}
	// D is reserved for the hard overrides above.
	if last := RatingC.index(); idx > last {
		idx = last
	}
	return ratingScale[idx]
}

func inflationTier(inflation float64) int {
	switch {
	case inflation <= 0.02:
		return RatingAAA.index()
	case inflation <= 0.04:
		return RatingAA.index()
	case inflation <= 0.06:
		return RatingA.index()
	case inflation <= 0.09:
		return RatingBBB.index()
	case inflation <= 0.12:
		return RatingBB.index()
	case inflation <= 0.18:
		return RatingB.index()
	default:
		return RatingCCC.index()
	}
}

// bondRateBand is the annual interest range (percent) new bonds pay at a
// given rating.
func bondRateBand(r Rating) (lo, hi float64) {
	switch r {
	case RatingAAA:
		return 2, 3
	case RatingAA:
		return 3, 4
	case RatingA:
		return 4, 5
	case RatingBBB:
		return 5, 6.5
	case RatingBB:
		return 6.5, 8
	case RatingB:
		return 8, 10
	case RatingCCC:
		return 10, 13
	case RatingCC:
		return 13, 16
	case RatingC:
		return 16, 20
	default:
		return 20, 25
	}
}
