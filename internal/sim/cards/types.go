package cards

import (
	"errors"
	"time"
)

var (
	ErrUnknownType = errors.New("unknown card type")
	ErrInvalidCard = errors.New("invalid card")
	ErrNotFound    = errors.New("card not found")
	ErrNotActive   = errors.New("card not active")
)

type Type string

const (
	TypeImport               Type = "import"
	TypeExport               Type = "export"
	TypePoliticalPact        Type = "political-pact"
	TypeBusinessPartnership  Type = "business-partnership"
	TypeMediaControl         Type = "media-control"
	TypeStrategicCooperation Type = "strategic-cooperation"
	TypeMilitaryAlliance     Type = "military-alliance"
	TypeTradeExport          Type = "trade-export"
	TypeTradeImport          Type = "trade-import"
)

var pointTable = map[Type]int{
	TypeImport:               1,
	TypeExport:               2,
	TypePoliticalPact:        3,
	TypeBusinessPartnership:  3,
	TypeMediaControl:         3,
	TypeStrategicCooperation: 4,
	TypeMilitaryAlliance:     5,
	TypeTradeExport:          2,
	TypeTradeImport:          1,
}

// Points returns the fixed score of a card type.
func Points(t Type) (int, bool) {
	p, ok := pointTable[t]
	return p, ok
}

func (t Type) Valid() bool {
	_, ok := pointTable[t]
	return ok
}

// IsTrade reports whether t belongs to the export/import family.
func (t Type) IsTrade() bool {
	switch t {
	case TypeImport, TypeExport, TypeTradeImport, TypeTradeExport:
		return true
	}
	return false
}

// Mirror is the type the counterpart of a trade agreement receives. Non-trade
// types mirror to themselves.
func (t Type) Mirror() Type {
	switch t {
	case TypeExport:
		return TypeImport
	case TypeImport:
		return TypeExport
	case TypeTradeExport:
		return TypeTradeImport
	case TypeTradeImport:
		return TypeTradeExport
	}
	return t
}

type Status string

const (
	StatusActive      Status = "active"
	StatusCancelled   Status = "cancelled"
	StatusTransferred Status = "transferred"
)

// Scored reports whether cards in this status count toward their owner.
func (s Status) Scored() bool {
	return s == StatusActive || s == StatusTransferred
}

// TradeTerms are carried by trade-family cards only.
type TradeTerms struct {
	Product string `json:"product"`
}

// Details is the per-type payload of a card. Extra keeps the few fields that
// are free-form by nature (notes, display labels).
type Details struct {
	Trade *TradeTerms       `json:"trade,omitempty"`
	Extra map[string]string `json:"extra,omitempty"`
}

func (d Details) clone() Details {
	out := Details{}
	if d.Trade != nil {
		tt := *d.Trade
		out.Trade = &tt
	}
	if len(d.Extra) > 0 {
		out.Extra = make(map[string]string, len(d.Extra))
		for k, v := range d.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

type Card struct {
	ID                int64     `json:"id"`
	Type              Type      `json:"type"`
	Owner             string    `json:"owner"`
	Target            string    `json:"target"`
	Value             float64   `json:"value"`
	Points            int       `json:"points"`
	Status            Status    `json:"status"`
	Timestamp         time.Time `json:"timestamp"`
	SourceAgreementID string    `json:"source_agreement_id,omitempty"`
	PreviousOwner     string    `json:"previous_owner,omitempty"`
	Details           Details   `json:"details"`
}

func (c Card) clone() Card {
	c.Details = c.Details.clone()
	return c
}

// RankEntry is one owner's line in a room ranking.
type RankEntry struct {
	Owner       string       `json:"owner"`
	TotalPoints int          `json:"total_points"`
	CardsByType map[Type]int `json:"cards_by_type"`
}
