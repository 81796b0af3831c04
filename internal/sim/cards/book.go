package cards

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Book is the card ledger of one room. It is not safe for concurrent use; the
// owning room serializes access.
type Book struct {
	nextID  int64
	cards   []Card
	version uint64
}

func NewBook() *Book {
	return &Book{nextID: 1}
}

// Version increases on every mutation.
func (b *Book) Version() uint64 { return b.version }

func (b *Book) Len() int { return len(b.cards) }

type NewCard struct {
	Type              Type
	Owner             string
	Target            string
	Value             float64
	SourceAgreementID string
	Details           Details
}

func (b *Book) CreateCard(in NewCard, now time.Time) (Card, error) {
	pts, ok := Points(in.Type)
	if !ok {
		return Card{}, fmt.Errorf("%w: %q", ErrUnknownType, in.Type)
	}
	if in.Owner == "" || in.Target == "" {
		return Card{}, fmt.Errorf("%w: owner and target required", ErrInvalidCard)
	}
	if in.Details.Trade != nil && !in.Type.IsTrade() {
		return Card{}, fmt.Errorf("%w: trade terms on %s card", ErrInvalidCard, in.Type)
	}
	c := Card{
		ID:                b.nextID,
		Type:              in.Type,
		Owner:             in.Owner,
		Target:            in.Target,
		Value:             in.Value,
		Points:            pts,
		Status:            StatusActive,
		Timestamp:         now.UTC(),
		SourceAgreementID: in.SourceAgreementID,
		Details:           in.Details.clone(),
	}
	b.nextID++
	b.cards = append(b.cards, c)
	b.version++
	return c.clone(), nil
}

type TradeAgreement struct {
	Type          Type
	Product       string
	Country       string
	OriginCountry string
	Value         float64
	AgreementID   string
}

// CreateTradeAgreementCards books both sides of a trade deal: the origin
// country gets the requested type, the counterpart the mirrored one. Both
// share the agreement id.
func (b *Book) CreateTradeAgreementCards(in TradeAgreement, now time.Time) ([]Card, error) {
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, in.Type)
	}
	if !in.Type.IsTrade() {
		return nil, fmt.Errorf("%w: %s is not a trade type", ErrInvalidCard, in.Type)
	}
	if in.Country == "" || in.OriginCountry == "" || in.Country == in.OriginCountry {
		return nil, fmt.Errorf("%w: trade needs two distinct countries", ErrInvalidCard)
	}
	if in.AgreementID == "" {
		in.AgreementID = NewAgreementID()
	}
	terms := &TradeTerms{Product: in.Product}
	return b.createPair(
		NewCard{Type: in.Type, Owner: in.OriginCountry, Target: in.Country, Value: in.Value, SourceAgreementID: in.AgreementID, Details: Details{Trade: terms}},
		NewCard{Type: in.Type.Mirror(), Owner: in.Country, Target: in.OriginCountry, Value: in.Value, SourceAgreementID: in.AgreementID, Details: Details{Trade: terms}},
		now,
	)
}

// CreateBilateralCards books a non-trade agreement (alliance, pact,
// cooperation): one card of the same type on each side.
func (b *Book) CreateBilateralCards(t Type, countryA, countryB, agreementID string, now time.Time) ([]Card, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	if t.IsTrade() {
		return nil, fmt.Errorf("%w: %s is a trade type", ErrInvalidCard, t)
	}
	if countryA == "" || countryB == "" || countryA == countryB {
		return nil, fmt.Errorf("%w: agreement needs two distinct countries", ErrInvalidCard)
	}
	if agreementID == "" {
		agreementID = NewAgreementID()
	}
	return b.createPair(
		NewCard{Type: t, Owner: countryA, Target: countryB, SourceAgreementID: agreementID},
		NewCard{Type: t, Owner: countryB, Target: countryA, SourceAgreementID: agreementID},
		now,
	)
}

func (b *Book) createPair(first, second NewCard, now time.Time) ([]Card, error) {
	a, err := b.CreateCard(first, now)
	if err != nil {
		return nil, err
	}
	c, err := b.CreateCard(second, now)
	if err != nil {
		// Both inputs were validated by the caller; keep the book consistent anyway.
		b.cards = b.cards[:len(b.cards)-1]
		b.nextID--
		return nil, err
	}
	return []Card{a, c}, nil
}

func NewAgreementID() string {
	return "agr_" + uuid.NewString()
}

func (b *Book) CancelCard(id int64) (Card, error) {
	i := b.index(id)
	if i < 0 {
		return Card{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if b.cards[i].Status != StatusActive {
		return Card{}, fmt.Errorf("%w: %d is %s", ErrNotActive, id, b.cards[i].Status)
	}
	b.cards[i].Status = StatusCancelled
	b.version++
	return b.cards[i].clone(), nil
}

// CancelCardsByAgreement cancels every active card of an agreement and
// returns them. ErrNotFound means no active card carried the id.
func (b *Book) CancelCardsByAgreement(agreementID string) ([]Card, error) {
	var out []Card
	for i := range b.cards {
		c := &b.cards[i]
		if c.SourceAgreementID != agreementID || c.Status != StatusActive {
			continue
		}
		c.Status = StatusCancelled
		out = append(out, c.clone())
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: agreement %q", ErrNotFound, agreementID)
	}
	b.version++
	return out, nil
}

// RemoveAgreementCards dissolves a bilateral agreement identified by its type
// and the two countries, in either direction. Cards are cancelled, not
// deleted, so the audit trail survives.
func (b *Book) RemoveAgreementCards(t Type, countryA, countryB string) ([]Card, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	var out []Card
	for i := range b.cards {
		c := &b.cards[i]
		if c.Type != t || c.Status != StatusActive {
			continue
		}
		if !(c.Owner == countryA && c.Target == countryB) && !(c.Owner == countryB && c.Target == countryA) {
			continue
		}
		c.Status = StatusCancelled
		out = append(out, c.clone())
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s between %s and %s", ErrNotFound, t, countryA, countryB)
	}
	b.version++
	return out, nil
}

func (b *Book) TransferCard(id int64, newOwner string) (Card, error) {
	if newOwner == "" {
		return Card{}, fmt.Errorf("%w: empty new owner", ErrInvalidCard)
	}
	i := b.index(id)
	if i < 0 {
		return Card{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	c := &b.cards[i]
	if c.Status != StatusActive {
		return Card{}, fmt.Errorf("%w: %d is %s", ErrNotActive, id, c.Status)
	}
	if c.Owner == newOwner {
		return Card{}, fmt.Errorf("%w: %d already owned by %s", ErrInvalidCard, id, newOwner)
	}
	c.PreviousOwner = c.Owner
	c.Owner = newOwner
	c.Status = StatusTransferred
	b.version++
	return c.clone(), nil
}

func (b *Book) Card(id int64) (Card, bool) {
	i := b.index(id)
	if i < 0 {
		return Card{}, false
	}
	return b.cards[i].clone(), true
}

// Cards returns a copy of every card, cancelled ones included, in id order.
func (b *Book) Cards() []Card {
	out := make([]Card, len(b.cards))
	for i, c := range b.cards {
		out[i] = c.clone()
	}
	return out
}

func (b *Book) PlayerPoints(owner string) int {
	total := 0
	for _, c := range b.cards {
		if c.Owner == owner && c.Status.Scored() {
			total += c.Points
		}
	}
	return total
}

// Ranking groups scored cards by owner, highest total first. Owners with
// equal totals keep the order in which their first scored card was booked.
func (b *Book) Ranking() []RankEntry {
	var out []RankEntry
	pos := map[string]int{}
	for _, c := range b.cards {
		if !c.Status.Scored() {
			continue
		}
		i, ok := pos[c.Owner]
		if !ok {
			i = len(out)
			pos[c.Owner] = i
			out = append(out, RankEntry{Owner: c.Owner, CardsByType: map[Type]int{}})
		}
		out[i].TotalPoints += c.Points
		out[i].CardsByType[c.Type]++
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalPoints > out[j].TotalPoints
	})
	return out
}

// index finds a card by id. Ids are assigned in increasing order, so the
// slice is sorted by id.
func (b *Book) index(id int64) int {
	i := sort.Search(len(b.cards), func(i int) bool { return b.cards[i].ID >= id })
	if i < len(b.cards) && b.cards[i].ID == id {
		return i
	}
	return -1
}

// State is the serialized form of a Book.
type State struct {
	NextID int64  `json:"next_id"`
	Cards  []Card `json:"cards"`
}

func (b *Book) State() State {
	return State{NextID: b.nextID, Cards: b.Cards()}
}

// FromState rebuilds a book. Cards are sorted by id and the id counter is
// moved past the highest id seen.
func FromState(s State) *Book {
	b := &Book{nextID: s.NextID}
	b.cards = make([]Card, 0, len(s.Cards))
	for _, c := range s.Cards {
		b.cards = append(b.cards, c.clone())
	}
	sort.SliceStable(b.cards, func(i, j int) bool { return b.cards[i].ID < b.cards[j].ID })
	for _, c := range b.cards {
		if c.ID >= b.nextID {
			b.nextID = c.ID + 1
		}
	}
	if b.nextID < 1 {
		b.nextID = 1
	}
	return b
}
