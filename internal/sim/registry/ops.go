package registry

import (
	"fmt"

	"nationsim.io/internal/sim/cards"
	"nationsim.io/internal/sim/economy"
)

// withRoom runs fn under the room lock.
func (r *Registry) withRoom(name string, fn func(rm *room) error) error {
	rm, err := r.room(name)
	if err != nil {
		return err
	}
	rm.mu.Lock()
	if rm.closed {
		rm.mu.Unlock()
		return r.missingRoom(name)
	}
	err = fn(rm)
	rm.mu.Unlock()
	return err
}

// mutate is withRoom for state changes: on success the audit entry is
// written and a save is scheduled, both after the lock is released.
func (r *Registry) mutate(name string, fn func(rm *room) (AuditEntry, error)) error {
	var entry AuditEntry
	err := r.withRoom(name, func(rm *room) error {
		var err error
		entry, err = fn(rm)
		entry.Room = rm.name
		entry.Tick = rm.tick
		return err
	})
	if err != nil {
		return err
	}
	entry.Time = r.now().UTC()
	r.audit(entry)
	r.schedulePersist()
	return nil
}

func (r *Registry) countryLocked(rm *room, name string) (*economy.Country, error) {
	c := rm.countries[name]
	if c == nil {
		return nil, r.missingCountry(rm.name, name)
	}
	return c, nil
}

// SeedEconomy adds a country to a room from its static seed. The country
// name overrides seed.Name.
func (r *Registry) SeedEconomy(roomName, country string, seed economy.Seed) (*economy.Country, error) {
	seed.Name = country
	var out *economy.Country
	err := r.mutate(roomName, func(rm *room) (AuditEntry, error) {
		if _, ok := rm.countries[country]; ok {
			return AuditEntry{}, fmt.Errorf("%w: %s/%s", ErrCountryExists, rm.name, country)
		}
		c, err := rm.engine.NewCountry(seed, r.now())
		if err != nil {
			return AuditEntry{}, err
		}
		rm.countries[country] = c
		rm.order = append(rm.order, country)
		out = c.Clone()
		return AuditEntry{Action: AuditSeed, Actor: country, Amount: c.GDP}, nil
	})
	return out, err
}

// UpdateParameter sets a policy lever; the next tick sees it.
func (r *Registry) UpdateParameter(roomName, country string, name economy.Parameter, value float64) error {
	return r.mutate(roomName, func(rm *room) (AuditEntry, error) {
		c, err := r.countryLocked(rm, country)
		if err != nil {
			return AuditEntry{}, err
		}
		if err := economy.SetParameter(c, name, value); err != nil {
			return AuditEntry{}, err
		}
		return AuditEntry{Action: AuditParameter, Actor: country, Amount: value, Detail: string(name)}, nil
	})
}

func (r *Registry) IssueBond(roomName, country string, amount float64) (economy.DebtContract, error) {
	var out economy.DebtContract
	err := r.mutate(roomName, func(rm *room) (AuditEntry, error) {
		c, err := r.countryLocked(rm, country)
		if err != nil {
			return AuditEntry{}, err
		}
		ct, err := rm.engine.IssueBond(c, amount, r.now())
		if err != nil {
			return AuditEntry{}, err
		}
		out = ct
		return AuditEntry{Action: AuditBond, Actor: country, Amount: amount, Detail: ct.ID}, nil
	})
	return out, err
}

func (r *Registry) FormTradeAgreement(roomName string, in cards.TradeAgreement) ([]cards.Card, error) {
	var out []cards.Card
	err := r.mutate(roomName, func(rm *room) (AuditEntry, error) {
		for _, name := range []string{in.OriginCountry, in.Country} {
			if _, err := r.countryLocked(rm, name); err != nil {
				return AuditEntry{}, err
			}
		}
		got, err := rm.book.CreateTradeAgreementCards(in, r.now())
		if err != nil {
			return AuditEntry{}, err
		}
		out = got
		return AuditEntry{
			Action:      AuditTrade,
			Actor:       in.OriginCountry,
			Target:      in.Country,
			AgreementID: got[0].SourceAgreementID,
			CardIDs:     cardIDs(got),
			Amount:      in.Value,
			Detail:      string(in.Type),
		}, nil
	})
	return out, err
}

// CancelAgreement soft-cancels every active card of an agreement.
func (r *Registry) CancelAgreement(roomName, agreementID string) ([]cards.Card, error) {
	var out []cards.Card
	err := r.mutate(roomName, func(rm *room) (AuditEntry, error) {
		got, err := rm.book.CancelCardsByAgreement(agreementID)
		if err != nil {
			return AuditEntry{}, r.missingCard(rm.name, err)
		}
		out = got
		return AuditEntry{Action: AuditCancel, AgreementID: agreementID, CardIDs: cardIDs(got)}, nil
	})
	return out, err
}

func (r *Registry) FormBilateralAgreement(roomName string, t cards.Type, countryA, countryB string) ([]cards.Card, error) {
	var out []cards.Card
	err := r.mutate(roomName, func(rm *room) (AuditEntry, error) {
		for _, name := range []string{countryA, countryB} {
			if _, err := r.countryLocked(rm, name); err != nil {
				return AuditEntry{}, err
			}
		}
		got, err := rm.book.CreateBilateralCards(t, countryA, countryB, "", r.now())
		if err != nil {
			return AuditEntry{}, err
		}
		out = got
		return AuditEntry{
			Action:      AuditBilateral,
			Actor:       countryA,
			Target:      countryB,
			AgreementID: got[0].SourceAgreementID,
			CardIDs:     cardIDs(got),
			Detail:      string(t),
		}, nil
	})
	return out, err
}

// DissolveBilateralAgreement cancels the agreement's cards in both
// directions. Cancelled cards stay in the ledger.
func (r *Registry) DissolveBilateralAgreement(roomName string, t cards.Type, countryA, countryB string) ([]cards.Card, error) {
	var out []cards.Card
	err := r.mutate(roomName, func(rm *room) (AuditEntry, error) {
		got, err := rm.book.RemoveAgreementCards(t, countryA, countryB)
		if err != nil {
			return AuditEntry{}, r.missingCard(rm.name, err)
		}
		out = got
		return AuditEntry{Action: AuditDissolve, Actor: countryA, Target: countryB, CardIDs: cardIDs(got), Detail: string(t)}, nil
	})
	return out, err
}

func (r *Registry) TransferCard(roomName string, id int64, newOwner string) (cards.Card, error) {
	var out cards.Card
	err := r.mutate(roomName, func(rm *room) (AuditEntry, error) {
		if _, err := r.countryLocked(rm, newOwner); err != nil {
			return AuditEntry{}, err
		}
		got, err := rm.book.TransferCard(id, newOwner)
		if err != nil {
			return AuditEntry{}, r.missingCard(rm.name, err)
		}
		out = got
		return AuditEntry{Action: AuditTransfer, Actor: got.PreviousOwner, Target: newOwner, CardIDs: []int64{id}}, nil
	})
	return out, err
}

func (r *Registry) CancelCard(roomName string, id int64) (cards.Card, error) {
	var out cards.Card
	err := r.mutate(roomName, func(rm *room) (AuditEntry, error) {
		got, err := rm.book.CancelCard(id)
		if err != nil {
			return AuditEntry{}, r.missingCard(rm.name, err)
		}
		out = got
		return AuditEntry{Action: AuditCancelCard, Actor: got.Owner, CardIDs: []int64{id}}, nil
	})
	return out, err
}

func cardIDs(cs []cards.Card) []int64 {
	out := make([]int64, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}
