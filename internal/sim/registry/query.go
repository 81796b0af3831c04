package registry

import (
	"nationsim.io/internal/sim/cards"
	"nationsim.io/internal/sim/economy"
)

// CountrySnapshot returns a deep copy of one country's economy.
func (r *Registry) CountrySnapshot(roomName, country string) (*economy.Country, error) {
	var out *economy.Country
	err := r.withRoom(roomName, func(rm *room) error {
		c, err := r.countryLocked(rm, country)
		if err != nil {
			return err
		}
		out = c.Clone()
		return nil
	})
	return out, err
}

type RoomSnapshot struct {
	Room      string             `json:"room"`
	Tick      uint64             `json:"tick"`
	Countries []*economy.Country `json:"countries"`
	Cards     []cards.Card       `json:"cards"`
	Ranking   []cards.RankEntry  `json:"ranking"`
}

func (r *Registry) RoomSnapshot(roomName string) (RoomSnapshot, error) {
	var out RoomSnapshot
	err := r.withRoom(roomName, func(rm *room) error {
		out = RoomSnapshot{
			Room:      rm.name,
			Tick:      rm.tick,
			Countries: rm.snapshotCountriesLocked(),
			Cards:     rm.book.Cards(),
			Ranking:   r.rankingLocked(rm),
		}
		return nil
	})
	return out, err
}

// Cards returns the room's full card list, cancelled cards included.
func (r *Registry) Cards(roomName string) ([]cards.Card, error) {
	var out []cards.Card
	err := r.withRoom(roomName, func(rm *room) error {
		out = rm.book.Cards()
		return nil
	})
	return out, err
}

func (r *Registry) PlayerPoints(roomName, owner string) (int, error) {
	var out int
	err := r.withRoom(roomName, func(rm *room) error {
		out = rm.book.PlayerPoints(owner)
		return nil
	})
	return out, err
}

func (r *Registry) Ranking(roomName string) ([]cards.RankEntry, error) {
	var out []cards.RankEntry
	err := r.withRoom(roomName, func(rm *room) error {
		out = r.rankingLocked(rm)
		return nil
	})
	return out, err
}

func (r *Registry) DebtSummary(roomName, country string) (economy.DebtSummary, error) {
	var out economy.DebtSummary
	err := r.withRoom(roomName, func(rm *room) error {
		c, err := r.countryLocked(rm, country)
		if err != nil {
			return err
		}
		out = economy.Summarize(c)
		return nil
	})
	return out, err
}

type rankKey struct {
	gen     uint64
	version uint64
}

// rankingLocked serves the ranking from the cache while the book is
// unchanged. The result is a copy the caller may keep.
func (r *Registry) rankingLocked(rm *room) []cards.RankEntry {
	key := rankKey{gen: rm.gen, version: rm.book.Version()}
	if v, ok := r.ranks.Get(key); ok {
		return cloneRanking(v.([]cards.RankEntry))
	}
	rank := rm.book.Ranking()
	r.ranks.Add(key, rank)
	return cloneRanking(rank)
}

func cloneRanking(in []cards.RankEntry) []cards.RankEntry {
	out := make([]cards.RankEntry, len(in))
	for i, e := range in {
		byType := make(map[cards.Type]int, len(e.CardsByType))
		for k, v := range e.CardsByType {
			byType[k] = v
		}
		e.CardsByType = byType
		out[i] = e
	}
	return out
}
