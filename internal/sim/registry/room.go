package registry

import (
	"encoding/json"
	"sync"
	"time"

	"nationsim.io/internal/protocol"
	"nationsim.io/internal/sim/cards"
	"nationsim.io/internal/sim/economy"
)

type room struct {
	name string
	// gen distinguishes a recreated room from its predecessor in caches.
	gen uint64

	// started is guarded by Registry.mu.
	started bool

	mu        sync.Mutex
	engine    *economy.Engine
	countries map[string]*economy.Country
	order     []string
	book      *cards.Book
	tick      uint64
	subs      map[int]chan []byte
	nextSub   int
	closed    bool

	stop     chan struct{}
	stopOnce sync.Once
}

func (rm *room) shutdown() {
	rm.stopOnce.Do(func() {
		close(rm.stop)
		rm.mu.Lock()
		rm.closed = true
		rm.subs = map[int]chan []byte{}
		rm.mu.Unlock()
	})
}

// TickLogEntry is one room tick as written to the tick log.
type TickLogEntry struct {
	Room      string        `json:"room"`
	Tick      uint64        `json:"tick"`
	Time      time.Time     `json:"time"`
	Countries []CountryTick `json:"countries"`
}

type CountryTick struct {
	Name         string         `json:"name"`
	GDP          float64        `json:"gdp"`
	GDPGrowth    float64        `json:"gdp_growth"`
	Inflation    float64        `json:"inflation"`
	Unemployment float64        `json:"unemployment"`
	Popularity   float64        `json:"popularity"`
	Treasury     float64        `json:"treasury"`
	PublicDebt   float64        `json:"public_debt"`
	CreditRating economy.Rating `json:"credit_rating"`
	Contracts    int            `json:"contracts"`
}

// AuditEntry records one state-changing command.
type AuditEntry struct {
	Room        string    `json:"room"`
	Tick        uint64    `json:"tick"`
	Time        time.Time `json:"time"`
	Action      string    `json:"action"`
	Actor       string    `json:"actor,omitempty"`
	Target      string    `json:"target,omitempty"`
	AgreementID string    `json:"agreement_id,omitempty"`
	CardIDs     []int64   `json:"card_ids,omitempty"`
	Amount      float64   `json:"amount,omitempty"`
	Detail      string    `json:"detail,omitempty"`
}

// Audit actions.
const (
	AuditSeed           = "SEED_ECONOMY"
	AuditParameter      = "UPDATE_PARAMETER"
	AuditBond           = "ISSUE_BOND"
	AuditTrade          = "FORM_TRADE_AGREEMENT"
	AuditCancel         = "CANCEL_AGREEMENT"
	AuditBilateral      = "FORM_BILATERAL_AGREEMENT"
	AuditDissolve       = "DISSOLVE_BILATERAL_AGREEMENT"
	AuditTransfer       = "TRANSFER_CARD"
	AuditCancelCard     = "CANCEL_CARD"
	AuditEmergencyBonds = "EMERGENCY_BOND"
)

// tickRoom advances every country of the room in seed order, then hands the
// result to subscribers and loggers outside the room lock.
func (r *Registry) tickRoom(rm *room) {
	now := r.now()

	rm.mu.Lock()
	if rm.closed {
		rm.mu.Unlock()
		return
	}
	rm.tick++
	entry := TickLogEntry{Room: rm.name, Tick: rm.tick, Time: now.UTC()}
	var audits []AuditEntry
	for _, name := range rm.order {
		c := rm.countries[name]
		rm.engine.Tick(c, now)
		for _, ct := range c.DebtContracts {
			if ct.Emergency && ct.IssueTick == c.Ticks {
				audits = append(audits, AuditEntry{
					Room: rm.name, Tick: rm.tick, Time: now.UTC(),
					Action: AuditEmergencyBonds, Actor: name,
					Amount: ct.OriginalValue, Detail: ct.ID,
				})
			}
		}
		entry.Countries = append(entry.Countries, CountryTick{
			Name:         name,
			GDP:          c.GDP,
			GDPGrowth:    c.GDPGrowth,
			Inflation:    c.Inflation,
			Unemployment: c.Unemployment,
			Popularity:   c.Popularity,
			Treasury:     c.Treasury,
			PublicDebt:   c.PublicDebt,
			CreditRating: c.CreditRating,
			Contracts:    len(c.DebtContracts),
		})
	}
	var msg []byte
	var outs []chan []byte
	if len(rm.subs) > 0 {
		msg = r.encodeRoomStateLocked(rm)
		outs = make([]chan []byte, 0, len(rm.subs))
		for _, ch := range rm.subs {
			outs = append(outs, ch)
		}
	}
	rm.mu.Unlock()

	r.ticks.Add(1)
	for _, ch := range outs {
		select {
		case ch <- msg:
		default:
			// Slow subscriber; it catches up on the next tick.
		}
	}
	if r.tickLog != nil {
		if err := r.tickLog.WriteTick(entry); err != nil {
			r.logger.Printf("tick log %s: %v", rm.name, err)
		}
	}
	r.audit(audits...)
	r.schedulePersist()
}

func (r *Registry) encodeRoomStateLocked(rm *room) []byte {
	msg := protocol.RoomStateMsg{
		Type:            protocol.TypeRoomState,
		ProtocolVersion: protocol.Version,
		Room:            rm.name,
		Tick:            rm.tick,
		Countries:       rm.snapshotCountriesLocked(),
		Ranking:         r.rankingLocked(rm),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		r.logger.Printf("encode room state %s: %v", rm.name, err)
		return nil
	}
	return b
}

func (rm *room) snapshotCountriesLocked() []*economy.Country {
	out := make([]*economy.Country, 0, len(rm.order))
	for _, name := range rm.order {
		out = append(out, rm.countries[name].Clone())
	}
	return out
}

// Subscribe registers out for ROOM_STATE pushes. Sends never block; a full
// channel misses that tick. The returned func unsubscribes.
func (r *Registry) Subscribe(name string, out chan []byte) (func(), error) {
	rm, err := r.room(name)
	if err != nil {
		return nil, err
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.closed {
		return nil, r.missingRoom(name)
	}
	id := rm.nextSub
	rm.nextSub++
	rm.subs[id] = out
	var once sync.Once
	return func() {
		once.Do(func() {
			rm.mu.Lock()
			delete(rm.subs, id)
			rm.mu.Unlock()
		})
	}, nil
}

func (r *Registry) audit(entries ...AuditEntry) {
	if r.auditLog == nil {
		return
	}
	for _, e := range entries {
		if err := r.auditLog.WriteAudit(e); err != nil {
			r.logger.Printf("audit log %s: %v", e.Room, err)
			return
		}
	}
}
