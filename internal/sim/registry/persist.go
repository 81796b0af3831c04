package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"nationsim.io/internal/persistence/kvstore"
	"nationsim.io/internal/sim/cards"
	"nationsim.io/internal/sim/economy"
)

const stateVersion = 1

type persistedState struct {
	Version int                      `json:"version"`
	Rooms   map[string]persistedRoom `json:"rooms"`
}

type persistedRoom struct {
	Tick      uint64                      `json:"tick"`
	Countries map[string]*economy.Country `json:"countries"`
	Order     []string                    `json:"order"`
	Cards     cards.State                 `json:"cards"`
}

// Save writes every room under the state key. Rooms are copied one at a
// time under their own lock; the store write happens with no lock held.
func (r *Registry) Save(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	b, err := json.Marshal(r.snapshotState())
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	if err := r.store.Put(ctx, r.stateKey, b); err != nil {
		return fmt.Errorf("save registry: %w", err)
	}
	r.saves.Add(1)
	return nil
}

func (r *Registry) snapshotState() persistedState {
	r.mu.RLock()
	rooms := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm)
	}
	r.mu.RUnlock()
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].name < rooms[j].name })

	st := persistedState{Version: stateVersion, Rooms: map[string]persistedRoom{}}
	for _, rm := range rooms {
		rm.mu.Lock()
		if rm.closed {
			rm.mu.Unlock()
			continue
		}
		pr := persistedRoom{
			Tick:      rm.tick,
			Countries: make(map[string]*economy.Country, len(rm.countries)),
			Order:     append([]string(nil), rm.order...),
			Cards:     rm.book.State(),
		}
		for name, c := range rm.countries {
			pr.Countries[name] = c.Clone()
		}
		rm.mu.Unlock()
		st.Rooms[rm.name] = pr
	}
	return st
}

// Load replaces the in-memory rooms with the stored state. A missing key is
// a fresh start and leaves the registry untouched.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	b, err := r.store.Get(ctx, r.stateKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		r.logger.Printf("no saved state under %q; starting fresh", r.stateKey)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	var st persistedState
	if err := json.Unmarshal(b, &st); err != nil {
		return fmt.Errorf("decode registry: %w", err)
	}
	if st.Version != stateVersion {
		return fmt.Errorf("decode registry: unsupported version %d", st.Version)
	}

	r.mu.Lock()
	old := r.rooms
	r.rooms = make(map[string]*room, len(st.Rooms))
	for name, pr := range st.Rooms {
		rm := r.newRoomLocked(name)
		rm.tick = pr.Tick
		rm.book = cards.FromState(pr.Cards)
		for _, cname := range pr.Order {
			c := pr.Countries[cname]
			if c == nil {
				continue
			}
			c.Name = cname
			if c.DebtContracts == nil {
				c.DebtContracts = []economy.DebtContract{}
			}
			rm.countries[cname] = c
			rm.order = append(rm.order, cname)
		}
		r.rooms[name] = rm
		r.startRoomLocked(rm)
	}
	r.mu.Unlock()

	for _, rm := range old {
		rm.shutdown()
	}
	r.logger.Printf("loaded %d rooms from %q", len(st.Rooms), r.stateKey)
	return nil
}

func (r *Registry) schedulePersist() {
	if r.store == nil || r.closed.Load() {
		return
	}
	select {
	case r.persistCh <- struct{}{}:
	default:
	}
}

// persistLoop saves at most once per persistEvery while rooms keep changing.
// The first change after a save arms the timer; later changes ride along.
func (r *Registry) persistLoop() {
	defer r.persistWG.Done()
	var timer *time.Timer
	stopTimer := func() {
		if timer == nil {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer = nil
	}
	for {
		var timerCh <-chan time.Time
		if timer != nil {
			timerCh = timer.C
		}
		select {
		case <-r.persistStop:
			stopTimer()
			r.persistNow()
			return
		case <-r.persistCh:
			if timer == nil {
				timer = time.NewTimer(r.persistEvery)
			}
		case ack := <-r.persistFlush:
			stopTimer()
			err := r.persistNow()
			if ack != nil {
				ack <- err
			}
		case <-timerCh:
			timer = nil
			r.persistNow()
		}
	}
}

func (r *Registry) persistNow() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := r.Save(ctx)
	if err != nil {
		// Logged once; the next change schedules another attempt.
		r.logger.Printf("persist: %v", err)
	}
	return err
}

// FlushState saves immediately through the persist loop. A Close racing the
// flush ends it with ErrClosed; Close has already saved.
func (r *Registry) FlushState(ctx context.Context) error {
	if r.store == nil || r.closed.Load() {
		return nil
	}
	ack := make(chan error, 1)
	select {
	case r.persistFlush <- ack:
	case <-r.persistStop:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-ack:
		return err
	case <-r.persistStop:
		select {
		case err := <-ack:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}
