package registry

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"nationsim.io/internal/persistence/kvstore"
	"nationsim.io/internal/sim/cards"
	"nationsim.io/internal/sim/economy"
	"nationsim.io/internal/sim/tuning"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomExists      = errors.New("room already exists")
	ErrCountryNotFound = errors.New("country not found")
	ErrCountryExists   = errors.New("country already seeded")
	ErrClosed          = errors.New("registry closed")
)

const DefaultStateKey = "registry"

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type Options struct {
	Tuning tuning.Tuning

	// Store is optional; without it Save/Load are no-ops and nothing is
	// persisted in the background.
	Store    kvstore.Store
	StateKey string

	Logger      *log.Logger
	TickLogger  TickLogger
	AuditLogger AuditLogger

	// NewRand returns the jitter source of a room. Defaults to a math/rand
	// source seeded from Tuning.Seed and the room name.
	NewRand func(room string) economy.Rand
	Now     func() time.Time

	RankingCacheSize int
}

// Registry owns every room of one server. All methods are safe for
// concurrent use; each room is serialized by its own mutex.
type Registry struct {
	cfg      tuning.Tuning
	store    kvstore.Store
	stateKey string
	logger   *log.Logger
	tickLog  TickLogger
	auditLog AuditLogger
	newRand  func(room string) economy.Rand
	now      func() time.Time

	mu      sync.RWMutex
	rooms   map[string]*room
	nextGen uint64
	runCtx  context.Context
	roomWG  sync.WaitGroup

	ranks *lru.Cache

	ticks atomic.Uint64
	saves atomic.Uint64

	persistEvery time.Duration
	persistCh    chan struct{}
	persistFlush chan chan error
	persistStop  chan struct{}
	persistWG    sync.WaitGroup
	closed       atomic.Bool
	closeOnce    sync.Once
}

func New(opts Options) (*Registry, error) {
	if err := opts.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("tuning: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	size := opts.RankingCacheSize
	if size <= 0 {
		size = 256
	}
	ranks, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	r := &Registry{
		cfg:          opts.Tuning,
		store:        opts.Store,
		stateKey:     opts.StateKey,
		logger:       logger,
		tickLog:      opts.TickLogger,
		auditLog:     opts.AuditLogger,
		newRand:      opts.NewRand,
		now:          opts.Now,
		rooms:        map[string]*room{},
		ranks:        ranks,
		persistEvery: time.Duration(opts.Tuning.PersistEveryMs) * time.Millisecond,
		persistCh:    make(chan struct{}, 1),
		persistFlush: make(chan chan error, 8),
		persistStop:  make(chan struct{}),
	}
	if r.stateKey == "" {
		r.stateKey = DefaultStateKey
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newRand == nil {
		seed := opts.Tuning.Seed
		r.newRand = func(name string) economy.Rand {
			h := fnv.New64a()
			_, _ = h.Write([]byte(name))
			return rand.New(rand.NewSource(seed ^ int64(h.Sum64())))
		}
	}
	if r.persistEvery <= 0 {
		r.persistEvery = 10 * time.Second
	}
	if r.store != nil {
		r.persistWG.Add(1)
		go r.persistLoop()
	}
	return r, nil
}

func (r *Registry) Tuning() tuning.Tuning { return r.cfg }

func (r *Registry) CreateRoom(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty room name", ErrRoomNotFound)
	}
	if r.closed.Load() {
		return ErrClosed
	}
	r.mu.Lock()
	if _, ok := r.rooms[name]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRoomExists, name)
	}
	rm := r.newRoomLocked(name)
	r.rooms[name] = rm
	r.startRoomLocked(rm)
	r.mu.Unlock()

	r.logger.Printf("room created: %s", name)
	r.schedulePersist()
	return nil
}

func (r *Registry) newRoomLocked(name string) *room {
	r.nextGen++
	return &room{
		name:      name,
		gen:       r.nextGen,
		engine:    economy.NewEngine(r.cfg, r.newRand(name)),
		countries: map[string]*economy.Country{},
		book:      cards.NewBook(),
		subs:      map[int]chan []byte{},
		stop:      make(chan struct{}),
	}
}

// TeardownRoom stops the room's scheduler and discards its state. A tick
// already waiting on the room lock is skipped.
func (r *Registry) TeardownRoom(name string) error {
	r.mu.Lock()
	rm, ok := r.rooms[name]
	if ok {
		delete(r.rooms, name)
	}
	r.mu.Unlock()
	if !ok {
		return r.missingRoom(name)
	}
	rm.shutdown()
	r.logger.Printf("room torn down: %s", name)
	r.schedulePersist()
	return nil
}

// Rooms returns the room names in sorted order.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.rooms))
	for name := range r.rooms {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) room(name string) (*room, error) {
	r.mu.RLock()
	rm := r.rooms[name]
	r.mu.RUnlock()
	if rm == nil {
		return nil, r.missingRoom(name)
	}
	return rm, nil
}

func (r *Registry) missingRoom(name string) error {
	r.logger.Printf("lookup: unknown room %q", name)
	return fmt.Errorf("%w: %s", ErrRoomNotFound, name)
}

func (r *Registry) missingCountry(room, country string) error {
	r.logger.Printf("lookup: unknown country %q in room %q", country, room)
	return fmt.Errorf("%w: %s/%s", ErrCountryNotFound, room, country)
}

// missingCard logs card lookups that found nothing. Other errors pass
// through unchanged.
func (r *Registry) missingCard(room string, err error) error {
	if errors.Is(err, cards.ErrNotFound) {
		r.logger.Printf("lookup: room %q: %v", room, err)
	}
	return err
}

// Run drives one scheduler goroutine per room until ctx is done. Rooms
// created while Run is active start ticking immediately.
func (r *Registry) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.runCtx != nil {
		r.mu.Unlock()
		return fmt.Errorf("registry already running")
	}
	r.runCtx = ctx
	for _, rm := range r.rooms {
		r.startRoomLocked(rm)
	}
	r.mu.Unlock()

	<-ctx.Done()

	r.mu.Lock()
	r.runCtx = nil
	r.mu.Unlock()
	r.roomWG.Wait()

	r.mu.Lock()
	for _, rm := range r.rooms {
		rm.started = false
	}
	r.mu.Unlock()
	return nil
}

func (r *Registry) startRoomLocked(rm *room) {
	if r.runCtx == nil || rm.started {
		return
	}
	rm.started = true
	ctx := r.runCtx
	period := time.Duration(r.cfg.TickPeriodMs) * time.Millisecond
	r.roomWG.Add(1)
	go func() {
		defer r.roomWG.Done()
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-rm.stop:
				return
			case <-ticker.C:
				r.tickRoom(rm)
			}
		}
	}()
}

// Step runs one synchronous tick of a room.
func (r *Registry) Step(name string) error {
	rm, err := r.room(name)
	if err != nil {
		return err
	}
	r.tickRoom(rm)
	return nil
}

type Stats struct {
	Rooms       int    `json:"rooms"`
	Countries   int    `json:"countries"`
	Subscribers int    `json:"subscribers"`
	Ticks       uint64 `json:"ticks"`
	Saves       uint64 `json:"saves"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	rooms := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm)
	}
	r.mu.RUnlock()

	st := Stats{Rooms: len(rooms), Ticks: r.ticks.Load(), Saves: r.saves.Load()}
	for _, rm := range rooms {
		rm.mu.Lock()
		st.Countries += len(rm.countries)
		st.Subscribers += len(rm.subs)
		rm.mu.Unlock()
	}
	return st
}

// Close stops the background persister after a final save and shuts every
// room down. Run must be cancelled separately.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		if r.store != nil {
			close(r.persistStop)
			r.persistWG.Wait()
		}
		r.mu.Lock()
		rooms := r.rooms
		r.rooms = map[string]*room{}
		r.mu.Unlock()
		for _, rm := range rooms {
			rm.shutdown()
		}
	})
}
