// Package session owns the plate configurations of all active configurator
// sessions. Every mutation produces a new revision, is written through to the
// persistence store and announced on the change broadcaster.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/rueckwand/configurator/internal/models"
	"github.com/rueckwand/configurator/internal/persistence"
	"github.com/rueckwand/configurator/internal/realtime"
	"github.com/rueckwand/configurator/internal/units"
)

// DefaultMaxSessions limits how many sessions are held in memory.
const DefaultMaxSessions = 1000

// Options configures a Manager.
type Options struct {
	Defaults    persistence.Defaults
	MinPlates   int
	MaxSessions int
}

// DefaultOptions returns the stock plate limits with the given default motif.
func DefaultOptions(motif string) Options {
	return Options{
		Defaults:    persistence.StandardDefaults(motif),
		MinPlates:   1,
		MaxSessions: DefaultMaxSessions,
	}
}

// Manager handles configurator sessions.
type Manager struct {
	sessions map[string]*sessionState
	mu       sync.RWMutex
	store    persistence.Store
	events   *realtime.Broadcaster
	logger   *log.Logger
	opts     Options
}

// sessionState serializes mutations of one session. Lock order is
// Manager.mu before sessionState.mu.
type sessionState struct {
	mu           sync.Mutex
	session      *models.Session
	lastAccessed time.Time
	// unloaded is set under mu when the state leaves the map. A caller
	// holding a stale pointer must look the session up again.
	unloaded bool
}

// DimensionUpdate carries the new size of a plate in centimetres. Nil fields
// are left as they are.
type DimensionUpdate struct {
	WidthCm  *float64
	HeightCm *float64
}

// NewManager creates a session manager. A nil store disables persistence and
// a nil broadcaster disables change events.
func NewManager(store persistence.Store, events *realtime.Broadcaster, logger *log.Logger, opts Options) *Manager {
	if store == nil {
		store = persistence.NullStore{}
	}
	if events == nil {
		events = realtime.NewBroadcaster()
	}
	if logger == nil {
		logger = log.Default()
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.MinPlates < 1 {
		opts.MinPlates = 1
	}
	if opts.Defaults.MaxPlates < opts.MinPlates {
		opts.Defaults.MaxPlates = opts.MinPlates
	}
	return &Manager{
		sessions: make(map[string]*sessionState),
		store:    store,
		events:   events,
		logger:   logger,
		opts:     opts,
	}
}

// Events returns the broadcaster on which every commit publishes the
// session ID as topic.
func (m *Manager) Events() *realtime.Broadcaster { return m.events }

// Defaults returns the fallback values used for new and decoded sessions.
func (m *Manager) Defaults() persistence.Defaults { return m.opts.Defaults }

// Create starts a session with the default two plates and the default motif.
func (m *Manager) Create(ctx context.Context) (*models.Session, error) {
	now := time.Now()
	sess := &models.Session{
		ID:            uuid.NewString(),
		Configuration: m.opts.Defaults.Initial(),
		Revision:      1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := m.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	m.mu.Lock()
	m.evictLocked()
	m.sessions[sess.ID] = &sessionState{session: sess, lastAccessed: now}
	m.mu.Unlock()

	m.logger.Debug("session created", "session", shortID(sess.ID))
	return sess.Clone(), nil
}

// Get returns a snapshot of the session, restoring it from persistence when
// it is not in memory.
func (m *Manager) Get(ctx context.Context, id string) (*models.Session, error) {
	st, err := m.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer st.mu.Unlock()
	st.lastAccessed = time.Now()
	return st.session.Clone(), nil
}

// Touch marks an in-memory session as in use so cleanup keeps it.
func (m *Manager) Touch(id string) bool {
	m.mu.RLock()
	st, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	st.mu.Lock()
	st.lastAccessed = time.Now()
	st.mu.Unlock()
	return true
}

// Summary returns the plate count, total width and tallest plate.
func (m *Manager) Summary(ctx context.Context, id string) (models.Summary, error) {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return models.Summary{}, err
	}
	return sess.Configuration.Summarize(), nil
}

// AddPlate appends a plate of the new-plate default size.
func (m *Manager) AddPlate(ctx context.Context, id string) (*models.Session, error) {
	return m.mutate(ctx, id, func(cfg *models.Configuration) error {
		if len(cfg.Plates) >= m.opts.Defaults.MaxPlates {
			return fmt.Errorf("%w: at most %d plates", ErrPlateLimit, m.opts.Defaults.MaxPlates)
		}
		p := m.opts.Defaults.NewPlate
		p.ID = uuid.NewString()
		cfg.Plates = append(cfg.Plates, p)
		return nil
	})
}

// RemovePlate deletes one plate. The last remaining plate cannot be removed.
func (m *Manager) RemovePlate(ctx context.Context, id, plateID string) (*models.Session, error) {
	return m.mutate(ctx, id, func(cfg *models.Configuration) error {
		i := indexOf(cfg.Plates, plateID)
		if i < 0 {
			return ErrPlateNotFound
		}
		if len(cfg.Plates) <= m.opts.MinPlates {
			return ErrLastPlate
		}
		cfg.Plates = slices.Delete(cfg.Plates, i, i+1)
		return nil
	})
}

// UpdatePlate changes the width and/or height of a plate. Values outside the
// configured bounds are rejected with a *units.RangeError.
func (m *Manager) UpdatePlate(ctx context.Context, id, plateID string, upd DimensionUpdate) (*models.Session, error) {
	return m.mutate(ctx, id, func(cfg *models.Configuration) error {
		i := indexOf(cfg.Plates, plateID)
		if i < 0 {
			return ErrPlateNotFound
		}
		if upd.WidthCm == nil && upd.HeightCm == nil {
			return errUnchanged
		}
		p := cfg.Plates[i]
		if upd.WidthCm != nil {
			if err := m.opts.Defaults.Width.Check(*upd.WidthCm, units.Centimeter); err != nil {
				return err
			}
			p.WidthCm = *upd.WidthCm
		}
		if upd.HeightCm != nil {
			if err := m.opts.Defaults.Height.Check(*upd.HeightCm, units.Centimeter); err != nil {
				return err
			}
			p.HeightCm = *upd.HeightCm
		}
		if p == cfg.Plates[i] {
			return errUnchanged
		}
		cfg.Plates[i] = p
		return nil
	})
}

// Reorder moves the plate at index from to index to, shifting the plates in
// between like a drag-and-drop list.
func (m *Manager) Reorder(ctx context.Context, id string, from, to int) (*models.Session, error) {
	return m.mutate(ctx, id, func(cfg *models.Configuration) error {
		n := len(cfg.Plates)
		if from < 0 || from >= n || to < 0 || to >= n {
			return fmt.Errorf("%w: from=%d to=%d with %d plates", ErrInvalidIndex, from, to, n)
		}
		if from == to {
			return errUnchanged
		}
		p := cfg.Plates[from]
		cfg.Plates = slices.Delete(cfg.Plates, from, from+1)
		cfg.Plates = slices.Insert(cfg.Plates, to, p)
		return nil
	})
}

// ReorderByIDs puts the plates in the order of ids, which must name every
// plate exactly once.
func (m *Manager) ReorderByIDs(ctx context.Context, id string, ids []string) (*models.Session, error) {
	return m.mutate(ctx, id, func(cfg *models.Configuration) error {
		if len(ids) != len(cfg.Plates) {
			return ErrInvalidOrder
		}
		byID := make(map[string]models.Plate, len(cfg.Plates))
		for _, p := range cfg.Plates {
			byID[p.ID] = p
		}
		ordered := make([]models.Plate, 0, len(ids))
		for _, pid := range ids {
			p, ok := byID[pid]
			if !ok {
				return ErrInvalidOrder
			}
			delete(byID, pid)
			ordered = append(ordered, p)
		}
		if slices.Equal(ordered, cfg.Plates) {
			return errUnchanged
		}
		cfg.Plates = ordered
		return nil
	})
}

// SetMotif replaces the shared motif.
func (m *Manager) SetMotif(ctx context.Context, id, ref string) (*models.Session, error) {
	if !persistence.ValidMotifRef(ref) {
		return nil, ErrInvalidMotif
	}
	return m.mutate(ctx, id, func(cfg *models.Configuration) error {
		if cfg.Motif == ref {
			return errUnchanged
		}
		cfg.Motif = ref
		return nil
	})
}

// ResetMotif restores the default motif.
func (m *Manager) ResetMotif(ctx context.Context, id string) (*models.Session, error) {
	return m.SetMotif(ctx, id, m.opts.Defaults.Motif)
}

// Reset replaces all plates with a single default plate and the default motif.
func (m *Manager) Reset(ctx context.Context, id string) (*models.Session, error) {
	return m.mutate(ctx, id, func(cfg *models.Configuration) error {
		*cfg = m.opts.Defaults.Single()
		return nil
	})
}

// Replace installs a complete configuration, e.g. one imported from browser
// storage. It is validated as a whole.
func (m *Manager) Replace(ctx context.Context, id string, next models.Configuration) (*models.Session, error) {
	if err := m.Validate(next); err != nil {
		return nil, err
	}
	return m.mutate(ctx, id, func(cfg *models.Configuration) error {
		*cfg = next.Clone()
		return nil
	})
}

// Validate checks a configuration against the plate limits.
func (m *Manager) Validate(cfg models.Configuration) error {
	d := m.opts.Defaults
	if n := len(cfg.Plates); n < m.opts.MinPlates || n > d.MaxPlates {
		return fmt.Errorf("%w: %d plates, allowed %d to %d", ErrPlateLimit, n, m.opts.MinPlates, d.MaxPlates)
	}
	if !persistence.ValidMotifRef(cfg.Motif) {
		return ErrInvalidMotif
	}
	seen := make(map[string]bool, len(cfg.Plates))
	for _, p := range cfg.Plates {
		if p.ID == "" || seen[p.ID] {
			return fmt.Errorf("%w: missing or duplicate id %q", ErrInvalidOrder, p.ID)
		}
		seen[p.ID] = true
		if err := d.Width.Check(p.WidthCm, units.Centimeter); err != nil {
			return err
		}
		if err := d.Height.Check(p.HeightCm, units.Centimeter); err != nil {
			return err
		}
	}
	return nil
}

// Delete drops a session from memory and persistence.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.sessions[id]; ok {
		m.unloadLocked(id, st)
	}
	return m.store.Delete(ctx, id)
}

// Len returns the number of sessions held in memory.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupOldSessions unloads sessions that have not been accessed within
// maxAge. They stay in persistence and are restored on the next access.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, st := range m.sessions {
		st.mu.Lock()
		idle := st.lastAccessed.Before(cutoff)
		if idle {
			st.unloaded = true
		}
		st.mu.Unlock()
		if !idle {
			continue
		}
		delete(m.sessions, id)
		removed++
		m.logger.Debug("unloaded idle session", "session", shortID(id))
	}
	return removed
}

// mutate applies fn to a copy of the session's configuration and commits it
// as a new revision. The commit is persisted and published before mutate
// returns, so subscribers never see revisions out of order.
func (m *Manager) mutate(ctx context.Context, id string, fn func(cfg *models.Configuration) error) (*models.Session, error) {
	st, err := m.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer st.mu.Unlock()

	now := time.Now()
	st.lastAccessed = now

	cfg := st.session.Configuration.Clone()
	if err := fn(&cfg); err != nil {
		if errors.Is(err, errUnchanged) {
			return st.session.Clone(), nil
		}
		return nil, err
	}

	st.session.Configuration = cfg
	st.session.Revision++
	st.session.UpdatedAt = now
	snap := st.session.Clone()

	if err := m.store.Save(ctx, snap); err != nil {
		m.logger.Error("failed to persist session", "session", shortID(id), "err", err)
	}
	m.events.Publish(id)
	return snap, nil
}

// lock returns the in-memory state of a session with its mutex held. A
// state unloaded between lookup and locking is looked up again, so commits
// never land on a copy that has left the map.
func (m *Manager) lock(ctx context.Context, id string) (*sessionState, error) {
	for {
		st, err := m.state(ctx, id)
		if err != nil {
			return nil, err
		}
		st.mu.Lock()
		if !st.unloaded {
			return st, nil
		}
		st.mu.Unlock()
	}
}

// state returns the in-memory state of a session, loading it from the store
// on a miss. The load runs under m.mu so it cannot interleave with the
// unload of an older state of the same session.
func (m *Manager) state(ctx context.Context, id string) (*sessionState, error) {
	m.mu.RLock()
	st, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return st, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.sessions[id]; ok {
		return st, nil
	}

	sess, found, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if !found {
		return nil, ErrSessionNotFound
	}
	if sess.Revision < 1 {
		sess.Revision = 1
	}

	m.evictLocked()
	st = &sessionState{session: sess, lastAccessed: time.Now()}
	m.sessions[id] = st
	m.logger.Debug("session restored", "session", shortID(id), "plates", len(sess.Configuration.Plates))
	return st, nil
}

// evictLocked unloads the least recently used sessions once the in-memory
// limit is reached. m.mu must be held.
func (m *Manager) evictLocked() {
	if len(m.sessions) < m.opts.MaxSessions {
		return
	}

	type idle struct {
		id   string
		st   *sessionState
		last time.Time
	}
	all := make([]idle, 0, len(m.sessions))
	for id, st := range m.sessions {
		st.mu.Lock()
		all = append(all, idle{id: id, st: st, last: st.lastAccessed})
		st.mu.Unlock()
	}
	sort.Slice(all, func(i, j int) bool { return all[i].last.Before(all[j].last) })

	toFree := len(m.sessions) - m.opts.MaxSessions + 1
	for _, s := range all[:toFree] {
		m.unloadLocked(s.id, s.st)
		m.logger.Debug("evicted session", "session", shortID(s.id))
	}
}

// unloadLocked removes st from the map once any commit in flight on it has
// finished. m.mu must be held.
func (m *Manager) unloadLocked(id string, st *sessionState) {
	st.mu.Lock()
	st.unloaded = true
	st.mu.Unlock()
	delete(m.sessions, id)
}

func indexOf(plates []models.Plate, id string) int {
	return slices.IndexFunc(plates, func(p models.Plate) bool { return p.ID == id })
}

// shortID safely truncates an ID for logging.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
