// Package champion resolves numeric champion keys to champion names.
package champion

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	DefaultTTL             = 24 * time.Hour
	DefaultFallbackVersion = "15.5.1"
	defaultRetryAfter      = time.Minute
	refreshTimeout         = 45 * time.Second
)

// aliases maps internal champion ids to the name players know them by.
var aliases = map[string]string{
	"MonkeyKing": "Wukong",
}

type table struct {
	version  string
	names    map[int]string
	byName   map[string]int
	loadedAt time.Time
}

func newTable(version string, raw map[int]string, loadedAt time.Time) *table {
	t := &table{
		version:  version,
		names:    make(map[int]string, len(raw)),
		byName:   make(map[string]int, len(raw)*2),
		loadedAt: loadedAt,
	}
	for key, id := range raw {
		name := id
		if alias, ok := aliases[id]; ok {
			name = alias
		}
		t.names[key] = name
		t.byName[strings.ToLower(name)] = key
		t.byName[strings.ToLower(id)] = key
	}
	return t
}

type Option func(*Mapper)

func WithTTL(ttl time.Duration) Option {
	return func(m *Mapper) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func WithStore(s Store) Option {
	return func(m *Mapper) { m.store = s }
}

func WithFallbackVersion(v string) Option {
	return func(m *Mapper) {
		if v != "" {
			m.fallbackVersion = v
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Mapper) { m.now = now }
}

// Mapper caches the champion table of one feed version. Lookups never fail
// and never wait on the feed: a stale or missing table is reloaded in the
// background while the current one keeps serving.
type Mapper struct {
	feed            Feed
	store           Store
	logger          *zap.Logger
	ttl             time.Duration
	fallbackVersion string
	retryAfter      time.Duration
	now             func() time.Time

	mu          sync.Mutex
	current     *table
	lastFailure time.Time
	lastErr     error
	loading     chan struct{} // closed when the running load ends
}

func NewMapper(feed Feed, logger *zap.Logger, opts ...Option) *Mapper {
	m := &Mapper{
		feed:            feed,
		logger:          logger,
		ttl:             DefaultTTL,
		fallbackVersion: DefaultFallbackVersion,
		retryAfter:      defaultRetryAfter,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Mapper) Resolve(ctx context.Context, id int) (string, bool) {
	t := m.table(ctx)
	if t == nil {
		return "", false
	}
	name, ok := t.names[id]
	return name, ok
}

// ResolveMany keeps the input order and silently drops unknown ids.
func (m *Mapper) ResolveMany(ctx context.Context, ids []int) []string {
	t := m.table(ctx)
	if t == nil {
		return []string{}
	}
	return lo.FilterMap(ids, func(id int, _ int) (string, bool) {
		name, ok := t.names[id]
		return name, ok
	})
}

// IDByName accepts display names and internal ids, case-insensitively.
func (m *Mapper) IDByName(ctx context.Context, name string) (int, bool) {
	t := m.table(ctx)
	if t == nil {
		return 0, false
	}
	id, ok := t.byName[strings.ToLower(strings.TrimSpace(name))]
	return id, ok
}

// Version returns the feed version currently served, or "" if none.
func (m *Mapper) Version() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ""
	}
	return m.current.version
}

// Refresh reloads the table regardless of its age and waits for the result.
// A load already in progress is joined instead of repeated.
func (m *Mapper) Refresh(ctx context.Context) error {
	m.mu.Lock()
	if ch := m.loading; ch != nil {
		m.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.lastErr
	}
	ch := make(chan struct{})
	m.loading = ch
	m.mu.Unlock()

	return m.load(ctx, ch)
}

func (m *Mapper) table(ctx context.Context) *table {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	stale := m.current == nil || now.Sub(m.current.loadedAt) >= m.ttl
	throttled := !m.lastFailure.IsZero() && now.Sub(m.lastFailure) < m.retryAfter
	if stale && !throttled && m.loading == nil {
		ch := make(chan struct{})
		m.loading = ch
		go func() {
			lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
			defer cancel()
			if err := m.load(lctx, ch); err != nil {
				m.logger.Warn("champion refresh failed, serving cached data",
					zap.Bool("cached", m.Version() != ""), zap.Error(err))
			}
		}()
	}
	return m.current
}

// load runs one fetch without holding mu and releases ch when done.
func (m *Mapper) load(ctx context.Context, ch chan struct{}) error {
	err := m.fetch(ctx)

	m.mu.Lock()
	m.lastErr = err
	m.loading = nil
	m.mu.Unlock()
	close(ch)
	return err
}

func (m *Mapper) fetch(ctx context.Context) error {
	version, err := m.feed.LatestVersion(ctx)
	if err != nil {
		m.logger.Warn("version lookup failed, using fallback",
			zap.String("fallback", m.fallbackVersion), zap.Error(err))
		version = m.fallbackVersion
	}

	raw, err := m.feed.Champions(ctx, version)
	if err != nil {
		m.mu.Lock()
		m.lastFailure = m.now()
		empty := m.current == nil
		m.mu.Unlock()
		if empty {
			m.restore(ctx)
		}
		return err
	}

	t := newTable(version, raw, m.now())
	m.mu.Lock()
	m.current = t
	m.lastFailure = time.Time{}
	m.mu.Unlock()
	m.logger.Info("champion data loaded",
		zap.String("version", version), zap.Int("champions", len(raw)))

	if m.store != nil {
		snap := Snapshot{Version: version, Names: raw, FetchedAt: t.loadedAt}
		if err := m.store.Save(ctx, snap); err != nil {
			m.logger.Warn("failed to persist champion snapshot", zap.Error(err))
		}
	}
	return nil
}

// restore adopts a persisted snapshot as stale data. Its load time is kept
// so the next lookup after the retry window tries the feed again.
func (m *Mapper) restore(ctx context.Context) {
	if m.store == nil {
		return
	}
	snap, err := m.store.Load(ctx)
	if err != nil || snap == nil || len(snap.Names) == 0 {
		return
	}
	t := newTable(snap.Version, snap.Names, snap.FetchedAt)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		return
	}
	m.current = t
	m.logger.Info("champion data restored from store",
		zap.String("version", snap.Version), zap.Int("champions", len(snap.Names)))
}
