// Package monitor follows the client's game flow and decides which champ
// select snapshots become draft updates and when a draft is withdrawn.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lcu-draft-client/internal/draft"
	"github.com/DoyleJ11/lcu-draft-client/internal/extractor"
	"github.com/DoyleJ11/lcu-draft-client/internal/notify"
	"github.com/DoyleJ11/lcu-draft-client/pkg/types"
)

const defaultRefetchTimeout = 10 * time.Second

// Transmitter is the outbound side of the monitor.
type Transmitter interface {
	Enqueue(d draft.DraftData) error
	Delete(lobbyID, workspaceID string) error
	ClearSuppression(lobbyID string)
}

// SessionFetcher pulls the current champ select session on demand. A nil
// payload means there is no session.
type SessionFetcher interface {
	ChampSelectSession(ctx context.Context) (json.RawMessage, error)
}

// NameResolver rewrites champion keys before a draft is hashed.
type NameResolver interface {
	Annotate(ctx context.Context, d draft.DraftData) draft.DraftData
}

type Option func(*Monitor)

func WithFetcher(f SessionFetcher) Option {
	return func(m *Monitor) { m.fetcher = f }
}

func WithResolver(r NameResolver) Option {
	return func(m *Monitor) { m.resolver = r }
}

func WithPublisher(p notify.Publisher) Option {
	return func(m *Monitor) { m.publisher = p }
}

// WithChangeDetection controls whether unchanged drafts are skipped.
func WithChangeDetection(on bool) Option {
	return func(m *Monitor) { m.changeDetection = on }
}

func WithRefetchTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.refetchTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

type nopPublisher struct{}

func (nopPublisher) Publish(notify.Notification) {}

// Monitor is a single goroutine owning all tracking state. Everything that
// touches it arrives through the inbox.
type Monitor struct {
	inbox chan Msg
	done  chan struct{}

	workspaceID     string
	tx              Transmitter
	extractor       *extractor.Extractor
	fetcher         SessionFetcher
	resolver        NameResolver
	publisher       notify.Publisher
	logger          *zap.Logger
	changeDetection bool
	refetchTimeout  time.Duration
	now             func() time.Time

	startOnce sync.Once
	mu        sync.Mutex
	cancel    context.CancelFunc

	// owned by the loop
	state           State
	phase           string
	since           time.Time
	lobbyID         string
	lastDraft       *draft.DraftData
	lastSentHash    string
	gameWentThrough bool
	startNotified   bool
	connected       bool
	counts          Status

	// generation counts entries into champ select. A refetch only applies
	// to its own generation and only until the client pushed a session.
	generation uint64
	pushed     bool
}

func New(workspaceID string, tx Transmitter, ex *extractor.Extractor, logger *zap.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		inbox:           make(chan Msg, 64),
		done:            make(chan struct{}),
		workspaceID:     workspaceID,
		tx:              tx,
		extractor:       ex,
		publisher:       nopPublisher{},
		logger:          logger,
		changeDetection: true,
		refetchTimeout:  defaultRefetchTimeout,
		now:             time.Now,
		state:           Idle,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.since = m.now()
	return m
}

// Start launches the event loop. Later calls are no-ops.
func (m *Monitor) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		m.mu.Lock()
		m.cancel = cancel
		m.mu.Unlock()
		go m.loop(ctx)
	})
}

// Stop ends the loop and waits for it. Queued messages are dropped.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-m.done
}

// Expose the inbox so tests and the client connector can send messages.
func (m *Monitor) Inbox() chan<- Msg { return m.inbox }

func (m *Monitor) OnPhase(phase string) { m.post(PhaseChanged{Phase: phase}) }
func (m *Monitor) OnSession(raw json.RawMessage) { m.post(SessionUpdated{Raw: raw}) }
func (m *Monitor) OnLobby(raw json.RawMessage) { m.post(LobbyUpdated{Raw: raw}) }
func (m *Monitor) OnConnected() { m.post(Connected{}) }
func (m *Monitor) OnDisconnected(err error) { m.post(Disconnected{Err: err}) }

// Status returns a snapshot of the monitor's state.
func (m *Monitor) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	select {
	case m.inbox <- GetStatus{Reply: reply}:
	case <-m.done:
		return Status{}, errors.New("monitor stopped")
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-m.done:
		return Status{}, errors.New("monitor stopped")
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

func (m *Monitor) post(msg Msg) {
	select {
	case m.inbox <- msg:
	case <-m.done:
	}
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.inbox:
			m.handle(ctx, msg)
		}
	}
}

func (m *Monitor) handle(ctx context.Context, msg Msg) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("event handler panicked",
				zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	switch msg := msg.(type) {
	case PhaseChanged:
		m.onPhase(ctx, msg.Phase)

	case SessionUpdated:
		m.onSession(ctx, msg)

	case LobbyUpdated:
		m.onLobby(msg.Raw)

	case Connected:
		m.connected = true
		m.publisher.Publish(notify.Notification{Type: notify.ConnectionRestored})

	case Disconnected:
		m.connected = false
		n := notify.Notification{Type: notify.ConnectionLost}
		if msg.Err != nil {
			n.Message = msg.Err.Error()
		}
		m.publisher.Publish(n)

	case GetStatus:
		msg.Reply <- m.status()
	}
}

func (m *Monitor) onPhase(ctx context.Context, phase string) {
	m.phase = phase
	m.logger.Debug("gameflow phase", zap.String("phase", phase), zap.Stringer("state", m.state))

	switch m.state {
	case Idle:
		if phase == PhaseChampSelect {
			m.enterChampSelect(ctx)
		}

	case MonitoringChampSelect:
		switch phase {
		case PhaseInProgress, PhaseGameStart:
			m.gameWentThrough = true
			m.setState(GameStarted)
			m.publisher.Publish(notify.Notification{Type: notify.GameStarted, LobbyID: m.lobbyID})
		case PhaseNone:
			m.cancelDraft(notify.ReasonCancelled)
		case PhaseLobby:
			m.cancelDraft(notify.ReasonDodge)
		}

	case GameStarted:
		switch phase {
		case PhaseNone, PhaseLobby:
			m.publisher.Publish(notify.Notification{Type: notify.GameEnded, LobbyID: m.lobbyID})
			m.toIdle()
		}
	}
}

func (m *Monitor) enterChampSelect(ctx context.Context) {
	m.gameWentThrough = false
	m.startNotified = false
	m.lastDraft = nil
	m.lastSentHash = ""
	m.generation++
	m.pushed = false
	m.setState(MonitoringChampSelect)
	m.refetch(ctx)
}

// refetch pulls the session right away so picks made before monitoring
// began are not missed. The answer goes through the inbox like any push.
func (m *Monitor) refetch(ctx context.Context) {
	if m.fetcher == nil {
		return
	}
	gen := m.generation
	go func() {
		fctx, cancel := context.WithTimeout(ctx, m.refetchTimeout)
		defer cancel()
		raw, err := m.fetcher.ChampSelectSession(fctx)
		if err != nil {
			m.logger.Warn("session refetch failed", zap.Error(err))
			return
		}
		if len(raw) == 0 {
			return
		}
		select {
		case m.inbox <- SessionUpdated{Raw: raw, Refetched: true, Generation: gen}:
		case <-ctx.Done():
		}
	}()
}

// cancelDraft handles champ select ending without a game. The lobby's
// record is withdrawn when one may have been sent.
func (m *Monitor) cancelDraft(reason string) {
	lobby := m.lobbyID
	if lobby != "" && m.lastDraft != nil {
		if err := m.tx.Delete(lobby, m.workspaceID); err != nil {
			m.logger.Warn("failed to queue deletion", zap.String("lobbyId", lobby), zap.Error(err))
		} else {
			m.counts.Deletions++
		}
	}
	m.publisher.Publish(notify.Notification{
		Type:    notify.ChampSelectCancelled,
		LobbyID: lobby,
		Reason:  reason,
	})
	m.toIdle()
}

func (m *Monitor) toIdle() {
	if m.lobbyID != "" {
		m.tx.ClearSuppression(m.lobbyID)
	}
	m.lobbyID = ""
	m.lastDraft = nil
	m.lastSentHash = ""
	m.gameWentThrough = false
	m.setState(Idle)
}

func (m *Monitor) setState(s State) {
	if s == m.state {
		return
	}
	from := m.state
	m.state = s
	m.since = m.now()
	m.logger.Info("state changed", zap.Stringer("from", from), zap.Stringer("to", s))
	m.publisher.Publish(notify.Notification{
		Type: notify.StateChanged,
		From: from.String(),
		To:   s.String(),
	})
}

func (m *Monitor) onLobby(raw json.RawMessage) {
	if m.state != Idle {
		return
	}
	var l *types.Lobby
	if err := json.Unmarshal(raw, &l); err != nil {
		m.logger.Debug("unreadable lobby payload", zap.Error(err))
		return
	}
	if id := l.LobbyID(); id != "" && id != m.lobbyID {
		m.lobbyID = id
		m.logger.Debug("lobby discovered", zap.String("lobbyId", id))
	}
}

func (m *Monitor) onSession(ctx context.Context, msg SessionUpdated) {
	if m.state != MonitoringChampSelect {
		m.counts.Discarded++
		return
	}
	if msg.Refetched && (msg.Generation != m.generation || m.pushed) {
		m.logger.Debug("dropping outdated refetch",
			zap.Uint64("generation", msg.Generation), zap.Bool("pushed", m.pushed))
		m.counts.Discarded++
		return
	}
	if !msg.Refetched {
		m.pushed = true
	}
	m.counts.Snapshots++

	s, err := extractor.Parse(msg.Raw)
	if err != nil {
		if errors.Is(err, extractor.ErrNoSession) {
			m.logger.Debug("empty session payload")
		} else {
			m.logger.Warn("discarding snapshot", zap.Error(err))
		}
		return
	}
	if !s.Processable() {
		m.logger.Debug("snapshot has no actions or timer, ignoring")
		return
	}

	if m.lobbyID == "" {
		if id := s.LobbyID(); id != "" {
			m.lobbyID = id
			m.logger.Info("lobby id taken from session", zap.String("lobbyId", id))
		}
	}

	d, err := m.extractor.Extract(s, extractor.Meta{
		LobbyID:     m.lobbyID,
		WorkspaceID: m.workspaceID,
		IsNewGame:   m.lastDraft == nil || m.lastDraft.LobbyID != m.lobbyID,
	})
	if err != nil {
		m.logger.Warn("discarding snapshot", zap.Error(err))
		return
	}
	if m.resolver != nil {
		d = m.resolver.Annotate(ctx, d)
	}
	d = d.WithHash()

	if err := d.Validate(); err != nil {
		m.counts.Invalid++
		if errors.Is(err, draft.ErrGhostDraft) {
			m.logger.Debug("no picks or bans yet", zap.String("lobbyId", d.LobbyID))
		} else {
			m.logger.Warn("discarding draft", zap.Error(err))
		}
		return
	}
	m.lastDraft = &d

	if !m.startNotified {
		m.startNotified = true
		m.publisher.Publish(notify.Notification{Type: notify.ChampSelectStarted, LobbyID: d.LobbyID})
	}

	if m.changeDetection && d.DataHash == m.lastSentHash {
		m.counts.Unchanged++
		return
	}
	if err := m.tx.Enqueue(d); err != nil {
		m.logger.Warn("draft not queued", zap.String("lobbyId", d.LobbyID), zap.Error(err))
		return
	}
	m.lastSentHash = d.DataHash
	m.counts.Transmitted++
	m.logger.Debug("draft queued",
		zap.String("lobbyId", d.LobbyID),
		zap.String("phase", d.Phase),
		zap.Int("picks", d.PickCount()),
		zap.Int("bans", d.BanCount()),
		zap.Bool("refetched", msg.Refetched))
}

func (m *Monitor) status() Status {
	s := m.counts
	s.State = m.state.String()
	s.Phase = m.phase
	s.LobbyID = m.lobbyID
	s.LastHash = m.lastSentHash
	s.Connected = m.connected
	s.GameWentThrough = m.gameWentThrough
	s.Since = m.since
	return s
}
