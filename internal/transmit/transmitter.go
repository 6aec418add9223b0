// Package transmit delivers draft updates and deletions to the ingestion
// endpoint in batches, with retries and rate limiting.
package transmit

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/lcu-draft-client/internal/draft"
	"github.com/DoyleJ11/lcu-draft-client/internal/notify"
	"github.com/DoyleJ11/lcu-draft-client/pkg/types"
)

const (
	DefaultBatchSize       = 10
	DefaultBatchTimeout    = time.Second
	DefaultRateWaitTimeout = 30 * time.Second
	defaultConcurrency     = 4
	defaultDrainTimeout    = 15 * time.Second
)

// Item is a queued request: a DraftUpdate or a DeletionRequest.
type Item interface{ isItem() }

type DraftUpdate struct {
	Draft draft.DraftData

	seq uint64
}

func (DraftUpdate) isItem() {}

type DeletionRequest struct {
	LobbyID     string
	WorkspaceID string
}

func (DeletionRequest) isItem() {}

// Batch is the unit handed to dispatch. Items are sent concurrently.
type Batch struct {
	ID        string
	Items     []Item
	CreatedAt time.Time
	MaxSize   int
	MaxAge    time.Duration
}

type Stats struct {
	Running    bool      `json:"running"`
	Queued     int       `json:"queued"`
	Suppressed int       `json:"suppressedLobbies"`
	Enqueued   int64     `json:"enqueued"`
	Sent       int64     `json:"sent"`
	Failed     int64     `json:"failed"`
	Dropped    int64     `json:"dropped"`
	Skipped    int64     `json:"skipped"`
	Purged     int64     `json:"purged"`
	Batches    int64     `json:"batches"`
	Rate       RateStats `json:"rate"`
}

type Option func(*Transmitter)

func WithBatching(size int, timeout time.Duration) Option {
	return func(t *Transmitter) {
		if size > 0 {
			t.batchSize = size
		}
		if timeout > 0 {
			t.batchTimeout = timeout
		}
	}
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(t *Transmitter) { t.retry = p }
}

func WithRateLimiter(l *RateLimiter) Option {
	return func(t *Transmitter) { t.limiter = l }
}

func WithConcurrency(n int) Option {
	return func(t *Transmitter) {
		if n > 0 {
			t.concurrency = n
		}
	}
}

func WithPublisher(p notify.Publisher) Option {
	return func(t *Transmitter) { t.publisher = p }
}

// WithEnvelope sets the metadata attached to every request.
func WithEnvelope(clientVersion, passwordHash string) Option {
	return func(t *Transmitter) {
		t.clientVersion = clientVersion
		t.passwordHash = passwordHash
	}
}

func WithDrainTimeout(d time.Duration) Option {
	return func(t *Transmitter) {
		if d > 0 {
			t.drainTimeout = d
		}
	}
}

type counters struct {
	enqueued atomic.Int64
	sent     atomic.Int64
	failed   atomic.Int64
	dropped  atomic.Int64
	skipped  atomic.Int64
	purged   atomic.Int64
	batches  atomic.Int64
}

// Transmitter owns the outbound queue. New only configures; Start launches
// the batch consumer and Stop flushes what is queued before returning.
type Transmitter struct {
	sink          Sink
	logger        *zap.Logger
	publisher     notify.Publisher
	limiter       *RateLimiter
	retry         RetryPolicy
	random        func() float64
	batchSize     int
	batchTimeout  time.Duration
	concurrency   int
	drainTimeout  time.Duration
	clientVersion string
	passwordHash  string
	now           func() time.Time

	mu         sync.Mutex
	running    bool
	queue      []entry
	urgent     bool
	seq        uint64
	suppressed map[string]struct{}
	deletedAt  map[string]uint64 // lobby -> seq of its latest deletion
	wake       chan struct{}
	done       chan struct{}
	cancel     context.CancelFunc
	sendCancel context.CancelFunc

	inflight sync.WaitGroup
	stats    counters
}

type entry struct {
	item Item
	at   time.Time
}

func New(sink Sink, logger *zap.Logger, opts ...Option) *Transmitter {
	t := &Transmitter{
		sink:          sink,
		logger:        logger,
		retry:         DefaultRetryPolicy(),
		random:        rand.Float64,
		batchSize:     DefaultBatchSize,
		batchTimeout:  DefaultBatchTimeout,
		concurrency:   defaultConcurrency,
		drainTimeout:  defaultDrainTimeout,
		clientVersion: "dev",
		now:           time.Now,
		suppressed:    make(map[string]struct{}),
		deletedAt:     make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.limiter == nil {
		t.limiter = NewRateLimiter(DefaultRateLimits(), DefaultRateWaitTimeout)
	}
	return t
}

func (t *Transmitter) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	// sends outlive the loop so Stop can drain them
	sendCtx, sendCancel := context.WithCancel(context.WithoutCancel(ctx))
	t.cancel = cancel
	t.sendCancel = sendCancel
	t.wake = make(chan struct{}, 1)
	t.done = make(chan struct{})
	t.running = true

	go t.run(loopCtx, sendCtx, t.wake, t.done)
	t.logger.Info("transmitter started",
		zap.Int("batchSize", t.batchSize), zap.Duration("batchTimeout", t.batchTimeout))
	return nil
}

// Stop flushes queued items, waits for in-flight sends up to the drain
// timeout and cancels whatever is left.
func (t *Transmitter) Stop() {
	t.mu.Lock()
	if t.cancel == nil {
		t.mu.Unlock()
		return
	}
	cancel, done, sendCancel := t.cancel, t.done, t.sendCancel
	t.cancel = nil
	t.mu.Unlock()

	cancel()
	<-done

	drained := make(chan struct{})
	go func() {
		t.inflight.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(t.drainTimeout):
		t.logger.Warn("drain timeout, cancelling in-flight sends")
		sendCancel()
		<-drained
	}
	sendCancel()

	s := t.Stats()
	t.logger.Info("transmitter stopped",
		zap.Int64("sent", s.Sent), zap.Int64("failed", s.Failed), zap.Int64("dropped", s.Dropped))
}

// Enqueue queues a draft update. Updates for a deleted lobby are refused
// until ClearSuppression is called for it.
func (t *Transmitter) Enqueue(d draft.DraftData) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return ErrNotRunning
	}
	if _, ok := t.suppressed[d.LobbyID]; ok {
		t.stats.skipped.Add(1)
		return ErrSuppressed
	}
	t.seq++
	t.pushLocked(DraftUpdate{Draft: d, seq: t.seq}, false)
	t.stats.enqueued.Add(1)
	return nil
}

// Delete queues a deletion ahead of everything else and flushes at once.
// Queued updates for the lobby are discarded and later ones suppressed.
// Updates already handed to a batch but not yet sent are skipped, even
// after ClearSuppression.
func (t *Transmitter) Delete(lobbyID, workspaceID string) error {
	if lobbyID == "" {
		return draft.ErrEmptyLobbyID
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return ErrNotRunning
	}

	t.seq++
	t.deletedAt[lobbyID] = t.seq
	t.suppressed[lobbyID] = struct{}{}
	kept := t.queue[:0]
	for _, e := range t.queue {
		if u, ok := e.item.(DraftUpdate); ok && u.Draft.LobbyID == lobbyID {
			t.stats.purged.Add(1)
			continue
		}
		kept = append(kept, e)
	}
	t.queue = kept

	t.pushLocked(DeletionRequest{LobbyID: lobbyID, WorkspaceID: workspaceID}, true)
	t.stats.enqueued.Add(1)
	return nil
}

func (t *Transmitter) ClearSuppression(lobbyID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.suppressed, lobbyID)
}

func (t *Transmitter) IsSuppressed(lobbyID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.suppressed[lobbyID]
	return ok
}

func (t *Transmitter) Stats() Stats {
	t.mu.Lock()
	queued, suppressed, running := len(t.queue), len(t.suppressed), t.running
	t.mu.Unlock()
	return Stats{
		Running:    running,
		Queued:     queued,
		Suppressed: suppressed,
		Enqueued:   t.stats.enqueued.Load(),
		Sent:       t.stats.sent.Load(),
		Failed:     t.stats.failed.Load(),
		Dropped:    t.stats.dropped.Load(),
		Skipped:    t.stats.skipped.Load(),
		Purged:     t.stats.purged.Load(),
		Batches:    t.stats.batches.Load(),
		Rate:       t.limiter.Stats(),
	}
}

// deletedSince reports whether the lobby was deleted after the update with
// sequence number seq was queued.
func (t *Transmitter) deletedSince(lobbyID string, seq uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deletedAt[lobbyID] > seq
}

func (t *Transmitter) pushLocked(it Item, front bool) {
	e := entry{item: it, at: t.now()}
	if front {
		t.queue = append([]entry{e}, t.queue...)
		t.urgent = true
	} else {
		t.queue = append(t.queue, e)
	}
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *Transmitter) run(ctx, sendCtx context.Context, wake <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		batch, wait := t.nextBatch(false)
		if batch != nil {
			t.dispatchAsync(sendCtx, batch)
			continue
		}

		var timeout <-chan time.Time
		if wait > 0 {
			timeout = time.After(wait)
		}
		select {
		case <-ctx.Done():
			t.mu.Lock()
			t.running = false
			t.mu.Unlock()
			for {
				batch, _ := t.nextBatch(true)
				if batch == nil {
					return
				}
				t.dispatchAsync(sendCtx, batch)
			}
		case <-wake:
		case <-timeout:
		}
	}
}

// nextBatch takes a batch when one is due. Otherwise it reports how long
// until the oldest queued item ages out, or 0 when the queue is empty.
func (t *Transmitter) nextBatch(force bool) (*Batch, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.queue) == 0 {
		return nil, 0
	}
	age := t.now().Sub(oldest(t.queue))
	if !force && !t.urgent && len(t.queue) < t.batchSize && age < t.batchTimeout {
		return nil, t.batchTimeout - age
	}

	n := min(len(t.queue), t.batchSize)
	b := &Batch{
		ID:        uuid.NewString(),
		Items:     make([]Item, 0, n),
		CreatedAt: oldest(t.queue[:n]),
		MaxSize:   t.batchSize,
		MaxAge:    t.batchTimeout,
	}
	for _, e := range t.queue[:n] {
		b.Items = append(b.Items, e.item)
	}
	t.queue = append(t.queue[:0], t.queue[n:]...)
	t.urgent = false
	return b, 0
}

// oldest returns the earliest enqueue time. Deletions jump the queue, so
// the head is not always the oldest entry.
func oldest(q []entry) time.Time {
	at := q[0].at
	for _, e := range q[1:] {
		if e.at.Before(at) {
			at = e.at
		}
	}
	return at
}

func (t *Transmitter) dispatchAsync(ctx context.Context, b *Batch) {
	t.inflight.Add(1)
	go func() {
		defer t.inflight.Done()
		t.dispatch(ctx, b)
	}()
}

// dispatch sends every item of b concurrently. The batch only counts as
// delivered when all items were.
func (t *Transmitter) dispatch(ctx context.Context, b *Batch) {
	t.stats.batches.Add(1)
	log := t.logger.With(zap.String("batch", b.ID), zap.Int("items", len(b.Items)))

	var g errgroup.Group
	g.SetLimit(t.concurrency)
	for _, it := range b.Items {
		g.Go(func() error { return t.deliver(ctx, it) })
	}
	if err := g.Wait(); err != nil {
		log.Warn("batch incomplete", zap.Error(err))
		return
	}
	log.Debug("batch delivered", zap.Duration("age", t.now().Sub(b.CreatedAt)))
}

func (t *Transmitter) deliver(ctx context.Context, it Item) error {
	var (
		lobbyID string
		payload any
	)
	stamp := t.envelope()
	switch v := it.(type) {
	case DraftUpdate:
		lobbyID = v.Draft.LobbyID
		if t.deletedSince(lobbyID, v.seq) {
			t.stats.skipped.Add(1)
			t.logger.Debug("skipping update for deleted lobby", zap.String("lobbyId", lobbyID))
			return nil
		}
		payload = draftPayload(v.Draft, stamp)
	case DeletionRequest:
		lobbyID = v.LobbyID
		payload = types.DeletionPayload{
			Action:      types.ActionDelete,
			LobbyID:     v.LobbyID,
			WorkspaceID: v.WorkspaceID,
			Envelope:    stamp,
		}
	}
	log := t.logger.With(zap.String("lobbyId", lobbyID))

	err := t.sendWithRetry(ctx, payload, log)
	switch {
	case err == nil:
		t.stats.sent.Add(1)
		t.published(it)
		return nil
	case errors.Is(err, ErrRateLimited):
		t.stats.dropped.Add(1)
		log.Warn("no rate limit token, dropping request")
	default:
		t.stats.failed.Add(1)
		se := asSendError(err)
		if se.Kind.Retryable() {
			log.Error("giving up after retries", zap.Stringer("kind", se.Kind), zap.Error(err))
		} else {
			log.Warn("request rejected", zap.Stringer("kind", se.Kind), zap.Int("status", se.Status), zap.Error(err))
		}
	}
	return err
}

func (t *Transmitter) sendWithRetry(ctx context.Context, payload any, log *zap.Logger) error {
	b := newPolicyBackOff(t.retry, t.random)
	op := func() error {
		if err := t.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := t.sink.Send(ctx, payload)
		if err == nil {
			return nil
		}
		se := asSendError(err)
		b.last = se
		if !se.Kind.Retryable() {
			return backoff.Permanent(se)
		}
		return se
	}
	notifyRetry := func(err error, wait time.Duration) {
		log.Debug("send failed, retrying", zap.Error(err), zap.Duration("wait", wait))
	}
	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), notifyRetry)
}

func (t *Transmitter) published(it Item) {
	if t.publisher == nil {
		return
	}
	switch v := it.(type) {
	case DraftUpdate:
		t.publisher.Publish(notify.Notification{
			Type:    notify.DraftSaved,
			LobbyID: v.Draft.LobbyID,
			Picks:   v.Draft.PickCount(),
			Bans:    v.Draft.BanCount(),
		})
	case DeletionRequest:
		t.publisher.Publish(notify.Notification{Type: notify.DraftDeleted, LobbyID: v.LobbyID})
	}
}

func (t *Transmitter) envelope() types.Envelope {
	return types.Envelope{
		Timestamp:     t.now().UTC().Format(time.RFC3339Nano),
		ClientVersion: t.clientVersion,
		PasswordHash:  t.passwordHash,
	}
}
