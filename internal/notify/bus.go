package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	sourceBuffer    = 64
	listenerBuffer  = 16
	listenerTimeout = 50 * time.Millisecond
)

// Bus delivers every published notification to all current subscribers.
// A subscriber that does not take a message within a short timeout misses
// it; publishers are never blocked by subscribers.
type Bus struct {
	logger         *zap.Logger
	source         chan Notification
	listeners      []chan Notification
	addListener    chan chan Notification
	removeListener chan (<-chan Notification)
	ctx            context.Context
	cancel         context.CancelFunc
	done           chan struct{}
	started        atomic.Bool
	closeOnce      sync.Once

	mu      sync.Mutex
	numRcv  int
	numSnd  int
	numSkip int
	numDrop int
}

func NewBus(logger *zap.Logger) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		logger:         logger,
		source:         make(chan Notification, sourceBuffer),
		addListener:    make(chan chan Notification),
		removeListener: make(chan (<-chan Notification)),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
}

// Start launches the delivery loop. Subscribe needs a started bus.
func (b *Bus) Start() {
	if b.started.CompareAndSwap(false, true) {
		go b.serve()
	}
}

func (b *Bus) Publish(n Notification) {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}
	b.logger.Log(n.Type.level(), "notification", n.fields()...)

	select {
	case <-b.ctx.Done():
		return
	default:
	}
	select {
	case b.source <- n:
	default:
		b.mu.Lock()
		b.numDrop++
		b.mu.Unlock()
		b.logger.Debug("notification queue full, dropping", zap.String("type", string(n.Type)))
	}
}

// Subscribe returns a channel that is closed when the bus closes or the
// subscription is cancelled.
func (b *Bus) Subscribe() <-chan Notification {
	ch := make(chan Notification, listenerBuffer)
	select {
	case b.addListener <- ch:
	case <-b.ctx.Done():
		close(ch)
	}
	return ch
}

func (b *Bus) Unsubscribe(ch <-chan Notification) {
	select {
	case b.removeListener <- ch:
	case <-b.ctx.Done():
	}
}

// Close stops delivery and waits for the loop to close all listeners.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.logger.Debug("closing notification bus",
			zap.Int("rcv", b.numRcv), zap.Int("snd", b.numSnd),
			zap.Int("skip", b.numSkip), zap.Int("drop", b.numDrop))
		b.mu.Unlock()
		b.cancel()
	})
	if b.started.Load() {
		<-b.done
	}
}

func (b *Bus) serve() {
	defer func() {
		for _, listener := range b.listeners {
			close(listener)
		}
		b.listeners = nil
		close(b.done)
	}()

	for {
		select {
		case <-b.ctx.Done():
			return
		case ch := <-b.addListener:
			b.listeners = append(b.listeners, ch)
		case ch := <-b.removeListener:
			for i, listener := range b.listeners {
				if listener == ch {
					b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
					close(listener)
					break
				}
			}
		case msg := <-b.source:
			b.deliver(msg)
		}
	}
}

func (b *Bus) deliver(msg Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.numRcv++
	for _, listener := range b.listeners {
		select {
		case listener <- msg:
			b.numSnd++
		case <-time.After(listenerTimeout):
			b.numSkip++
		}
	}
}
