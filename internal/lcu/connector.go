package lcu

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

var ErrNotConnected = errors.New("league client not connected")

type ConnectorOption func(*Connector)

// WithLockfile points discovery at one lockfile instead of the defaults.
func WithLockfile(path string) ConnectorOption {
	return func(c *Connector) { c.lockfile = path }
}

// WithCredentials skips lockfile discovery.
func WithCredentials(port int, password string) ConnectorOption {
	return func(c *Connector) {
		if port > 0 && password != "" {
			c.fixed = &Credentials{Port: port, Password: password, Protocol: "https"}
		}
	}
}

func WithRequestTimeout(d time.Duration) ConnectorOption {
	return func(c *Connector) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithReconnectBackOff supplies the policy between connection attempts.
func WithReconnectBackOff(newBackOff func() backoff.BackOff) ConnectorOption {
	return func(c *Connector) { c.newBackOff = newBackOff }
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// Connector keeps a connection to the client alive and feeds its events to
// a handler.
type Connector struct {
	handler        EventHandler
	logger         *zap.Logger
	lockfile       string
	fixed          *Credentials
	requestTimeout time.Duration
	newBackOff     func() backoff.BackOff
	transport      http.RoundTripper

	restURL func(Credentials) string
	wsURL   func(Credentials) string

	mu     sync.RWMutex
	client *Client
}

func NewConnector(h EventHandler, logger *zap.Logger, opts ...ConnectorOption) *Connector {
	c := &Connector{
		handler:        h,
		logger:         logger,
		requestTimeout: 10 * time.Second,
		newBackOff:     defaultBackOff,
		transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // local self-signed cert
		},
		restURL: func(cr Credentials) string { return fmt.Sprintf("https://127.0.0.1:%d", cr.Port) },
		wsURL:   func(cr Credentials) string { return fmt.Sprintf("wss://127.0.0.1:%d/", cr.Port) },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChampSelectSession asks the connected client for the current session.
func (c *Connector) ChampSelectSession(ctx context.Context) (json.RawMessage, error) {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil {
		return nil, ErrNotConnected
	}
	return client.ChampSelectSession(ctx)
}

func (c *Connector) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil
}

// Run connects and reconnects until ctx ends.
func (c *Connector) Run(ctx context.Context) error {
	b := backoff.WithContext(c.newBackOff(), ctx)
	b.Reset()

	for {
		connected, err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			b.Reset()
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return err
		}
		c.logger.Info("league client unavailable, retrying",
			zap.Duration("in", wait), zap.Error(err))

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (c *Connector) credentials() (Credentials, error) {
	if c.fixed != nil {
		return *c.fixed, nil
	}
	return Discover(c.lockfile)
}

// runOnce holds one connection until it drops. connected reports whether the
// handler was told about it.
func (c *Connector) runOnce(ctx context.Context) (connected bool, err error) {
	creds, err := c.credentials()
	if err != nil {
		return false, err
	}

	client := NewClient(c.restURL(creds), creds.Password,
		&http.Client{Timeout: c.requestTimeout, Transport: c.transport})

	dialCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	stream, err := DialEvents(dialCtx, c.wsURL(creds), creds.Password,
		&http.Client{Transport: c.transport}, c.logger)
	cancel()
	if err != nil {
		return false, err
	}
	defer stream.Close()

	if err := stream.Subscribe(ctx, Topics...); err != nil {
		return false, err
	}

	c.setClient(client)
	defer c.setClient(nil)

	c.logger.Info("connected to league client", zap.Int("port", creds.Port))
	c.handler.OnConnected()
	c.seed(ctx, client)

	err = stream.Run(ctx, c.handler)
	if ctx.Err() == nil {
		if err == nil {
			err = errors.New("client closed the connection")
		}
		c.logger.Warn("league client connection lost", zap.Error(err))
		c.handler.OnDisconnected(err)
	}
	return true, err
}

// seed replays the current lobby and phase so a monitor started mid-flow
// catches up. Lobby goes first so its id is known before champ select.
func (c *Connector) seed(ctx context.Context, client *Client) {
	if lobby, err := client.Lobby(ctx); err != nil {
		c.logger.Debug("lobby lookup failed", zap.Error(err))
	} else if !isNull(lobby) {
		c.handler.OnLobby(lobby)
	}

	phase, err := client.GameflowPhase(ctx)
	if err != nil {
		c.logger.Debug("gameflow lookup failed", zap.Error(err))
		return
	}
	c.handler.OnPhase(phase)
}

func (c *Connector) setClient(client *Client) {
	c.mu.Lock()
	c.client = client
	c.mu.Unlock()
}
