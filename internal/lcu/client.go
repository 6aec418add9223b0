package lcu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	pathGameflowPhase = "/lol-gameflow/v1/gameflow-phase"
	pathSession       = "/lol-champ-select/v1/session"
	pathLobby         = "/lol-lobby/v2/lobby"

	username = "riot"
)

// APIError is a non-2xx answer from the client's REST API.
type APIError struct {
	Status int
	Path   string
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lcu %s: status %d: %s", e.Path, e.Status, e.Body)
}

// Client talks to the client's local REST API.
type Client struct {
	baseURL  string
	password string
	http     *http.Client
}

// NewClient builds a client for baseURL. hc carries the TLS setup.
func NewClient(baseURL, password string, hc *http.Client) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		password: password,
		http:     hc,
	}
}

// GameflowPhase returns the current phase, e.g. "ChampSelect".
func (c *Client) GameflowPhase(ctx context.Context) (string, error) {
	raw, err := c.get(ctx, pathGameflowPhase)
	if err != nil {
		return "", err
	}
	var phase string
	if err := json.Unmarshal(raw, &phase); err != nil {
		return "", fmt.Errorf("decode gameflow phase: %w", err)
	}
	return phase, nil
}

// ChampSelectSession returns the raw session, or nil outside champ select.
func (c *Client) ChampSelectSession(ctx context.Context) (json.RawMessage, error) {
	return c.optional(ctx, pathSession)
}

// Lobby returns the raw lobby, or nil when the player is in none.
func (c *Client) Lobby(ctx context.Context) (json.RawMessage, error) {
	return c.optional(ctx, pathLobby)
}

func (c *Client) optional(ctx context.Context, path string) (json.RawMessage, error) {
	raw, err := c.get(ctx, path)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return nil, nil
	}
	return raw, err
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(username, c.password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > 512 {
			body = body[:512]
		}
		return nil, &APIError{Status: resp.StatusCode, Path: path, Body: string(body)}
	}
	return json.RawMessage(body), nil
}
