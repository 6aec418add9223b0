package transmit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/DoyleJ11/lcu-draft-client/pkg/types"
)

const DefaultRequestTimeout = 30 * time.Second

// Sink delivers one request. Failures are returned as *SendError.
type Sink interface {
	Send(ctx context.Context, payload any) error
}

var ErrInvalidCredentials = errors.New("workspace credentials rejected")

// HTTPSink posts JSON requests to the draft ingestion endpoint.
type HTTPSink struct {
	endpoint  string
	userAgent string
	client    *http.Client
}

func NewHTTPSink(endpoint, clientVersion string, timeout time.Duration) *HTTPSink {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &HTTPSink{
		endpoint:  endpoint,
		userAgent: "LCU-Client/" + clientVersion,
		client:    &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSink) Send(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &SendError{Kind: KindClient, Err: fmt.Errorf("encode payload: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return &SendError{Kind: KindClient, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)

	return s.do(req)
}

// Validate asks the endpoint whether the workspace credentials are known.
func (s *HTTPSink) Validate(ctx context.Context, workspaceID, passwordHash string) error {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("action", "validate")
	q.Set("workspaceId", workspaceID)
	q.Set("passwordHash", passwordHash)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", s.userAgent)

	err = s.do(req)
	var se *SendError
	if errors.As(err, &se) && (se.Kind == KindAuth || errors.Is(se.Err, ErrRejected)) {
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	return err
}

func (s *HTTPSink) do(req *http.Request) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return &SendError{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return &SendError{Kind: KindNetwork, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &SendError{
			Kind:   KindForStatus(resp.StatusCode),
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%s", truncate(raw, 200)),
		}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	var out types.SinkResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return &SendError{Kind: KindServer, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if !out.Success {
		reason := out.Error
		if reason == "" {
			reason = out.Message
		}
		return &SendError{Kind: KindClient, Status: resp.StatusCode, Err: fmt.Errorf("%w: %s", ErrRejected, reason)}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
