// Package history performs the one-shot REST fetch of prior messages for
// the active conversation.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pairloop/pairlink/pkg/chat"
	"github.com/sethvargo/go-retry"
)

// Loader fetches the conversation history from GET {base}/chat. The
// endpoint returns its window of most recent messages (500 unless a
// smaller limit is requested) newest-first inside a {"data": [...]}
// envelope; Load normalizes the result to oldest-first. The order is
// detected from the timestamps rather than assumed, so a server that
// already returns oldest-first is handled too.
type Loader struct {
	baseURL string
	client  *http.Client
	limit   int
	// retries is the number of additional attempts on 5xx or transport
	// failure. Zero means a single attempt.
	retries uint64
	backoff time.Duration
}

type LoaderOption func(*Loader)

func WithHTTPClient(client *http.Client) LoaderOption {
	return func(l *Loader) {
		l.client = client
	}
}

// WithLimit requests at most n most-recent messages instead of the
// server's default window.
func WithLimit(n int) LoaderOption {
	return func(l *Loader) {
		l.limit = n
	}
}

// WithRetry enables bounded retries with exponential backoff starting at
// base. Only 5xx responses and transport failures are retried.
func WithRetry(attempts uint64, base time.Duration) LoaderOption {
	return func(l *Loader) {
		l.retries = attempts
		l.backoff = base
	}
}

func NewLoader(baseURL string, opts ...LoaderOption) *Loader {
	l := &Loader{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		backoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type envelope struct {
	Data []json.RawMessage `json:"data"`
}

type apiError struct {
	Message string `json:"message"`
	Error_  string `json:"error"`
}

// Load fetches the history window, oldest-first. A 401 maps to
// chat.ErrUnauthenticated; any other failure wraps chat.ErrHistoryLoad.
// On failure the caller's store is untouched: either the whole window is
// returned or none of it.
func (l *Loader) Load(ctx context.Context, token string) ([]chat.Message, error) {
	var msgs []chat.Message
	backoff := retry.WithMaxRetries(l.retries, retry.NewExponential(l.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		msgs, err = l.load(ctx, token)
		return err
	})
	return msgs, err
}

func (l *Loader) load(ctx context.Context, token string) ([]chat.Message, error) {
	url := l.baseURL + "/chat"
	if l.limit > 0 {
		url = fmt.Sprintf("%s?limit=%d", url, l.limit)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrHistoryLoad, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, retry.RetryableError(fmt.Errorf("%w: %v", chat.ErrHistoryLoad, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, chat.ErrUnauthenticated
	}
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr apiError
		json.Unmarshal(body, &apiErr)
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error_
		}
		err := fmt.Errorf("%w: status %d: %s", chat.ErrHistoryLoad, resp.StatusCode, msg)
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, retry.RetryableError(err)
		}
		return nil, err
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", chat.ErrHistoryLoad, err)
	}

	msgs := make([]chat.Message, 0, len(env.Data))
	for _, raw := range env.Data {
		m, err := chat.ParseMessage(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", chat.ErrHistoryLoad, err)
		}
		msgs = append(msgs, m)
	}

	normalize(msgs)
	return msgs, nil
}

// normalize reorders msgs to oldest-first in place. The endpoint contract
// is newest-first, so the common case is a reversal, but the direction is
// checked against the timestamps instead of trusted.
func normalize(msgs []chat.Message) {
	if len(msgs) < 2 {
		return
	}
	if msgs[0].CreatedAt.After(msgs[len(msgs)-1].CreatedAt) {
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
	}
}
