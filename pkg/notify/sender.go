// Package notify delivers reminder texts through the tenant's messaging
// instance on an HTTP gateway.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Sender delivers one text message to one phone through a tenant's instance.
type Sender interface {
	SendText(ctx context.Context, instance, phone, text string) error
}

type HTTPOptions struct {
	BaseURL     string
	APIKey      string
	HTTPClient  *http.Client
	RetryPolicy RetryPolicy
}

// HTTPSender posts messages to {BaseURL}/message/sendText/{instance}. Posts to
// one instance are spaced by the policy's InstanceInterval, since the gateway
// drives a single phone session per instance.
type HTTPSender struct {
	baseURL     *url.URL
	apiKey      string
	httpClient  *http.Client
	retryPolicy RetryPolicy
	retryStatus map[int]struct{}
	rngMu       sync.Mutex
	rng         *rand.Rand

	paceMu   sync.Mutex
	nextSlot map[string]time.Time
}

func NewHTTPSender(opts HTTPOptions) (*HTTPSender, error) {
	if opts.BaseURL == "" {
		return nil, ErrInvalidArgument
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if err := opts.RetryPolicy.Validate(); err != nil {
		return nil, err
	}

	parsed, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, err
	}

	retryStatus := make(map[int]struct{}, len(opts.RetryPolicy.RetryStatusCodes))
	for _, code := range opts.RetryPolicy.RetryStatusCodes {
		retryStatus[code] = struct{}{}
	}

	return &HTTPSender{
		baseURL:     parsed,
		apiKey:      opts.APIKey,
		httpClient:  opts.HTTPClient,
		retryPolicy: opts.RetryPolicy,
		retryStatus: retryStatus,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		nextSlot:    make(map[string]time.Time),
	}, nil
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

func (s *HTTPSender) SendText(ctx context.Context, instance, phone, text string) error {
	if instance == "" {
		return fmt.Errorf("%w: instance is required", ErrInvalidArgument)
	}
	if phone == "" {
		return ErrNoRecipient
	}
	body, err := json.Marshal(sendTextRequest{Number: phone, Text: text})
	if err != nil {
		return err
	}
	endpoint := s.baseURL.String() + "/message/sendText/" + url.PathEscape(instance)
	return s.do(ctx, instance, endpoint, body)
}

func (s *HTTPSender) do(ctx context.Context, instance, endpoint string, body []byte) error {
	var attempt uint32
	for {
		attempt++
		if err := Wait(ctx, s.reserve(instance)); err != nil {
			return err
		}
		err := s.post(ctx, endpoint, body)
		if err == nil {
			return nil
		}
		if attempt >= s.retryPolicy.MaxAttempts {
			return errors.Join(ErrRetryExhausted, err)
		}
		if !s.shouldRetry(err) {
			return err
		}
		if werr := Wait(ctx, s.nextDelay(attempt, err)); werr != nil {
			return werr
		}
	}
}

func (s *HTTPSender) post(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("apikey", s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("send failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			RetryAfter: retryAfter(resp.Header, time.Now()),
		}
	}
	_, err = io.Copy(io.Discard, resp.Body)
	return err
}

func (s *HTTPSender) shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		_, ok := s.retryStatus[httpErr.StatusCode]
		return ok
	}
	return true
}

// reserve books the instance's next free slot and returns how long to wait
// for it.
func (s *HTTPSender) reserve(instance string) time.Duration {
	gap := s.retryPolicy.InstanceInterval
	if gap <= 0 {
		return 0
	}
	s.paceMu.Lock()
	defer s.paceMu.Unlock()

	now := time.Now()
	slot := s.nextSlot[instance]
	if slot.Before(now) {
		slot = now
	}
	s.nextSlot[instance] = slot.Add(gap)
	return slot.Sub(now)
}

func (s *HTTPSender) nextDelay(attempt uint32, err error) time.Duration {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return min(httpErr.RetryAfter, s.retryPolicy.MaxDelay)
	}
	delay := s.retryPolicy.BaseDelay * (1 << (attempt - 1))
	if delay > s.retryPolicy.MaxDelay {
		delay = s.retryPolicy.MaxDelay
	}
	if s.retryPolicy.Jitter > 0 {
		delay += s.randomJitter(s.retryPolicy.Jitter)
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}

func (s *HTTPSender) randomJitter(maxJitter time.Duration) time.Duration {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()

	jitter := time.Duration(s.rng.Int63n(int64(maxJitter)))
	return jitter - maxJitter/2
}
