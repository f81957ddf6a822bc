package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/restflow/restflow-go/pkg/apierr"
	"github.com/restflow/restflow-go/pkg/logging"
)

// State is the lifecycle state of a subscription.
type State int32

const (
	// StateIdle is the state before the first connection attempt.
	StateIdle State = iota
	// StateConnecting means a network request is in flight.
	StateConnecting
	// StateOpen means the event stream is established and being consumed.
	StateOpen
	// StateReconnecting means a failed stream is waiting out its backoff.
	StateReconnecting
	// StateClosed is terminal: no stream is open and none will be opened.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// maxBackoff caps the exponential reconnection delay.
const maxBackoff = 30 * time.Second

// Callbacks is the surface through which subscribers receive stream events.
// Nil entries are simply skipped. All callbacks are invoked sequentially
// from the subscription's own goroutine.
type Callbacks struct {
	// OnOpen fires when the stream is established, including after a
	// successful reconnection.
	OnOpen func()

	// OnMessage fires for every data-carrying event whose name is not
	// "error".
	OnMessage func(Event)

	// OnError fires for events the server declared with name "error".
	OnError func(*apierr.Error)

	// OnClose fires when the server ends the stream cleanly. It does not
	// fire on Unsubscribe.
	OnClose func()

	// OnReconnect fires with (attempt, max) before each backoff wait.
	OnReconnect func(attempt, max int)

	// OnMaxReconnects fires once when the attempt budget is exhausted.
	OnMaxReconnects func()
}

// Config controls one subscription.
type Config struct {
	// Client is the HTTP client used for stream requests. It must not
	// have a global timeout, which would kill long-lived streams.
	Client *http.Client

	// Header is sent on every connection attempt.
	Header http.Header

	// MaxReconnects bounds the reconnection attempts after a
	// non-user-initiated failure. Defaults to 5.
	MaxReconnects int

	// ReconnectInterval is the backoff base. The delay before attempt n
	// is min(ReconnectInterval * 2^(n-1), 30s). Defaults to 1s. A retry
	// hint received from the server overrides the base.
	ReconnectInterval time.Duration

	// LastEventID seeds resumption when the subscription takes over an
	// earlier stream's position.
	LastEventID string

	Logger logging.Logger
}

// Subscription owns one logical SSE subscription: at most one network stream
// is open at any time, and the last seen event id is carried across
// reconnections via the Last-Event-ID request header.
type Subscription struct {
	url       string
	header    http.Header
	client    *http.Client
	callbacks Callbacks
	logger    logging.Logger

	maxReconnects int
	baseInterval  time.Duration

	state        atomic.Int32
	unsubscribed atomic.Bool
	cancel       context.CancelFunc
	done         chan struct{}

	// lastEventID is mutated only by the run goroutine's event dispatch;
	// the mutex exists for the public accessor.
	mu          sync.Mutex
	lastEventID string

	attempts int
}

// Subscribe opens a subscription to url and starts consuming it in the
// background. The returned handle is live immediately; the first connection
// attempt happens asynchronously.
func Subscribe(ctx context.Context, url string, cfg Config, cb Callbacks) *Subscription {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = 5
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		url:           url,
		header:        cfg.Header,
		client:        cfg.Client,
		callbacks:     cb,
		logger:        cfg.Logger.WithFields(logging.String("url", url)),
		maxReconnects: cfg.MaxReconnects,
		baseInterval:  cfg.ReconnectInterval,
		cancel:        cancel,
		done:          make(chan struct{}),
		lastEventID:   cfg.LastEventID,
	}
	s.state.Store(int32(StateIdle))

	go s.run(runCtx)
	return s
}

// State returns the current lifecycle state.
func (s *Subscription) State() State {
	return State(s.state.Load())
}

// Connected reports whether the event stream is currently open.
func (s *Subscription) Connected() bool {
	return s.State() == StateOpen
}

// LastEventID returns the id of the most recently observed event.
func (s *Subscription) LastEventID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEventID
}

func (s *Subscription) setLastEventID(id string) {
	s.mu.Lock()
	s.lastEventID = id
	s.mu.Unlock()
}

// Unsubscribe cancels any in-flight network call, suppresses any pending
// reconnection timer and forces the subscription to Closed. OnClose is not
// fired: the caller initiated the shutdown and already knows. Safe to call
// from any state and more than once.
func (s *Subscription) Unsubscribe() {
	if !s.unsubscribed.CompareAndSwap(false, true) {
		return
	}
	s.cancel()
}

// Done is closed when the subscription reaches its terminal state.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// run is the connection state machine. It terminates on clean stream end,
// on unsubscribe and on reconnect exhaustion.
func (s *Subscription) run(ctx context.Context) {
	defer close(s.done)
	defer s.cancel()

	for {
		s.state.Store(int32(StateConnecting))
		body, err := s.connect(ctx)
		if err == nil {
			s.state.Store(int32(StateOpen))
			s.attempts = 0
			s.logger.Debug("stream opened", logging.String("last_event_id", s.LastEventID()))
			if s.callbacks.OnOpen != nil {
				s.callbacks.OnOpen()
			}

			err = s.consume(ctx, body)
			if err == nil {
				// Clean server-side end is terminal, never retried.
				s.state.Store(int32(StateClosed))
				s.logger.Debug("stream ended cleanly")
				if s.callbacks.OnClose != nil {
					s.callbacks.OnClose()
				}
				return
			}
		}

		if s.unsubscribed.Load() || ctx.Err() != nil {
			s.state.Store(int32(StateClosed))
			return
		}

		s.state.Store(int32(StateReconnecting))
		if s.attempts >= s.maxReconnects {
			s.logger.Warn("reconnect budget exhausted",
				logging.Int("max_reconnects", s.maxReconnects), logging.ErrorField(err))
			if s.callbacks.OnMaxReconnects != nil {
				s.callbacks.OnMaxReconnects()
			}
			s.state.Store(int32(StateClosed))
			return
		}

		s.attempts++
		delay := backoffDelay(s.baseInterval, s.attempts)
		s.logger.Debug("reconnecting",
			logging.Int("attempt", s.attempts),
			logging.Int("max", s.maxReconnects),
			logging.Duration("delay", delay),
			logging.ErrorField(err))
		if s.callbacks.OnReconnect != nil {
			s.callbacks.OnReconnect(s.attempts, s.maxReconnects)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			s.state.Store(int32(StateClosed))
			return
		}
	}
}

// connect issues the stream request and validates the response. The caller
// owns the returned body.
func (s *Subscription) connect(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}

	for k, vs := range s.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if id := s.LastEventID(); id != "" {
		req.Header.Set("Last-Event-ID", id)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("stream request failed: HTTP %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("server did not return text/event-stream content type: %q", ct)
	}

	return resp.Body, nil
}

// consume feeds the stream through the frame parser and dispatches events
// until the stream ends. A nil return means the server closed cleanly.
func (s *Subscription) consume(ctx context.Context, body io.ReadCloser) error {
	defer func() {
		_ = body.Close()
	}()

	parser := NewParser()
	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, ev := range parser.Feed(buf[:n]) {
				s.dispatch(ev)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) && ctx.Err() == nil {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

// dispatch routes one parsed event. The id and retry fields are absorbed
// here even for frames that carry no data.
func (s *Subscription) dispatch(ev Event) {
	if ev.ID != "" {
		s.setLastEventID(ev.ID)
	}
	if ev.Retry > 0 {
		s.baseInterval = ev.Retry
	}
	if ev.IsEmpty() {
		return
	}

	if ev.Name == "error" {
		if s.callbacks.OnError != nil {
			s.callbacks.OnError(eventError(ev))
		}
		return
	}
	if s.callbacks.OnMessage != nil {
		s.callbacks.OnMessage(ev)
	}
}

// eventError converts an error-named event's payload into a structured
// error, extracting a code/message pair when the payload carries one.
func eventError(ev Event) *apierr.Error {
	code := 0
	msg := ev.Raw
	if obj, ok := ev.Data.(map[string]any); ok {
		if f, ok := obj["code"].(float64); ok {
			code = int(f)
		}
		if m, ok := obj["message"].(string); ok && m != "" {
			msg = m
		}
	}
	return apierr.New(code, msg, apierr.KindServer)
}

// backoffDelay computes min(base * 2^(attempt-1), 30s).
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
