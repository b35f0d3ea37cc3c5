// Package webhook forwards agent alerts to an external HTTP endpoint.
package webhook

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jmcleod/remotehand/agent"
)

// queueSize is the bounded channel capacity for outbound alerts.
const queueSize = 256

// Dispatcher posts alerts to a URL. Alerts are enqueued without blocking
// and sent by a background goroutine; when the queue is full they are
// dropped.
type Dispatcher struct {
	url        string
	authHeader string // "Header: Value", e.g. "Authorization: Bearer xxx"
	client     *http.Client
	logger     *slog.Logger
	retryDelay time.Duration

	events chan agent.AlertEvent
	wg     sync.WaitGroup
	once   sync.Once
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithAuthHeader sets a header sent with every request, given as
// "Name: value".
func WithAuthHeader(h string) Option {
	return func(d *Dispatcher) { d.authHeader = h }
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// New creates a dispatcher and starts its background loop.
func New(url string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		url:        url,
		client:     &http.Client{Timeout: 10 * time.Second},
		retryDelay: time.Second,
		events:     make(chan agent.AlertEvent, queueSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

// Alert enqueues e. It never blocks and has the signature of
// agent.AlertFunc.
func (d *Dispatcher) Alert(e agent.AlertEvent) {
	select {
	case d.events <- e:
	default:
		d.logger.Warn("alert webhook: queue full, dropping alert", "type", e.Type)
	}
}

// Close stops the dispatcher after draining queued alerts. Alert must not be
// called after Close.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.events)
		d.wg.Wait()
	})
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for e := range d.events {
		d.send(e)
	}
}

// send POSTs the alert with one retry on 5xx or transport errors.
func (d *Dispatcher) send(e agent.AlertEvent) {
	body, err := json.Marshal(e)
	if err != nil {
		d.logger.Warn("alert webhook: marshal failed", "error", err)
		return
	}

	for attempt := range 2 {
		if attempt > 0 {
			time.Sleep(d.retryDelay)
		}

		req, err := http.NewRequest(http.MethodPost, d.url, bytes.NewReader(body))
		if err != nil {
			d.logger.Warn("alert webhook: request creation failed", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "RemoteHand-Alert-Webhook/1.0")
		if name, value, ok := strings.Cut(d.authHeader, ":"); ok {
			req.Header.Set(strings.TrimSpace(name), strings.TrimSpace(value))
		}

		resp, err := d.client.Do(req)
		if err != nil {
			d.logger.Warn("alert webhook: request failed", "error", err, "attempt", attempt+1)
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return
		case resp.StatusCode >= 500:
			d.logger.Warn("alert webhook: server error", "status", resp.StatusCode, "attempt", attempt+1)
			continue
		}
		d.logger.Warn("alert webhook: client error", "status", resp.StatusCode)
		return
	}
}
