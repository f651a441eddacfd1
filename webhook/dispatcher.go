package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/woojubb/robota-go/core"
	"github.com/woojubb/robota-go/logging"
)

// Endpoint is one configured delivery target.
type Endpoint struct {
	// URL receives the HTTP POST.
	URL string
	// Secret, when set, enables payload signing.
	Secret string
	// Events narrows which events this endpoint receives. Empty means
	// every event the dispatcher handles.
	Events []string
	// Retries overrides the dispatcher's default retry count. Nil uses
	// the default.
	Retries *int
	// Headers are added to every request to this endpoint.
	Headers map[string]string
}

func (e Endpoint) wants(event string) bool {
	if len(e.Events) == 0 {
		return true
	}
	for _, ev := range e.Events {
		if ev == event {
			return true
		}
	}
	return false
}

// BatchOptions configure payload batching.
type BatchOptions struct {
	// Enabled accumulates payloads instead of delivering them one by one.
	Enabled bool
	// MaxSize flushes the batch when it reaches this many payloads.
	MaxSize int
	// FlushInterval flushes a partial batch periodically.
	FlushInterval time.Duration
}

// Options configure a Dispatcher.
type Options struct {
	// Endpoints are the delivery targets.
	Endpoints []Endpoint

	// AllowedEvents is the global set of event names the dispatcher
	// handles; everything else is dropped at SendWebhook. Empty defaults
	// to the full runtime taxonomy.
	AllowedEvents []string

	// MaxConcurrency bounds in-flight HTTP requests. Default: 5.
	MaxConcurrency int64

	// MaxRetries is the default retry count after the initial attempt.
	// Default: 3.
	MaxRetries int

	// BackoffBase seeds the exponential retry delay, BackoffCap caps it.
	// Defaults: 1s and 30s.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// Timeout bounds one delivery attempt. Default: 10s.
	Timeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client

	// Batch configures optional payload batching.
	Batch BatchOptions

	// Logger receives delivery diagnostics. Defaults to NoOp.
	Logger logging.Logger
}

// Payload is the wire format of one delivery.
type Payload struct {
	Event       string         `json:"event"`
	Timestamp   string         `json:"timestamp"`
	ExecutionID string         `json:"executionId,omitempty"`
	SessionID   string         `json:"sessionId,omitempty"`
	UserID      string         `json:"userId,omitempty"`
	Data        any            `json:"data"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// request is one queued or in-flight delivery. Transient: it exists only
// while queued, in flight or awaiting a retry.
type request struct {
	endpoint Endpoint
	event    string
	body     []byte
	attempt  int
}

// Dispatcher is the outbound notification pipeline.
type Dispatcher struct {
	opts   Options
	logger logging.Logger
	client *http.Client
	sem    *semaphore.Weighted

	mu     sync.Mutex
	queue  []*request
	closed bool

	batchMu sync.Mutex
	batch   []Payload

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// NewDispatcher creates and starts a dispatcher. Callers must Close it to
// stop the worker loop and flush timers.
func NewDispatcher(optFns ...func(o *Options)) *Dispatcher {
	opts := Options{
		MaxConcurrency: 5,
		MaxRetries:     3,
		BackoffBase:    time.Second,
		BackoffCap:     30 * time.Second,
		Timeout:        10 * time.Second,
		UserAgent:      "robota-webhook/1.0",
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 1
	}
	if len(opts.AllowedEvents) == 0 {
		for _, t := range core.AllEventTypes() {
			opts.AllowedEvents = append(opts.AllowedEvents, string(t))
		}
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	d := &Dispatcher{
		opts:   opts,
		logger: opts.Logger,
		client: client,
		sem:    semaphore.NewWeighted(opts.MaxConcurrency),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	if opts.Batch.Enabled && opts.Batch.FlushInterval > 0 {
		d.wg.Add(1)
		go d.batchLoop(opts.Batch.FlushInterval)
	}

	return d
}

// SendWebhook queues a notification for delivery to every matching endpoint.
// It resolves as soon as the work is queued; delivery failures are retried
// internally and, once retries are exhausted, logged and dropped. They are
// never surfaced to the caller.
func (d *Dispatcher) SendWebhook(ctx context.Context, event string, data any, metadata map[string]any) error {
	if !d.allowed(event) {
		d.logger.Debug("webhook event not configured, dropped", "event", event)
		return nil
	}

	p := Payload{
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
		Metadata:  metadata,
	}

	if d.opts.Batch.Enabled {
		d.addToBatch(p)
		return nil
	}
	return d.fanOut(p)
}

// SendEnvelope relays a bus envelope, carrying its correlation ids into the
// wire payload.
func (d *Dispatcher) SendEnvelope(ctx context.Context, env core.Envelope) error {
	event := string(env.Type)
	if !d.allowed(event) {
		return nil
	}

	p := Payload{
		Event:       event,
		Timestamp:   env.Timestamp.UTC().Format(time.RFC3339),
		ExecutionID: env.ExecutionID,
		SessionID:   env.SessionID,
		UserID:      env.UserID,
		Data:        env.Payload,
	}
	if env.Error != "" {
		p.Metadata = map[string]any{"error": env.Error}
	}

	if d.opts.Batch.Enabled {
		d.addToBatch(p)
		return nil
	}
	return d.fanOut(p)
}

// Attach subscribes the dispatcher to every allowed event type on the bus,
// relaying matching envelopes asynchronously to external endpoints.
func (d *Dispatcher) Attach(bus *core.Bus) {
	for _, event := range d.opts.AllowedEvents {
		bus.On(core.EventType(event), func(ctx context.Context, env core.Envelope) error {
			return d.SendEnvelope(ctx, env)
		})
	}
}

// Close stops accepting work, waits for in-flight deliveries and stops the
// worker and flush loops. Requests awaiting a retry are dropped.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	close(d.done)
	d.wg.Wait()
}

func (d *Dispatcher) allowed(event string) bool {
	for _, ev := range d.opts.AllowedEvents {
		if ev == event {
			return true
		}
	}
	return false
}

// fanOut marshals the payload once and queues one delivery per matching
// endpoint.
func (d *Dispatcher) fanOut(p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("robota: marshal webhook payload: %w", err)
	}

	for _, ep := range d.opts.Endpoints {
		if !ep.wants(p.Event) {
			continue
		}
		d.enqueue(&request{endpoint: ep, event: p.Event, body: body, attempt: 1})
	}
	return nil
}

func (d *Dispatcher) enqueue(req *request) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Debug("dispatcher closed, webhook dropped", "endpoint", req.endpoint.URL, "event", req.event)
		return
	}
	d.queue = append(d.queue, req)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) dequeue() *request {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return nil
	}
	req := d.queue[0]
	d.queue = d.queue[1:]
	return req
}

// run is the worker loop. Acquiring the semaphore before spawning the
// delivery goroutine keeps dispatch order FIFO and bounds in-flight requests
// at MaxConcurrency.
func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		req := d.dequeue()
		if req == nil {
			select {
			case <-d.done:
				return
			case <-d.wake:
				continue
			}
		}

		if err := d.sem.Acquire(context.Background(), 1); err != nil {
			return
		}

		d.wg.Add(1)
		go func(req *request) {
			defer d.wg.Done()
			defer d.sem.Release(1)
			d.deliver(req)
		}(req)
	}
}

// deliver performs one HTTP POST and schedules a retry on failure.
func (d *Dispatcher) deliver(req *request) {
	start := time.Now()
	err := d.post(req)
	dur := time.Since(start)

	if err == nil {
		d.logger.Info("webhook delivered",
			"endpoint", req.endpoint.URL, "event", req.event, "attempt", req.attempt, "duration", dur)
		return
	}

	retries := d.opts.MaxRetries
	if req.endpoint.Retries != nil {
		retries = *req.endpoint.Retries
	}

	if req.attempt > retries {
		d.logger.Error("webhook delivery abandoned",
			"endpoint", req.endpoint.URL, "event", req.event, "attempts", req.attempt, "error", err)
		return
	}

	delay := d.backoff(req.attempt)
	d.logger.Warn("webhook delivery failed, retrying",
		"endpoint", req.endpoint.URL, "event", req.event, "attempt", req.attempt, "delay", delay, "error", err)

	next := *req
	next.attempt++
	time.AfterFunc(delay, func() { d.enqueue(&next) })
}

func (d *Dispatcher) post(req *request) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.endpoint.URL, bytes.NewReader(req.body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", d.opts.UserAgent)
	for k, v := range req.endpoint.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.endpoint.Secret != "" {
		httpReq.Header.Set(SignatureHeader, ComputeSignature(req.body, req.endpoint.Secret))
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// backoff returns min(BackoffBase × 2^(attempt-1), BackoffCap).
func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.opts.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= d.opts.BackoffCap {
			return d.opts.BackoffCap
		}
	}
	if delay > d.opts.BackoffCap {
		delay = d.opts.BackoffCap
	}
	return delay
}

func (d *Dispatcher) addToBatch(p Payload) {
	var flush []Payload

	d.batchMu.Lock()
	d.batch = append(d.batch, p)
	if d.opts.Batch.MaxSize > 0 && len(d.batch) >= d.opts.Batch.MaxSize {
		flush = d.batch
		d.batch = nil
	}
	d.batchMu.Unlock()

	if flush != nil {
		d.flushBatch(flush)
	}
}

// FlushBatch delivers any accumulated batch immediately.
func (d *Dispatcher) FlushBatch() {
	d.batchMu.Lock()
	flush := d.batch
	d.batch = nil
	d.batchMu.Unlock()

	if len(flush) > 0 {
		d.flushBatch(flush)
	}
}

// flushBatch wraps accumulated payloads into a single custom event.
func (d *Dispatcher) flushBatch(batch []Payload) {
	wrapper := Payload{
		Event:     string(core.EventCustom),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data:      map[string]any{"events": batch, "count": len(batch)},
	}
	if err := d.fanOut(wrapper); err != nil {
		d.logger.Error("batch flush failed", "error", err)
	}
}

func (d *Dispatcher) batchLoop(interval time.Duration) {
	defer d.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.done:
			d.FlushBatch()
			return
		case <-ticker.C:
			d.FlushBatch()
		}
	}
}
