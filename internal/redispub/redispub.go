// Package redispub mirrors classification output into Redis for other
// LAN consumers (Node-RED flows, wall displays). Redis is optional:
// when the server is unreachable the publisher drops into offline mode
// and publishes become logged no-ops, so the daemon never depends on
// it being there.
package redispub

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/stride-data/activity.report/internal/har"
	"github.com/stride-data/activity.report/internal/monitoring"
	"github.com/stride-data/activity.report/internal/timeutil"
)

const (
	// DefaultPrefix roots every key the publisher writes.
	DefaultPrefix = "activity"

	// DefaultRingSize is how many predictions the recent list keeps.
	DefaultRingSize = 100

	// DefaultResultTTL expires the latest-prediction key so consumers
	// cannot read hours-stale activity off a stopped daemon.
	DefaultResultTTL = 10 * time.Minute

	// statusTTL lets consumers tell a stopped daemon from a quiet one:
	// the status key disappears when publishes stop.
	statusTTL = 5 * time.Minute

	pingTimeout   = 5 * time.Second
	writeTimeout  = 5 * time.Second
	retryInterval = 30 * time.Second
	queueSize     = 256
)

type itemKind int

const (
	statusItem itemKind = iota
	predictionItem
)

type queued struct {
	kind    itemKind
	payload []byte
}

type predictionPayload struct {
	har.PredictionResult
	TS int64 `json:"ts"`
}

type statusPayload struct {
	Status string `json:"status"`
	TS     int64  `json:"ts"`
}

// Config tunes a Publisher. An empty Addr disables it entirely.
type Config struct {
	Addr     string
	Password string
	DB       int

	// Prefix overrides the key prefix. Empty means DefaultPrefix.
	Prefix string

	// ResultTTL expires the latest-prediction key. Zero means
	// DefaultResultTTL.
	ResultTTL time.Duration

	// RingSize bounds the recent-prediction list. Zero means
	// DefaultRingSize.
	RingSize int

	// Clock drives timestamps and the offline retry schedule.
	Clock timeutil.Clock
}

var _ har.Sink = (*Publisher)(nil)

// Publisher queues pipeline output onto a writer goroutine that
// mirrors it into Redis: the latest prediction under
// <prefix>:prediction:latest, a trimmed ring of recent ones under
// <prefix>:prediction:recent, and the status line with a TTL under
// <prefix>:status. Publishes never block the caller.
type Publisher struct {
	client    *redis.Client
	prefix    string
	resultTTL time.Duration
	ringSize  int
	clock     timeutil.Clock
	queue     chan queued
	done      chan struct{}

	mu       sync.Mutex
	closed   bool
	online   bool
	lastPing time.Time

	dropped atomic.Uint64
}

// New builds the publisher and pings the server once. A failed ping
// starts it offline; writes re-ping on a slow schedule and recover
// when the server comes back.
func New(cfg Config) *Publisher {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = DefaultResultTTL
	}
	if cfg.RingSize < 1 {
		cfg.RingSize = DefaultRingSize
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	p := &Publisher{
		prefix:    cfg.Prefix,
		resultTTL: cfg.ResultTTL,
		ringSize:  cfg.RingSize,
		clock:     cfg.Clock,
	}
	if cfg.Addr == "" {
		monitoring.Logf("redispub: no address configured, publisher disabled")
		return p
	}

	p.client = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	p.lastPing = p.clock.Now()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := p.client.Ping(ctx).Err(); err != nil {
		monitoring.Logf("redispub: %s unreachable, starting offline: %v", cfg.Addr, err)
	} else {
		p.online = true
		monitoring.Logf("redispub: connected to %s", cfg.Addr)
	}

	p.queue = make(chan queued, queueSize)
	p.done = make(chan struct{})
	go p.run()
	return p
}

// Close drains the queue and disconnects. Publishes after Close are
// dropped.
func (p *Publisher) Close() {
	if p.client == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.queue)
	<-p.done
	p.client.Close()
}

// Online reports whether the last Redis interaction succeeded.
func (p *Publisher) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

// Dropped reports publishes lost to a full queue or a dead server.
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

// PublishStatus mirrors an operator status line.
func (p *Publisher) PublishStatus(status string) {
	p.enqueue(statusItem, statusPayload{Status: status, TS: p.clock.Now().UnixMilli()})
}

// PublishResult mirrors one classified window.
func (p *Publisher) PublishResult(result har.PredictionResult) {
	p.enqueue(predictionItem, predictionPayload{PredictionResult: result, TS: p.clock.Now().UnixMilli()})
}

func (p *Publisher) enqueue(kind itemKind, v interface{}) {
	if p.client == nil {
		return
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		p.dropped.Add(1)
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		monitoring.Logf("redispub: marshaling %T: %v", v, err)
		return
	}
	select {
	case p.queue <- queued{kind: kind, payload: payload}:
	default:
		p.dropped.Add(1)
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for item := range p.queue {
		p.write(item)
	}
}

func (p *Publisher) write(item queued) {
	if !p.ensureOnline() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	pipe := p.client.Pipeline()
	switch item.kind {
	case statusItem:
		pipe.Set(ctx, p.statusKey(), item.payload, statusTTL)
	case predictionItem:
		pipe.Set(ctx, p.latestKey(), item.payload, p.resultTTL)
		pipe.LPush(ctx, p.recentKey(), item.payload)
		pipe.LTrim(ctx, p.recentKey(), 0, int64(p.ringSize)-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		p.mu.Lock()
		p.online = false
		p.lastPing = p.clock.Now()
		p.mu.Unlock()
		p.dropped.Add(1)
		monitoring.Logf("redispub: write failed, going offline: %v", err)
	}
}

// ensureOnline re-pings a dead server at most once per retryInterval,
// so an absent Redis costs one connection attempt every 30 s instead
// of one per prediction.
func (p *Publisher) ensureOnline() bool {
	p.mu.Lock()
	if p.online {
		p.mu.Unlock()
		return true
	}
	if p.clock.Since(p.lastPing) < retryInterval {
		p.mu.Unlock()
		p.dropped.Add(1)
		return false
	}
	p.lastPing = p.clock.Now()
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := p.client.Ping(ctx).Err(); err != nil {
		p.dropped.Add(1)
		return false
	}
	p.mu.Lock()
	p.online = true
	p.mu.Unlock()
	monitoring.Logf("redispub: server is back, resuming publishes")
	return true
}

func (p *Publisher) key(parts ...string) string {
	return p.prefix + ":" + strings.Join(parts, ":")
}

func (p *Publisher) latestKey() string { return p.key("prediction", "latest") }
func (p *Publisher) recentKey() string { return p.key("prediction", "recent") }
func (p *Publisher) statusKey() string { return p.key("status") }
