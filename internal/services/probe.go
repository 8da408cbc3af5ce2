package services

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/songbook/internal/shared"
)

const (
	defaultProbeInterval = 30 * time.Second
	defaultProbeTimeout  = 5 * time.Second
)

// ProbeOpts configures a [ProbeMonitor].
type ProbeOpts struct {
	URL      string
	Interval time.Duration
	Timeout  time.Duration
	Client   *http.Client
	Logger   *log.Logger
}

// ProbeMonitor implements [Connectivity] by sending HEAD requests to a health endpoint.
//
// Any response below 500 counts as online. Transport errors and 5xx responses count as offline.
// An empty URL disables probing and reports online.
type ProbeMonitor struct {
	url      string
	interval time.Duration
	timeout  time.Duration
	client   *http.Client
	logger   *log.Logger

	mu     sync.Mutex
	known  bool
	online bool
	subs   map[int]func(bool)
	nextID int
}

// NewProbeMonitor creates a monitor. Call [ProbeMonitor.Run] to probe periodically.
func NewProbeMonitor(opts ProbeOpts) *ProbeMonitor {
	if opts.Interval <= 0 {
		opts.Interval = defaultProbeInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultProbeTimeout
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}

	return &ProbeMonitor{
		url:      opts.URL,
		interval: opts.Interval,
		timeout:  opts.Timeout,
		client:   opts.Client,
		logger:   opts.Logger,
		subs:     make(map[int]func(bool)),
	}
}

// ProbeMonitorFromConfig builds a [ProbeMonitor] from the network section of the config.
func ProbeMonitorFromConfig(nc shared.NetworkConfig, logger *log.Logger) *ProbeMonitor {
	return NewProbeMonitor(ProbeOpts{
		URL:      nc.ProbeURL,
		Interval: nc.ProbeInterval.Duration,
		Timeout:  nc.ProbeTimeout.Duration,
		Logger:   logger,
	})
}

// Online returns the last probed status, probing first if nothing has been observed yet.
func (p *ProbeMonitor) Online(ctx context.Context) bool {
	p.mu.Lock()
	known, online := p.known, p.online
	p.mu.Unlock()

	if known {
		return online
	}
	return p.Probe(ctx)
}

// Subscribe registers fn for every online/offline transition.
func (p *ProbeMonitor) Subscribe(fn func(online bool)) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}

// Probe checks reachability once, records the result and notifies subscribers if it changed.
func (p *ProbeMonitor) Probe(ctx context.Context) bool {
	online := p.check(ctx)
	p.record(online)
	return online
}

// Run probes immediately and then every interval until ctx is done.
func (p *ProbeMonitor) Run(ctx context.Context) {
	p.Probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}

func (p *ProbeMonitor) check(ctx context.Context) bool {
	if p.url == "" {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		p.logger.Warn("invalid probe request", "url", p.url, "error", err)
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("probe failed", "url", p.url, "error", err)
		return false
	}
	resp.Body.Close()

	return resp.StatusCode < http.StatusInternalServerError
}

func (p *ProbeMonitor) record(online bool) {
	p.mu.Lock()
	changed := p.known && p.online != online
	p.known = true
	p.online = online

	var subs []func(bool)
	if changed {
		subs = make([]func(bool), 0, len(p.subs))
		for _, fn := range p.subs {
			subs = append(subs, fn)
		}
	}
	p.mu.Unlock()

	if !changed {
		return
	}

	p.logger.Info("connectivity changed", "online", online)
	for _, fn := range subs {
		fn(online)
	}
}
