// Package netmon tracks network connectivity and tells subscribers about
// online/offline transitions.
package netmon

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Monitor holds the current connectivity state.
//
// Host integrations report transitions with Set; RunProbe derives them by
// polling. Subscribers are called only on change, in subscription order,
// without the monitor lock held.
//
// Thread-safety: Monitor is safe for concurrent use.
type Monitor struct {
	mu      sync.Mutex
	online  bool
	subs    map[int]func(bool)
	nextSub int
	log     *zap.Logger
}

// New creates a monitor with the given initial state.
func New(initial bool, log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{online: initial, subs: make(map[int]func(bool)), log: log}
}

// Online reports the last known state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records a state and notifies subscribers if it changed.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]func(bool), 0, len(m.subs))
	for id := 0; id < m.nextSub; id++ {
		if fn, ok := m.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	m.mu.Unlock()

	m.log.Info("Connectivity changed", zap.Bool("online", online))
	for _, fn := range subs {
		fn(online)
	}
}

// Subscribe registers fn and returns a function that removes it.
func (m *Monitor) Subscribe(fn func(online bool)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// Prober performs one connectivity check.
type Prober interface {
	Probe(ctx context.Context) bool
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) bool

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context) bool { return f(ctx) }

// RunProbe checks p immediately and then every interval, feeding results
// into Set, until ctx is done.
func (m *Monitor) RunProbe(ctx context.Context, p Prober, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		online := p.Probe(ctx)
		if ctx.Err() != nil {
			// A probe cut short by shutdown says nothing about the network.
			return
		}
		m.Set(online)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// HTTPProber treats any HTTP response below 500 from URL as online.
type HTTPProber struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
}

// Probe issues a HEAD request.
func (p HTTPProber) Probe(ctx context.Context) bool {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

// String describes the prober for logs.
func (p HTTPProber) String() string {
	return fmt.Sprintf("HEAD %s", p.URL)
}
