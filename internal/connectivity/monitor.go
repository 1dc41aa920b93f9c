// Package connectivity decides whether the server is reachable.
//
// The native "network changed" signal is only a hint. The authoritative
// answer comes from an active probe run at startup, after every hint and on a
// fixed interval. Listeners are told about transitions only.
package connectivity

import (
	"context"
	"log"
	"os"
	"sync"
	"time"
)

const (
	DefaultInterval = 10 * time.Second
	DefaultTimeout  = 2 * time.Second
)

type Options struct {
	// Interval between periodic probes (default: 10s)
	Interval time.Duration

	// Timeout for a single probe (default: 2s)
	Timeout time.Duration

	// WatchPaths are files whose changes hint at a network change, such as
	// /etc/resolv.conf. Missing paths are skipped.
	WatchPaths []string

	Logger *log.Logger
}

type Monitor struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	paths    []string
	logger   *log.Logger

	mu          sync.Mutex
	online      bool
	nextID      int
	listeners   map[int]func(bool)
	onReconnect []func()

	trigger chan struct{}
	wg      sync.WaitGroup
}

// NewMonitor returns a monitor that reports online until the first probe
// says otherwise.
func NewMonitor(prober Prober, opts *Options) *Monitor {
	if opts == nil {
		opts = &Options{}
	}
	m := &Monitor{
		prober:    prober,
		interval:  opts.Interval,
		timeout:   opts.Timeout,
		paths:     opts.WatchPaths,
		logger:    opts.Logger,
		online:    true,
		listeners: make(map[int]func(bool)),
		trigger:   make(chan struct{}, 1),
	}
	if m.interval <= 0 {
		m.interval = DefaultInterval
	}
	if m.timeout <= 0 {
		m.timeout = DefaultTimeout
	}
	if m.logger == nil {
		m.logger = log.New(os.Stderr, "[connectivity] ", log.LstdFlags)
	}
	return m
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers fn for online/offline transitions and returns a func
// that removes it.
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// OnReconnect registers fn for offline to online transitions.
func (m *Monitor) OnReconnect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnect = append(m.onReconnect, fn)
}

// Start runs the initial probe, the periodic probe and the file watcher in the
// background until ctx is cancelled. Wait blocks until they have exited.
func (m *Monitor) Start(ctx context.Context) {
	if len(m.paths) > 0 {
		w, err := newPathWatcher(m.paths, m.Trigger, m.logger)
		if err != nil {
			m.logger.Printf("network change watcher disabled: %v", err)
		} else {
			m.wg.Add(1)
			go func() {
				defer m.wg.Done()
				w.run(ctx)
			}()
		}
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.loop(ctx)
	}()
}

func (m *Monitor) Wait() {
	m.wg.Wait()
}

func (m *Monitor) loop(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		case <-m.trigger:
			m.Check(ctx)
		}
	}
}

// Trigger asks for a probe soon. Calls coalesce while one is queued.
func (m *Monitor) Trigger() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// NotifyOffline records a platform "offline" event: the state flips at once
// and a probe is queued to confirm.
func (m *Monitor) NotifyOffline() {
	m.set(false)
	m.Trigger()
}

// NotifyOnline records a platform "online" event. The state is optimistic
// until the queued probe confirms it.
func (m *Monitor) NotifyOnline() {
	m.set(true)
	m.Trigger()
}

// Check probes once, updates the state and returns it.
func (m *Monitor) Check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.prober.Probe(probeCtx)
	if ctx.Err() != nil {
		return m.Online()
	}
	if err != nil {
		m.logger.Printf("server unreachable: %v", err)
	}
	online := err == nil
	m.set(online)
	return online
}

func (m *Monitor) set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online

	listeners := make([]func(bool), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	var reconnect []func()
	if online {
		reconnect = append(reconnect, m.onReconnect...)
	}
	m.mu.Unlock()

	if online {
		m.logger.Printf("connectivity restored")
	} else {
		m.logger.Printf("connectivity lost")
	}

	for _, fn := range listeners {
		fn(online)
	}
	for _, fn := range reconnect {
		fn()
	}
}
