// Package server implements the main Metridex server logic.
//
// This file defines the refresh workers. Each worker periodically rebuilds
// the index of one query from its corpus source, so a long-running server
// picks up corpus changes without a restart. The rebuilt index is swapped in
// atomically by the query itself; in-flight fetches keep reading the old
// index until the swap completes.

package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Refresher is the worker that represents a single refresh schedule.
type Refresher struct {
	config       RefreshConfig
	server       *Server
	ticker       *time.Ticker
	stopCh       chan struct{}
	lastRun      atomic.Value // time.Time of the last completed refresh
	currentState atomic.Value // "idle" or "refreshing"
	wg           *sync.WaitGroup
}

// NewRefresher creates a new worker for a refresh schedule.
func NewRefresher(config RefreshConfig, server *Server, wg *sync.WaitGroup) (*Refresher, error) {
	interval, err := time.ParseDuration(config.Interval)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh interval for query '%s': %w", config.Query, err)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("refresh interval for query '%s' must be positive, got %s", config.Query, config.Interval)
	}

	// The slug must resolve now; a typo in the configuration should stop
	// startup instead of logging forever at runtime.
	if _, err := server.Registry.Lookup(config.Query); err != nil {
		return nil, fmt.Errorf("refresh schedule references unknown query '%s'", config.Query)
	}

	rf := &Refresher{
		config: config,
		server: server,
		ticker: time.NewTicker(interval),
		stopCh: make(chan struct{}),
		wg:     wg,
	}

	slog.Info("refresher initialized", "query", config.Query, "interval", config.Interval)
	return rf, nil
}

// run is the core loop of the worker. The index was already built when the
// query was registered, so unlike a cold-start sync there is no initial
// refresh; the worker just waits for ticker events or a stop signal.
func (rf *Refresher) run() {
	defer rf.wg.Done()
	defer slog.Info("refresher stopped", "query", rf.config.Query)

	rf.currentState.Store("idle")
	for {
		select {
		case <-rf.ticker.C:
			rf.currentState.Store("refreshing")
			rf.refresh()
			rf.lastRun.Store(time.Now())
			rf.currentState.Store("idle")
		case <-rf.stopCh:
			rf.ticker.Stop()
			return
		}
	}
}

// refresh rebuilds the query index once. Failures are logged and the old
// index stays live; the next tick tries again.
func (rf *Refresher) refresh() {
	if err := rf.server.Registry.Reload(context.Background(), rf.config.Query); err != nil {
		slog.Error("periodic refresh failed", "query", rf.config.Query, "error", err)
		return
	}
	rf.server.updateIndexGauges()
}

// Stop gracefully stops the worker.
func (rf *Refresher) Stop() {
	close(rf.stopCh)
}

// RefreshService manages the lifecycle of all Refresher workers.
// It holds references to all active refreshers and coordinates their
// start and stop operations using a shared WaitGroup.
type RefreshService struct {
	server     *Server
	refreshers []*Refresher
	wg         sync.WaitGroup
}

// NewRefreshService creates and initializes the refresh service from the
// configured schedules. A broken schedule is a configuration error and
// aborts server construction.
func NewRefreshService(server *Server, configs []RefreshConfig) (*RefreshService, error) {
	service := &RefreshService{
		server: server,
	}

	for _, config := range configs {
		rf, err := NewRefresher(config, server, &service.wg)
		if err != nil {
			return nil, err
		}
		service.refreshers = append(service.refreshers, rf)
	}

	return service, nil
}

// Start begins the lifecycle of all workers managed by the service.
// Each worker is started in its own background goroutine.
func (rs *RefreshService) Start() {
	if rs == nil || len(rs.refreshers) == 0 {
		return
	}
	slog.Info("starting refresh service", "workers", len(rs.refreshers))
	for _, rf := range rs.refreshers {
		// Tell the WaitGroup that a goroutine is about to start.
		rf.wg.Add(1)
		go rf.run()
	}
}

// Stop gracefully stops all workers managed by the service.
// It signals each worker to stop and then waits for them to finish their
// current refresh.
func (rs *RefreshService) Stop() {
	if rs == nil || len(rs.refreshers) == 0 {
		return
	}
	for _, rf := range rs.refreshers {
		rf.Stop()
	}
	rs.wg.Wait()
}
