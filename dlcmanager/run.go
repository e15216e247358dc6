package dlcmanager

import (
	"context"
	"time"

	"github.com/lightningnetwork/lnd/healthcheck"
	"github.com/lightningnetwork/lnd/ticker"
)

// DefaultPeriodicCheckInterval is how often Start drives PeriodicCheck
// when the caller does not override it.
const DefaultPeriodicCheckInterval = 30 * time.Second

// RunConfig bundles Start's own tunables, separate from Config since they
// govern the background loop rather than contract semantics.
type RunConfig struct {
	// PeriodicCheckInterval overrides DefaultPeriodicCheckInterval when
	// nonzero. Start always drives the loop from a wall-clock ticker built
	// from this interval.
	PeriodicCheckInterval time.Duration

	// StorageLiveness and BlockchainLiveness, when set, are polled by a
	// background health monitor; a failure is logged but never stops
	// the reconciliation loop, mirroring the teacher's own chain and
	// disk health checks running alongside, not gating, the main event
	// loop.
	StorageLiveness    func(ctx context.Context) error
	BlockchainLiveness func(ctx context.Context) error
}

// Start launches the reconciliation loop as a background goroutine,
// driving PeriodicCheck on cfg.PeriodicCheckInterval (or
// DefaultPeriodicCheckInterval) until Stop is called. Spec §4.F "callers
// are expected to invoke this on a regular cadence".
func (m *Manager) Start(cfg RunConfig) {
	if cfg.PeriodicCheckInterval == 0 {
		cfg.PeriodicCheckInterval = DefaultPeriodicCheckInterval
	}

	m.quit = make(chan struct{})
	t := ticker.New(cfg.PeriodicCheckInterval)
	t.Resume()

	var monitor *healthcheck.Monitor
	if cfg.StorageLiveness != nil || cfg.BlockchainLiveness != nil {
		monitor = m.startHealthMonitor(cfg)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer t.Stop()
		if monitor != nil {
			defer monitor.Stop()
		}

		ctx := context.Background()
		for {
			select {
			case <-t.Ticks():
				if err := m.PeriodicCheck(ctx); err != nil {
					log.Errorf("periodic check failed: %v", err)
				}
			case <-m.quit:
				return
			}
		}
	}()
}

// startHealthMonitor wires the configured liveness probes into a
// healthcheck.Monitor that logs failures rather than crashing the
// process, matching the teacher's own disk-space and chain-backend
// observations (healthcheck.NewObservation).
func (m *Manager) startHealthMonitor(cfg RunConfig) *healthcheck.Monitor {
	var observations []*healthcheck.Observation

	if cfg.StorageLiveness != nil {
		observations = append(observations, healthcheck.NewObservation(
			"storage", cfg.StorageLiveness, time.Minute, 10*time.Second, 0, 3,
		))
	}
	if cfg.BlockchainLiveness != nil {
		observations = append(observations, healthcheck.NewObservation(
			"blockchain", cfg.BlockchainLiveness, time.Minute, 10*time.Second, 0, 3,
		))
	}

	monitor := healthcheck.NewMonitor(&healthcheck.Config{
		Checks: observations,
		OnFailure: func() {
			log.Errorf("a liveness check failed repeatedly")
		},
	})
	if err := monitor.Start(); err != nil {
		log.Errorf("unable to start liveness monitor: %v", err)
	}
	return monitor
}

// Stop signals the reconciliation loop to exit and waits for it to do so.
func (m *Manager) Stop() {
	if m.quit == nil {
		return
	}
	close(m.quit)
	m.wg.Wait()
}
