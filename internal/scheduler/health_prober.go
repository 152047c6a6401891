package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MrSnakeDoc/concierge/internal/logger"
)

const (
	DefaultProbeInterval = 30 * time.Second
	DefaultProbeTimeout  = 2 * time.Second
)

var serviceUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "concierge",
	Subsystem: "downstream",
	Name:      "up",
	Help:      "1 if the last health probe of the service succeeded",
}, []string{"service"})

// Prober checks the health endpoint of one downstream service.
type Prober interface {
	Probe(ctx context.Context, service string) error
}

// ProbeStatus is the outcome of the last probe of one service.
type ProbeStatus struct {
	OK        bool          `json:"ok"`
	Latency   time.Duration `json:"-"`
	LatencyMS int64         `json:"latency_ms"`
	CheckedAt time.Time     `json:"checked_at"`
	Error     string        `json:"error,omitempty"`
}

// HealthProber periodically probes every downstream service and keeps the
// latest result per service for the infra endpoint.
type HealthProber struct {
	prober        Prober
	services      []string
	logger        logger.Logger
	interval      time.Duration
	timeout       time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
	manualTrigger chan struct{}

	mu        sync.RWMutex
	snapshot  map[string]ProbeStatus
	lastRound time.Time
}

// NewHealthProber creates a new health prober. manualTrigger may be nil.
func NewHealthProber(
	p Prober,
	services []string,
	log logger.Logger,
	interval time.Duration,
	timeout time.Duration,
	manualTrigger chan struct{},
) *HealthProber {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	sorted := append([]string(nil), services...)
	sort.Strings(sorted)

	return &HealthProber{
		prober:        p,
		services:      sorted,
		logger:        log,
		interval:      interval,
		timeout:       timeout,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
		snapshot:      make(map[string]ProbeStatus, len(services)),
	}
}

// Start probes once in the background, then on every tick or manual trigger.
func (hp *HealthProber) Start(ctx context.Context) error {
	ticker := time.NewTicker(hp.interval)
	go func() {
		defer ticker.Stop()
		hp.ProbeAll(ctx)
		for {
			select {
			case <-ticker.C:
				hp.ProbeAll(ctx)
			case <-hp.manualTrigger:
				hp.logger.Info("manual probe triggered")
				hp.ProbeAll(ctx)
			case <-hp.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the prober. Safe to call more than once.
func (hp *HealthProber) Stop() {
	hp.stopOnce.Do(func() { close(hp.stopCh) })
}

// ProbeAll probes every service concurrently and replaces the snapshot.
func (hp *HealthProber) ProbeAll(ctx context.Context) {
	results := make([]ProbeStatus, len(hp.services))

	var wg sync.WaitGroup
	for i, name := range hp.services {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = hp.probe(ctx, name)
		}()
	}
	wg.Wait()

	down := 0
	next := make(map[string]ProbeStatus, len(hp.services))
	for i, name := range hp.services {
		next[name] = results[i]
		if results[i].OK {
			serviceUp.WithLabelValues(name).Set(1)
			continue
		}
		serviceUp.WithLabelValues(name).Set(0)
		down++
		hp.logger.Warn("downstream probe failed",
			logger.String("service", name),
			logger.String("error", results[i].Error))
	}

	hp.mu.Lock()
	hp.snapshot = next
	hp.lastRound = time.Now()
	hp.mu.Unlock()

	hp.logger.Debug("probe round completed",
		logger.Int("services", len(hp.services)),
		logger.Int("down", down))
}

func (hp *HealthProber) probe(ctx context.Context, name string) ProbeStatus {
	ctx, cancel := context.WithTimeout(ctx, hp.timeout)
	defer cancel()

	start := time.Now()
	err := hp.prober.Probe(ctx, name)
	latency := time.Since(start)

	status := ProbeStatus{
		OK:        err == nil,
		Latency:   latency,
		LatencyMS: latency.Milliseconds(),
		CheckedAt: start.UTC(),
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

// Snapshot returns a copy of the latest probe results and when they were taken.
// The time is zero before the first round completes.
func (hp *HealthProber) Snapshot() (map[string]ProbeStatus, time.Time) {
	hp.mu.RLock()
	defer hp.mu.RUnlock()

	out := make(map[string]ProbeStatus, len(hp.snapshot))
	for k, v := range hp.snapshot {
		out[k] = v
	}
	return out, hp.lastRound
}

// Services returns the probed service names, sorted.
func (hp *HealthProber) Services() []string {
	return append([]string(nil), hp.services...)
}
