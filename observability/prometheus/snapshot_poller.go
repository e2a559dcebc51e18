package prometheus

import (
	"context"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/coopsched/go-coop-scheduler/core"
)

// SnapshotPoller periodically exports core.StatsProvider snapshots into
// Prometheus gauges. Use it alongside MetricsExporter: the exporter counts
// events as they happen, the poller samples current depths.
type SnapshotPoller struct {
	interval time.Duration

	providersMu sync.RWMutex
	providers   map[string]core.StatsProvider

	managerQueues     *prom.GaugeVec
	managerProcessed  *prom.GaugeVec
	managerRejected   *prom.GaugeVec
	managerRunning    *prom.GaugeVec
	queueIncomingSize *prom.GaugeVec
	queueDelayedSize  *prom.GaugeVec
	queueReadySize    *prom.GaugeVec
	queueClosed       *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	managerQueues := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "coopsched",
		Name:      "manager_queues",
		Help:      "Number of registered task queues per manager.",
	}, []string{"manager"})
	managerProcessed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "coopsched",
		Name:      "manager_tasks_processed",
		Help:      "Manager processed task count snapshot.",
	}, []string{"manager"})
	managerRejected := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "coopsched",
		Name:      "manager_tasks_rejected",
		Help:      "Manager rejected post count snapshot.",
	}, []string{"manager"})
	managerRunning := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "coopsched",
		Name:      "manager_running",
		Help:      "Manager background loop state (1=running, 0=stopped).",
	}, []string{"manager"})
	queueIncoming := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "coopsched",
		Name:      "queue_incoming",
		Help:      "Immediate tasks waiting to be moved onto the work queue.",
	}, []string{"manager", "queue", "domain"})
	queueDelayed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "coopsched",
		Name:      "queue_delayed",
		Help:      "Delayed tasks not yet due per queue.",
	}, []string{"manager", "queue", "domain"})
	queueReady := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "coopsched",
		Name:      "queue_ready",
		Help:      "Tasks on the work queue eligible for selection.",
	}, []string{"manager", "queue", "domain"})
	queueClosed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "coopsched",
		Name:      "queue_closed",
		Help:      "Queue closed state (1=closed, 0=open).",
	}, []string{"manager", "queue", "domain"})

	var err error
	if managerQueues, err = registerCollector(reg, managerQueues); err != nil {
		return nil, err
	}
	if managerProcessed, err = registerCollector(reg, managerProcessed); err != nil {
		return nil, err
	}
	if managerRejected, err = registerCollector(reg, managerRejected); err != nil {
		return nil, err
	}
	if managerRunning, err = registerCollector(reg, managerRunning); err != nil {
		return nil, err
	}
	if queueIncoming, err = registerCollector(reg, queueIncoming); err != nil {
		return nil, err
	}
	if queueDelayed, err = registerCollector(reg, queueDelayed); err != nil {
		return nil, err
	}
	if queueReady, err = registerCollector(reg, queueReady); err != nil {
		return nil, err
	}
	if queueClosed, err = registerCollector(reg, queueClosed); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:          interval,
		providers:         make(map[string]core.StatsProvider),
		managerQueues:     managerQueues,
		managerProcessed:  managerProcessed,
		managerRejected:   managerRejected,
		managerRunning:    managerRunning,
		queueIncomingSize: queueIncoming,
		queueDelayedSize:  queueDelayed,
		queueReadySize:    queueReady,
		queueClosed:       queueClosed,
	}, nil
}

// AddProvider adds or replaces a stats provider by name.
func (p *SnapshotPoller) AddProvider(name string, provider core.StatsProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "manager")
	p.providersMu.Lock()
	p.providers[name] = provider
	p.providersMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.providersMu.RLock()
	defer p.providersMu.RUnlock()

	for name, provider := range p.providers {
		stats := provider.ManagerStats()
		p.managerQueues.WithLabelValues(name).Set(float64(stats.Queues))
		p.managerProcessed.WithLabelValues(name).Set(float64(stats.TasksProcessed))
		p.managerRejected.WithLabelValues(name).Set(float64(stats.TasksRejected))
		if stats.Running {
			p.managerRunning.WithLabelValues(name).Set(1)
		} else {
			p.managerRunning.WithLabelValues(name).Set(0)
		}

		for _, qs := range provider.QueueStatsSnapshot() {
			queue := normalizeLabel(qs.Name, "unknown")
			domain := normalizeLabel(qs.TimeDomain, "unknown")
			p.queueIncomingSize.WithLabelValues(name, queue, domain).Set(float64(qs.Incoming))
			p.queueDelayedSize.WithLabelValues(name, queue, domain).Set(float64(qs.Delayed))
			p.queueReadySize.WithLabelValues(name, queue, domain).Set(float64(qs.Ready))
			if qs.Closed {
				p.queueClosed.WithLabelValues(name, queue, domain).Set(1)
			} else {
				p.queueClosed.WithLabelValues(name, queue, domain).Set(0)
			}
		}
	}
}
