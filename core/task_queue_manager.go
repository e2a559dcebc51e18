package core

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// TaskQueueManager owns a set of TaskQueues, the registered TimeDomains and
// the wake-up mechanism, and drives the dequeue-and-run loop.
//
// The scheduling model is single-threaded cooperative: one goroutine (started
// by Start, or the caller's goroutine when driving DoWork/RunUntilIdle
// manually) makes every scheduling decision and runs every task to
// completion. Cross-thread entry points are limited to posting tasks and the
// wake-up signals derived from them, which are marshalled onto the scheduling
// goroutine through channels and the control queue.
type TaskQueueManager struct {
	name           string
	clock          TickClock
	logger         Logger
	metrics        Metrics
	panicHandler   PanicHandler
	orderGenerator *EnqueueOrderGenerator

	// selector is manager-goroutine state; no internal locking.
	selector *WorkQueueSets

	// mu guards the queue/domain registries. They are only mutated on the
	// scheduling goroutine (or before Start), but stats snapshots read
	// them from other goroutines.
	mu      sync.Mutex
	queues  []*TaskQueue
	domains []TimeDomain

	realDomain   *RealTimeDomain
	controlQueue *TaskQueue

	// workSignal wakes the run loop; buffered so producers never block.
	workSignal chan struct{}

	// wakeupMu guards the single pending delayed wake-up. The "only
	// reschedule if sooner" rule lives here.
	wakeupMu          sync.Mutex
	pendingWakeupTime time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	runCtx  context.Context
	stopped chan struct{}
	started atomic.Bool
	closed  atomic.Bool

	tasksProcessed   atomic.Uint64
	tasksRejected    atomic.Uint64
	wakeupsScheduled atomic.Uint64
	wakeupsCoalesced atomic.Uint64
}

// NewTaskQueueManager creates a manager with a registered RealTimeDomain and
// a control queue at PriorityControl. Pass nil for an all-defaults config.
func NewTaskQueueManager(config *ManagerConfig) *TaskQueueManager {
	cfg := config.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	m := &TaskQueueManager{
		name:           cfg.Name,
		clock:          cfg.TickClock,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		panicHandler:   cfg.PanicHandler,
		orderGenerator: NewEnqueueOrderGenerator(),
		workSignal:     make(chan struct{}, 1),
		ctx:            ctx,
		cancel:         cancel,
		stopped:        make(chan struct{}),
	}
	m.runCtx = ctx
	m.selector = NewWorkQueueSets(cfg.NumPrioritySets)
	m.realDomain = NewRealTimeDomain(cfg.TickClock)
	m.RegisterTimeDomain(m.realDomain)
	m.controlQueue = m.newTaskQueueAt("control", PriorityControl)
	return m
}

// Name returns the manager's label.
func (m *TaskQueueManager) Name() string {
	return m.name
}

// RealTimeDomain returns the manager's built-in wall-clock domain.
func (m *TaskQueueManager) RealTimeDomain() *RealTimeDomain {
	return m.realDomain
}

// ControlTaskQueue returns the manager's own control queue. It runs at the
// highest priority and must never be throttled.
func (m *TaskQueueManager) ControlTaskQueue() *TaskQueue {
	return m.controlQueue
}

// TickClock returns the clock the manager schedules against.
func (m *TaskQueueManager) TickClock() TickClock {
	return m.clock
}

// RegisterTimeDomain makes the manager service the domain's wake-ups. A
// domain is registered with exactly one manager at a time.
func (m *TaskQueueManager) RegisterTimeDomain(domain TimeDomain) {
	m.mu.Lock()
	m.domains = append(m.domains, domain)
	m.mu.Unlock()
	domain.onRegistered(m)
}

// UnregisterTimeDomain removes the domain from wake-up servicing.
func (m *TaskQueueManager) UnregisterTimeDomain(domain TimeDomain) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range m.domains {
		if d == domain {
			m.domains = append(m.domains[:i], m.domains[i+1:]...)
			return
		}
	}
}

// =============================================================================
// Queue lifecycle
// =============================================================================

// NewTaskQueue creates a queue at PriorityNormal with AUTO pump policy, bound
// to the real time domain. Must be called on the scheduling goroutine or
// before Start.
func (m *TaskQueueManager) NewTaskQueue(name string) *TaskQueue {
	priority := PriorityNormal
	if int(priority) >= m.selector.NumSets() {
		priority = Priority(m.selector.NumSets() - 1)
	}
	return m.newTaskQueueAt(name, priority)
}

func (m *TaskQueueManager) newTaskQueueAt(name string, priority Priority) *TaskQueue {
	q := &TaskQueue{
		manager:    m,
		name:       name,
		timeDomain: m.realDomain,
		pumpPolicy: PumpPolicyAuto,
		priority:   priority,
	}
	q.workQueue = NewWorkQueue(q, name)
	q.workQueue.SetWorkQueueSetIndex(int(priority))
	m.mu.Lock()
	m.queues = append(m.queues, q)
	m.mu.Unlock()
	m.logger.Debug("task queue created", F("queue", name), F("priority", priority))
	return q
}

// UnregisterTaskQueue tears a queue down: its work queue leaves the selector,
// its wake-ups leave its domain, and further posts are rejected. Must be
// called on the scheduling goroutine.
func (m *TaskQueueManager) UnregisterTaskQueue(q *TaskQueue) {
	m.selector.RemoveQueue(q.workQueue)
	q.TimeDomain().unregisterQueue(q)
	q.close()
	m.mu.Lock()
	for i, queue := range m.queues {
		if queue == q {
			m.queues = append(m.queues[:i], m.queues[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	m.logger.Debug("task queue unregistered", F("queue", q.Name()))
}

// =============================================================================
// Wake-up machinery
// =============================================================================

// ScheduleImmediateWork wakes the run loop. Safe from any goroutine; multiple
// calls collapse into one signal.
func (m *TaskQueueManager) ScheduleImmediateWork() {
	select {
	case m.workSignal <- struct{}{}:
	default:
	}
}

// MaybeScheduleDelayedWork arms a wake-up at now+delay unless an earlier (or
// equal) wake-up is already pending. This is the coalescing rule: redundant
// requests are dropped, so at most one delayed wake-up is outstanding.
func (m *TaskQueueManager) MaybeScheduleDelayedWork(lazyNow *LazyNow, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	runTime := lazyNow.Now().Add(delay)
	m.wakeupMu.Lock()
	if !m.pendingWakeupTime.IsZero() && !runTime.Before(m.pendingWakeupTime) {
		m.wakeupMu.Unlock()
		m.wakeupsCoalesced.Add(1)
		m.metrics.RecordWakeupCoalesced(m.realDomain.Name())
		return
	}
	m.pendingWakeupTime = runTime
	m.wakeupMu.Unlock()
	m.wakeupsScheduled.Add(1)
	m.metrics.RecordWakeupScheduled(m.realDomain.Name())
	m.ScheduleImmediateWork() // the loop re-arms its timer for the sooner time
}

// PendingWakeupTime returns the currently armed delayed wake-up, or a zero
// time when none is pending.
func (m *TaskQueueManager) PendingWakeupTime() time.Time {
	m.wakeupMu.Lock()
	defer m.wakeupMu.Unlock()
	return m.pendingWakeupTime
}

// NextDelayedTaskRunTime returns the earliest scheduled run time across all
// registered domains, or false when every domain is idle.
func (m *TaskQueueManager) NextDelayedTaskRunTime() (time.Time, bool) {
	var next time.Time
	found := false
	for _, domain := range m.domainsSnapshot() {
		if t, ok := domain.NextScheduledRunTime(); ok {
			if !found || t.Before(next) {
				next = t
				found = true
			}
		}
	}
	return next, found
}

func (m *TaskQueueManager) clearPendingWakeupIfDue(now time.Time) {
	m.wakeupMu.Lock()
	defer m.wakeupMu.Unlock()
	if !m.pendingWakeupTime.IsZero() && !m.pendingWakeupTime.After(now) {
		m.pendingWakeupTime = time.Time{}
	}
}

func (m *TaskQueueManager) nextWakeupDelay() (time.Duration, bool) {
	m.wakeupMu.Lock()
	pending := m.pendingWakeupTime
	m.wakeupMu.Unlock()
	if pending.IsZero() {
		return 0, false
	}
	delay := pending.Sub(m.clock.NowTicks())
	if delay < 0 {
		delay = 0
	}
	return delay, true
}

// =============================================================================
// Dispatch
// =============================================================================

// DoWork performs one scheduling pass: ready delayed tasks move into their
// queues, AUTO queues reload, and ready work drains in priority order with
// each task run to completion. Returns the number of tasks run.
//
// Must be called on the scheduling goroutine. Start's run loop calls it;
// tests and embedders without a background loop call it (or RunUntilIdle)
// directly.
func (m *TaskQueueManager) DoWork() int {
	m.clearPendingWakeupIfDue(m.clock.NowTicks())

	ran := 0
	for {
		// Tasks may post more work, including to their own queue, so
		// the reload scan repeats every iteration. Each iteration shares
		// one time sample: a wake-up must not be cleared while its task
		// was judged not yet ready.
		lazyNow := NewLazyNow(m.clock)
		for _, q := range m.queuesSnapshot() {
			q.updateWorkQueue(lazyNow)
		}
		for _, domain := range m.domainsSnapshot() {
			domain.ClearExpiredWakeups(lazyNow)
		}

		workQueue := m.selectWorkQueueToService()
		if workQueue == nil {
			break
		}
		item, ok := workQueue.PopFront()
		if !ok {
			panic("core: selected work queue had no front task")
		}
		m.selector.OnPopQueue(workQueue)
		m.runTask(workQueue.Owner(), item)
		ran++
	}

	// Arm the next wake-up (or schedule an immediate continuation when a
	// domain says ready work appeared while we were draining).
	for _, domain := range m.domainsSnapshot() {
		if domain.MaybeAdvanceTime() {
			m.ScheduleImmediateWork()
		}
	}
	return ran
}

// RunUntilIdle drives DoWork until no task is ready. Delayed tasks whose run
// time has not been reached stay pending; advance the clock and call it again
// to process them. Intended for tests and manual embedding.
func (m *TaskQueueManager) RunUntilIdle() int {
	total := 0
	for {
		n := m.DoWork()
		total += n
		if n == 0 {
			return total
		}
	}
}

// selectWorkQueueToService implements the priority drain rule: the first
// non-empty set in priority order wins, and within a set the queue holding
// the globally oldest task wins. Never round-robin.
func (m *TaskQueueManager) selectWorkQueueToService() *WorkQueue {
	for setIndex := 0; setIndex < m.selector.NumSets(); setIndex++ {
		if m.selector.IsSetEmpty(setIndex) {
			continue
		}
		return m.selector.GetOldestQueueInSet(setIndex)
	}
	return nil
}

func (m *TaskQueueManager) runTask(queue *TaskQueue, item TaskItem) {
	start := m.clock.NowTicks()
	defer func() {
		if rec := recover(); rec != nil {
			m.metrics.RecordTaskPanic(queue.Name(), rec)
			m.panicHandler.HandlePanic(m.runCtx, queue.Name(), rec, debug.Stack())
		}
		m.tasksProcessed.Add(1)
		m.metrics.RecordTaskRun(queue.Name(), queue.Priority(), m.clock.NowTicks().Sub(start))
	}()
	item.Task(m.runCtx)
}

func (m *TaskQueueManager) onPostRejected(queueName, reason string) {
	m.tasksRejected.Add(1)
	m.metrics.RecordPostRejected(queueName, reason)
	m.logger.Warn("post rejected", F("queue", queueName), F("reason", reason))
}

// =============================================================================
// Run loop / lifecycle
// =============================================================================

// Start spawns the scheduling goroutine. Queues and domains must be set up
// before Start or from tasks running on the loop.
func (m *TaskQueueManager) Start() {
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	go m.runLoop()
}

func (m *TaskQueueManager) runLoop() {
	defer close(m.stopped)

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if delay, ok := m.nextWakeupDelay(); ok {
			timer.Reset(delay)
		}

		select {
		case <-m.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			m.DoWork()
		case <-m.workSignal:
			m.DoWork()
		}
	}
}

// IsClosed reports whether Stop has been called.
func (m *TaskQueueManager) IsClosed() bool {
	return m.closed.Load()
}

// Stop shuts the manager down: further posts are rejected, the run loop (if
// started) exits after the current task completes, and pending work is
// dropped.
func (m *TaskQueueManager) Stop() {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}
	for _, q := range m.queuesSnapshot() {
		q.close()
	}
	m.cancel()
	if m.started.Load() {
		<-m.stopped
	}
	m.logger.Info("manager stopped", F("manager", m.name))
}

// =============================================================================
// Stats
// =============================================================================

// ManagerStats implements StatsProvider.
func (m *TaskQueueManager) ManagerStats() ManagerStats {
	m.mu.Lock()
	queues := len(m.queues)
	m.mu.Unlock()
	return ManagerStats{
		Name:              m.name,
		Queues:            queues,
		TasksProcessed:    m.tasksProcessed.Load(),
		TasksRejected:     m.tasksRejected.Load(),
		WakeupsScheduled:  m.wakeupsScheduled.Load(),
		WakeupsCoalesced:  m.wakeupsCoalesced.Load(),
		PendingWakeupTime: m.PendingWakeupTime(),
		Running:           m.started.Load() && !m.closed.Load(),
	}
}

// QueueStatsSnapshot implements StatsProvider.
func (m *TaskQueueManager) QueueStatsSnapshot() []QueueStats {
	queues := m.queuesSnapshot()
	out := make([]QueueStats, 0, len(queues))
	for _, q := range queues {
		out = append(out, q.Stats())
	}
	return out
}

func (m *TaskQueueManager) queuesSnapshot() []*TaskQueue {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*TaskQueue, len(m.queues))
	copy(out, m.queues)
	return out
}

func (m *TaskQueueManager) domainsSnapshot() []TimeDomain {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TimeDomain, len(m.domains))
	copy(out, m.domains)
	return out
}
