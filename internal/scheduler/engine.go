package scheduler

import (
	"container/heap"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sandeepkv93/shiftd/internal/model"
)

var (
	ErrInvalidTriggerTime = errors.New("scheduler: invalid trigger time")
	ErrStopped            = errors.New("scheduler: engine stopped")
)

// Priority selects the wake primitive. Alarm wake-ups are never dropped and
// win ties; deferrable wake-ups are retried when the consumer lags.
type Priority int

const (
	PriorityDeferrable Priority = iota
	PriorityAlarm
)

func (p Priority) String() string {
	if p == PriorityAlarm {
		return "alarm"
	}
	return "deferrable"
}

// PriorityFor maps a reminder level onto a wake primitive. Levels without a
// delivery have none.
func PriorityFor(level model.ReminderLevel) (Priority, bool) {
	switch level {
	case model.ReminderAlarm:
		return PriorityAlarm, true
	case model.ReminderSilent:
		return PriorityDeferrable, true
	default:
		return 0, false
	}
}

// Wakeup is the payload carried by a registration and delivered when it fires.
type Wakeup struct {
	TaskID   int64
	Level    model.ReminderLevel
	At       time.Time
	Priority Priority
}

const retryInterval = 25 * time.Millisecond

type queueItem struct {
	wakeup Wakeup
	gen    uint64
}

type priorityQueue []queueItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	a, b := pq[i].wakeup, pq[j].wakeup
	if !a.At.Equal(b.At) {
		return a.At.Before(b.At)
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return pq[i].gen < pq[j].gen
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
}

func (pq *priorityQueue) Push(x any) {
	*pq = append(*pq, x.(queueItem))
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[0 : n-1]
	return item
}

type registration struct {
	gen    uint64
	wakeup Wakeup
}

type Engine struct {
	mu       sync.Mutex
	queue    priorityQueue
	regs     map[int64]registration
	gen      uint64
	backlog  []queueItem
	out      chan Wakeup
	wakeup   chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
	stopped  bool
	deferred uint64
	fired    uint64
}

func NewEngine(bufferSize int) *Engine {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Engine{
		queue:  make(priorityQueue, 0),
		regs:   make(map[int64]registration),
		out:    make(chan Wakeup, bufferSize),
		wakeup: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// C yields fired wake-ups. It is closed after Stop.
func (e *Engine) C() <-chan Wakeup {
	return e.out
}

func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	heap.Init(&e.queue)
	go e.loop()
}

func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.stopped = true
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.stopCh)
	e.mu.Unlock()
	<-e.doneCh
}

// Schedule registers w under w.TaskID, replacing any earlier registration for
// the same task.
func (e *Engine) Schedule(w Wakeup) error {
	if w.At.IsZero() {
		return ErrInvalidTriggerTime
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrStopped
	}

	e.gen++
	e.regs[w.TaskID] = registration{gen: e.gen, wakeup: w}
	heap.Push(&e.queue, queueItem{wakeup: w, gen: e.gen})
	e.signalWakeup()
	return nil
}

// Cancel removes the registration for taskID. Unknown ids are a no-op.
func (e *Engine) Cancel(taskID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.regs[taskID]; !ok {
		return false
	}
	delete(e.regs, taskID)
	e.signalWakeup()
	return true
}

// Registered reports the wake-up currently registered for taskID.
func (e *Engine) Registered(taskID int64) (Wakeup, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	reg, ok := e.regs[taskID]
	return reg.wakeup, ok
}

func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.regs)
}

// Deferred counts deferrable deliveries postponed because the consumer lagged.
func (e *Engine) Deferred() uint64 {
	return atomic.LoadUint64(&e.deferred)
}

func (e *Engine) Fired() uint64 {
	return atomic.LoadUint64(&e.fired)
}

func (e *Engine) loop() {
	defer close(e.doneCh)
	defer close(e.out)

	var timer *time.Timer
	for {
		if !e.flushBacklog() {
			stopTimer(timer)
			return
		}
		next, hasNext := e.peek()
		hasBacklog := e.backlogLen() > 0
		if !hasNext && !hasBacklog {
			select {
			case <-e.wakeup:
				continue
			case <-e.stopCh:
				stopTimer(timer)
				return
			}
		}

		wait := retryInterval
		if hasNext {
			until := time.Until(next.At)
			if until < 0 {
				until = 0
			}
			if !hasBacklog || until < wait {
				wait = until
			}
		}
		timer = resetTimer(timer, wait)

		select {
		case <-timer.C:
			for _, item := range e.popDue(time.Now()) {
				if !e.deliver(item) {
					return
				}
			}
		case <-e.wakeup:
			continue
		case <-e.stopCh:
			stopTimer(timer)
			return
		}
	}
}

// deliver blocks for alarm wake-ups and parks deferrable ones in the backlog
// when the channel is full. It reports false once the engine is stopping.
func (e *Engine) deliver(item queueItem) bool {
	if item.wakeup.Priority == PriorityAlarm {
		select {
		case e.out <- item.wakeup:
			e.markFired(item)
			return true
		case <-e.stopCh:
			return false
		}
	}
	select {
	case e.out <- item.wakeup:
		e.markFired(item)
	default:
		atomic.AddUint64(&e.deferred, 1)
		e.mu.Lock()
		e.backlog = append(e.backlog, item)
		e.mu.Unlock()
	}
	return true
}

func (e *Engine) flushBacklog() bool {
	e.mu.Lock()
	pending := e.backlog
	e.backlog = nil
	e.mu.Unlock()

	for i, item := range pending {
		if !e.isCurrent(item) {
			continue
		}
		select {
		case e.out <- item.wakeup:
			e.markFired(item)
		case <-e.stopCh:
			return false
		default:
			e.mu.Lock()
			e.backlog = append(e.backlog, pending[i:]...)
			e.mu.Unlock()
			return true
		}
	}
	return true
}

func (e *Engine) backlogLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.backlog)
}

func (e *Engine) isCurrent(item queueItem) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	reg, ok := e.regs[item.wakeup.TaskID]
	return ok && reg.gen == item.gen
}

func (e *Engine) markFired(item queueItem) {
	atomic.AddUint64(&e.fired, 1)
	e.mu.Lock()
	defer e.mu.Unlock()
	if reg, ok := e.regs[item.wakeup.TaskID]; ok && reg.gen == item.gen {
		delete(e.regs, item.wakeup.TaskID)
	}
}

func (e *Engine) signalWakeup() {
	select {
	case e.wakeup <- struct{}{}:
	default:
	}
}

// peek discards replaced or cancelled entries at the head of the queue.
func (e *Engine) peek() (Wakeup, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for len(e.queue) > 0 {
		head := e.queue[0]
		if reg, ok := e.regs[head.wakeup.TaskID]; ok && reg.gen == head.gen {
			return head.wakeup, true
		}
		heap.Pop(&e.queue)
	}
	return Wakeup{}, false
}

func (e *Engine) popDue(now time.Time) []queueItem {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]queueItem, 0)
	for len(e.queue) > 0 {
		head := e.queue[0]
		if head.wakeup.At.After(now) {
			break
		}
		item := heap.Pop(&e.queue).(queueItem)
		if reg, ok := e.regs[item.wakeup.TaskID]; ok && reg.gen == item.gen {
			out = append(out, item)
		}
	}
	return out
}

func resetTimer(timer *time.Timer, d time.Duration) *time.Timer {
	if timer == nil {
		return time.NewTimer(d)
	}
	stopTimer(timer)
	timer.Reset(d)
	return timer
}

func stopTimer(timer *time.Timer) {
	if timer == nil {
		return
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}
