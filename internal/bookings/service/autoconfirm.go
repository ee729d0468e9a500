package service

import (
	"sync"
	"time"

	"roombook/pkg/clock"
	"roombook/pkg/logger"
)

type autoConfirmTask struct {
	timer     clock.Timer
	cancelled bool
}

// autoConfirmer keeps one cancellable timer per pending booking. The timers
// live in process memory only; RestoreAutoConfirms rebuilds them after a
// restart.
type autoConfirmer struct {
	clock clock.Clock
	fire  func(id string)
	log   *logger.Logger

	mu    sync.Mutex
	tasks map[string]*autoConfirmTask
}

func newAutoConfirmer(clk clock.Clock, fire func(id string), log *logger.Logger) *autoConfirmer {
	return &autoConfirmer{
		clock: clk,
		fire:  fire,
		log:   log,
		tasks: make(map[string]*autoConfirmTask),
	}
}

// Schedule arms the timer for id, replacing any earlier one. A non-positive
// delay fires right away.
func (a *autoConfirmer) Schedule(id string, delay time.Duration) {
	task := &autoConfirmTask{}

	a.mu.Lock()
	if prev, ok := a.tasks[id]; ok {
		a.stopLocked(prev)
	}
	a.tasks[id] = task
	a.mu.Unlock()

	// AfterFunc may run the callback before returning, so the lock must not
	// be held here.
	timer := a.clock.AfterFunc(max(delay, 0), func() { a.run(id, task) })

	a.mu.Lock()
	task.timer = timer
	a.mu.Unlock()

	a.log.Debug("Auto-confirm scheduled", "id", id, "delay", delay)
}

// Cancel drops the timer for id. It reports whether one was armed.
func (a *autoConfirmer) Cancel(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	task, ok := a.tasks[id]
	if !ok {
		return false
	}
	a.stopLocked(task)
	delete(a.tasks, id)
	return true
}

func (a *autoConfirmer) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.tasks)
}

func (a *autoConfirmer) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, task := range a.tasks {
		a.stopLocked(task)
		delete(a.tasks, id)
	}
}

func (a *autoConfirmer) run(id string, task *autoConfirmTask) {
	a.mu.Lock()
	if task.cancelled {
		a.mu.Unlock()
		return
	}
	if a.tasks[id] == task {
		delete(a.tasks, id)
	}
	a.mu.Unlock()

	a.fire(id)
}

func (a *autoConfirmer) stopLocked(task *autoConfirmTask) {
	task.cancelled = true
	if task.timer != nil {
		task.timer.Stop()
	}
}
