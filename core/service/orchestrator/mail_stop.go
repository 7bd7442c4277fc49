package orchestrator

import (
	"sync"
	"time"
)

// stopClearDelay bounds how long a stop request stays armed. It must exceed
// the worst-case interval between pipeline checkpoints, observed around two
// minutes for slow retrieval.
const stopClearDelay = 300 * time.Second

// StopController holds one user's cancellation flags: a global stop covering
// every in-flight message and a per-message set. Both are cooperative; the
// pipeline observes them at its checkpoints. Each request arms a deferred
// clear so a missed checkpoint cannot wedge the flag forever.
type StopController struct {
	mu          sync.Mutex
	global      bool
	globalTimer *time.Timer
	ids         map[string]*time.Timer
}

// NewStopController creates an empty controller.
func NewStopController() *StopController {
	return &StopController{ids: make(map[string]*time.Timer)}
}

// StopAll raises the global flag and schedules its clear.
func (c *StopController) StopAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.global = true
	if c.globalTimer != nil {
		c.globalTimer.Stop()
	}
	c.globalTimer = time.AfterFunc(stopClearDelay, func() {
		c.mu.Lock()
		c.global = false
		c.mu.Unlock()
	})
}

// StopEmail adds one message to the stop set and schedules its clear.
func (c *StopController) StopEmail(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.ids[id]; ok {
		t.Stop()
	}
	c.ids[id] = time.AfterFunc(stopClearDelay, func() {
		c.Clear(id)
	})
}

// Requested reports whether a stop covers the message, via either flag.
func (c *StopController) Requested(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.global {
		return true
	}
	_, ok := c.ids[id]
	return ok
}

// GlobalRequested reports the global flag alone.
func (c *StopController) GlobalRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.global
}

// Clear removes one message from the stop set.
func (c *StopController) Clear(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.ids[id]; ok {
		t.Stop()
		delete(c.ids, id)
	}
}

// ResetGlobal lowers the global flag. Called before starting a fresh sweep.
func (c *StopController) ResetGlobal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.global = false
	if c.globalTimer != nil {
		c.globalTimer.Stop()
		c.globalTimer = nil
	}
}
