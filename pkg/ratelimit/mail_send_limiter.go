// Package ratelimit enforces the per-user send budget.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Policy constants. A user may send at most once per MinInterval, 10 times
// per rolling half hour window and 20 times per rolling hour window.
const (
	MinInterval   = 30 * time.Second
	HalfHourLimit = 10
	HourLimit     = 20

	halfHourWindow = 30 * time.Minute
	hourWindow     = time.Hour
)

// Denial reasons.
const (
	ReasonInterval      = "interval"
	ReasonHalfHourLimit = "half-hour-limit"
	ReasonHourLimit     = "hour-limit"
)

type sendState struct {
	lastSend      time.Time
	countHalfHour int
	countHour     int
	resetHalfHour time.Time
	resetHour     time.Time
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed bool
	Reason  string
	Wait    time.Duration
	Message string
}

// SendLimiter tracks per-user send budgets under one global lock.
// Admit never mutates counters; Commit is called only after a send succeeds,
// so a failed send does not consume budget.
type SendLimiter struct {
	mu    sync.Mutex
	users map[string]*sendState
	now   func() time.Time
}

// NewSendLimiter creates a limiter with the wall clock.
func NewSendLimiter() *SendLimiter {
	return &SendLimiter{
		users: make(map[string]*sendState),
		now:   time.Now,
	}
}

// NewSendLimiterWithClock creates a limiter with an injected clock.
func NewSendLimiterWithClock(now func() time.Time) *SendLimiter {
	return &SendLimiter{
		users: make(map[string]*sendState),
		now:   now,
	}
}

// Admit reports whether a send for userID is currently allowed.
// Counters are not touched here.
func (l *SendLimiter) Admit(userID string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	st, ok := l.users[userID]
	if !ok {
		l.users[userID] = &sendState{
			resetHalfHour: now.Add(halfHourWindow),
			resetHour:     now.Add(hourWindow),
		}
		return Decision{Allowed: true}
	}

	if now.After(st.resetHour) {
		st.countHour = 0
		st.resetHour = now.Add(hourWindow)
	}
	if now.After(st.resetHalfHour) {
		st.countHalfHour = 0
		st.resetHalfHour = now.Add(halfHourWindow)
	}

	if st.countHour >= HourLimit {
		wait := st.resetHour.Sub(now)
		return Decision{
			Reason:  ReasonHourLimit,
			Wait:    wait,
			Message: fmt.Sprintf("已达每小时发送上限（%d 封），等待 %d 分钟", HourLimit, ceilMinutes(wait)),
		}
	}
	if st.countHalfHour >= HalfHourLimit {
		wait := st.resetHalfHour.Sub(now)
		return Decision{
			Reason:  ReasonHalfHourLimit,
			Wait:    wait,
			Message: fmt.Sprintf("已达每半小时发送上限（%d 封），等待 %d 分钟", HalfHourLimit, ceilMinutes(wait)),
		}
	}
	if !st.lastSend.IsZero() {
		if since := now.Sub(st.lastSend); since < MinInterval {
			wait := MinInterval - since
			return Decision{
				Reason:  ReasonInterval,
				Wait:    wait,
				Message: fmt.Sprintf("等待 %d 秒", ceilSeconds(wait)),
			}
		}
	}

	return Decision{Allowed: true}
}

// Commit records a successful send, incrementing both window counters.
func (l *SendLimiter) Commit(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	st, ok := l.users[userID]
	if !ok {
		st = &sendState{
			resetHalfHour: now.Add(halfHourWindow),
			resetHour:     now.Add(hourWindow),
		}
		l.users[userID] = st
	}
	st.lastSend = now
	st.countHalfHour++
	st.countHour++
}

// Snapshot returns the current counters for a user, for status displays.
func (l *SendLimiter) Snapshot(userID string) (countHalfHour, countHour int, lastSend time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.users[userID]
	if !ok {
		return 0, 0, time.Time{}
	}
	return st.countHalfHour, st.countHour, st.lastSend
}

func ceilSeconds(d time.Duration) int {
	s := int(d / time.Second)
	if d%time.Second > 0 {
		s++
	}
	return s
}

func ceilMinutes(d time.Duration) int {
	m := int(d / time.Minute)
	if d%time.Minute > 0 {
		m++
	}
	return m
}
