package orchestrator

import (
	"context"
	"fmt"
	"time"

	"mailagent/core/domain"
	"mailagent/pkg/apperr"
)

// maxUnreadPerPoll bounds one monitor cycle.
const maxUnreadPerPoll = 100

// StartMonitor starts the monitor and auto-send loops for a user. Idempotent
// while running.
func (m *Manager) StartMonitor(rt *UserRuntime) {
	rt.loopMu.Lock()
	defer rt.loopMu.Unlock()
	if rt.monitorCancel != nil {
		return
	}

	monCtx, monCancel := context.WithCancel(m.ctx)
	sendCtx, sendCancel := context.WithCancel(m.ctx)
	rt.monitorCancel = monCancel
	rt.autoSendCancel = sendCancel

	go m.monitorLoop(monCtx, rt)
	go m.autoSendLoop(sendCtx, rt)
	m.log.Info().Str("user_id", rt.userID).Msg("monitor started")
}

// StopMonitor cancels both loops.
func (m *Manager) StopMonitor(rt *UserRuntime) {
	rt.loopMu.Lock()
	defer rt.loopMu.Unlock()
	if rt.monitorCancel == nil {
		return
	}
	rt.monitorCancel()
	rt.autoSendCancel()
	rt.monitorCancel = nil
	rt.autoSendCancel = nil
	m.log.Info().Str("user_id", rt.userID).Msg("monitor stopped")
}

// MonitorRunning reports whether the loops are active.
func (m *Manager) MonitorRunning(rt *UserRuntime) bool {
	rt.loopMu.Lock()
	defer rt.loopMu.Unlock()
	return rt.monitorCancel != nil
}

// monitorLoop polls immediately, then on the configured interval. The
// interval is re-read every cycle so settings changes apply without restart.
func (m *Manager) monitorLoop(ctx context.Context, rt *UserRuntime) {
	for {
		if _, err := m.poll(ctx, rt, true); err != nil && ctx.Err() == nil {
			m.log.Warn().Err(err).Str("user_id", rt.userID).Msg("monitor poll failed")
		}

		interval := time.Duration(rt.Settings().EffectiveCheckInterval()) * time.Minute
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// Refresh fetches and reconciles once on request, without triggering
// auto-process.
func (m *Manager) Refresh(ctx context.Context, rt *UserRuntime) (int, error) {
	return m.poll(ctx, rt, false)
}

// poll fetches unseen mail, reconciles the cache and optionally kicks off an
// auto-process sweep. Returns the number of newly cached messages.
func (m *Manager) poll(ctx context.Context, rt *UserRuntime, triggerAuto bool) (int, error) {
	creds := rt.Creds()
	if creds.Address == "" || creds.AuthCode == "" {
		return 0, apperr.ConfigError("邮箱未配置")
	}

	fetched, err := m.deps.Mailbox.FetchUnseen(ctx, creds, maxUnreadPerPoll)
	if err != nil {
		return 0, err
	}

	newIDs := m.reconcile(rt, fetched)
	if len(newIDs) > 0 {
		rt.Emit(domain.EventNewEmails, map[string]any{"count": len(newIDs)})
		// body-only summaries for the new arrivals; saves coalesce
		m.deps.Summarizer.SubmitIngested(rt, newIDs)
	}

	settings := rt.Settings()
	if triggerAuto && settings.AutoProcess {
		rt.stop.ResetGlobal()
		go m.runSweep(rt, settings.AutoSend, true)
	}
	return len(newIDs), nil
}

// reconcile merges the fetch result into the cache under the user lock and
// returns the ids of newly added messages. Pending messages that are no
// longer unread drop out; in-flight and terminal messages stay until
// deleted. New messages arrive as pending with their urgency annotated.
func (m *Manager) reconcile(rt *UserRuntime, fetched []*domain.Email) []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	seen := make(map[string]struct{}, len(fetched))
	for _, e := range fetched {
		seen[e.ID] = struct{}{}
	}

	kept := rt.data.EmailsCache[:0]
	for _, e := range rt.data.EmailsCache {
		if e.Status == domain.StatusPending {
			if _, ok := seen[e.ID]; !ok {
				continue // read elsewhere, drop
			}
		}
		kept = append(kept, e)
	}
	rt.data.EmailsCache = kept

	var added []string
	for _, e := range fetched {
		if rt.data.FindEmail(e.ID) != nil {
			continue
		}
		level, keywords := m.deps.Urgency.Analyze(e.Subject, e.Body)
		e.Urgency = level
		e.UrgencyKeywords = keywords
		e.Status = domain.StatusPending
		rt.data.EmailsCache = append(rt.data.EmailsCache, e)
		added = append(added, e.ID)
	}

	rt.data.LastCheckTime = time.Now().Format("2006-01-02 15:04:05")
	if len(added) > 0 {
		rt.data.AddActivity("info", "📬", fmt.Sprintf("收到 %d 封新邮件", len(added)))
	}
	rt.SaveState()
	return added
}
