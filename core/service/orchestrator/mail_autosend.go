package orchestrator

import (
	"context"
	"strings"
	"time"

	"mailagent/core/domain"
	"mailagent/pkg/apperr"
	"mailagent/pkg/ratelimit"
)

// autoSendInterval is the fixed cadence of the auto-send loop, independent
// of the monitor's poll interval.
const autoSendInterval = 30 * time.Second

// autoSendLoop sends drafted replies of processed messages every 30 s while
// the user's auto-send flag is on.
func (m *Manager) autoSendLoop(ctx context.Context, rt *UserRuntime) {
	ticker := time.NewTicker(autoSendInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !rt.Settings().AutoSend {
			continue
		}
		m.autoSendSweep(ctx, rt)
	}
}

// autoSendSweep walks processed messages with a drafted reply. An interval
// denial skips to the next message; a quantity-window denial ends the sweep
// because the budget is exhausted for every message.
func (m *Manager) autoSendSweep(ctx context.Context, rt *UserRuntime) {
	rt.mu.Lock()
	var ids []string
	for _, e := range rt.data.EmailsCache {
		if e.Status == domain.StatusProcessed && strings.TrimSpace(e.Reply) != "" {
			ids = append(ids, e.ID)
		}
	}
	rt.mu.Unlock()

	for _, id := range ids {
		err := m.deps.Engine.SendReply(ctx, rt, id)
		if err == nil {
			continue
		}

		app := apperr.AsAppError(err)
		if app.Code == apperr.CodeRateLimited {
			if reason, _ := app.Details["reason"].(string); reason == ratelimit.ReasonInterval {
				continue
			}
			m.log.Info().Str("user_id", rt.userID).Str("detail", app.Message).Msg("auto-send sweep halted by quantity limit")
			return
		}
		m.log.Warn().Err(err).Str("user_id", rt.userID).Str("email_id", id).Msg("auto-send failed")
	}
}
