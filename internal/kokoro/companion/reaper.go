package companion

import (
	"context"
	"time"
)

// Reap ends sessions idle for longer than the cooldown relative to now and
// returns how many were ended.
func (m *Manager) Reap(ctx context.Context, now time.Time) int {
	m.mu.Lock()
	stale := make(map[string]*entry)
	for key, e := range m.entries {
		if now.Sub(e.lastUsed) > m.cfg.Cooldown {
			stale[key] = e
			delete(m.entries, key)
		}
	}
	m.mu.Unlock()

	for key, e := range stale {
		if err := e.sess.End(ctx); err != nil {
			m.logger.Warn("companion: failed to end idle session", "key", key, "err", err)
		}
	}
	if len(stale) > 0 {
		m.logger.Debug("companion: reaped idle sessions", "count", len(stale))
	}
	return len(stale)
}

// RunReaper calls Reap every interval until ctx is cancelled. Call it in a
// goroutine.
func (m *Manager) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Reap(ctx, m.deps.Now())
		}
	}
}
