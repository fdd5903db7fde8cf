// Package scheduler provides the drift-absorbing heartbeat driving the
// cycle loop.
package scheduler

import (
	"context"
	"time"

	"polyagent/internal/logger"
)

// Heartbeat runs a task on a fixed interval, sleeping only for the time
// the task left over: a cycle that takes 40s of a 600s interval is
// followed by a 560s sleep, so timing drift does not accumulate.
type Heartbeat struct {
	Interval time.Duration

	nowFn func() time.Time
}

func NewHeartbeat(interval time.Duration) *Heartbeat {
	return &Heartbeat{Interval: interval, nowFn: time.Now}
}

// Run invokes task until it returns false or the context is cancelled.
// The current task always runs to completion; cancellation is only
// observed between beats.
func (h *Heartbeat) Run(ctx context.Context, task func(ctx context.Context) bool) {
	if h.Interval <= 0 {
		logger.Warnf("heartbeat: invalid interval %s, exit", h.Interval)
		return
	}
	if h.nowFn == nil {
		h.nowFn = time.Now
	}
	for {
		start := h.nowFn()
		if !task(ctx) {
			return
		}
		elapsed := h.nowFn().Sub(start)
		wait := h.Interval - elapsed
		if wait < 0 {
			logger.Warnf("heartbeat: cycle overran interval by %s", (-wait).Truncate(time.Millisecond))
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Infof("heartbeat: context done, exit")
			return
		case <-timer.C:
		}
	}
}
