package agent

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Run starts a session, heartbeats until ctx is cancelled, then stops the
// session on a fresh timeout so shutdown still reaches the server. It
// gives up after MaxFailures consecutive heartbeat failures; any single
// success resets the counter.
func Run(ctx context.Context, logger *log.Logger, cfg Config) error {
	client := NewClient(cfg)

	sessionID, err := client.StartSession(ctx, cfg.DeviceID)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	startedAt := time.Now()
	logger.Printf("session started device=%s id=%s interval=%s", cfg.DeviceID, sessionID, cfg.HeartbeatInterval)

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
		defer cancel()
		runtime, err := client.StopSession(stopCtx, sessionID)
		if err != nil {
			logger.Printf("stop session failed id=%s: %v", sessionID, err)
			return
		}
		logger.Printf("session stopped id=%s runtime=%s", sessionID, runtime)
	}()

	ticker := time.NewTicker(cfg.HeartbeatInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if err := client.Heartbeat(ctx, sessionID); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			logger.Printf("heartbeat failed (%d/%d): %v", failures, cfg.MaxFailures, err)
			if failures >= cfg.MaxFailures {
				return fmt.Errorf("giving up after %d consecutive heartbeat failures", failures)
			}
			continue
		}
		failures = 0
		logger.Printf("heartbeat ok id=%s elapsed=%s", sessionID, formatElapsed(time.Since(startedAt)))
	}
}

func formatElapsed(d time.Duration) string {
	total := int64(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
