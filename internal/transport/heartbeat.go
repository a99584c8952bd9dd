package transport

import (
	"log"
	"time"

	"github.com/gobwas/ws"
)

// HeartbeatConfig holds heartbeat tuning parameters.
type HeartbeatConfig struct {
	Interval time.Duration // how often to ping (default: 30s), 0 disables
}

// DefaultHeartbeatConfig returns sensible defaults for heartbeat pings.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval: 30 * time.Second,
	}
}

// startHeartbeat begins a background goroutine that periodically sends a
// WebSocket ping frame (opcode 0x9) so idle connections survive proxies. A
// failed ping is treated as connection loss. The goroutine exits when the
// connection is closed.
func startHeartbeat(c *wsConn, config HeartbeatConfig) {
	go func() {
		ticker := time.NewTicker(config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-c.done:
				return
			case <-ticker.C:
				if err := c.writeFrame(ws.OpPing, nil); err != nil {
					log.Printf("[transport] heartbeat ping failed: %v", err)
					_ = c.shutdown(err)
					return
				}
			}
		}
	}()
}
