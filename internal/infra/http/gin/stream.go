package ginserver

import (
	"context"
	"net/http"
	"time"

	gin "github.com/gin-gonic/gin"

	domain "venuehub/internal/domain/messaging"
)

// streamEvents serves subscription updates as server-sent events until the
// client goes away. Slow clients only see the newest snapshot.
func streamEvents[T any](c *gin.Context, keepAlive time.Duration, event string, subscribe func(context.Context, func(T)) domain.Cancel, render func(T) any) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	updates := make(chan T, 1)
	stop := subscribe(ctx, func(v T) {
		select {
		case updates <- v:
			return
		default:
		}
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- v:
		default:
		}
	})
	defer stop()

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-updates:
			c.SSEvent(event, render(v))
			c.Writer.Flush()
		case <-ticker.C:
			if _, err := c.Writer.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}
