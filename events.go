package stagehand

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/labstack/echo/v4"
)

const contentUpdatedEvent = "content-updated"

// handleEvents streams content-updated events as server-sent events so open
// editor tabs can patch text without reloading. ?section= narrows the stream.
func (a *App) handleEvents(c echo.Context) error {
	events, cancel := a.Editor.Notifier.Subscribe(c.QueryParam("section"))
	defer cancel()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, sse.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	w.Flush()

	heartbeat := time.NewTicker(a.heartbeat)
	defer heartbeat.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := sse.Encode(w, sse.Event{Event: contentUpdatedEvent, Data: ev}); err != nil {
				return nil
			}
			w.Flush()
		case <-heartbeat.C:
			// Comment lines keep proxies from closing an idle stream.
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
