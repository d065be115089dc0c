package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"halonet-payments/internal/domain/events"
	"halonet-payments/internal/infrastructure/logging"

	"github.com/labstack/echo/v4"
)

// ChangesHandler streams a company's row changes as server-sent events.
type ChangesHandler struct {
	feed      events.Feed
	heartbeat time.Duration
}

func NewChangesHandler(feed events.Feed, heartbeat time.Duration) *ChangesHandler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &ChangesHandler{feed: feed, heartbeat: heartbeat}
}

func (h *ChangesHandler) Stream(c echo.Context) error {
	companyID := c.Param("company_id")
	ch, cancel := h.feed.Subscribe(ctx(c), companyID)
	defer cancel()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	log := logging.FromContext(ctx(c)).WithField("company_id", companyID)
	log.Debug("changes: stream opened")
	defer log.Debug("changes: stream closed")

	tick := time.NewTicker(h.heartbeat)
	defer tick.Stop()
	for {
		select {
		case <-ctx(c).Done():
			return nil
		case <-tick.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		case chg, ok := <-ch:
			if !ok {
				return nil
			}
			raw, err := json.Marshal(chg)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "event: %s\nid: %s\ndata: %s\n\n", chg.Table, chg.ID, raw); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
