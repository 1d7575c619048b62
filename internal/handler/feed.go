package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"shopsy-inventory-api/internal/feed"
	"shopsy-inventory-api/internal/logger"
	"shopsy-inventory-api/internal/model"
	"shopsy-inventory-api/pkg/apierror"
	"shopsy-inventory-api/pkg/response"
)

// FeedHandler serves the push stream and the poll endpoint of the change feed.
type FeedHandler struct {
	feed *feed.Feed
	log  *zap.Logger
}

// NewFeedHandler creates a new feed handler.
func NewFeedHandler(f *feed.Feed, log *zap.Logger) *FeedHandler {
	return &FeedHandler{
		feed: f,
		log:  logger.OrNop(log).Named("feed_handler"),
	}
}

// ChangesResponse is the body of a poll.
type ChangesResponse struct {
	Count  int                 `json:"count"`
	Events []model.LedgerEntry `json:"events"`
}

// Stream handles GET /api/v1/events/inventory/?product_id=&session_id=
func (h *FeedHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		response.Error(w, apierror.InternalError("Streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	q := r.URL.Query()
	sink := &sseSink{w: w, flusher: flusher}

	err := h.feed.Stream(r.Context(), q.Get("session_id"), q.Get("product_id"), sink)
	if err != nil && model.KindOf(err) != model.KindTransport {
		h.log.Warn("push stream ended with error", zap.Error(err))
	}
}

// Changes handles GET /api/v1/polling/inventory/changes/?since=&product_id=
func (h *FeedHandler) Changes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	since, err := h.feed.ParseSince(q.Get("since"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	entries, err := h.feed.Changes(r.Context(), since, q.Get("product_id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	response.OK(w, ChangesResponse{Count: len(entries), Events: entries})
}

// sseSink writes feed messages as server-sent event frames.
type sseSink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) Send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.write("data: %s\n\n", data)
}

func (s *sseSink) Heartbeat() error {
	return s.write(": heartbeat\n\n")
}

func (s *sseSink) write(format string, args ...interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, format, args...); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
