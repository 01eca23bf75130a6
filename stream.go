package supra

import (
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

type statsStream struct {
	registry *Registry
	interval time.Duration
}

// NewStatsStreamHandler serves circuit snapshots as server-sent events, one
// event per interval until the client disconnects.
func NewStatsStreamHandler(registry *Registry, interval time.Duration) http.Handler {
	if interval <= 0 {
		interval = time.Second
	}
	return &statsStream{registry: registry, interval: interval}
}

func (s *statsStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", ContentTypeEventStream)
	h.Set("Cache-Control", CacheControlNoCache)
	h.Set("Connection", ConnectionKeepAlive)
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.writeEvent(w); err != nil {
			return
		}
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *statsStream) writeEvent(w http.ResponseWriter) error {
	payload, err := json.Marshal(s.registry.Snapshot())
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	_, err = w.Write([]byte("\n\n"))
	return err
}
