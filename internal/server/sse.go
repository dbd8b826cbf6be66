package server

import (
	"fmt"
	"net/http"
	"sync"

	"verdant/internal/events"
)

// latestCache keeps the most recent payload per topic for initial
// snapshots on new SSE/WS connections.
type latestCache struct {
	mu     sync.RWMutex
	latest map[events.Topic][]byte
}

func newLatestCache() *latestCache {
	return &latestCache{latest: make(map[events.Topic][]byte)}
}

func (c *latestCache) update(topic events.Topic, payload []byte) {
	c.mu.Lock()
	c.latest[topic] = append([]byte(nil), payload...)
	c.mu.Unlock()
}

func (c *latestCache) get(topic events.Topic) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	payload, ok := c.latest[topic]
	return payload, ok
}

// hub fans events out to per-connection SSE channels.
type hub struct {
	mu   sync.Mutex
	subs map[events.Topic]map[chan []byte]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[events.Topic]map[chan []byte]struct{})}
}

// subscribe returns a channel of payloads for a topic plus a cancel func.
func (h *hub) subscribe(topic events.Topic) (chan []byte, func()) {
	ch := make(chan []byte, 32)
	h.mu.Lock()
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[chan []byte]struct{})
	}
	h.subs[topic][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs[topic], ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *hub) publish(topic events.Topic, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[topic] {
		select {
		case ch <- payload:
		default:
			// Slow SSE client; drop rather than stall the pump.
		}
	}
}

// handleSSE streams one topic: initial snapshot if one exists, then one
// data frame per event until the client disconnects.
func (s *Server) handleSSE(topic events.Topic) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming not supported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		ch, cancel := s.hub.subscribe(topic)
		defer cancel()

		if snapshot, ok := s.latest.get(topic); ok {
			fmt.Fprintf(w, "data: %s\n\n", snapshot)
			flusher.Flush()
		}

		done := r.Context().Done()
		for {
			select {
			case <-done:
				return
			case payload := <-ch:
				fmt.Fprintf(w, "data: %s\n\n", payload)
				flusher.Flush()
			}
		}
	}
}
