package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/clipreview-backend/internal/domain/review"
	"github.com/yungbote/clipreview-backend/internal/platform/logger"
)

const outboundBuffer = 16

// Client is one live subscriber to stage events of a single run.
type Client struct {
	ID       uuid.UUID
	RunID    uuid.UUID
	Outbound chan review.StageEvent
	done     chan struct{}
	once     sync.Once
}

// Hub fans stage events out to local subscribers keyed by run id.
type Hub struct {
	mu            sync.RWMutex
	log           *logger.Logger
	subscriptions map[uuid.UUID]map[*Client]bool
	heartbeat     time.Duration
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:           log.With("component", "StageHub"),
		subscriptions: make(map[uuid.UUID]map[*Client]bool),
		heartbeat:     15 * time.Second,
	}
}

func (h *Hub) Subscribe(runID uuid.UUID) *Client {
	c := &Client{
		ID:       uuid.New(),
		RunID:    runID,
		Outbound: make(chan review.StageEvent, outboundBuffer),
		done:     make(chan struct{}),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.subscriptions[runID]
	if !ok {
		clients = make(map[*Client]bool)
		h.subscriptions[runID] = clients
	}
	clients[c] = true
	h.log.Debug("stage client subscribed", "clientID", c.ID, "runID", runID)
	return c
}

// Close unsubscribes c and closes its outbound channel. Safe to call twice.
func (h *Hub) Close(c *Client) {
	if c == nil {
		return
	}
	c.once.Do(func() {
		h.mu.Lock()
		if subs, ok := h.subscriptions[c.RunID]; ok {
			delete(subs, c)
			if len(subs) == 0 {
				delete(h.subscriptions, c.RunID)
			}
		}
		close(c.done)
		close(c.Outbound)
		h.mu.Unlock()
	})
}

func (h *Hub) Subscribers(runID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[runID])
}

// Broadcast never blocks. Events for a full client are dropped.
func (h *Hub) Broadcast(ev review.StageEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.subscriptions[ev.RunID] {
		select {
		case c.Outbound <- ev:
		default:
			h.log.Warn("dropping stage event; outbound buffer full", "clientID", c.ID, "runID", ev.RunID)
		}
	}
}

// ServeHTTP streams c's events as server-sent events until the request ends,
// the client is closed, or a terminal stage is delivered.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request, c *Client) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-c.Outbound:
			if !ok {
				return
			}
			raw, err := json.Marshal(ev)
			if err != nil {
				h.log.Warn("failed to marshal stage event", "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: stage\ndata: %s\n\n", raw)
			flusher.Flush()
			if isTerminalStage(ev.Stage) {
				return
			}
		}
	}
}

func isTerminalStage(stage string) bool {
	switch strings.ToLower(stage) {
	case "done", "failed":
		return true
	default:
		return false
	}
}
