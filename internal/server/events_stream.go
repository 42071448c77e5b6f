package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tradedesk/internal/events"
	"github.com/aristath/tradedesk/internal/refresh"
)

// streamedEventTypes are all event types forwarded to connected clients
var streamedEventTypes = []events.EventType{
	events.QuotesUpdated,
	events.WalletUpdated,
	events.SessionChanged,
	events.TradeExecuted,
	events.NavigateLogin,
	events.RefreshFailed,
}

// EventsStreamHandler streams bus events to the browser over SSE. A
// connection also drives the refresh lifecycle: the view named in the query
// gets its refresh schedule while the client is connected, and the schedule
// is stopped, timer included, the moment the client goes away.
type EventsStreamHandler struct {
	bus          *events.Bus
	scheduler    *refresh.Scheduler
	refresherFor func(view string) refresh.Func
	interval     time.Duration
	log          zerolog.Logger
}

// NewEventsStreamHandler creates a new events stream handler
func NewEventsStreamHandler(bus *events.Bus, scheduler *refresh.Scheduler, refresherFor func(string) refresh.Func, interval time.Duration, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		bus:          bus,
		scheduler:    scheduler,
		refresherFor: refresherFor,
		interval:     interval,
		log:          log.With().Str("component", "events_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/events/stream requests (SSE).
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	view := r.URL.Query().Get("view")
	if view == "" {
		view = "dashboard"
	}

	typesFilter := r.URL.Query().Get("types")
	var allowedTypes map[events.EventType]bool
	if typesFilter != "" {
		allowedTypes = make(map[events.EventType]bool)
		for _, t := range strings.Split(typesFilter, ",") {
			allowedTypes[events.EventType(strings.TrimSpace(t))] = true
		}
	}

	h.log.Info().Str("view", view).Str("types_filter", typesFilter).Msg("Client connected to event stream")

	// Buffered so a slow client drops events instead of blocking publishers.
	eventChan := make(chan *events.Event, 100)
	var disconnected atomic.Bool

	eventHandler := func(event *events.Event) {
		if disconnected.Load() {
			return
		}
		if allowedTypes != nil && !allowedTypes[event.Type] {
			return
		}
		select {
		case eventChan <- event:
		default:
			h.log.Warn().Str("event_type", string(event.Type)).Msg("Event channel full, dropping event")
		}
	}

	for _, eventType := range streamedEventTypes {
		if allowedTypes == nil || allowedTypes[eventType] {
			h.bus.Subscribe(eventType, eventHandler)
		}
	}

	// The connection is the view's lifetime: schedule starts now, stops on
	// disconnect, and Stop guarantees the timer and any in-flight refresh
	// are dead before we return.
	handle := h.scheduler.Start(view, h.interval, h.refresherFor(view))
	defer func() {
		disconnected.Store(true)
		h.scheduler.Stop(handle)
	}()

	done := r.Context().Done()

	fmt.Fprintf(w, "data: %s\n\n", h.encodeEvent(map[string]interface{}{
		"type": "connected",
		"view": view,
	}))
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			h.log.Info().Str("view", view).Msg("Client disconnected from event stream")
			return

		case event := <-eventChan:
			eventJSON := h.encodeEvent(map[string]interface{}{
				"type":      string(event.Type),
				"module":    event.Module,
				"timestamp": event.Timestamp.Format(time.RFC3339),
				"data":      event.Data,
			})
			fmt.Fprintf(w, "data: %s\n\n", eventJSON)
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprintf(w, "data: %s\n\n", h.encodeEvent(map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().Format(time.RFC3339),
			}))
			flusher.Flush()
		}
	}
}

// encodeEvent encodes an event map to JSON string
func (h *EventsStreamHandler) encodeEvent(event map[string]interface{}) string {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal event")
		return `{"error":"failed to encode event"}`
	}
	return string(data)
}
