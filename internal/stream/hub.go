// Package stream pushes live availability changes to WebSocket clients.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/drivepulse/drivepulse/internal/publish"
	"github.com/drivepulse/drivepulse/internal/station"
)

// EventTypeSnapshot is sent once to every new client.
const EventTypeSnapshot = "station.snapshot"

// Source provides the fleet state sent on connect.
type Source interface {
	Snapshot() []station.Station
}

// SlotState is the availability of one station in a snapshot.
type SlotState struct {
	StationID      string    `json:"stationId"`
	AvailableSlots int       `json:"availableSlots"`
	TotalSlots     int       `json:"totalSlots"`
	IsAvailable    bool      `json:"isAvailable"`
	LastUpdated    time.Time `json:"lastUpdated"`
}

// Snapshot is the first message a client receives.
type Snapshot struct {
	EventType string      `json:"eventType"`
	Stations  []SlotState `json:"stations"`
}

// Config holds hub settings.
type Config struct {
	// SendBuffer is the per-client outbound queue length. Default: 16
	SendBuffer int

	// WriteTimeout bounds each frame write. Default: 10 seconds
	WriteTimeout time.Duration

	// PingInterval is how often idle clients are pinged. Default: 30 seconds
	PingInterval time.Duration

	// AllowedOrigins restricts browser origins; empty allows all.
	AllowedOrigins []string
}

func (c Config) withDefaults() Config {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 16
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	return c
}

// Hub tracks WebSocket clients and broadcasts changes to them.
type Hub struct {
	config   Config
	source   Source
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	dropped atomic.Int64
}

// NewHub creates a hub. source may be nil, in which case no snapshot is sent.
func NewHub(cfg Config, source Source, logger zerolog.Logger) *Hub {
	cfg = cfg.withDefaults()
	h := &Hub{
		config:  cfg,
		source:  source,
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// Name implements simulator.Sink.
func (h *Hub) Name() string {
	return "websocket"
}

// Publish broadcasts each change to subscribed clients. Slow clients drop
// messages rather than block the simulator.
func (h *Hub) Publish(_ context.Context, changes []station.AvailabilityChange) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.clients) == 0 {
		return nil
	}

	for _, change := range changes {
		payload, err := publish.Encode(change)
		if err != nil {
			return err
		}
		for c := range h.clients {
			if !c.wants(change.StationID) {
				continue
			}
			if !c.enqueue(payload) {
				h.dropped.Add(1)
				h.logger.Warn().
					Str("remote_addr", c.remoteAddr).
					Str("station_id", change.StationID).
					Msg("dropping availability event, client buffer full")
			}
		}
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns the number of events dropped for slow clients.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// ServeHTTP upgrades the request and streams events until the client leaves.
// The optional station_id query parameter is a comma separated filter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newClient(conn, r.RemoteAddr, parseFilter(r.URL.Query().Get("station_id")), h.config)

	// Registering and snapshotting under one lock holds back Publish until the
	// snapshot is queued, so a change is either in the snapshot or follows it.
	h.mu.Lock()
	h.clients[c] = struct{}{}
	snapshot, err := h.snapshot(c)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode station snapshot")
	}
	if snapshot != nil {
		c.enqueue(snapshot)
	}
	h.mu.Unlock()

	h.logger.Info().
		Str("remote_addr", c.remoteAddr).
		Int("filter", len(c.filter)).
		Msg("stream client connected")

	go c.writePump()
	c.readPump()

	h.remove(c)
	h.logger.Info().Str("remote_addr", c.remoteAddr).Msg("stream client disconnected")
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close()
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

func (h *Hub) snapshot(c *client) ([]byte, error) {
	if h.source == nil {
		return nil, nil
	}
	stations := h.source.Snapshot()
	msg := Snapshot{EventType: EventTypeSnapshot, Stations: make([]SlotState, 0, len(stations))}
	for _, s := range stations {
		if !c.wants(s.ID) {
			continue
		}
		msg.Stations = append(msg.Stations, SlotState{
			StationID:      s.ID,
			AvailableSlots: s.AvailableSlots,
			TotalSlots:     s.TotalSlots,
			IsAvailable:    s.IsAvailable(),
			LastUpdated:    s.LastUpdated,
		})
	}
	return json.Marshal(msg)
}

func parseFilter(raw string) map[string]struct{} {
	if raw == "" {
		return nil
	}
	filter := make(map[string]struct{})
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			filter[id] = struct{}{}
		}
	}
	if len(filter) == 0 {
		return nil
	}
	return filter
}
