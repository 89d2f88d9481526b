package stream_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivepulse/drivepulse/internal/publish"
	"github.com/drivepulse/drivepulse/internal/station"
	"github.com/drivepulse/drivepulse/internal/stream"
)

var now = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func newRegistry(t *testing.T) *station.Registry {
	t.Helper()
	reg, err := station.NewRegistry(station.Generate(station.DefaultLocations(), station.NewRand(5), now))
	require.NoError(t, err)
	return reg
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestHub_SnapshotThenChanges(t *testing.T) {
	reg := newRegistry(t)
	hub := stream.NewHub(stream.Config{}, reg, zerolog.Nop())
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dial(t, server, "")

	var snap stream.Snapshot
	readJSON(t, conn, &snap)
	assert.Equal(t, stream.EventTypeSnapshot, snap.EventType)
	require.Len(t, snap.Stations, reg.Len())
	assert.Equal(t, "PB001", snap.Stations[0].StationID)
	assert.Equal(t, 1, hub.ClientCount())

	change, err := reg.Mutate("PB002", 4, now.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, hub.Publish(context.Background(), []station.AvailabilityChange{change}))

	var ev publish.Event
	readJSON(t, conn, &ev)
	assert.Equal(t, publish.EventTypeAvailabilityChanged, ev.EventType)
	assert.Equal(t, "PB002", ev.Change.StationID)
	assert.Equal(t, 4, ev.Change.AvailableSlots)
	assert.True(t, ev.Available)
}

// gatedSource reads the registry, then parks until released so a change can
// land while the hub is still preparing the snapshot.
type gatedSource struct {
	*station.Registry
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedSource) Snapshot() []station.Station {
	stations := g.Registry.Snapshot()
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return stations
}

func TestHub_ChangeDuringSnapshotIsDelivered(t *testing.T) {
	reg := newRegistry(t)
	_, err := reg.Mutate("PB003", 0, now)
	require.NoError(t, err)

	source := &gatedSource{Registry: reg, entered: make(chan struct{}), release: make(chan struct{})}
	hub := stream.NewHub(stream.Config{}, source, zerolog.Nop())
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dial(t, server, "?station_id=PB003")

	select {
	case <-source.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot was never taken")
	}

	change, err := reg.Mutate("PB003", 3, now.Add(time.Minute))
	require.NoError(t, err)

	published := make(chan error, 1)
	go func() {
		published <- hub.Publish(context.Background(), []station.AvailabilityChange{change})
	}()
	time.Sleep(20 * time.Millisecond)
	close(source.release)
	require.NoError(t, <-published)

	var snap stream.Snapshot
	readJSON(t, conn, &snap)
	assert.Equal(t, stream.EventTypeSnapshot, snap.EventType)
	require.Len(t, snap.Stations, 1)
	assert.Equal(t, 0, snap.Stations[0].AvailableSlots)

	var ev publish.Event
	readJSON(t, conn, &ev)
	assert.Equal(t, "PB003", ev.Change.StationID)
	assert.Equal(t, 3, ev.Change.AvailableSlots)
}

func TestHub_StationFilter(t *testing.T) {
	reg := newRegistry(t)
	hub := stream.NewHub(stream.Config{}, reg, zerolog.Nop())
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dial(t, server, "?station_id=PB005,%20PB007")

	var snap stream.Snapshot
	readJSON(t, conn, &snap)
	require.Len(t, snap.Stations, 2)
	assert.Equal(t, "PB005", snap.Stations[0].StationID)
	assert.Equal(t, "PB007", snap.Stations[1].StationID)

	skipped, err := reg.Mutate("PB001", 1, now.Add(time.Minute))
	require.NoError(t, err)
	wanted, err := reg.Mutate("PB007", 2, now.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, hub.Publish(context.Background(), []station.AvailabilityChange{skipped, wanted}))

	var ev publish.Event
	readJSON(t, conn, &ev)
	assert.Equal(t, "PB007", ev.Change.StationID)
}

func TestHub_ClientDisconnectIsRemoved(t *testing.T) {
	hub := stream.NewHub(stream.Config{}, newRegistry(t), zerolog.Nop())
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dial(t, server, "")
	var snap stream.Snapshot
	readJSON(t, conn, &snap)
	require.Equal(t, 1, hub.ClientCount())

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_PublishWithoutClients(t *testing.T) {
	hub := stream.NewHub(stream.Config{}, nil, zerolog.Nop())
	assert.Equal(t, "websocket", hub.Name())
	assert.NoError(t, hub.Publish(context.Background(), []station.AvailabilityChange{{StationID: "PB001"}}))
	assert.Zero(t, hub.Dropped())
}

func TestHub_RejectsDisallowedOrigin(t *testing.T) {
	hub := stream.NewHub(stream.Config{AllowedOrigins: []string{"https://app.example.com"}}, nil, zerolog.Nop())
	server := httptest.NewServer(hub)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
