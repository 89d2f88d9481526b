package station_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivepulse/drivepulse/internal/geo"
	"github.com/drivepulse/drivepulse/internal/station"
)

func TestDefaultLocations(t *testing.T) {
	locations := station.DefaultLocations()
	require.Len(t, locations, 10)

	assert.Equal(t, "Tata Power EV Station - Jalandhar City Center", locations[0].Name)
	assert.Equal(t, 31.3259, locations[0].Lat)
	assert.Equal(t, 75.5792, locations[0].Lng)
	assert.Equal(t, "Phagwara Bus Stand", locations[9].Address)
}

func TestGenerate_AttributesWithinBounds(t *testing.T) {
	stations := station.Generate(station.DefaultLocations(), station.NewRand(42), baseTime)
	require.Len(t, stations, 10)

	for i, s := range stations {
		assert.NoError(t, s.Validate())
		assert.Equal(t, station.DefaultLocations()[i].Name, s.Name)
		assert.Contains(t, station.ConnectorTypes(), s.ConnectorType)
		assert.Contains(t, station.Operators(), s.Operator)
		assert.Contains(t, station.PowerRatingsKw(), s.PowerKw)
		assert.GreaterOrEqual(t, s.PricePerKwh, station.MinPricePerKwh)
		assert.LessOrEqual(t, s.PricePerKwh, station.MaxPricePerKwh)
		assert.InDelta(t, s.PricePerKwh, float64(int(s.PricePerKwh*100+0.5))/100, 1e-9, "price has two decimals")
		assert.Equal(t, station.DefaultTotalSlots, s.TotalSlots)
		assert.GreaterOrEqual(t, s.AvailableSlots, 0)
		assert.LessOrEqual(t, s.AvailableSlots, s.TotalSlots)
		assert.Equal(t, s.AvailableSlots > 0, s.IsAvailable())
		assert.Equal(t, baseTime, s.LastUpdated)
	}

	assert.Equal(t, "PB001", stations[0].ID)
	assert.Equal(t, "PB010", stations[9].ID)
}

func TestGenerate_DeterministicForSeed(t *testing.T) {
	a := station.Generate(station.DefaultLocations(), station.NewRand(7), baseTime)
	b := station.Generate(station.DefaultLocations(), station.NewRand(7), baseTime)
	assert.Equal(t, a, b)

	reg, err := station.NewRegistry(a)
	require.NoError(t, err)
	assert.Equal(t, 10, reg.Len())
}

func TestGenerate_UniqueIDs(t *testing.T) {
	stations := station.Generate(station.DefaultLocations(), station.NewRand(1), baseTime)
	seen := make(map[string]bool)
	for _, s := range stations {
		assert.False(t, seen[s.ID], "duplicate id %s", s.ID)
		seen[s.ID] = true
	}
}

func TestLoadLocations_EmptyPathUsesDefaults(t *testing.T) {
	locations, err := station.LoadLocations("")
	require.NoError(t, err)
	assert.Equal(t, station.DefaultLocations(), locations)
}

func TestLoadLocations_FromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stations.yaml")
	content := `
- name: Depot A
  address: Industrial Area
  lat: 31.30
  lng: 75.60
- name: Depot B
  lat: 31.25
  lng: 75.70
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	locations, err := station.LoadLocations(path)
	require.NoError(t, err)
	require.Len(t, locations, 2)
	assert.Equal(t, "Depot A", locations[0].Name)
	assert.Equal(t, "Industrial Area", locations[0].Address)
	assert.Equal(t, 75.70, locations[1].Lng)
}

func TestLoadLocations_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{name: "empty list", content: "[]"},
		{name: "missing name", content: "- lat: 1\n  lng: 1\n"},
		{name: "invalid latitude", content: "- name: X\n  lat: 120\n  lng: 1\n"},
		{name: "malformed yaml", content: "- name: [unterminated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			_, err := station.LoadLocations(path)
			assert.Error(t, err)
		})
	}

	_, err := station.LoadLocations(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadLocations_InvalidCoordinateIsTyped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- name: X\n  lat: 10\n  lng: 200\n"), 0o600))

	_, err := station.LoadLocations(path)
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinate)
}
