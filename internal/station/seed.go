package station

import (
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/drivepulse/drivepulse/internal/geo"
)

// Location is a named place a station is generated at.
type Location struct {
	Name    string  `yaml:"name"`
	Address string  `yaml:"address"`
	Lat     float64 `yaml:"lat"`
	Lng     float64 `yaml:"lng"`
}

// Corridor endpoints of the Jalandhar–Phagwara highway the default fleet sits on.
var (
	JalandharCenter = geo.Coordinates{Lat: 31.3260, Lng: 75.5762}
	PhagwaraCenter  = geo.Coordinates{Lat: 31.2249, Lng: 75.7705}
)

// DefaultLocations returns the ten seed locations along the Jalandhar–Phagwara corridor.
func DefaultLocations() []Location {
	return []Location{
		{Name: "Tata Power EV Station - Jalandhar City Center", Lat: 31.3259, Lng: 75.5792, Address: "Near BMC Chowk, Jalandhar City"},
		{Name: "BSES Charging Point - Model Town", Lat: 31.3387, Lng: 75.5728, Address: "Model Town Market, Jalandhar"},
		{Name: "EVRE Highway Charger - Nakodar Road", Lat: 31.3125, Lng: 75.5921, Address: "NH-44, Nakodar Road"},
		{Name: "Fortum Quick Charge - Rama Mandi", Lat: 31.3045, Lng: 75.6138, Address: "Rama Mandi Chowk, GT Road"},
		{Name: "Magenta Power Station - Khurla Kingra", Lat: 31.2896, Lng: 75.6382, Address: "Khurla Kingra Village"},
		{Name: "BSES Express Charger - Bhogpur", Lat: 31.2743, Lng: 75.6627, Address: "Bhogpur Bypass, NH-44"},
		{Name: "Tata Power Highway Hub - Adampur", Lat: 31.2598, Lng: 75.6894, Address: "Adampur Doaba"},
		{Name: "EVRE Fast Charger - Maqsudan", Lat: 31.2456, Lng: 75.7128, Address: "Maqsudan, GT Road"},
		{Name: "Fortum EV Station - Mithapur", Lat: 31.2345, Lng: 75.7453, Address: "Mithapur Chowk"},
		{Name: "Magenta Power Charger - Phagwara Main", Lat: 31.2249, Lng: 75.7705, Address: "Phagwara Bus Stand"},
	}
}

// LoadLocations reads a YAML list of locations. An empty path returns DefaultLocations.
func LoadLocations(path string) ([]Location, error) {
	if path == "" {
		return DefaultLocations(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read locations file: %w", err)
	}

	var locations []Location
	if err := yaml.Unmarshal(data, &locations); err != nil {
		return nil, fmt.Errorf("decode locations file: %w", err)
	}
	if len(locations) == 0 {
		return nil, fmt.Errorf("locations file %s is empty", path)
	}

	for i, loc := range locations {
		if loc.Name == "" {
			return nil, fmt.Errorf("location %d: name is required", i)
		}
		if _, err := geo.Validate(loc.Lat, loc.Lng); err != nil {
			return nil, fmt.Errorf("location %q: %w", loc.Name, err)
		}
	}

	return locations, nil
}

// Generate builds one station per location with randomized attributes drawn
// from rng. Ids are assigned sequentially as PB001, PB002, ...
func Generate(locations []Location, rng *rand.Rand, now time.Time) []Station {
	connectors := ConnectorTypes()
	operators := Operators()
	ratings := PowerRatingsKw()

	stations := make([]Station, 0, len(locations))
	for i, loc := range locations {
		price := MinPricePerKwh + rng.Float64()*(MaxPricePerKwh-MinPricePerKwh)

		stations = append(stations, Station{
			ID:             fmt.Sprintf("PB%03d", i+1),
			Name:           loc.Name,
			Address:        loc.Address,
			Operator:       operators[rng.IntN(len(operators))],
			Coordinates:    geo.Coordinates{Lat: loc.Lat, Lng: loc.Lng},
			ConnectorType:  connectors[rng.IntN(len(connectors))],
			PowerKw:        ratings[rng.IntN(len(ratings))],
			PricePerKwh:    math.Round(price*100) / 100,
			TotalSlots:     DefaultTotalSlots,
			AvailableSlots: rng.IntN(DefaultTotalSlots + 1),
			LastUpdated:    now,
		})
	}

	return stations
}

// NewRand returns a seeded random source. A zero seed derives one from the clock.
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano()) //nolint:gosec // non-negative clock value
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
