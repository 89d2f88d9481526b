package handler

import (
	"net/http"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/drivepulse/drivepulse/internal/api/models"
	"github.com/drivepulse/drivepulse/internal/api/response"
	"github.com/drivepulse/drivepulse/internal/geo"
	"github.com/drivepulse/drivepulse/internal/query"
	"github.com/drivepulse/drivepulse/internal/station"
)

// Feature kinds set in the "kind" property of every map feature.
const (
	KindCorridor = "corridor"
	KindStation  = "station"
	KindNearest  = "nearest"
	KindUser     = "user"
	KindRoute    = "route"
)

// NavigationRadiusKm bounds the stations drawn around the caller on the
// navigation map.
const NavigationRadiusKm = 15.0

const geoJSONContentType = "application/geo+json"

// MapHandler renders station layers as GeoJSON for map clients.
type MapHandler struct {
	engine *query.Engine
}

// NewMapHandler creates a new MapHandler.
func NewMapHandler(engine *query.Engine) *MapHandler {
	return &MapHandler{engine: engine}
}

// StationsGeoJSON handles GET /v1/map/stations.geojson - every station plus
// the Jalandhar-Phagwara corridor.
func (h *MapHandler) StationsGeoJSON(w http.ResponseWriter, r *http.Request) {
	fc := geojson.NewFeatureCollection()

	corridor := geojson.NewFeature(orb.LineString{
		station.JalandharCenter.Point(),
		station.PhagwaraCenter.Point(),
	})
	corridor.Properties["kind"] = KindCorridor
	corridor.Properties["name"] = "Jalandhar-Phagwara Highway Route"
	fc.Append(corridor)

	for _, s := range h.engine.Stations() {
		fc.Append(stationFeature(s, KindStation))
	}

	writeGeoJSON(w, r, fc)
}

// NavigationGeoJSON handles GET /v1/map/navigation.geojson?lat=&lng= - the
// caller, the nearest available station with a connecting line, and every
// other station within NavigationRadiusKm.
func (h *MapHandler) NavigationGeoJSON(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var fieldErrors []models.FieldError
	lat := floatParam(q.Get("lat"), station.JalandharCenter.Lat, "lat", &fieldErrors)
	lng := floatParam(q.Get("lng"), station.JalandharCenter.Lng, "lng", &fieldErrors)
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "Invalid coordinates", fieldErrors)
		return
	}

	origin, err := geo.Validate(lat, lng)
	if err != nil {
		writeCoordinateError(w, r, err, "")
		return
	}

	// Both layers come from one snapshot so markers agree on availability.
	stations := h.engine.Stations()
	nearest := query.FindNearest(stations, origin, query.DefaultMaxDistanceKm)
	nearby := query.Nearby(stations, origin, NavigationRadiusKm)

	fc := geojson.NewFeatureCollection()

	user := geojson.NewFeature(origin.Point())
	user.Properties["kind"] = KindUser
	user.Properties["name"] = "Your Location"
	fc.Append(user)

	nearestID := ""
	if nearest.Found && nearest.Nearest != nil {
		m := *nearest.Nearest
		nearestID = m.Station.ID

		f := stationFeature(m.Station, KindNearest)
		addMatchProperties(f, m)
		fc.Append(f)

		route := geojson.NewFeature(orb.LineString{origin.Point(), m.Station.Coordinates.Point()})
		route.Properties["kind"] = KindRoute
		route.Properties["distanceKm"] = models.RoundKm(m.DistanceKm)
		route.Properties["navigationUrl"] = m.NavigationURL
		fc.Append(route)
	}

	for _, m := range nearby {
		if m.Station.ID == nearestID {
			continue
		}
		f := stationFeature(m.Station, KindStation)
		addMatchProperties(f, m)
		fc.Append(f)
	}

	writeGeoJSON(w, r, fc)
}

func stationFeature(s station.Station, kind string) *geojson.Feature {
	f := geojson.NewFeature(s.Coordinates.Point())
	f.ID = s.ID
	f.Properties["kind"] = kind
	f.Properties["id"] = s.ID
	f.Properties["name"] = s.Name
	f.Properties["address"] = s.Address
	f.Properties["operator"] = s.Operator
	f.Properties["connectorType"] = string(s.ConnectorType)
	f.Properties["powerKw"] = s.PowerKw
	f.Properties["pricePerKwh"] = s.PricePerKwh
	f.Properties["availableSlots"] = s.AvailableSlots
	f.Properties["totalSlots"] = s.TotalSlots
	f.Properties["isAvailable"] = s.IsAvailable()
	f.Properties["marker-color"] = markerColor(s, kind)
	return f
}

func addMatchProperties(f *geojson.Feature, m query.Match) {
	f.Properties["distanceKm"] = models.RoundKm(m.DistanceKm)
	f.Properties["etaMinutes"] = m.ETAMinutes
	f.Properties["estimatedDriveTime"] = models.DriveTime(m.ETAMinutes)
	f.Properties["navigationUrl"] = m.NavigationURL
}

func markerColor(s station.Station, kind string) string {
	switch {
	case kind == KindNearest:
		return "#2e7d32"
	case s.IsAvailable():
		return "#66bb6a"
	default:
		return "#e53935"
	}
}

func writeGeoJSON(w http.ResponseWriter, r *http.Request, fc *geojson.FeatureCollection) {
	data, err := fc.MarshalJSON()
	if err != nil {
		response.InternalError(w, r, "failed to render map")
		return
	}
	response.Raw(w, r, http.StatusOK, geoJSONContentType, data)
}
