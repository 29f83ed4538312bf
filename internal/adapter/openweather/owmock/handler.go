// Package owmock serves deterministic OpenWeatherMap current-weather
// responses. Readings derive from the requested location and the handler's
// clock, so a fake clock yields reproducible payloads.
package owmock

import (
	"fmt"
	"hash/fnv"
	"math"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
)

var conditions = []struct {
	id          int
	main        string
	description string
	icon        string
}{
	{800, "Clear", "clear sky", "01d"},
	{801, "Clouds", "few clouds", "02d"},
	{803, "Clouds", "broken clouds", "04d"},
	{500, "Rain", "light rain", "10d"},
	{601, "Snow", "snow", "13d"},
	{211, "Thunderstorm", "thunderstorm", "11d"},
}

// Handler implements GET /data/2.5/weather.
type Handler struct {
	clock clockwork.Clock
	mux   *http.ServeMux
	hits  atomic.Int64
}

// NewHandler returns a handler using clock for observation times. A nil
// clock uses the wall clock.
func NewHandler(clock clockwork.Clock) *Handler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	h := &Handler{clock: clock, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /data/2.5/weather", h.weather)
	return h
}

// Hits reports how many weather requests were served, including rejected ones.
func (h *Handler) Hits() int64 { return h.hits.Load() }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) weather(w http.ResponseWriter, r *http.Request) {
	h.hits.Add(1)
	q := r.URL.Query()

	if q.Get("appid") == "" {
		writeError(w, http.StatusUnauthorized, "Invalid API key.")
		return
	}

	name, lat, lon, ok := location(q.Get("q"), q.Get("lat"), q.Get("lon"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Nothing to geocode")
		return
	}

	sharedobs.WriteJSON(w, http.StatusOK, h.generate(name, lat, lon, q.Get("units")))
}

func location(city, latStr, lonStr string) (string, float64, float64, bool) {
	if latStr != "" && lonStr != "" {
		lat, err1 := strconv.ParseFloat(latStr, 64)
		lon, err2 := strconv.ParseFloat(lonStr, 64)
		if err1 != nil || err2 != nil || math.Abs(lat) > 90 || math.Abs(lon) > 180 {
			return "", 0, 0, false
		}
		return fmt.Sprintf("Station %.2f,%.2f", lat, lon), lat, lon, true
	}
	if city != "" {
		return city, 0, 0, true
	}
	return "", 0, 0, false
}

func (h *Handler) generate(name string, lat, lon float64, units string) map[string]any {
	now := h.clock.Now().UTC()
	seed := fnv.New32a()
	seed.Write([]byte(name)) //nolint:errcheck // hash writes never fail
	s := seed.Sum32()

	// Diurnal swing around a per-location baseline, in Kelvin.
	base := 273.15 + float64(s%30)
	swing := 6 * math.Sin(2*math.Pi*float64(now.Hour()-9)/24)
	temp := base + swing
	cond := conditions[int(s/7)%len(conditions)]
	wind := float64(s%150) / 10

	body := map[string]any{
		"coord":   map[string]any{"lat": lat, "lon": lon},
		"weather": []map[string]any{{"id": cond.id, "main": cond.main, "description": cond.description, "icon": cond.icon}},
		"main": map[string]any{
			"temp":     round2(convertTemp(temp, units)),
			"temp_min": round2(convertTemp(temp-2, units)),
			"temp_max": round2(convertTemp(temp+2, units)),
			"pressure": 1000 + float64(s%30),
			"humidity": 30 + float64(s%60),
		},
		"wind":   map[string]any{"speed": round2(convertSpeed(wind, units)), "deg": float64(s % 360)},
		"clouds": map[string]any{"all": float64(s % 101)},
		"dt":     now.Unix(),
		"sys": map[string]any{
			"sunrise": time.Date(now.Year(), now.Month(), now.Day(), 6, 30, 0, 0, time.UTC).Unix(),
			"sunset":  time.Date(now.Year(), now.Month(), now.Day(), 19, 45, 0, 0, time.UTC).Unix(),
		},
		"name": name,
		"cod":  http.StatusOK,
	}
	switch cond.main {
	case "Rain", "Thunderstorm":
		body["rain"] = map[string]any{"1h": float64(s%40) / 10}
	case "Snow":
		body["snow"] = map[string]any{"1h": float64(s%20) / 10}
	}
	return body
}

func convertTemp(kelvin float64, units string) float64 {
	switch units {
	case "metric":
		return kelvin - 273.15
	case "imperial":
		return (kelvin-273.15)*9/5 + 32
	default:
		return kelvin
	}
}

func convertSpeed(ms float64, units string) float64 {
	if units == "imperial" {
		return ms * 2.23694
	}
	return ms
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]any{"cod": strconv.Itoa(status), "message": msg})
}
