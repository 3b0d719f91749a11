package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/trafficpulse/livemap/internal/domain"
	"github.com/trafficpulse/livemap/internal/metrics"
	"github.com/trafficpulse/livemap/pkg/utils"
)

// Provider-supported parameter ranges. Values outside are clamped, not
// rejected.
const (
	MinTrafficRadiusM = 200
	MaxTrafficRadiusM = 5000
	MinPlaceRadiusM   = 100
	MaxPlaceRadiusM   = 5000
	MaxPlaceOffset    = 50

	defaultPlaceOffset = 20
	defaultTimeout     = 10 * time.Second
)

// DefaultBaseURL is the provider's production REST endpoint.
const DefaultBaseURL = "https://restapi.amap.com"

// Config tunes one geo client.
type Config struct {
	BaseURL string
	Key     string
	Timeout time.Duration
}

// Client queries the geospatial provider for road status and nearby places.
// It is stateless and safe for concurrent use; failures are surfaced to the
// caller as TransportError or ProviderError, never retried here.
type Client struct {
	baseURL    string
	key        string
	httpClient *http.Client
	log        *slog.Logger
}

var (
	_ domain.TrafficQuerier = (*Client)(nil)
	_ domain.PlaceQuerier   = (*Client)(nil)
)

// NewClient creates a geo client.
func NewClient(cfg Config, log *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		key:        cfg.Key,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

// trafficEnvelope is the provider's road-status response. Numeric fields
// arrive as strings.
type trafficEnvelope struct {
	Status      string `json:"status"`
	Info        string `json:"info"`
	Infocode    string `json:"infocode"`
	TrafficInfo struct {
		Description string      `json:"description"`
		Roads       []roadEntry `json:"roads"`
	} `json:"trafficinfo"`
}

type roadEntry struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Speed    string `json:"speed"`
	Polyline string `json:"polyline"`
}

// placeEnvelope is the provider's nearby-search response.
type placeEnvelope struct {
	Status   string     `json:"status"`
	Info     string     `json:"info"`
	Infocode string     `json:"infocode"`
	Count    string     `json:"count"`
	POIs     []poiEntry `json:"pois"`
}

type poiEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Location string `json:"location"`
	Distance string `json:"distance"`
}

// QueryDisk fetches road status within a circle around center. The radius is
// clamped to the provider's supported range before the call.
func (c *Client) QueryDisk(ctx context.Context, center orb.Point, radiusKm float64) ([]domain.RoadSegment, error) {
	radiusM := int(utils.Clamp(radiusKm*1000, MinTrafficRadiusM, MaxTrafficRadiusM))

	params := url.Values{}
	params.Set("location", formatPoint(center))
	params.Set("radius", strconv.Itoa(radiusM))
	params.Set("extensions", "all")

	var env trafficEnvelope
	if err := c.get(ctx, "disk", "/v3/traffic/status/circle", params, &env); err != nil {
		return nil, err
	}
	if err := c.envelopeError("disk", env.Status, env.Info, env.Infocode); err != nil {
		return nil, err
	}

	roads := c.parseRoads("disk", env.TrafficInfo.Roads)
	c.log.Debug("geo_disk", "center", formatPoint(center), "radius_m", radiusM, "roads", len(roads))
	return roads, nil
}

// QueryRectangle fetches road status within the rectangle derived from center
// and radiusKm (see RectFromCenter). Corners go to the provider as
// "lng1,lat1;lng2,lat2", lower-left first.
func (c *Client) QueryRectangle(ctx context.Context, center orb.Point, radiusKm float64) ([]domain.RoadSegment, error) {
	bound := RectFromCenter(center, radiusKm)

	params := url.Values{}
	params.Set("rectangle", formatBound(bound))
	params.Set("extensions", "all")

	var env trafficEnvelope
	if err := c.get(ctx, "rectangle", "/v3/traffic/status/rectangle", params, &env); err != nil {
		return nil, err
	}
	if err := c.envelopeError("rectangle", env.Status, env.Info, env.Infocode); err != nil {
		return nil, err
	}

	roads := c.parseRoads("rectangle", env.TrafficInfo.Roads)
	c.log.Debug("geo_rectangle", "rectangle", formatBound(bound), "roads", len(roads))
	return roads, nil
}

// QueryNearby fetches points of interest around a center. The raw point list
// comes back untransformed; when the provider omits a distance it is filled
// in from the great-circle distance to the query center.
func (c *Client) QueryNearby(ctx context.Context, q domain.NearbyQuery) ([]domain.POI, error) {
	radiusM := utils.ClampInt(q.RadiusM, MinPlaceRadiusM, MaxPlaceRadiusM)
	page := q.Page
	if page < 1 {
		page = 1
	}
	offset := q.Offset
	if offset == 0 {
		offset = defaultPlaceOffset
	}
	offset = utils.ClampInt(offset, 1, MaxPlaceOffset)

	params := url.Values{}
	params.Set("location", formatPoint(q.Center))
	params.Set("radius", strconv.Itoa(radiusM))
	if q.Keywords != "" {
		params.Set("keywords", q.Keywords)
	}
	if q.Types != "" {
		params.Set("types", q.Types)
	}
	params.Set("page", strconv.Itoa(page))
	params.Set("offset", strconv.Itoa(offset))

	var env placeEnvelope
	if err := c.get(ctx, "nearby", "/v3/place/around", params, &env); err != nil {
		return nil, err
	}
	if err := c.envelopeError("nearby", env.Status, env.Info, env.Infocode); err != nil {
		return nil, err
	}

	pois := make([]domain.POI, 0, len(env.POIs))
	for _, e := range env.POIs {
		loc, err := parsePoint(e.Location)
		if err != nil {
			c.log.Warn("geo_poi_skipped", "name", e.Name, "error", err)
			continue
		}
		poi := domain.POI{ID: e.ID, Name: e.Name, Address: e.Address, Location: loc}
		if e.Distance != "" {
			if d, err := strconv.ParseFloat(e.Distance, 64); err == nil {
				poi.DistanceM = d
			}
		}
		if poi.DistanceM == 0 {
			poi.DistanceM = utils.RoundTo(utils.HaversineKm(q.Center[0], q.Center[1], loc[0], loc[1])*1000, 1)
		}
		pois = append(pois, poi)
	}
	c.log.Debug("geo_nearby", "types", q.Types, "radius_m", radiusM, "pois", len(pois))
	return pois, nil
}

// get performs one provider GET and decodes the body into out. HTTP-level
// failures map to TransportError; envelope status is the caller's to check.
func (c *Client) get(ctx context.Context, query, path string, params url.Values, out any) error {
	params.Set("key", c.key)
	params.Set("output", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return &domain.TransportError{Op: "http", Err: err}
	}

	metrics.GeoRequestsTotal.WithLabelValues(query).Inc()
	t0 := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.GeoErrorsTotal.WithLabelValues(query, "transport").Inc()
		return &domain.TransportError{Op: "http", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.GeoErrorsTotal.WithLabelValues(query, "transport").Inc()
		return &domain.TransportError{Op: "http", Err: fmt.Errorf("geo: provider returned status %d", resp.StatusCode)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.GeoErrorsTotal.WithLabelValues(query, "decode").Inc()
		return &domain.TransportError{Op: "decode", Err: err}
	}

	metrics.GeoDurationMs.WithLabelValues(query).Observe(float64(time.Since(t0).Milliseconds()))
	return nil
}

func (c *Client) envelopeError(query, status, info, infocode string) error {
	if status == "1" {
		return nil
	}
	metrics.GeoErrorsTotal.WithLabelValues(query, "provider").Inc()
	return &domain.ProviderError{Query: query, Info: info, Infocode: infocode}
}

// parseRoads converts provider road entries to segments. A road with a
// malformed polyline keeps its entry (it still counts toward totals) but
// carries no geometry.
func (c *Client) parseRoads(query string, entries []roadEntry) []domain.RoadSegment {
	segs := make([]domain.RoadSegment, 0, len(entries))
	for _, e := range entries {
		line, err := ParsePolyline(e.Polyline)
		if err != nil {
			c.log.Warn("geo_polyline_unreadable", "query", query, "road", e.Name, "error", err)
			line = nil
		}
		seg := domain.RoadSegment{Name: e.Name, Status: parseStatus(e.Status), Geometry: line}
		if e.Speed != "" {
			if v, err := strconv.ParseFloat(e.Speed, 64); err == nil {
				seg.Speed = &v
			}
		}
		segs = append(segs, seg)
	}
	return segs
}

func parseStatus(s string) domain.RoadStatus {
	n, err := strconv.Atoi(s)
	if err != nil || n < int(domain.StatusUnknown) || n > int(domain.StatusJammed) {
		return domain.StatusUnknown
	}
	return domain.RoadStatus(n)
}

// kmPerDegree is the length of one degree of latitude.
const kmPerDegree = 111.32

// RectFromCenter derives the rectangle query window from a center and radius
// using an equirectangular approximation: one degree of latitude spans
// 111.32 km, one degree of longitude 111.32·cos(lat) km.
func RectFromCenter(center orb.Point, radiusKm float64) orb.Bound {
	dLat := radiusKm / kmPerDegree
	dLng := radiusKm / (kmPerDegree * math.Cos(center[1]*math.Pi/180))
	return orb.Bound{
		Min: orb.Point{center[0] - dLng, center[1] - dLat},
		Max: orb.Point{center[0] + dLng, center[1] + dLat},
	}
}

// ParsePolyline reads the provider's "lng,lat;lng,lat;..." encoding. An empty
// string is an empty line, not an error.
func ParsePolyline(s string) (orb.LineString, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ";")
	line := make(orb.LineString, 0, len(parts))
	for _, part := range parts {
		p, err := parsePoint(part)
		if err != nil {
			return nil, err
		}
		line = append(line, p)
	}
	return line, nil
}

func parsePoint(s string) (orb.Point, error) {
	lngStr, latStr, ok := strings.Cut(s, ",")
	if !ok {
		return orb.Point{}, fmt.Errorf("geo: malformed point %q", s)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("geo: malformed longitude %q", lngStr)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("geo: malformed latitude %q", latStr)
	}
	return orb.Point{lng, lat}, nil
}

func formatPoint(p orb.Point) string {
	return fmt.Sprintf("%.6f,%.6f", p[0], p[1])
}

func formatBound(b orb.Bound) string {
	return fmt.Sprintf("%.6f,%.6f;%.6f,%.6f", b.Min[0], b.Min[1], b.Max[0], b.Max[1])
}
