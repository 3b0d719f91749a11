package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/trafficpulse/livemap/internal/cache"
	"github.com/trafficpulse/livemap/internal/domain"
	"github.com/trafficpulse/livemap/internal/metrics"
	"github.com/trafficpulse/livemap/internal/overlay"
	"github.com/trafficpulse/livemap/pkg/utils"
)

var (
	// ErrCycleInProgress rejects a cycle trigger while another cycle is still
	// tearing down or setting up overlays. Concurrent triggers are dropped,
	// never queued.
	ErrCycleInProgress = errors.New("engine: cycle already running")

	// ErrNoCycleParams rejects enabling auto-refresh before any successful
	// cycle has recorded query parameters to repeat.
	ErrNoCycleParams = errors.New("engine: no cycle parameters to refresh")
)

const (
	DefaultSampleLimit     = 3
	DefaultRefreshInterval = 120 * time.Second
	DefaultCycleTimeout    = 15 * time.Second

	densityPageSize = 50 // provider maximum, fullest single page per category
)

// Config tunes one engine instance.
type Config struct {
	SampleLimit     int
	RefreshInterval time.Duration
	CycleTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.SampleLimit <= 0 {
		c.SampleLimit = DefaultSampleLimit
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = DefaultRefreshInterval
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = DefaultCycleTimeout
	}
	return c
}

// densityCategory is one point-of-interest class counted around the query
// center each cycle.
type densityCategory struct {
	name    string
	types   string // provider category codes
	markers bool   // draw a marker per POI
}

// The pedestrian proxy unions malls, food and sights as an approximation of
// foot traffic; it is counted but not drawn.
var densityCategories = []densityCategory{
	{name: "bus_stop", types: "150700", markers: true},
	{name: "metro_station", types: "150500", markers: true},
	{name: "pedestrian_proxy", types: "060100|050000|110000", markers: false},
}

// Engine reconciles the disk-shaped and rectangle-shaped status queries into
// one report per cycle and owns the overlays derived from it. Cycles are
// serialized: while one runs, further triggers fail with ErrCycleInProgress
// so overlay teardown and setup never interleave. A ClearAll landing
// mid-cycle wins over the cycle: its remaining draws and its commit are
// discarded.
type Engine struct {
	cfg      Config
	traffic  TrafficQuerier
	places   PlaceQuerier
	overlays *overlay.Manager
	reports  *cache.Reports
	log      *slog.Logger

	cycleMu sync.Mutex

	mu          sync.Mutex
	gen         uint64 // bumped by ClearAll; cycle writes land only while it is unchanged
	lastReport  *domain.ConsistencyReport
	lastCenter  orb.Point
	lastRadius  float64
	primed      bool
	refreshStop chan struct{}
	refreshDone chan struct{}
}

// NewEngine creates a reconciliation engine. places and reports may be nil:
// density sub-queries and the report cache are then skipped.
func NewEngine(cfg Config, traffic TrafficQuerier, places PlaceQuerier, overlays *overlay.Manager, reports *cache.Reports, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:      cfg.withDefaults(),
		traffic:  traffic,
		places:   places,
		overlays: overlays,
		reports:  reports,
		log:      log,
	}
}

// RunCycle issues both status queries concurrently, reconciles the result
// sets, replaces the rendered overlays and collects the per-category POI
// densities. One failed status query degrades the report; both failing fails
// the cycle with the two errors joined. A ClearAll during the cycle discards
// its draws and its commit; the computed report is still returned.
func (e *Engine) RunCycle(ctx context.Context, center orb.Point, radiusKm float64) (domain.ConsistencyReport, error) {
	if !e.cycleMu.TryLock() {
		return domain.ConsistencyReport{}, ErrCycleInProgress
	}
	defer e.cycleMu.Unlock()

	e.mu.Lock()
	startGen := e.gen
	e.mu.Unlock()

	t0 := time.Now()

	var (
		disk, rect       []domain.RoadSegment
		diskErr, rectErr error
		wg               sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		disk, diskErr = e.traffic.QueryDisk(ctx, center, radiusKm)
	}()
	go func() {
		defer wg.Done()
		rect, rectErr = e.traffic.QueryRectangle(ctx, center, radiusKm)
	}()
	wg.Wait()

	if diskErr != nil && rectErr != nil {
		metrics.CyclesTotal.WithLabelValues("failure").Inc()
		return domain.ConsistencyReport{}, fmt.Errorf("engine: both status queries failed: %w", errors.Join(diskErr, rectErr))
	}
	if diskErr != nil {
		e.log.Warn("cycle_disk_failed", "error", diskErr)
		disk = nil
	}
	if rectErr != nil {
		e.log.Warn("cycle_rect_failed", "error", rectErr)
		rect = nil
	}

	report := domain.ComputeConsistency(disk, rect, e.cfg.SampleLimit)
	report.Center = center
	report.RadiusKm = radiusKm
	report.GeneratedAt = time.Now().UTC()
	report.DiskFailed = diskErr != nil
	report.RectFailed = rectErr != nil

	// The disk set is the primary rendering source; the rectangle set stands
	// in when the disk query failed. SetSegments releases the previous
	// cycle's overlays before drawing. Draws and the commit below land only
	// under the generation this cycle started with; a ClearAll in between
	// has bumped it and the cleared map stays cleared.
	primary := disk
	if diskErr != nil {
		primary = rect
	}
	var rendered []domain.OverlayDescriptor
	e.mu.Lock()
	if e.gen == startGen {
		rendered = e.overlays.SetSegments(primary)
	}
	e.mu.Unlock()

	report.Densities = e.collectDensities(ctx, center, radiusKm, startGen)

	e.mu.Lock()
	committed := e.gen == startGen
	if committed {
		e.lastReport = &report
		e.lastCenter = center
		e.lastRadius = radiusKm
		e.primed = true
	}
	e.mu.Unlock()

	if committed && e.reports != nil {
		e.reports.Put(ctx, cache.Key(center, radiusKm), report)
	}
	if !committed {
		e.log.Debug("cycle_discarded_after_clear")
	}

	outcome := "success"
	if diskErr != nil || rectErr != nil {
		outcome = "degraded"
	}
	metrics.CyclesTotal.WithLabelValues(outcome).Inc()
	metrics.CycleDurationMs.Observe(float64(time.Since(t0).Milliseconds()))
	metrics.CycleMismatchRatio.Observe(report.MismatchRatio)

	e.log.Info("cycle_complete",
		"outcome", outcome,
		"disk", report.TotalDisk,
		"rect", report.TotalRect,
		"mismatch", utils.RoundTo(report.MismatchRatio, 3),
		"overlays", len(rendered),
		"duration_ms", time.Since(t0).Milliseconds(),
	)
	return report, nil
}

// collectDensities runs the per-category nearby queries concurrently and
// joins them before returning. Each category is best-effort: a failed one is
// logged and left out without touching the others or the cycle. Markers draw
// only while startGen is still the current generation.
func (e *Engine) collectDensities(ctx context.Context, center orb.Point, radiusKm float64, startGen uint64) []domain.DensityStat {
	if e.places == nil {
		return nil
	}

	radiusM := int(radiusKm * 1000)
	results := make([]*domain.DensityStat, len(densityCategories))

	var wg sync.WaitGroup
	for i, cat := range densityCategories {
		wg.Add(1)
		go func(i int, cat densityCategory) {
			defer wg.Done()

			pois, err := e.places.QueryNearby(ctx, domain.NearbyQuery{
				Center:  center,
				RadiusM: radiusM,
				Types:   cat.types,
				Offset:  densityPageSize,
			})
			if err != nil {
				e.log.Warn("density_query_failed", "category", cat.name, "error", err)
				return
			}

			stat := domain.NewDensityStat(cat.name, len(pois), radiusKm)
			results[i] = &stat
			if cat.markers {
				e.mu.Lock()
				if e.gen == startGen {
					e.overlays.AddMarkers(cat.name, pois)
				}
				e.mu.Unlock()
			}
		}(i, cat)
	}
	wg.Wait()

	out := make([]domain.DensityStat, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// Report returns the last successful cycle's report, if any.
func (e *Engine) Report() (domain.ConsistencyReport, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastReport == nil {
		return domain.ConsistencyReport{}, false
	}
	return *e.lastReport, true
}

// CachedReport consults the report cache for the given parameters. It serves
// readers that want a last-known-good answer for a location this instance has
// since moved away from.
func (e *Engine) CachedReport(ctx context.Context, center orb.Point, radiusKm float64) (domain.ConsistencyReport, bool) {
	if e.reports == nil {
		return domain.ConsistencyReport{}, false
	}
	return e.reports.Get(ctx, cache.Key(center, radiusKm))
}

// Overlays returns the rendered overlay descriptors in draw order.
func (e *Engine) Overlays() []domain.OverlayDescriptor { return e.overlays.Overlays() }

// Markers returns the rendered marker descriptors in draw order.
func (e *Engine) Markers() []domain.MarkerDescriptor { return e.overlays.Markers() }

// Highlight amplifies one overlay, restoring the previously highlighted one
// first.
func (e *Engine) Highlight(id uuid.UUID) error { return e.overlays.Highlight(id) }

// Restore reverts one overlay to its original style.
func (e *Engine) Restore(id uuid.UUID) error { return e.overlays.Restore(id) }

// SetAutoRefresh turns the periodic re-run of the last cycle on or off.
// Enabling is idempotent (a second enable never starts a second timer) and
// needs at least one successful cycle; period <= 0 keeps the configured
// interval. Disabling joins the loop: once it returns no further scheduled
// cycle can start. Disabling when not running is a no-op.
func (e *Engine) SetAutoRefresh(enabled bool, period time.Duration) error {
	if !enabled {
		e.mu.Lock()
		stop, done := e.detachRefreshLocked()
		e.mu.Unlock()
		e.joinRefresh(stop, done)
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.refreshStop != nil {
		return nil
	}
	if !e.primed {
		return ErrNoCycleParams
	}
	if period <= 0 {
		period = e.cfg.RefreshInterval
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	e.refreshStop = stop
	e.refreshDone = done
	go e.refreshLoop(stop, done, period)
	e.log.Info("auto_refresh_enabled", "period", period)
	return nil
}

// RefreshEnabled reports whether the periodic refresh is running.
func (e *Engine) RefreshEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refreshStop != nil
}

// ClearAll stops the auto-refresh, releases every overlay and marker and
// forgets the last report. A cycle in flight when the clear lands keeps its
// return value, but its remaining draws and its commit are discarded. Safe to
// call repeatedly; the second call finds nothing to release.
func (e *Engine) ClearAll() {
	e.mu.Lock()
	e.gen++
	e.lastReport = nil
	e.primed = false
	stop, done := e.detachRefreshLocked()
	e.overlays.Clear()
	e.mu.Unlock()

	e.joinRefresh(stop, done)
}

// detachRefreshLocked hands the running loop's channels to the caller and
// forgets them, so a second stop finds nothing. Call with e.mu held and pass
// the result to joinRefresh after releasing it.
func (e *Engine) detachRefreshLocked() (stop, done chan struct{}) {
	stop, done = e.refreshStop, e.refreshDone
	e.refreshStop, e.refreshDone = nil, nil
	return stop, done
}

// joinRefresh signals a detached loop to stop and waits until it has exited.
// Nil channels mean no loop was running.
func (e *Engine) joinRefresh(stop, done chan struct{}) {
	if stop == nil {
		return
	}
	close(stop)
	<-done
	e.log.Info("auto_refresh_disabled")
}

// refreshLoop re-runs the last cycle until stop closes, then closes done. A
// tick that collides with a running cycle is dropped, not queued; a tick that
// races the stop signal is discarded just before it would run.
func (e *Engine) refreshLoop(stop <-chan struct{}, done chan<- struct{}, period time.Duration) {
	defer close(done)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.mu.Lock()
			center, radius, primed := e.lastCenter, e.lastRadius, e.primed
			e.mu.Unlock()
			if !primed {
				continue
			}

			select {
			case <-stop:
				return
			default:
			}

			ctx, cancel := context.WithTimeout(context.Background(), e.cfg.CycleTimeout)
			_, err := e.RunCycle(ctx, center, radius)
			cancel()
			switch {
			case errors.Is(err, ErrCycleInProgress):
				e.log.Debug("refresh_tick_dropped")
			case err != nil:
				e.log.Warn("refresh_cycle_failed", "error", err)
			}
		}
	}
}
