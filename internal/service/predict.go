package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/trafficpulse/livemap/internal/domain"
	"github.com/trafficpulse/livemap/internal/metrics"
)

const defaultPredictTimeout = 30 * time.Second

// PredictionClient talks to the congestion forecasting service. The model is
// a black box reached over HTTP; this side only marshals the request and
// decodes the answer. Failures are returned to the caller, never papered over
// with fabricated forecasts: the delivery layer decides how to degrade.
type PredictionClient struct {
	serviceURL string
	httpClient *http.Client
	log        *slog.Logger
}

// NewPredictionClient creates a forecasting client.
func NewPredictionClient(serviceURL string, log *slog.Logger) *PredictionClient {
	if log == nil {
		log = slog.Default()
	}
	return &PredictionClient{
		serviceURL: serviceURL,
		httpClient: &http.Client{Timeout: defaultPredictTimeout},
		log:        log,
	}
}

// Predict requests hourly congestion forecasts around a point.
func (c *PredictionClient) Predict(ctx context.Context, req domain.PredictionRequest) (domain.PredictionResponse, error) {
	metrics.PredictRequestsTotal.Inc()

	body, err := json.Marshal(req)
	if err != nil {
		metrics.PredictFailuresTotal.Inc()
		return domain.PredictionResponse{}, fmt.Errorf("predict: failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/predict", c.serviceURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		metrics.PredictFailuresTotal.Inc()
		return domain.PredictionResponse{}, fmt.Errorf("predict: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		metrics.PredictFailuresTotal.Inc()
		return domain.PredictionResponse{}, &domain.TransportError{Op: "http", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.PredictFailuresTotal.Inc()
		return domain.PredictionResponse{}, fmt.Errorf("predict: scoring service returned status %d", resp.StatusCode)
	}

	var prediction domain.PredictionResponse
	if err := json.NewDecoder(resp.Body).Decode(&prediction); err != nil {
		metrics.PredictFailuresTotal.Inc()
		return domain.PredictionResponse{}, fmt.Errorf("predict: failed to decode response: %w", err)
	}

	c.log.Debug("predict_ok",
		"lng", req.Lng,
		"lat", req.Lat,
		"horizon_h", req.HorizonHours,
		"points", len(prediction.Predictions),
	)
	return prediction, nil
}

// Health checks forecasting service connectivity.
func (c *PredictionClient) Health(ctx context.Context) error {
	url := fmt.Sprintf("%s/health", c.serviceURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("predict: failed to create health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("predict: health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("predict: health check returned status %d", resp.StatusCode)
	}

	return nil
}
