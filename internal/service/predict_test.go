package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/trafficpulse/livemap/internal/domain"
)

func TestPredictRoundTrip(t *testing.T) {
	var gotPath string
	var gotReq domain.PredictionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{
			"success": true,
			"location": {"lng": 116.4, "lat": 39.9},
			"prediction_horizon_hours": 6,
			"predictions": [
				{"hour": 14, "timestamp": "2025-11-03T14:00:00Z", "congestion_ratio": 0.42, "predicted_speed": 38.5, "confidence_score": 0.85},
				{"hour": 15, "timestamp": "2025-11-03T15:00:00Z", "congestion_ratio": 0.55, "predicted_speed": 31.2, "confidence_score": 0.85}
			],
			"model_info": {"name": "lstm_traffic", "version": "1.0"}
		}`))
	}))
	defer srv.Close()

	c := NewPredictionClient(srv.URL, nil)
	resp, err := c.Predict(context.Background(), domain.PredictionRequest{
		Lng:          116.4,
		Lat:          39.9,
		HorizonHours: 6,
	})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}

	if gotPath != "/predict" {
		t.Errorf("path: got %q, want /predict", gotPath)
	}
	if gotReq.HorizonHours != 6 || gotReq.Lng != 116.4 {
		t.Errorf("forwarded request: got %+v", gotReq)
	}
	if !resp.Success || len(resp.Predictions) != 2 {
		t.Fatalf("response: got %+v", resp)
	}
	if resp.Predictions[0].CongestionRatio != 0.42 {
		t.Errorf("predictions[0].CongestionRatio: got %v, want 0.42", resp.Predictions[0].CongestionRatio)
	}
	if resp.ModelInfo.Name != "lstm_traffic" {
		t.Errorf("model name: got %q", resp.ModelInfo.Name)
	}
}

func TestPredictNon200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewPredictionClient(srv.URL, nil)
	_, err := c.Predict(context.Background(), domain.PredictionRequest{Lng: 116.4, Lat: 39.9, HorizonHours: 3})
	if err == nil {
		t.Fatal("expected an error for a 503, got nil")
	}
}

func TestPredictUnreachableIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // dead endpoint

	c := NewPredictionClient(srv.URL, nil)
	_, err := c.Predict(context.Background(), domain.PredictionRequest{Lng: 116.4, Lat: 39.9, HorizonHours: 3})
	var trErr *domain.TransportError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected *TransportError, got %T: %v", err, err)
	}
}

func TestPredictMalformedBodyIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "predictions": [`))
	}))
	defer srv.Close()

	c := NewPredictionClient(srv.URL, nil)
	if _, err := c.Predict(context.Background(), domain.PredictionRequest{Lng: 116.4, Lat: 39.9, HorizonHours: 3}); err == nil {
		t.Fatal("expected a decode error, got nil")
	}
}

func TestPredictHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"status": "healthy"}`))
	}))
	defer srv.Close()

	c := NewPredictionClient(srv.URL, nil)
	if err := c.Health(context.Background()); err != nil {
		t.Errorf("Health: %v", err)
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()

	c = NewPredictionClient(down.URL, nil)
	if err := c.Health(context.Background()); err == nil {
		t.Error("expected health check to fail on a 500")
	}
}
