package domain

import "time"

// PredictionRequest asks the forecasting service for congestion forecasts
// around a point. HorizonHours is how many hourly steps to predict.
type PredictionRequest struct {
	Lng          float64 `json:"lng"`
	Lat          float64 `json:"lat"`
	HorizonHours int     `json:"prediction_horizon"`
	ModelType    string  `json:"model_type,omitempty"`
}

// PredictionPoint is one hourly forecast step.
type PredictionPoint struct {
	Hour            int       `json:"hour"`
	Timestamp       time.Time `json:"timestamp"`
	CongestionRatio float64   `json:"congestion_ratio"`
	PredictedSpeed  float64   `json:"predicted_speed"`
	ConfidenceScore float64   `json:"confidence_score"`
}

// ModelInfo identifies the model that produced a forecast.
type ModelInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// PredictionResponse is the forecasting service answer.
type PredictionResponse struct {
	Success      bool              `json:"success"`
	Location     LngLat            `json:"location"`
	HorizonHours int               `json:"prediction_horizon_hours"`
	Predictions  []PredictionPoint `json:"predictions"`
	ModelInfo    ModelInfo         `json:"model_info"`
	Timestamp    time.Time         `json:"timestamp"`
}
