package service

import (
	"github.com/trafficpulse/livemap/internal/domain"
)

// TrafficQuerier and PlaceQuerier are re-exported from domain for convenience
type TrafficQuerier = domain.TrafficQuerier

type PlaceQuerier = domain.PlaceQuerier
