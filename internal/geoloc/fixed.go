package geoloc

import (
	"context"
	"time"

	"github.com/i474232898/weather-dashboard/internal/weather"
)

// Fixed is a Geolocator that always reports the same coordinate, for devices
// whose position is configured rather than sensed.
type Fixed struct {
	Coord    weather.Coordinate
	Accuracy float64
}

func (f Fixed) CurrentPosition(ctx context.Context, _ Options) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	return Position{Coord: f.Coord, Accuracy: f.Accuracy, Timestamp: time.Now()}, nil
}

// StaticPermissions answers every permission query with the same state.
type StaticPermissions PermissionState

func (p StaticPermissions) Query(context.Context) (PermissionState, error) {
	return PermissionState(p), nil
}
