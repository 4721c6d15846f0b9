package ports

import (
	"context"
	"time"

	"github.com/bft-labs/zonecast/internal/domain"
)

// SubscribeConfig is passed to LocationProvider.Subscribe.
type SubscribeConfig struct {
	// Accuracy is a provider hint ("highest", "balanced", "low").
	Accuracy string
	// MinInterval drops samples closer in time than this to the last emitted one.
	MinInterval time.Duration
	// MinDistanceMeters drops samples closer in space than this to the last emitted one.
	MinDistanceMeters float64
	// MaxErrorMeters drops samples whose reported accuracy is worse. Zero disables.
	MaxErrorMeters float64
}

// LocationProvider produces position samples.
type LocationProvider interface {
	// RequestPermission returns domain.ErrPermissionDenied when access is refused
	// and domain.ErrProviderUnavailable when the provider cannot be reached.
	RequestPermission(ctx context.Context) error

	// Subscribe starts the sample stream. The channel is closed when ctx is
	// canceled or the source ends. A stream cannot be restarted; subscribe again.
	Subscribe(ctx context.Context, cfg SubscribeConfig) (<-chan domain.LocationSample, error)
}
