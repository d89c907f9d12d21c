package dashboard

import (
	"context"

	"golang.org/x/sync/errgroup"

	"parkmaster-dashboard/api"
)

// Backend is the part of the service client the dashboard depends on.
// *api.Client satisfies it.
type Backend interface {
	CheckHealth(ctx context.Context) (*api.Payload, error)
	Images(ctx context.Context) ([]api.ImageInfo, error)
	ImageURL(name string) string
	ConnectSerial(ctx context.Context, opts api.SerialOptions) (*api.Payload, error)
	DisconnectSerial(ctx context.Context) (*api.Payload, error)
	GetPreviousVehicle(ctx context.Context) api.VehicleSnapshot
	GetCurrentVehicle(ctx context.Context) api.VehicleSnapshot
}

// loadVehicles looks up both vehicles concurrently and returns once both have
// settled. Each side falls back on its own.
func loadVehicles(ctx context.Context, b Backend) VehiclePair {
	var (
		pair VehiclePair
		g    errgroup.Group
	)
	g.Go(func() error {
		pair.Previous = b.GetPreviousVehicle(ctx)
		return nil
	})
	g.Go(func() error {
		pair.Current = b.GetCurrentVehicle(ctx)
		return nil
	})
	_ = g.Wait()
	return pair
}
