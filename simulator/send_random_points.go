package simulator

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SendRandomPoints logs in and then reports a random walk until ctx is done
// or the server stops answering.
func (td *TrackerDevice) SendRandomPoints(ctx context.Context) error {
	defer td.Stop()
	if err := td.Login(); err != nil {
		td.log.Error("login failed", zap.Error(err))
		return err
	}

	ticker := time.NewTicker(td.interval)
	defer ticker.Stop()
	for {
		p := td.nextPoint(time.Now())
		if err := td.SendPoint(p); err != nil {
			td.log.Error("failed to send point", zap.Error(err))
			return err
		}
		td.log.Info("sent point",
			zap.Float64("lat", p.Latitude),
			zap.Float64("lon", p.Longitude),
			zap.Uint8("speed", p.Speed),
			zap.Uint16("heading", p.Heading),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
