package heartbeat

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"sensorhub-go/bus"
	"sensorhub-go/services/hub"
)

var (
	topicConfigHeartbeat = bus.Topic{"config", "heartbeat"}
	topicStats           = bus.Topic{"hub", "stats"}
)

const defaultInterval = time.Second

// Service publishes a hub stats snapshot on hub/stats every interval. The
// interval follows retained config/heartbeat messages ("5s" or seconds).
type Service struct {
	Stats    func() hub.Stats
	Interval time.Duration
	Clock    clock.Clock
	Logger   *zap.Logger
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection, tick *clock.Ticker) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("heartbeat stopping")
			return
		case <-tick.C:
			st := s.Stats()
			conn.Publish(conn.NewMessage(topicStats, st, true))
			s.Logger.Debug("heartbeat",
				zap.Int("sensors", st.Sensors),
				zap.Uint64("samples", st.Samples),
				zap.Uint64("deliveries", st.Deliveries),
				zap.Stringer("power", st.Power),
			)
		case msg := <-cfgSub.Channel():
			d, ok := intervalOf(msg.Payload)
			if !ok {
				s.Logger.Warn("ignoring heartbeat config", zap.Any("payload", msg.Payload))
				continue
			}
			tick.Reset(d)
			s.Logger.Info("heartbeat interval set", zap.Duration("interval", d))
		}
	}
}

func intervalOf(v any) (time.Duration, bool) {
	var d time.Duration
	switch x := v.(type) {
	case string:
		var err error
		if d, err = time.ParseDuration(x); err != nil {
			return 0, false
		}
	case float64:
		d = time.Duration(x * float64(time.Second))
	case time.Duration:
		d = x
	}
	return d, d > 0
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	if s.Clock == nil {
		s.Clock = clock.New()
	}
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	if s.Interval <= 0 {
		s.Interval = defaultInterval
	}
	s.Logger = s.Logger.Named("heartbeat")
	go s.serviceLoop(ctx, conn, s.Clock.Ticker(s.Interval))
	return nil
}
