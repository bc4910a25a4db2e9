// Package monitor follows the node's event bus and logs state changes and
// cycle reports, with a periodic heartbeat summary.
package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"sensornode-go/bus"
	"sensornode-go/errcode"
	"sensornode-go/frame"
	"sensornode-go/services/scheduler"
)

var topicAll = bus.Topic{"node", "#"}

// Stats is a snapshot of what the monitor has seen.
type Stats struct {
	State   scheduler.State
	NodeID  byte
	Ticks   int
	Cycles  int
	Sent    int
	Results map[errcode.Code]int
	Last    *scheduler.CycleReport
}

type Service struct {
	log      *zap.Logger
	interval time.Duration

	mu    sync.Mutex
	stats Stats
}

// New returns a monitor that logs a summary every interval (0 disables the
// heartbeat).
func New(log *zap.Logger, interval time.Duration) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		log:      log.Named("monitor"),
		interval: interval,
		stats:    Stats{Results: make(map[errcode.Code]int)},
	}
}

// Snapshot returns a copy of the current statistics.
func (s *Service) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.stats
	out.Results = make(map[errcode.Code]int, len(s.stats.Results))
	for k, v := range s.stats.Results {
		out.Results[k] = v
	}
	if s.stats.Last != nil {
		last := *s.stats.Last
		out.Last = &last
	}
	return out
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection, sub *bus.Subscription) {
	defer conn.Unsubscribe(sub)

	var tick <-chan time.Time
	if s.interval > 0 {
		t := time.NewTicker(s.interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			s.log.Info("monitor stopping")
			return
		case <-tick:
			st := s.Snapshot()
			s.log.Info("heartbeat",
				zap.Stringer("state", st.State),
				zap.Int("ticks", st.Ticks),
				zap.Int("cycles", st.Cycles),
				zap.Int("sent", st.Sent))
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			s.handle(msg)
		}
	}
}

func (s *Service) handle(msg *bus.Message) {
	switch p := msg.Payload.(type) {
	case scheduler.StateEvent:
		s.mu.Lock()
		s.stats.State = p.State
		s.stats.NodeID = p.NodeID
		s.mu.Unlock()
		if p.State == scheduler.StateFailSafe {
			s.log.Error("node entered fail-safe, watchdog reset pending", zap.Uint8("id", p.NodeID))
		} else {
			s.log.Debug("state", zap.Stringer("state", p.State))
		}
	case scheduler.TickEvent:
		s.mu.Lock()
		s.stats.Ticks++
		s.mu.Unlock()
	case scheduler.CycleReport:
		s.mu.Lock()
		s.stats.Cycles++
		if p.Sent {
			s.stats.Sent++
		}
		s.stats.Results[p.Err]++
		rep := p
		s.stats.Last = &rep
		s.mu.Unlock()

		fields := []zap.Field{
			zap.Uint32("cycle", p.Cycle),
			zap.String("result", string(p.Err)),
			zap.Uint8("battery", p.Battery),
			zap.Binary("frame", p.Frame[:]),
		}
		if p.Sample.Valid {
			fields = append(fields,
				zap.Int32("temp_dC", p.Sample.DeciCelsius()),
				zap.Int32("rh_dpct", p.Sample.DeciRelHumidity()))
		}
		if p.Frame != (frame.Frame{}) && !p.Frame.Valid() {
			s.log.Error("cycle produced a frame with a bad checksum", fields...)
			return
		}
		s.log.Info("cycle", fields...)
	default:
		s.log.Debug("unhandled message", zap.Stringer("topic", msg.Topic))
	}
}

// Start the monitor service. The subscription is in place when Start
// returns, so retained state is never missed.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	sub := conn.Subscribe(topicAll)
	go s.serviceLoop(ctx, conn, sub)
	return nil
}
