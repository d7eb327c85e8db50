package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/fleet-telemetry/internal/fleet"
	"github.com/Checker-Finance/fleet-telemetry/internal/metrics"
	"github.com/Checker-Finance/fleet-telemetry/pkg/model"
)

// Source fetches the latest stats for one sensor. *fleet.Client satisfies it.
type Source interface {
	LatestSensorStats(ctx context.Context, sensorID string) (json.RawMessage, error)
}

type Publisher interface {
	PublishReading(ctx context.Context, r model.Reading) error
}

type Archiver interface {
	Write(ctx context.Context, r model.Reading) (bool, error)
}

// Poller periodically fetches latest stats for a fixed set of sensors and
// emits a reading whenever a sensor's payload changes.
type Poller struct {
	logger    *zap.Logger
	source    Source
	publisher Publisher
	archive   Archiver
	sensorIDs []string
	interval  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	lastSeen map[string][]byte

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds a poller. publisher and archive may be nil to skip that sink.
func New(logger *zap.Logger, source Source, pub Publisher, archive Archiver, sensorIDs []string, interval time.Duration) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		logger:    logger,
		source:    source,
		publisher: pub,
		archive:   archive,
		sensorIDs: sensorIDs,
		interval:  interval,
		now:       time.Now,
		lastSeen:  make(map[string][]byte),
		stopCh:    make(chan struct{}),
	}
}

// Stop halts Run. Safe to call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// Run polls immediately and then on every tick until ctx is done or Stop is called.
func (p *Poller) Run(ctx context.Context) {
	if len(p.sensorIDs) == 0 {
		p.logger.Info("poller.disabled", zap.String("reason", "no sensors configured"))
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("poller.started",
		zap.Int("sensors", len(p.sensorIDs)),
		zap.Duration("interval", p.interval))

	p.PollOnce(ctx)
	for {
		select {
		case <-ticker.C:
			p.PollOnce(ctx)
		case <-p.stopCh:
			p.logger.Info("poller.stopped", zap.String("reason", "stop"))
			return
		case <-ctx.Done():
			p.logger.Info("poller.stopped", zap.String("reason", "context"))
			return
		}
	}
}

// PollOnce runs a single pass over every sensor and returns how many readings changed.
func (p *Poller) PollOnce(ctx context.Context) int {
	changed := 0
	for _, id := range p.sensorIDs {
		if ctx.Err() != nil {
			break
		}
		ok, err := p.pollSensor(ctx, id)
		if err != nil {
			metrics.IncError("poller", "sensor_failed")
			p.logger.Warn("poller.sensor_failed", zap.String("sensor_id", id), zap.Error(err))
			continue
		}
		if ok {
			changed++
		}
	}
	metrics.SetLastPoll("poller", p.now())
	return changed
}

func (p *Poller) pollSensor(ctx context.Context, sensorID string) (bool, error) {
	raw, err := p.source.LatestSensorStats(ctx, sensorID)
	if err != nil {
		return false, err
	}
	if raw == nil {
		p.logger.Info("poller.sensor_not_found", zap.String("sensor_id", sensorID))
		return false, nil
	}

	var canon bytes.Buffer
	if err := json.Compact(&canon, raw); err != nil {
		return false, fmt.Errorf("malformed stats payload: %w", err)
	}
	payload := canon.Bytes()

	p.mu.Lock()
	prev, seen := p.lastSeen[sensorID]
	p.mu.Unlock()
	if seen && bytes.Equal(prev, payload) {
		return false, nil
	}

	reading := p.readingOf(sensorID, payload)

	// lastSeen advances only after every sink accepted the reading.
	if p.publisher != nil {
		if err := p.publisher.PublishReading(ctx, reading); err != nil {
			return false, fmt.Errorf("publish reading: %w", err)
		}
	}
	if p.archive != nil {
		if _, err := p.archive.Write(ctx, reading); err != nil {
			return false, fmt.Errorf("archive reading: %w", err)
		}
	}

	p.mu.Lock()
	p.lastSeen[sensorID] = payload
	p.mu.Unlock()

	p.logger.Debug("poller.reading_changed", zap.String("sensor_id", sensorID))
	return true, nil
}

// sampleTimeKeys are the payload fields checked, in order, for the sample's own timestamp.
var sampleTimeKeys = []string{"timestamp", "observed_at", "recorded_at", "created_at", "time"}

// readingOf builds a reading from a compacted payload. ObservedAt is the
// payload's own sample time when it has one, else the poll time.
func (p *Poller) readingOf(sensorID string, payload []byte) model.Reading {
	r := model.Reading{
		SensorID:   sensorID,
		ObservedAt: p.now().UTC(),
		Payload:    json.RawMessage(payload),
	}

	rec, found, err := fleet.Decode[fleet.Record](payload)
	if err != nil || !found {
		return r
	}
	r.GatewayID = stringField(rec["gateway_id"])
	for _, key := range sampleTimeKeys {
		if ts, ok := fleet.ParseTimestamp(stringField(rec[key])); ok {
			r.ObservedAt = ts.UTC()
			break
		}
	}
	return r
}

// stringField renders a decoded JSON scalar as a string; numbers keep their integer form.
func stringField(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return ""
	}
}
