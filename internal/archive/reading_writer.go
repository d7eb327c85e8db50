package archive

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/Checker-Finance/fleet-telemetry/internal/metrics"
	"github.com/Checker-Finance/fleet-telemetry/pkg/model"
)

// DBExecutor is the subset of pgxpool.Pool the writer needs.
type DBExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const insertReading = `
	INSERT INTO telemetry.sensor_reading (
		s_sensor_id,
		s_gateway_id,
		dt_observed,
		j_payload,
		s_source
	)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (s_sensor_id, dt_observed) DO NOTHING;
`

// ReadingWriter archives polled readings into telemetry.sensor_reading.
type ReadingWriter struct {
	db     DBExecutor
	logger *zap.Logger
	source string
}

// NewReadingWriter builds a writer. source identifies the process writing the rows.
func NewReadingWriter(db DBExecutor, logger *zap.Logger, source string) *ReadingWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReadingWriter{db: db, logger: logger, source: source}
}

// Write inserts r. A reading already archived for the same sensor and instant is ignored.
// It reports whether a row was inserted.
func (w *ReadingWriter) Write(ctx context.Context, r model.Reading) (bool, error) {
	if r.SensorID == "" {
		return false, errors.New("reading has no sensor id")
	}

	var gateway any
	if r.GatewayID != "" {
		gateway = r.GatewayID
	}

	tag, err := w.db.Exec(ctx, insertReading,
		r.SensorID,         // s_sensor_id
		gateway,            // s_gateway_id (nullable)
		r.ObservedAt.UTC(), // dt_observed
		string(r.Payload),  // j_payload
		w.source,           // s_source
	)
	if err != nil {
		metrics.IncError("archive", "insert_failed")
		w.logger.Error("archive.insert_failed",
			zap.String("sensor_id", r.SensorID),
			zap.Error(err))
		return false, err
	}

	inserted := tag.RowsAffected() > 0
	w.logger.Debug("archive.reading_written",
		zap.String("sensor_id", r.SensorID),
		zap.Time("observed_at", r.ObservedAt),
		zap.Bool("inserted", inserted))
	return inserted, nil
}
