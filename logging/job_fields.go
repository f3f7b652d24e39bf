package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field keys shared by every component that logs about jobs.
const (
	KeyJobID   = "job_id"
	KeyBatchID = "batch_id"
	KeyAttempt = "attempt"
	KeyBackend = "backend"
)

// JobFields returns the fields identifying one attempt of a job. An empty
// batchID is omitted.
func JobFields(id int64, batchID string, attempt int) []zap.Field {
	fields := make([]zap.Field, 0, 3)
	fields = append(fields, zap.Int64(KeyJobID, id))
	if batchID != "" {
		fields = append(fields, zap.String(KeyBatchID, batchID))
	}
	if attempt > 0 {
		fields = append(fields, zap.Int(KeyAttempt, attempt))
	}
	return fields
}

// GenerationMetrics describes one finished image generation.
//
//	logger.Info("generated", zap.Object("metrics", logging.GenerationMetrics{
//		Backend:  "webui",
//		Images:   1,
//		Duration: took,
//	}))
type GenerationMetrics struct {
	Backend  string
	Model    string
	Images   int
	Bytes    int
	Width    int
	Height   int
	Steps    int
	Seed     int64
	Duration time.Duration
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (m GenerationMetrics) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("backend", m.Backend)
	if m.Model != "" {
		enc.AddString("model", m.Model)
	}
	enc.AddInt("images", m.Images)
	enc.AddInt("bytes", m.Bytes)
	if m.Width > 0 && m.Height > 0 {
		enc.AddInt("width", m.Width)
		enc.AddInt("height", m.Height)
	}
	if m.Steps > 0 {
		enc.AddInt("steps", m.Steps)
	}
	enc.AddInt64("seed", m.Seed)
	enc.AddInt64("duration_ms", m.Duration.Milliseconds())
	if secs := m.Duration.Seconds(); secs > 0 && m.Images > 0 {
		enc.AddFloat64("images_per_second", float64(m.Images)/secs)
	}
	return nil
}

// MetricsField wraps m as a nested "metrics" object.
func MetricsField(m GenerationMetrics) zap.Field {
	return zap.Object("metrics", m)
}
