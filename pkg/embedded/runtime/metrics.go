package runtime

import (
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// batchMetrics accumulates the item outcomes of one Run. Workers record into it
// concurrently.
type batchMetrics struct {
	processed        atomic.Int64
	errors           atomic.Int64
	totalProcessTime atomic.Int64
}

func (m *batchMetrics) recordProcessed(d time.Duration) {
	m.processed.Add(1)
	m.totalProcessTime.Add(d.Nanoseconds())
}

func (m *batchMetrics) recordError(d time.Duration) {
	m.errors.Add(1)
	m.totalProcessTime.Add(d.Nanoseconds())
}

func (m *batchMetrics) snapshot(workers int) Metrics {
	return Metrics{
		TotalItemsProcessed: m.processed.Load(),
		TotalErrors:         m.errors.Load(),
		ProcessingTimeNs:    m.totalProcessTime.Load(),
		ConcurrentWorkers:   workers,
	}
}

// AverageProcessingTime returns the mean time spent per finished item.
func (m Metrics) AverageProcessingTime() time.Duration {
	total := m.TotalItemsProcessed + m.TotalErrors
	if total == 0 {
		return 0
	}
	return time.Duration(m.ProcessingTimeNs / total)
}

func (m Metrics) logFields() []zap.Field {
	return []zap.Field{
		zap.Int64("processed", m.TotalItemsProcessed),
		zap.Int64("errors", m.TotalErrors),
		zap.Int("workers", m.ConcurrentWorkers),
		zap.Duration("item_time_total", time.Duration(m.ProcessingTimeNs)),
		zap.Duration("item_time_avg", m.AverageProcessingTime()),
	}
}

func (m Metrics) spanAttributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64("batch.processed", m.TotalItemsProcessed),
		attribute.Int64("batch.errors", m.TotalErrors),
		attribute.Int64("batch.item_time_ms", time.Duration(m.ProcessingTimeNs).Milliseconds()),
	}
}
