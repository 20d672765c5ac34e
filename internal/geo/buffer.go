package geo

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/richxcame/dispatch/pkg/logger"
	"github.com/richxcame/dispatch/pkg/metrics"
	"github.com/richxcame/dispatch/pkg/models"
)

// SampleWriter persists batches of location samples.
type SampleWriter interface {
	BulkInsertSamples(ctx context.Context, samples []models.DriverLocationSample) error
}

// LocationBufferConfig configures the location batching pipeline.
type LocationBufferConfig struct {
	// FlushInterval is how often the buffer flushes to the store.
	FlushInterval time.Duration
	// MaxBufferSize triggers a flush when the buffer reaches this size.
	MaxBufferSize int
}

// DefaultLocationBufferConfig returns the production batching thresholds.
func DefaultLocationBufferConfig() LocationBufferConfig {
	return LocationBufferConfig{
		FlushInterval: time.Second,
		MaxBufferSize: 100,
	}
}

// LocationBuffer accumulates driver location samples and flushes them as a
// single bulk insert, reducing per-sample round-trip overhead. The live geo
// index is written synchronously elsewhere; losing an unflushed batch on
// crash only loses history.
type LocationBuffer struct {
	writer  SampleWriter
	cfg     LocationBufferConfig
	mu      sync.Mutex
	buffer  []models.DriverLocationSample
	stopCh  chan struct{}
	stopped bool
}

// NewLocationBuffer creates and starts a location batching pipeline.
func NewLocationBuffer(writer SampleWriter, cfg LocationBufferConfig) *LocationBuffer {
	lb := &LocationBuffer{
		writer: writer,
		cfg:    cfg,
		buffer: make([]models.DriverLocationSample, 0, cfg.MaxBufferSize),
		stopCh: make(chan struct{}),
	}
	go lb.flushLoop()
	return lb
}

// Enqueue adds a sample to the buffer. A full buffer triggers an immediate
// flush.
func (lb *LocationBuffer) Enqueue(sample models.DriverLocationSample) {
	lb.mu.Lock()
	lb.buffer = append(lb.buffer, sample)
	shouldFlush := len(lb.buffer) >= lb.cfg.MaxBufferSize
	lb.mu.Unlock()

	if shouldFlush {
		go lb.flush()
	}
}

// Stop stops the flush loop and flushes remaining samples synchronously.
func (lb *LocationBuffer) Stop() {
	lb.mu.Lock()
	if lb.stopped {
		lb.mu.Unlock()
		return
	}
	lb.stopped = true
	lb.mu.Unlock()
	close(lb.stopCh)
	lb.flush()
}

// Len returns the number of buffered samples.
func (lb *LocationBuffer) Len() int {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return len(lb.buffer)
}

func (lb *LocationBuffer) flushLoop() {
	ticker := time.NewTicker(lb.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lb.flush()
		case <-lb.stopCh:
			return
		}
	}
}

func (lb *LocationBuffer) flush() {
	lb.mu.Lock()
	if len(lb.buffer) == 0 {
		lb.mu.Unlock()
		return
	}
	batch := lb.buffer
	lb.buffer = make([]models.DriverLocationSample, 0, lb.cfg.MaxBufferSize)
	lb.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := lb.writer.BulkInsertSamples(ctx, batch); err != nil {
		logger.Warn("location buffer flush failed",
			zap.Int("batch_size", len(batch)),
			zap.Error(err),
		)
		return
	}

	metrics.LocationFlushSize.Observe(float64(len(batch)))
	logger.Debug("location buffer flushed", zap.Int("batch_size", len(batch)))
}
