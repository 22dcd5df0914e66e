package auditlog

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Logger buffers events and hands them to an Emitter in batches, either when
// BatchFlushThreshold is reached or every FlushInterval.
type Logger struct {
	emitter       Emitter
	buffer        chan *Event
	done          chan struct{}
	closeOnce     sync.Once
	wg            sync.WaitGroup
	flushInterval time.Duration
}

// NewLogger creates a Logger and starts its flush goroutine.
func NewLogger(emitter Emitter, cfg Config) *Logger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	l := &Logger{
		emitter:       emitter,
		buffer:        make(chan *Event, cfg.BufferSize),
		done:          make(chan struct{}),
		flushInterval: cfg.FlushInterval,
	}

	l.wg.Add(1)
	go l.flushLoop()

	return l
}

// Write queues an event. It never blocks: when the buffer is full the event
// is dropped with a warning.
func (l *Logger) Write(event *Event) {
	if event == nil {
		return
	}

	select {
	case <-l.done:
		return
	default:
	}

	select {
	case l.buffer <- event:
	default:
		slog.Warn("audit buffer full, dropping event", "request_id", event.RequestID)
	}
}

// Close emits the buffered events and closes the emitter.
func (l *Logger) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	l.wg.Wait()
	return l.emitter.Close()
}

func (l *Logger) flushLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	batch := make([]*Event, 0, BatchFlushThreshold)

	for {
		select {
		case event := <-l.buffer:
			batch = append(batch, event)
			if len(batch) >= BatchFlushThreshold {
				l.flush(batch)
				batch = make([]*Event, 0, BatchFlushThreshold)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				l.flush(batch)
				batch = make([]*Event, 0, BatchFlushThreshold)
			}

		case <-l.done:
		drain:
			for {
				select {
				case event := <-l.buffer:
					batch = append(batch, event)
				default:
					break drain
				}
			}
			l.flush(batch)
			return
		}
	}
}

func (l *Logger) flush(batch []*Event) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := l.emitter.Emit(ctx, batch); err != nil {
		slog.Error("failed to emit audit events", "error", err, "count", len(batch))
	}
}
