package audiomixer

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope of every mixer instrument.
const meterName = "github.com/Raikerian/go-discord-mixer/pkg/audiomixer"

// metrics holds the mixer's OpenTelemetry instruments. The underlying OTel
// types synchronise themselves.
type metrics struct {
	slotsOccupied  metric.Int64UpDownCounter
	framesSent     metric.Int64Counter
	backpressures  metric.Int64Counter
	outputFrames   metric.Int64Counter
	sourcesDropped metric.Int64Counter
	processSpawns  metric.Int64Counter
	processExits   metric.Int64Counter
	queueDrops     metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &metrics{}

	if met.slotsOccupied, err = m.Int64UpDownCounter("mixer.slots.occupied",
		metric.WithDescription("Number of mixer slots bound to a source."),
	); err != nil {
		return nil, err
	}
	if met.framesSent, err = m.Int64Counter("mixer.frames.sent",
		metric.WithDescription("Frames written to mixer inputs, by silence."),
	); err != nil {
		return nil, err
	}
	if met.backpressures, err = m.Int64Counter("mixer.frames.backpressure",
		metric.WithDescription("Input writes skipped because the pipe was backed up."),
	); err != nil {
		return nil, err
	}
	if met.outputFrames, err = m.Int64Counter("mixer.output.frames",
		metric.WithDescription("Frames delivered to the combined output, by silence."),
	); err != nil {
		return nil, err
	}
	if met.sourcesDropped, err = m.Int64Counter("mixer.sources.dropped",
		metric.WithDescription("Attach attempts dropped because every slot was taken, by kind."),
	); err != nil {
		return nil, err
	}
	if met.processSpawns, err = m.Int64Counter("mixer.process.spawns",
		metric.WithDescription("Mixing process launches, by status."),
	); err != nil {
		return nil, err
	}
	if met.processExits, err = m.Int64Counter("mixer.process.exits",
		metric.WithDescription("Mixing process exits."),
	); err != nil {
		return nil, err
	}
	if met.queueDrops, err = m.Int64Counter("mixer.queue.dropped",
		metric.WithDescription("Frames dropped from a full queue, by queue."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// noopMetrics returns instruments that record nothing.
func noopMetrics() *metrics {
	met, err := newMetrics(noop.NewMeterProvider())
	if err != nil {
		// The no-op provider never fails.
		panic(err)
	}
	return met
}

func (m *metrics) slotBound(ctx context.Context) {
	m.slotsOccupied.Add(ctx, 1)
}

func (m *metrics) slotReleased(ctx context.Context) {
	m.slotsOccupied.Add(ctx, -1)
}

func (m *metrics) frameSent(ctx context.Context, silence bool) {
	m.framesSent.Add(ctx, 1, metric.WithAttributes(attribute.Bool("silence", silence)))
}

func (m *metrics) backpressure(ctx context.Context) {
	m.backpressures.Add(ctx, 1)
}

func (m *metrics) outputDelivered(ctx context.Context, silence bool) {
	m.outputFrames.Add(ctx, 1, metric.WithAttributes(attribute.Bool("silence", silence)))
}

func (m *metrics) sourceDropped(ctx context.Context, kind Kind) {
	m.sourcesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind.String())))
}

func (m *metrics) processSpawned(ctx context.Context, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.processSpawns.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (m *metrics) processExited(ctx context.Context) {
	m.processExits.Add(ctx, 1)
}

func (m *metrics) queueDropped(ctx context.Context, queue string) {
	m.queueDrops.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", queue)))
}
