package emit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter implements Emitter by turning each event into an immediately
// ended OpenTelemetry span, adapted from the teacher's graph/emit.OTelEmitter
// (node execution spans) to this event set (execution/node/approval spans).
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter returns an OTelEmitter using the given tracer, e.g.
// otel.Tracer("agentflow").
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), string(event.Type))
	defer span.End()
	o.annotate(span, event)
}

func (o *OTelEmitter) EmitBatch(events []Event) error {
	for _, e := range events {
		o.Emit(e)
	}
	return nil
}

// Flush force-flushes the globally configured tracer provider, if it
// supports it (the SDK provider does; the no-op default does not).
func (o *OTelEmitter) Flush() error {
	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := otel.GetTracerProvider().(flusher); ok {
		return f.ForceFlush(context.Background())
	}
	return nil
}

func (o *OTelEmitter) annotate(span trace.Span, event Event) {
	attrs := []attribute.KeyValue{
		attribute.String("execution_id", event.ExecutionID),
	}
	if event.WorkflowID != "" {
		attrs = append(attrs, attribute.String("workflow_id", event.WorkflowID))
	}
	if event.NodeID != "" {
		attrs = append(attrs, attribute.String("node_id", event.NodeID))
	}
	if event.NodeName != "" {
		attrs = append(attrs, attribute.String("node_name", event.NodeName))
	}
	if event.RunCount != 0 {
		attrs = append(attrs, attribute.Int("run_count", event.RunCount))
	}
	span.SetAttributes(attrs...)

	if event.Err != nil {
		span.SetStatus(codes.Error, event.Err.Error())
		span.RecordError(fmt.Errorf("%w", event.Err))
	}
	if len(event.ValidationErrors) > 0 {
		span.SetStatus(codes.Error, "validation failed")
		for _, ve := range event.ValidationErrors {
			span.RecordError(ve)
		}
	}
}
