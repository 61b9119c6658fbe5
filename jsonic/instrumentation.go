package jsonic

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationScope = "github.com/dgnsrekt/jsonic/jsonic"

var tracer = otel.Tracer(instrumentationScope)

func descriptorAttributes(d *descriptor) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("jsonic.action", d.kind.String()),
		attribute.String("jsonic.channel", d.channel),
		attribute.String("jsonic.handle_id", d.handle.ID()),
		attribute.Bool("jsonic.cache", d.cache),
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
