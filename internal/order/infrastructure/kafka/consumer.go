package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/storefront/internal/order/domain"
	"github.com/dmehra2102/storefront/pkg/metrics"
	"github.com/dmehra2102/storefront/pkg/tracing"
)

// Projector consumes the order event topic and keeps the order business metrics.
type Projector struct {
	log     *slog.Logger
	reader  *kafka.Reader
	metrics *metrics.OrderMetrics
	tracer  trace.Tracer
}

func NewProjector(log *slog.Logger, brokers []string, topic, group string, m *metrics.OrderMetrics) *Projector {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     group,
		StartOffset: kafka.FirstOffset,
	})
	return &Projector{
		log:     log,
		reader:  r,
		metrics: m,
		tracer:  otel.Tracer("order-events-consumer"),
	}
}

// Run fetches until ctx is cancelled. Offsets are committed after each message, so a
// restart can replay at most the message in flight.
func (p *Projector) Run(ctx context.Context) error {
	defer p.reader.Close()

	for {
		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		p.handle(ctx, msg)
		if err := p.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			p.log.Error("commit failed", "offset", msg.Offset, "err", err)
		}
	}
}

func (p *Projector) handle(ctx context.Context, msg kafka.Message) {
	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	_, span := p.tracer.Start(msgCtx, "ConsumeOrderEvent", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	eventType := headerValue(msg.Headers, "event_type")
	span.SetAttributes(attribute.String("order.event_type", eventType), attribute.String("order.id", string(msg.Key)))

	if err := p.project(eventType, msg.Value); err != nil {
		span.RecordError(err)
		p.log.Error("order event skipped", "type", eventType, "key", string(msg.Key), "err", err)
		return
	}
	p.log.Debug("order event projected", "type", eventType, "key", string(msg.Key))
}

func (p *Projector) project(eventType string, value []byte) error {
	switch eventType {
	case domain.EventOrderCreated:
		var ev domain.OrderCreated
		if err := json.Unmarshal(value, &ev); err != nil {
			return err
		}
		p.metrics.PlacedCents.Add(float64(ev.TotalAmountCents))
	case domain.EventOrderPaid, domain.EventOrderFulfilled, domain.EventOrderCancelled:
		var ev domain.StatusChanged
		if err := json.Unmarshal(value, &ev); err != nil {
			return err
		}
	default:
		return errors.New("unknown event type")
	}
	p.metrics.Events.WithLabelValues(eventType).Inc()
	return nil
}

func headerValue(h []kafka.Header, key string) string {
	for _, hh := range h {
		if hh.Key == key {
			return string(hh.Value)
		}
	}
	return ""
}
