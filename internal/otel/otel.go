package otel

import (
	"context"

	"github.com/corray333/backend-labs/saga/internal/jaeger"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

const defaultServiceName = "OrderSagaWorker"

type OtelController struct {
	traceProvider *sdktrace.TracerProvider
}

// MustInitOtel installs the global tracer provider and the W3C propagator.
// Spans are dropped when otel.enabled is false.
func MustInitOtel() *OtelController {
	serviceName := viper.GetString("otel.service_name")
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	}
	if viper.GetBool("otel.enabled") {
		opts = append(opts, sdktrace.WithBatcher(jaeger.MustNewJaeger()))
	}

	tp := sdktrace.NewTracerProvider(opts...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &OtelController{
		traceProvider: tp,
	}
}

func (o *OtelController) Shutdown(ctx context.Context) error {
	if err := o.traceProvider.Shutdown(ctx); err != nil {
		return err
	}

	return nil
}
