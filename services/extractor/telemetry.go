package extractor

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("services/extractor")
