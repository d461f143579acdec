package resultcache

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("lib/resultcache")
