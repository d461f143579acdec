// Package testutil holds shared test scaffolding.
package testutil

import (
	"fmt"
	"testing"

	"socialkpi-backend/lib/telemetry"
)

// Setup initializes telemetry for a test and returns its cleanup.
func Setup(t testing.TB, name string) func() {
	return telemetry.SetupForTesting(t, fmt.Sprintf("test:%s", name))
}
