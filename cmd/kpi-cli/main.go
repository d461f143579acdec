package main

import (
	"context"

	"socialkpi-backend/cmd/kpi-cli/commands"
	"socialkpi-backend/lib/telemetry"
)

func main() {
	telemetry.InitSlog(true)
	commands.ExecuteContext(context.Background())
}
