package main

import (
	"context"

	"leadscout-backend/cmd/leadscout/commands"
	"leadscout-backend/lib/serviceutil"
	"leadscout-backend/lib/telemetry"
)

func main() {
	ctx := serviceutil.SignalContext()
	telemetry.SetupFromEnv(context.Background(), "leadscout")
	telemetry.InitSlog(true)
	telemetry.InstrumentPerfStats(ctx)
	commands.ExecuteContext(ctx)
}
