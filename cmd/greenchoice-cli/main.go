package main

import (
	"context"
	"greenchoice-scraper/cmd/greenchoice-cli/commands"
	"greenchoice-scraper/lib/telemetry"
)

func main() {
	telemetry.SetupFromEnv(context.Background(), "greenchoice-cli")
	telemetry.InitSlog(true)
	commands.ExecuteContext(context.Background())
}
