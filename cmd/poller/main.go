package main

import (
	"context"
	"log"

	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/app/bootstrap"
)

func main() {
	ctx := context.Background()
	runtime, err := bootstrap.NewRuntime(ctx, "configs/default.yaml")
	if err != nil {
		log.Fatalf("bootstrap poller runtime: %v", err)
	}
	if err := runtime.RunPoller(ctx); err != nil {
		log.Fatalf("run poller: %v", err)
	}
}
