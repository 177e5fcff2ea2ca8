// Command framegate runs the camera-to-classifier frame pipeline.
//
// Usage:
//
//	framegate run --source synthetic --classifier mock
//	framegate run --source ingest --addr :8080
//	framegate bench --size 1280x720 --frames 500
//	framegate history --limit 20
//	framegate watch --url ws://localhost:8080/ws/status
//	framegate ctl threads inc
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
