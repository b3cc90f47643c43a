// wifisock - BSD-style sockets over a single-threaded WiFi co-processor.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"wifisock/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "wifisock: %v\n", err)
		os.Exit(1)
	}
}
