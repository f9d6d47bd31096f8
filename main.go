package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ledokol-inc/moodle-load/commands"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interruptChan := make(chan os.Signal, 1)
	signal.Notify(interruptChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interruptChan
		cancel()
	}()

	commands.ExecuteContext(ctx)
}
