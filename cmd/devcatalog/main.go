// Command devcatalog administers a device catalog: category schemas and
// their migrations, compatibility rules, and the devices they describe.
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
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "devcatalog:", err)
		os.Exit(exitCode(err))
	}
}
