// Command schedctl is an operator CLI for the booking service.
package main

import (
	"fmt"
	"os"

	"github.com/tutorhub/bookingengine/libs/runtime"
)

func main() {
	ctx, stop := runtime.SignalContext()
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
