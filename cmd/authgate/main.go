// Command authgate runs the authentication gateway.
//
//	JWT_PRIVATE_KEY=... authgate serve
//	authgate serve --config authgate.yaml
//	echo -n 'secret' | authgate hash-password
//
// Configuration layers are documented on [GatewayConfig]. A missing
// JWT_PRIVATE_KEY stops the process before any listener is opened.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(os.LookupEnv).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "authgate:", err)
		stop()
		os.Exit(1)
	}
}
