package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// ForcedExitCode is used when a second signal arrives during a graceful stop.
const ForcedExitCode = 130

var exit = os.Exit

// NotifyContext returns a context canceled on the first SIGINT or SIGTERM.
// A second signal exits the process immediately so a stuck drain can be
// interrupted from the terminal.
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	stopped := make(chan struct{})
	go func() {
		select {
		case <-sigs:
			cancel()
		case <-stopped:
			return
		}
		select {
		case <-sigs:
			exit(ForcedExitCode)
		case <-stopped:
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			signal.Stop(sigs)
			close(stopped)
			cancel()
		})
	}
	return ctx, stop
}
