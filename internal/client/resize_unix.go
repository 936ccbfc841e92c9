//go:build !windows

package client

import (
	"os"
	"os/signal"
	"syscall"
)

// watchResize calls onResize on every SIGWINCH until stop is called.
func watchResize(onResize func()) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGWINCH)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sigCh:
				onResize()
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
