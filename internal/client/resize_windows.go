//go:build windows

package client

// watchResize is a no-op on Windows, which has no SIGWINCH. The size read
// at startup is kept.
func watchResize(onResize func()) (stop func()) {
	return func() {}
}
