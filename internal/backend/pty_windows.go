//go:build windows

package backend

// startPTY is unavailable on Windows; KindAuto selects the pipe backend there.
func startPTY(opts Options) (Backend, error) {
	return nil, &SpawnError{Shell: opts.Shell, Err: ErrPTYUnsupported}
}
