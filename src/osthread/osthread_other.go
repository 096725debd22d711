//go:build !linux && !windows

package osthread

func currentID() int { return 0 }

func initThread() (func(), error) { return func() {}, nil }
