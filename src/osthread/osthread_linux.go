//go:build linux

package osthread

import "golang.org/x/sys/unix"

func currentID() int { return unix.Gettid() }

func initThread() (func(), error) { return func() {}, nil }
