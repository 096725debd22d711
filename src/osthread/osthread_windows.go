//go:build windows

package osthread

import (
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/sys/windows"
)

// sFalse is returned when the thread already joined the apartment; it still
// needs a matching CoUninitialize.
const sFalse = syscall.Errno(1)

func currentID() int { return int(windows.GetCurrentThreadId()) }

func initThread() (func(), error) {
	if err := windows.CoInitializeEx(0, windows.COINIT_MULTITHREADED); err != nil && !errors.Is(err, sFalse) {
		return nil, fmt.Errorf("CoInitializeEx: %w", err)
	}
	return windows.CoUninitialize, nil
}
