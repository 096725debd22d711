//go:build windows

package main

import (
	"golang.org/x/sys/windows"

	"screen-lookup/src/logutil"
)

// enableDPIAwareness sets per-monitor DPI awareness so captured regions match
// physical pixels.
func enableDPIAwareness() {
	logger := logutil.Named("dpi")
	shcore := windows.NewLazySystemDLL("Shcore.dll")
	setProcessDpiAwareness := shcore.NewProc("SetProcessDpiAwareness")
	const processPerMonitorDPIAware = 2
	if err := setProcessDpiAwareness.Find(); err == nil {
		ret, _, _ := setProcessDpiAwareness.Call(uintptr(processPerMonitorDPIAware))
		if ret == 0 {
			logger.Debug().Msg("per-monitor DPI awareness set")
		} else {
			logger.Warn().Uint64("code", uint64(ret)).Msg("failed to set per-monitor DPI awareness")
		}
		return
	}

	user32 := windows.NewLazySystemDLL("user32.dll")
	setProcessDPIAware := user32.NewProc("SetProcessDPIAware")
	if err := setProcessDPIAware.Find(); err == nil {
		if ret, _, _ := setProcessDPIAware.Call(); ret == 0 {
			logger.Warn().Msg("failed to set system DPI awareness")
		}
		return
	}
	logger.Warn().Msg("no DPI awareness API available")
}
