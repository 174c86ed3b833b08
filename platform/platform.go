// Package platform reports runtime identity and capability flags to
// the external platform-probe utility.
package platform

import (
	"os"
	"runtime"
	"sync"
)

// Details describes the host the graph runs on.
type Details struct {
	OS       string
	Arch     string
	NumCPU   int
	PageSize int
}

// Info returns the host details.
func Info() Details {
	return Details{
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
		NumCPU:   runtime.NumCPU(),
		PageSize: os.Getpagesize(),
	}
}

var features = struct {
	sync.RWMutex
	m map[string]bool
}{
	m: map[string]bool{
		"fixed-ring":      true,
		"object-queue":    true,
		"realtime-pacing": true,
	},
}

// Register announces a detected backend or capability.
func Register(name string, enabled bool) {
	features.Lock()
	defer features.Unlock()
	features.m[name] = enabled
}

// Feature reports whether a named backend or capability is available.
func Feature(name string) bool {
	features.RLock()
	defer features.RUnlock()
	return features.m[name]
}
