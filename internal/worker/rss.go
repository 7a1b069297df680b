package worker

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// peakRSSKiB reports the process's peak resident set size. getrusage reports
// ru_maxrss in KiB on Linux and in bytes on Darwin.
func peakRSSKiB() (int64, error) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0, err
	}
	kib := int64(ru.Maxrss)
	if runtime.GOOS == "darwin" {
		kib /= 1024
	}
	return kib, nil
}
