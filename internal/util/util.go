package util

import (
	"fmt"
	"log"
	"os"
	"time"
)

func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false
		}
		LogWarn("Error checking directory existence: %v", err)
		return false
	}
	return info.IsDir()
}

// FormatCountdown renders a remaining duration as m:ss, truncating to
// whole seconds. Never rounds up: 9.9s displays as 0:09.
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	totalSeconds := int(d.Milliseconds() / 1000)
	return fmt.Sprintf("%d:%02d", totalSeconds/60, totalSeconds%60)
}

// TruncateSeconds reports a remaining duration in whole seconds,
// truncated, clamped at zero.
func TruncateSeconds(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return d.Milliseconds() / 1000
}

func LogInfo(format string, v ...any) {
	log.Printf("[INFO] "+format, v...)
}

func LogWarn(format string, v ...any) {
	log.Printf("[WARN] "+format, v...)
}

func LogFatal(format string, v ...any) {
	log.Fatalf("[FATAL] "+format, v...)
}
