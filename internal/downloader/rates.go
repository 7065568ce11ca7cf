package downloader

import (
	"fmt"
	"sync"
	"time"
)

// minSampleInterval keeps back-to-back Stats calls from producing spiky rates.
const minSampleInterval = 500 * time.Millisecond

// rateSampler turns monotonically increasing byte counters into per-second rates.
type rateSampler struct {
	mu       sync.Mutex
	lastAt   time.Time
	lastDown int64
	lastUp   int64
	down     int64
	up       int64
}

func (s *rateSampler) sample(now time.Time, down, up int64) (int64, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastAt.IsZero() {
		s.lastAt, s.lastDown, s.lastUp = now, down, up
		return 0, 0
	}
	elapsed := now.Sub(s.lastAt)
	if elapsed < minSampleInterval {
		return s.down, s.up
	}
	secs := elapsed.Seconds()
	s.down = perSecond(down-s.lastDown, secs)
	s.up = perSecond(up-s.lastUp, secs)
	s.lastAt, s.lastDown, s.lastUp = now, down, up
	return s.down, s.up
}

func perSecond(delta int64, secs float64) int64 {
	if delta <= 0 || secs <= 0 {
		return 0
	}
	return int64(float64(delta) / secs)
}

// estimateRemaining returns milliseconds until completion, 0 when complete and -1 when unknown.
func estimateRemaining(missing, rate int64) int64 {
	if missing <= 0 {
		return 0
	}
	if rate <= 0 {
		return -1
	}
	return missing * 1000 / rate
}

func lastPieceLength(total, pieceLength int64) int64 {
	if total <= 0 || pieceLength <= 0 {
		return 0
	}
	if rem := total % pieceLength; rem != 0 {
		return rem
	}
	return pieceLength
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB",
		float64(b)/float64(div),
		"KMGTPE"[exp],
	)
}
