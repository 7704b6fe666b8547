// Package utils provides small shared helpers for size, age, and batch
// computations used by the lifecycle engines.
package utils

import (
	"math"
	"strings"
	"time"
)

const bytesPerGB = 1 << 30

// BytesToGB converts a byte count to gigabytes.
func BytesToGB(b int64) float64 {
	return float64(b) / bytesPerGB
}

// RoundTo rounds v to the given number of decimal places.
func RoundTo(v float64, decimals int) float64 {
	mult := math.Pow(10, float64(decimals))
	return math.Round(v*mult) / mult
}

// WholeDays returns the age of ref relative to now in whole days. A zero
// ref yields 0 so callers can treat a missing creation date as brand new.
func WholeDays(now, ref time.Time) int {
	if ref.IsZero() {
		return 0
	}
	return int(now.Sub(ref).Hours() / 24)
}

// DayStamp formats t as a compact UTC day key (YYYYMMDD), the form used in
// per-day accounting file names.
func DayStamp(t time.Time) string {
	return t.UTC().Format("20060102")
}

// DateStamp formats t as an ISO date (YYYY-MM-DD).
func DateStamp(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// SnapshotStamp formats t the way snapshot names embed their creation time.
func SnapshotStamp(t time.Time) string {
	return t.UTC().Format("2006-01-02_15:04:05")
}

// Chunk splits items into consecutive slices of at most size elements. The
// returned slices share backing storage with items.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

// Coalesce returns the first value that is not empty after trimming.
func Coalesce(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Unique returns values with duplicates removed, preserving first-seen
// order.
func Unique(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
