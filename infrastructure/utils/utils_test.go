package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBytesToGB(t *testing.T) {
	assert.Equal(t, 1.0, BytesToGB(1<<30))
	assert.Equal(t, 0.5, BytesToGB(1<<29))
	assert.Equal(t, 0.0, BytesToGB(0))
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 0.005, RoundTo(0.0050000001, 8))
	assert.Equal(t, 1.23456789, RoundTo(1.234567891, 8))
	assert.Equal(t, 2.0, RoundTo(1.996, 1))
}

func TestWholeDays(t *testing.T) {
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		ref  time.Time
		want int
	}{
		{"same instant", now, 0},
		{"under a day", now.Add(-23 * time.Hour), 0},
		{"exactly one day", now.Add(-24 * time.Hour), 1},
		{"partial days truncate", now.Add(-49 * time.Hour), 2},
		{"zero ref is new", time.Time{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WholeDays(now, tt.ref))
		})
	}
}

func TestStamps(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "20240102", DayStamp(ts))
	assert.Equal(t, "2024-01-02", DateStamp(ts))
	assert.Equal(t, "2024-01-02_03:04:05", SnapshotStamp(ts))
}

func TestChunk(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}

	chunks := Chunk(items, 2)
	assert.Len(t, chunks, 3)
	assert.Equal(t, []string{"a", "b"}, chunks[0])
	assert.Equal(t, []string{"e"}, chunks[2])

	assert.Len(t, Chunk(items, 50), 1)
	assert.Nil(t, Chunk([]string{}, 2))
	assert.Nil(t, Chunk(items, 0))
}

func TestCoalesce(t *testing.T) {
	assert.Equal(t, "b", Coalesce("", "  ", "b", "c"))
	assert.Equal(t, "", Coalesce("", "\t"))
}

func TestUnique(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Unique([]string{"a", "b", "a", "c", "b"}))
	assert.Nil(t, Unique(nil))
}
