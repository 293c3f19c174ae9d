package audioio

import (
	"context"
	"io"
)

// Sink plays audio.
type Sink interface {
	// Start prepares the output device.
	Start(ctx context.Context) error

	// Stop halts playback. Safe to call repeatedly.
	Stop() error

	// Write queues a chunk for playback, blocking if the device is behind.
	Write(ctx context.Context, chunk AudioChunk) error

	// Flush blocks until everything written has been played.
	Flush(ctx context.Context) error

	// Clear discards queued audio immediately.
	Clear() error

	Config() Config
	Name() string

	io.Closer
}

// SinkStats describes playback activity.
type SinkStats struct {
	ChunksWritten   int64  `json:"chunks_written"`
	SamplesWritten  int64  `json:"samples_written"`
	Underruns       int64  `json:"underruns"`
	Running         bool   `json:"running"`
	Backend         string `json:"backend"`
	BufferedSamples int64  `json:"buffered_samples"`
}

// SinkWithStats extends Sink with statistics.
type SinkWithStats interface {
	Sink
	Stats() SinkStats
}
