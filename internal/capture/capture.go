// Package capture defines the recording domain types and the collaborator
// interfaces the session controller depends on: source enumeration, media
// track acquisition, and the chunked encoder. Concrete implementations live
// in the capturews package (capture-engine WebSocket client).
package capture

import (
	"context"
	"fmt"
	"time"
)

// SourceKind distinguishes capturable screens from capturable windows.
type SourceKind string

const (
	SourceScreen SourceKind = "screen"
	SourceWindow SourceKind = "window"
)

// Source identifies one capturable screen or window. The ID is opaque and
// stable for the lifetime of the enumerating session.
type Source struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	Kind        SourceKind `json:"kind"`
	Thumbnail   []byte     `json:"thumbnail,omitempty"` // encoded preview image, may be nil
}

// QualityPreset names a resolution + target bitrate pair.
type QualityPreset string

const (
	QualityLow    QualityPreset = "low"    // 1280x720  @ 2.5 Mbps
	QualityMedium QualityPreset = "medium" // 1920x1080 @ 5 Mbps
	QualityHigh   QualityPreset = "high"   // 2560x1440 @ 10 Mbps
)

// Settings returns the concrete width, height, and bitrate (bits per second)
// for the preset. Unknown presets fall back to medium.
func (q QualityPreset) Settings() (width, height, bitrate int) {
	switch q {
	case QualityLow:
		return 1280, 720, 2_500_000
	case QualityHigh:
		return 2560, 1440, 10_000_000
	default:
		return 1920, 1080, 5_000_000
	}
}

// RecordingOptions is constructed once per session and immutable for the
// session lifetime.
type RecordingOptions struct {
	SourceID           string        `json:"source_id"`
	IncludeSystemAudio bool          `json:"include_system_audio"`
	IncludeMicrophone  bool          `json:"include_microphone"`
	Quality            QualityPreset `json:"quality"`
	FrameRate          int           `json:"frame_rate"`
}

// Validate checks RecordingOptions for validity.
func (o RecordingOptions) Validate() error {
	if o.SourceID == "" {
		return fmt.Errorf("source_id is required")
	}
	if o.FrameRate < 1 || o.FrameRate > 60 {
		return fmt.Errorf("frame_rate must be between 1 and 60, got %d", o.FrameRate)
	}
	switch o.Quality {
	case QualityLow, QualityMedium, QualityHigh:
	default:
		return fmt.Errorf("unknown quality preset %q", o.Quality)
	}
	return nil
}

// TrackKind distinguishes the media stream types a session can hold.
type TrackKind string

const (
	TrackVideo       TrackKind = "video"
	TrackMicrophone  TrackKind = "microphone"
	TrackSystemAudio TrackKind = "system-audio"
)

// Track is a single acquired media stream. Stop releases the underlying
// capture resource; it must be safe to call more than once.
type Track interface {
	ID() string
	Kind() TrackKind
	Stop() error
}

// Enumerator lists capturable sources.
type Enumerator interface {
	ListSources(ctx context.Context, kinds []SourceKind) ([]Source, error)
	FocusedWindow(ctx context.Context) (*Source, error)
	PrimaryScreen(ctx context.Context) (*Source, error)
}

// Acquirer obtains media tracks. AcquireVideoTrack failures map to
// ErrSourceUnavailable, AcquireMicrophoneTrack to ErrPermissionDenied, and
// AcquireSystemAudioTrack to ErrUnsupported. The system-audio capability may
// incidentally return a video track alongside the audio one; callers are
// expected to release any track kind they did not ask for.
type Acquirer interface {
	AcquireVideoTrack(ctx context.Context, sourceID string) (Track, error)
	AcquireMicrophoneTrack(ctx context.Context) (Track, error)
	AcquireSystemAudioTrack(ctx context.Context) ([]Track, error)
}

// EncodeSettings is the target the encoder is asked to hit.
type EncodeSettings struct {
	Width         int
	Height        int
	Bitrate       int
	FrameRate     int
	FlushInterval time.Duration // how often buffered bytes are emitted as a chunk
}

// Encoder turns a set of tracks into encoded media bytes, delivered as
// chunks at the requested flush interval via onChunk. Pause suspends chunk
// production; Resume continues it. Stop confirms the encoder has stopped
// accepting data and returns the final flush of its internal buffer; no
// chunk is delivered via onChunk after Stop returns. Abort discards buffered
// data without a final flush.
type Encoder interface {
	Start(ctx context.Context, tracks []Track, settings EncodeSettings, onChunk func([]byte)) error
	Pause() error
	Resume() error
	Stop(ctx context.Context) ([]byte, error)
	Abort()
}
