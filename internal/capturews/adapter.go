package capturews

import (
	"context"
	"sync"

	"github.com/snapmark/snapmark/internal/capture"
)

// Adapter exposes a Client through the capture collaborator interfaces so
// the session controller stays independent of the wire protocol.
type Adapter struct {
	client *Client
}

// NewAdapter wraps client.
func NewAdapter(client *Client) *Adapter {
	return &Adapter{client: client}
}

// Client returns the underlying WebSocket client (for screenshot capture and
// connection management at the composition root).
func (a *Adapter) Client() *Client { return a.client }

// ── capture.Enumerator ───────────────────────────────────────────────────────

func (a *Adapter) ListSources(_ context.Context, kinds []capture.SourceKind) ([]capture.Source, error) {
	return a.client.ListSources(kinds)
}

func (a *Adapter) FocusedWindow(_ context.Context) (*capture.Source, error) {
	return a.client.FocusedWindow()
}

func (a *Adapter) PrimaryScreen(_ context.Context) (*capture.Source, error) {
	return a.client.PrimaryScreen()
}

// ── capture.Acquirer ─────────────────────────────────────────────────────────

func (a *Adapter) AcquireVideoTrack(_ context.Context, sourceID string) (capture.Track, error) {
	infos, err := a.client.AcquireTrack(capture.TrackVideo, sourceID)
	if err != nil {
		return nil, err
	}
	return &wsTrack{client: a.client, id: infos[0].TrackID, kind: infos[0].Kind}, nil
}

func (a *Adapter) AcquireMicrophoneTrack(_ context.Context) (capture.Track, error) {
	infos, err := a.client.AcquireTrack(capture.TrackMicrophone, "")
	if err != nil {
		return nil, err
	}
	return &wsTrack{client: a.client, id: infos[0].TrackID, kind: infos[0].Kind}, nil
}

// AcquireSystemAudioTrack returns every track the display-audio capability
// produced, including an incidental video track if the engine emits one; the
// caller releases what it does not keep.
func (a *Adapter) AcquireSystemAudioTrack(_ context.Context) ([]capture.Track, error) {
	infos, err := a.client.AcquireTrack(capture.TrackSystemAudio, "")
	if err != nil {
		return nil, err
	}
	tracks := make([]capture.Track, 0, len(infos))
	for _, info := range infos {
		tracks = append(tracks, &wsTrack{client: a.client, id: info.TrackID, kind: info.Kind})
	}
	return tracks, nil
}

// ── capture.Encoder ──────────────────────────────────────────────────────────

func (a *Adapter) Start(_ context.Context, tracks []capture.Track, settings capture.EncodeSettings, onChunk func([]byte)) error {
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID()
	}
	a.client.OnChunk(onChunk)
	return a.client.StartEncode(ids, settings)
}

func (a *Adapter) Pause() error { return a.client.PauseEncode() }
func (a *Adapter) Resume() error { return a.client.ResumeEncode() }

func (a *Adapter) Stop(_ context.Context) ([]byte, error) {
	tail, err := a.client.StopEncode()
	a.client.OnChunk(nil)
	return tail, err
}

func (a *Adapter) Abort() {
	_ = a.client.AbortEncode()
	a.client.OnChunk(nil)
}

// wsTrack is a Track handle backed by an engine-side track. Stop is
// idempotent.
type wsTrack struct {
	client *Client
	id     string
	kind   capture.TrackKind

	stopOnce sync.Once
	stopErr  error
}

func (t *wsTrack) ID() string { return t.id }
func (t *wsTrack) Kind() capture.TrackKind { return t.kind }

func (t *wsTrack) Stop() error {
	t.stopOnce.Do(func() {
		t.stopErr = t.client.ReleaseTrack(t.id)
	})
	return t.stopErr
}
