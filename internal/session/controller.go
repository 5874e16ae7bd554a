// Package session owns the lifecycle of one capture session: source
// selection, track acquisition, encoding, pause/resume, and finalization into
// a single encoded artifact with a duration measurement immune to pause gaps.
package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/snapmark/snapmark/internal/capture"
	"github.com/snapmark/snapmark/internal/diaglog"
)

// State is the controller's lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StatePaused     State = "paused"
	StateProcessing State = "processing"
)

// Result contains the outcome of a completed recording.
type Result struct {
	SessionID string
	Blob      []byte
	Duration  time.Duration
	StartedAt time.Time
}

// Option configures a Controller at construction time.
type Option func(*Controller)

// WithClock replaces the wall clock. Used by tests for deterministic
// duration arithmetic.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithDurationTick changes the period of the duration notification ticker.
func WithDurationTick(d time.Duration) Option {
	return func(c *Controller) { c.durationTick = d }
}

// WithFlushInterval changes how often the encoder is asked to emit buffered
// bytes as a chunk.
func WithFlushInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.flushInterval = d
		}
	}
}

// Controller is the recording session state machine. All public methods are
// safe for concurrent use; timer callbacks and the encoder's chunk delivery
// are guarded against states they no longer apply to.
type Controller struct {
	acquirer capture.Acquirer
	encoder  capture.Encoder

	now           func() time.Time
	durationTick  time.Duration
	flushInterval time.Duration
	logger        *diaglog.Logger

	mu        sync.Mutex
	state     State
	acquiring bool // Start in flight; blocks a second Start before state flips

	sessionID   string
	opts        capture.RecordingOptions
	startedAt   time.Time
	pausedAccum time.Duration // total paused time folded in at each resume
	pauseStart  time.Time     // zero unless state == paused
	tracks      []capture.Track
	chunks      [][]byte
	tickStop    chan struct{}

	onState    func(State)
	onDuration func(time.Duration)
	onError    func(error)
}

// New creates an idle controller bound to the given collaborators.
func New(acquirer capture.Acquirer, encoder capture.Encoder, opts ...Option) *Controller {
	c := &Controller{
		acquirer:      acquirer,
		encoder:       encoder,
		now:           time.Now,
		durationTick:  time.Second,
		flushInterval: time.Second,
		state:         StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetLogger injects a diaglog.Logger. Safe to leave unset.
func (c *Controller) SetLogger(l *diaglog.Logger) { c.logger = l }

// OnStateChanged registers a callback invoked on every state transition.
func (c *Controller) OnStateChanged(fn func(State)) { c.onState = fn }

// OnDuration registers a callback invoked periodically while recording.
func (c *Controller) OnDuration(fn func(time.Duration)) { c.onDuration = fn }

// OnError registers a callback for out-of-band fatal errors (encoder
// failures mid-session).
func (c *Controller) OnError(fn func(error)) { c.onError = fn }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the ULID of the active session, or "" when idle.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Start acquires tracks per opts and begins encoding. Fails with
// ErrAlreadyInProgress unless the controller is idle. Failure to acquire the
// mandatory video track is fatal and leaves the controller idle; optional
// track failures degrade the session to fewer tracks and are logged only.
func (c *Controller) Start(ctx context.Context, opts capture.RecordingOptions) error {
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("invalid recording options: %w", err)
	}

	c.mu.Lock()
	if c.state != StateIdle || c.acquiring {
		c.mu.Unlock()
		return capture.ErrAlreadyInProgress
	}
	c.acquiring = true
	c.mu.Unlock()

	tracks, err := c.acquireTracks(ctx, opts)
	if err != nil {
		c.mu.Lock()
		c.acquiring = false
		c.mu.Unlock()
		return err
	}

	width, height, bitrate := opts.Quality.Settings()
	settings := capture.EncodeSettings{
		Width:         width,
		Height:        height,
		Bitrate:       bitrate,
		FrameRate:     opts.FrameRate,
		FlushInterval: c.flushInterval,
	}
	if err := c.encoder.Start(ctx, tracks, settings, c.appendChunk); err != nil {
		releaseTracks(tracks)
		c.mu.Lock()
		c.acquiring = false
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", capture.ErrEncoderFailure, err)
	}

	c.mu.Lock()
	c.sessionID = ulid.MustNew(ulid.Timestamp(c.now()), rand.Reader).String()
	c.opts = opts
	c.startedAt = c.now()
	c.pausedAccum = 0
	c.pauseStart = time.Time{}
	c.tracks = tracks
	c.chunks = nil
	c.state = StateRecording
	c.acquiring = false
	c.tickStop = make(chan struct{})
	id := c.sessionID
	stop := c.tickStop
	c.mu.Unlock()

	c.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentSession,
		Event:     diaglog.EventRecordingStart,
		SessionID: id,
		Payload:   map[string]interface{}{"source_id": opts.SourceID, "quality": string(opts.Quality)},
	})
	c.notifyState(StateRecording)
	go c.durationLoop(stop)
	return nil
}

// acquireTracks obtains the mandatory video track and the optional audio
// tracks. A video track incidentally returned by the system-audio capability
// is released immediately.
func (c *Controller) acquireTracks(ctx context.Context, opts capture.RecordingOptions) ([]capture.Track, error) {
	video, err := c.acquirer.AcquireVideoTrack(ctx, opts.SourceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", capture.ErrSourceUnavailable, err)
	}
	tracks := []capture.Track{video}

	if opts.IncludeMicrophone {
		mic, err := c.acquirer.AcquireMicrophoneTrack(ctx)
		if err != nil {
			c.logger.Log(diaglog.LogEntry{
				Component: diaglog.ComponentSession,
				Event:     diaglog.EventTrackWarning,
				Reason:    fmt.Sprintf("microphone unavailable, continuing without: %v", err),
			})
		} else {
			tracks = append(tracks, mic)
		}
	}

	if opts.IncludeSystemAudio {
		sysTracks, err := c.acquirer.AcquireSystemAudioTrack(ctx)
		if err != nil {
			c.logger.Log(diaglog.LogEntry{
				Component: diaglog.ComponentSession,
				Event:     diaglog.EventTrackWarning,
				Reason:    fmt.Sprintf("system audio unavailable, continuing without: %v", err),
			})
		} else {
			for _, t := range sysTracks {
				if t.Kind() == capture.TrackVideo {
					_ = t.Stop()
					continue
				}
				tracks = append(tracks, t)
			}
		}
	}

	return tracks, nil
}

// Pause freezes the duration clock. No-op unless recording.
func (c *Controller) Pause() {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return
	}
	c.pauseStart = c.now()
	c.state = StatePaused
	id := c.sessionID
	c.mu.Unlock()

	// Best effort: a pause the encoder refuses still freezes the duration
	// clock; stray chunks are dropped by the state guard in appendChunk.
	var reason string
	if err := c.encoder.Pause(); err != nil {
		reason = fmt.Sprintf("encoder pause failed: %v", err)
	}
	c.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentSession,
		Event:     diaglog.EventRecordingPause,
		SessionID: id,
		Reason:    reason,
	})
	c.notifyState(StatePaused)
}

// Resume folds the gap since Pause into the paused-time accumulator and
// continues recording. No-op unless paused.
func (c *Controller) Resume() {
	c.mu.Lock()
	if c.state != StatePaused {
		c.mu.Unlock()
		return
	}
	c.pausedAccum += c.now().Sub(c.pauseStart)
	c.pauseStart = time.Time{}
	c.state = StateRecording
	id := c.sessionID
	c.mu.Unlock()

	var reason string
	if err := c.encoder.Resume(); err != nil {
		reason = fmt.Sprintf("encoder resume failed: %v", err)
	}
	c.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentSession,
		Event:     diaglog.EventRecordingResume,
		SessionID: id,
		Reason:    reason,
	})
	c.notifyState(StateRecording)
}

// Stop finalizes the session: the encoder confirms it has stopped accepting
// data and returns its final flush, all buffered chunks are concatenated
// into one blob, tracks are released, and the controller returns to idle.
// Fails with ErrNoActiveSession when called from idle.
func (c *Controller) Stop(ctx context.Context) (Result, error) {
	c.mu.Lock()
	if c.state != StateRecording && c.state != StatePaused {
		c.mu.Unlock()
		return Result{}, capture.ErrNoActiveSession
	}
	// Duration is frozen here: a pause in progress is folded in before the
	// state leaves the recording/paused pair.
	if c.state == StatePaused {
		c.pausedAccum += c.now().Sub(c.pauseStart)
		c.pauseStart = time.Time{}
	}
	duration := c.now().Sub(c.startedAt) - c.pausedAccum
	startedAt := c.startedAt
	id := c.sessionID
	c.state = StateProcessing
	c.mu.Unlock()
	c.notifyState(StateProcessing)

	// Linearization point: after encoder.Stop returns, no further chunk can
	// arrive; the tail it returns is the last data of the session.
	tail, err := c.encoder.Stop(ctx)
	if err != nil {
		c.cleanup()
		c.notifyState(StateIdle)
		return Result{}, fmt.Errorf("%w: %v", capture.ErrEncoderFailure, err)
	}

	c.mu.Lock()
	if len(tail) > 0 {
		c.chunks = append(c.chunks, tail)
	}
	var total int
	for _, ch := range c.chunks {
		total += len(ch)
	}
	blob := make([]byte, 0, total)
	for _, ch := range c.chunks {
		blob = append(blob, ch...)
	}
	tracks := c.tracks
	tickStop := c.tickStop
	c.resetLocked()
	c.mu.Unlock()

	if tickStop != nil {
		close(tickStop)
	}
	releaseTracks(tracks)

	c.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentSession,
		Event:     diaglog.EventFinalize,
		SessionID: id,
		Payload:   map[string]interface{}{"bytes": len(blob), "duration_ms": duration.Milliseconds()},
	})
	c.notifyState(StateIdle)
	return Result{SessionID: id, Blob: blob, Duration: duration, StartedAt: startedAt}, nil
}

// Cancel releases tracks and discards all buffered chunks without producing
// an artifact. Always succeeds; from idle it is a no-op.
func (c *Controller) Cancel() {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	id := c.sessionID
	c.mu.Unlock()

	c.encoder.Abort()
	c.cleanup()

	c.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentSession,
		Event:     diaglog.EventRecordingCancel,
		SessionID: id,
	})
	c.notifyState(StateIdle)
}

// HandleEncoderError is the forced-cleanup path for fatal mid-session
// encoder failures: equivalent to Cancel plus an out-of-band error
// notification. Wire it to the encoder transport's error callback.
func (c *Controller) HandleEncoderError(err error) {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	id := c.sessionID
	c.mu.Unlock()

	c.encoder.Abort()
	c.cleanup()

	c.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentSession,
		Event:     diaglog.EventEncoderError,
		SessionID: id,
		Reason:    err.Error(),
	})
	c.notifyState(StateIdle)
	if c.onError != nil {
		c.onError(fmt.Errorf("%w: %v", capture.ErrEncoderFailure, err))
	}
}

// Duration reports elapsed recording time excluding pause gaps. While paused
// it is frozen at the value computed when Pause was invoked. Zero when idle.
func (c *Controller) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.durationLocked()
}

func (c *Controller) durationLocked() time.Duration {
	switch c.state {
	case StateRecording:
		return c.now().Sub(c.startedAt) - c.pausedAccum
	case StatePaused:
		return c.pauseStart.Sub(c.startedAt) - c.pausedAccum
	default:
		return 0
	}
}

// appendChunk is the encoder's chunk delivery callback. Chunks are
// append-only while recording; a straggler arriving in any other state is
// dropped.
func (c *Controller) appendChunk(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRecording {
		return
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	c.chunks = append(c.chunks, buf)
}

// durationLoop emits periodic duration notifications while recording. Each
// tick re-checks state so a tick that fires after stop/cancel is a no-op.
func (c *Controller) durationLoop(stop chan struct{}) {
	ticker := time.NewTicker(c.durationTick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			recording := c.state == StateRecording
			d := c.durationLocked()
			c.mu.Unlock()
			if recording && c.onDuration != nil {
				c.onDuration(d)
			}
		}
	}
}

// cleanup releases all acquired resources and resets to idle. Used by Cancel
// and the fatal-error path; tolerates partially acquired track sets.
func (c *Controller) cleanup() {
	c.mu.Lock()
	tracks := c.tracks
	tickStop := c.tickStop
	c.resetLocked()
	c.mu.Unlock()

	if tickStop != nil {
		close(tickStop)
	}
	releaseTracks(tracks)
}

func (c *Controller) resetLocked() {
	c.state = StateIdle
	c.sessionID = ""
	c.startedAt = time.Time{}
	c.pausedAccum = 0
	c.pauseStart = time.Time{}
	c.tracks = nil
	c.chunks = nil
	c.tickStop = nil
}

func (c *Controller) notifyState(s State) {
	if c.onState != nil {
		c.onState(s)
	}
}

func releaseTracks(tracks []capture.Track) {
	for _, t := range tracks {
		_ = t.Stop()
	}
}
