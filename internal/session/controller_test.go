package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/snapmark/snapmark/internal/capture"
	"github.com/snapmark/snapmark/testutil"
)

// ── Fakes ────────────────────────────────────────────────────────────────────

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeTrack struct {
	id      string
	kind    capture.TrackKind
	mu      sync.Mutex
	stopped int
}

func (t *fakeTrack) ID() string              { return t.id }
func (t *fakeTrack) Kind() capture.TrackKind { return t.kind }
func (t *fakeTrack) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped++
	return nil
}

func (t *fakeTrack) stopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakeAcquirer struct {
	videoErr  error
	micErr    error
	sysErr    error
	video     *fakeTrack
	mic       *fakeTrack
	sysTracks []capture.Track
}

func newFakeAcquirer() *fakeAcquirer {
	return &fakeAcquirer{
		video: &fakeTrack{id: "video-1", kind: capture.TrackVideo},
		mic:   &fakeTrack{id: "mic-1", kind: capture.TrackMicrophone},
	}
}

func (a *fakeAcquirer) AcquireVideoTrack(ctx context.Context, sourceID string) (capture.Track, error) {
	if a.videoErr != nil {
		return nil, a.videoErr
	}
	return a.video, nil
}

func (a *fakeAcquirer) AcquireMicrophoneTrack(ctx context.Context) (capture.Track, error) {
	if a.micErr != nil {
		return nil, a.micErr
	}
	return a.mic, nil
}

func (a *fakeAcquirer) AcquireSystemAudioTrack(ctx context.Context) ([]capture.Track, error) {
	if a.sysErr != nil {
		return nil, a.sysErr
	}
	return a.sysTracks, nil
}

type fakeEncoder struct {
	mu       sync.Mutex
	started  bool
	stopped  bool
	aborted  bool
	paused   int
	resumed  int
	onChunk  func([]byte)
	tracks   []capture.Track
	tail     []byte
	startErr error
	stopErr  error
	pauseErr error
}

func (e *fakeEncoder) Start(ctx context.Context, tracks []capture.Track, settings capture.EncodeSettings, onChunk func([]byte)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.startErr != nil {
		return e.startErr
	}
	e.started = true
	e.tracks = tracks
	e.onChunk = onChunk
	return nil
}

func (e *fakeEncoder) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused++
	return e.pauseErr
}

func (e *fakeEncoder) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resumed++
	return nil
}

func (e *fakeEncoder) Stop(ctx context.Context) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	return e.tail, e.stopErr
}

func (e *fakeEncoder) Abort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.aborted = true
}

func (e *fakeEncoder) emit(chunk []byte) {
	e.mu.Lock()
	fn := e.onChunk
	e.mu.Unlock()
	if fn != nil {
		fn(chunk)
	}
}

func defaultOptions() capture.RecordingOptions {
	return capture.RecordingOptions{
		SourceID:  "screen-1",
		Quality:   capture.QualityHigh,
		FrameRate: 30,
	}
}

func newTestController(t *testing.T) (*Controller, *fakeAcquirer, *fakeEncoder, *fakeClock) {
	t.Helper()
	acquirer := newFakeAcquirer()
	encoder := &fakeEncoder{}
	clock := newFakeClock()
	ctrl := New(acquirer, encoder, WithClock(clock.Now))
	return ctrl, acquirer, encoder, clock
}

// ── Lifecycle ────────────────────────────────────────────────────────────────

func TestStartTransitionsToRecording(t *testing.T) {
	ctrl, _, encoder, _ := newTestController(t)

	err := ctrl.Start(context.Background(), defaultOptions())
	testutil.AssertNoError(t, err, "Start")
	testutil.AssertEqual(t, StateRecording, ctrl.State(), "state after start")
	testutil.AssertTrue(t, encoder.started, "encoder should be started")
	testutil.AssertTrue(t, ctrl.SessionID() != "", "session id assigned")
}

func TestStartWhileActiveFails(t *testing.T) {
	ctrl, _, _, _ := newTestController(t)

	testutil.AssertNoError(t, ctrl.Start(context.Background(), defaultOptions()), "first Start")
	err := ctrl.Start(context.Background(), defaultOptions())
	testutil.AssertErrorIs(t, err, capture.ErrAlreadyInProgress, "second Start")
}

func TestStartRejectsInvalidOptions(t *testing.T) {
	ctrl, _, _, _ := newTestController(t)

	opts := defaultOptions()
	opts.FrameRate = 0
	testutil.AssertError(t, ctrl.Start(context.Background(), opts), "invalid frame rate")
	testutil.AssertEqual(t, StateIdle, ctrl.State(), "state after rejected start")
}

func TestVideoAcquisitionFailureIsFatal(t *testing.T) {
	ctrl, acquirer, encoder, _ := newTestController(t)
	acquirer.videoErr = errors.New("display unplugged")

	err := ctrl.Start(context.Background(), defaultOptions())
	testutil.AssertErrorIs(t, err, capture.ErrSourceUnavailable, "video failure")
	testutil.AssertEqual(t, StateIdle, ctrl.State(), "state after fatal failure")
	testutil.AssertFalse(t, encoder.started, "encoder must not start")
}

func TestOptionalTrackFailureDegrades(t *testing.T) {
	ctrl, acquirer, encoder, _ := newTestController(t)
	acquirer.micErr = errors.New("no microphone")
	acquirer.sysErr = errors.New("no loopback device")

	opts := defaultOptions()
	opts.IncludeMicrophone = true
	opts.IncludeSystemAudio = true

	testutil.AssertNoError(t, ctrl.Start(context.Background(), opts), "Start with failing optional tracks")
	testutil.AssertEqual(t, StateRecording, ctrl.State(), "session degrades, not fails")
	testutil.AssertEqual(t, 1, len(encoder.tracks), "only the video track survives")
}

func TestIncidentalVideoTrackFromSystemAudioIsReleased(t *testing.T) {
	ctrl, acquirer, encoder, _ := newTestController(t)
	extraVideo := &fakeTrack{id: "sys-video", kind: capture.TrackVideo}
	sysAudio := &fakeTrack{id: "sys-audio", kind: capture.TrackSystemAudio}
	acquirer.sysTracks = []capture.Track{sysAudio, extraVideo}

	opts := defaultOptions()
	opts.IncludeSystemAudio = true

	testutil.AssertNoError(t, ctrl.Start(context.Background(), opts), "Start")
	testutil.AssertEqual(t, 2, len(encoder.tracks), "video + system audio")
	testutil.AssertEqual(t, 1, extraVideo.stopCount(), "incidental video released")
	testutil.AssertEqual(t, 0, sysAudio.stopCount(), "system audio kept")
}

func TestEncoderStartFailureReleasesTracks(t *testing.T) {
	ctrl, acquirer, encoder, _ := newTestController(t)
	encoder.startErr = errors.New("codec init failed")

	err := ctrl.Start(context.Background(), defaultOptions())
	testutil.AssertErrorIs(t, err, capture.ErrEncoderFailure, "start failure")
	testutil.AssertEqual(t, StateIdle, ctrl.State(), "state after failure")
	testutil.AssertEqual(t, 1, acquirer.video.stopCount(), "video track released")
}

// ── Duration arithmetic ──────────────────────────────────────────────────────

func TestDurationExcludesPauseGaps(t *testing.T) {
	ctrl, _, _, clock := newTestController(t)
	testutil.AssertNoError(t, ctrl.Start(context.Background(), defaultOptions()), "Start")

	clock.Advance(5 * time.Second)
	testutil.AssertEqual(t, 5*time.Second, ctrl.Duration(), "duration before pause")

	ctrl.Pause()
	clock.Advance(3 * time.Second)
	testutil.AssertEqual(t, 5*time.Second, ctrl.Duration(), "duration frozen while paused")

	ctrl.Resume()
	clock.Advance(5 * time.Second)
	testutil.AssertEqual(t, 10*time.Second, ctrl.Duration(), "duration after resume")

	result, err := ctrl.Stop(context.Background())
	testutil.AssertNoError(t, err, "Stop")
	testutil.AssertEqual(t, 10*time.Second, result.Duration, "final duration excludes pause")
}

func TestStopWhilePausedFoldsOpenPause(t *testing.T) {
	ctrl, _, _, clock := newTestController(t)
	testutil.AssertNoError(t, ctrl.Start(context.Background(), defaultOptions()), "Start")

	clock.Advance(5 * time.Second)
	ctrl.Pause()
	clock.Advance(3 * time.Second)

	result, err := ctrl.Stop(context.Background())
	testutil.AssertNoError(t, err, "Stop from paused")
	testutil.AssertEqual(t, 5*time.Second, result.Duration, "pause gap excluded")
}

func TestRepeatedPauseResumeCycles(t *testing.T) {
	ctrl, _, _, clock := newTestController(t)
	testutil.AssertNoError(t, ctrl.Start(context.Background(), defaultOptions()), "Start")

	for i := 0; i < 3; i++ {
		clock.Advance(2 * time.Second)
		ctrl.Pause()
		clock.Advance(7 * time.Second)
		ctrl.Resume()
	}

	testutil.AssertEqual(t, 6*time.Second, ctrl.Duration(), "three 2s stretches recorded")
}

func TestPauseAndResumeAreStateGuarded(t *testing.T) {
	ctrl, _, encoder, _ := newTestController(t)

	// From idle both are no-ops.
	ctrl.Pause()
	ctrl.Resume()
	testutil.AssertEqual(t, StateIdle, ctrl.State(), "state unchanged")
	testutil.AssertEqual(t, 0, encoder.paused, "encoder untouched")

	testutil.AssertNoError(t, ctrl.Start(context.Background(), defaultOptions()), "Start")
	ctrl.Resume() // not paused
	testutil.AssertEqual(t, StateRecording, ctrl.State(), "resume while recording is a no-op")

	ctrl.Pause()
	ctrl.Pause() // double pause
	testutil.AssertEqual(t, 1, encoder.paused, "second pause is a no-op")
}

func TestPauseSurvivesEncoderRefusal(t *testing.T) {
	ctrl, _, encoder, clock := newTestController(t)
	encoder.pauseErr = errors.New("encoder busy")
	testutil.AssertNoError(t, ctrl.Start(context.Background(), defaultOptions()), "Start")

	clock.Advance(4 * time.Second)
	ctrl.Pause()
	clock.Advance(10 * time.Second)

	testutil.AssertEqual(t, StatePaused, ctrl.State(), "pause sticks despite encoder error")
	testutil.AssertEqual(t, 4*time.Second, ctrl.Duration(), "clock frozen despite encoder error")
}

// ── Finalization ─────────────────────────────────────────────────────────────

func TestStopConcatenatesChunksInOrder(t *testing.T) {
	ctrl, acquirer, encoder, _ := newTestController(t)
	encoder.tail = []byte("-tail")
	testutil.AssertNoError(t, ctrl.Start(context.Background(), defaultOptions()), "Start")

	encoder.emit([]byte("one-"))
	encoder.emit([]byte("two-"))
	encoder.emit([]byte("three"))

	result, err := ctrl.Stop(context.Background())
	testutil.AssertNoError(t, err, "Stop")
	testutil.AssertEqual(t, "one-two-three-tail", string(result.Blob), "chunk order preserved")
	testutil.AssertEqual(t, StateIdle, ctrl.State(), "idle after stop")
	testutil.AssertEqual(t, 1, acquirer.video.stopCount(), "tracks released")
	testutil.AssertTrue(t, result.SessionID != "", "result carries session id")
}

func TestStopFromIdleFails(t *testing.T) {
	ctrl, _, _, _ := newTestController(t)
	_, err := ctrl.Stop(context.Background())
	testutil.AssertErrorIs(t, err, capture.ErrNoActiveSession, "Stop from idle")
}

func TestChunksDroppedWhilePaused(t *testing.T) {
	ctrl, _, encoder, _ := newTestController(t)
	testutil.AssertNoError(t, ctrl.Start(context.Background(), defaultOptions()), "Start")

	encoder.emit([]byte("kept-"))
	ctrl.Pause()
	encoder.emit([]byte("dropped-"))
	ctrl.Resume()
	encoder.emit([]byte("kept"))

	result, err := ctrl.Stop(context.Background())
	testutil.AssertNoError(t, err, "Stop")
	testutil.AssertEqual(t, "kept-kept", string(result.Blob), "paused chunk dropped")
}

func TestEncoderStopFailureReturnsToIdle(t *testing.T) {
	ctrl, acquirer, encoder, _ := newTestController(t)
	encoder.stopErr = errors.New("mux failed")
	testutil.AssertNoError(t, ctrl.Start(context.Background(), defaultOptions()), "Start")

	_, err := ctrl.Stop(context.Background())
	testutil.AssertErrorIs(t, err, capture.ErrEncoderFailure, "Stop failure")
	testutil.AssertEqual(t, StateIdle, ctrl.State(), "idle after failed stop")
	testutil.AssertEqual(t, 1, acquirer.video.stopCount(), "tracks still released")
}

func TestCancelDiscardsEverything(t *testing.T) {
	ctrl, acquirer, encoder, _ := newTestController(t)
	testutil.AssertNoError(t, ctrl.Start(context.Background(), defaultOptions()), "Start")
	encoder.emit([]byte("chunk"))

	ctrl.Cancel()

	testutil.AssertEqual(t, StateIdle, ctrl.State(), "idle after cancel")
	testutil.AssertTrue(t, encoder.aborted, "encoder aborted")
	testutil.AssertEqual(t, 1, acquirer.video.stopCount(), "tracks released")
	testutil.AssertEqual(t, "", ctrl.SessionID(), "session id cleared")

	// Cancel from idle is a no-op.
	ctrl.Cancel()
	testutil.AssertEqual(t, StateIdle, ctrl.State(), "still idle")
}

func TestHandleEncoderErrorNotifiesAndCleansUp(t *testing.T) {
	ctrl, acquirer, encoder, _ := newTestController(t)

	var mu sync.Mutex
	var reported error
	ctrl.OnError(func(err error) {
		mu.Lock()
		reported = err
		mu.Unlock()
	})

	testutil.AssertNoError(t, ctrl.Start(context.Background(), defaultOptions()), "Start")
	ctrl.HandleEncoderError(errors.New("gpu reset"))

	testutil.AssertEqual(t, StateIdle, ctrl.State(), "idle after encoder error")
	testutil.AssertTrue(t, encoder.aborted, "encoder aborted")
	testutil.AssertEqual(t, 1, acquirer.video.stopCount(), "tracks released")

	mu.Lock()
	defer mu.Unlock()
	testutil.AssertErrorIs(t, reported, capture.ErrEncoderFailure, "reported error")
	testutil.AssertErrorContains(t, reported, "gpu reset", "reported reason")
}

func TestStateCallbacksFollowLifecycle(t *testing.T) {
	ctrl, _, _, _ := newTestController(t)

	var mu sync.Mutex
	var states []State
	ctrl.OnStateChanged(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	testutil.AssertNoError(t, ctrl.Start(context.Background(), defaultOptions()), "Start")
	ctrl.Pause()
	ctrl.Resume()
	_, err := ctrl.Stop(context.Background())
	testutil.AssertNoError(t, err, "Stop")

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateRecording, StatePaused, StateRecording, StateProcessing, StateIdle}
	testutil.AssertEqual(t, len(want), len(states), "transition count")
	for i := range want {
		testutil.AssertEqual(t, want[i], states[i], "transition order")
	}
}

func TestDurationTickerNotifies(t *testing.T) {
	acquirer := newFakeAcquirer()
	encoder := &fakeEncoder{}
	ctrl := New(acquirer, encoder, WithDurationTick(10*time.Millisecond))

	var mu sync.Mutex
	ticks := 0
	ctrl.OnDuration(func(time.Duration) {
		mu.Lock()
		ticks++
		mu.Unlock()
	})

	testutil.AssertNoError(t, ctrl.Start(context.Background(), defaultOptions()), "Start")
	defer ctrl.Cancel()

	testutil.WaitForCondition(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ticks >= 2
	}, 2*time.Second, "duration ticks delivered")
}
