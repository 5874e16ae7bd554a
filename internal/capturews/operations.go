package capturews

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/snapmark/snapmark/internal/capture"
)

// ListSources asks the engine for the capturable sources of the given kinds.
// An empty kinds slice means all kinds.
func (c *Client) ListSources(kinds []capture.SourceKind) ([]capture.Source, error) {
	resp, err := c.sendRequest("ListSources", map[string]interface{}{
		"kinds": kinds,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}

	var data struct {
		Sources []capture.Source `json:"sources"`
	}
	if err := json.Unmarshal(resp.ResponseData, &data); err != nil {
		return nil, fmt.Errorf("failed to parse source list: %w", err)
	}
	return data.Sources, nil
}

// PrimaryScreen returns the primary display, or nil when the engine cannot
// determine one.
func (c *Client) PrimaryScreen() (*capture.Source, error) {
	return c.singleSource("GetPrimaryScreen")
}

// FocusedWindow returns the currently focused window, or nil when no window
// has focus.
func (c *Client) FocusedWindow() (*capture.Source, error) {
	return c.singleSource("GetFocusedWindow")
}

func (c *Client) singleSource(requestType string) (*capture.Source, error) {
	resp, err := c.sendRequest(requestType, nil)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", requestType, err)
	}
	var data struct {
		Source *capture.Source `json:"source"`
	}
	if err := json.Unmarshal(resp.ResponseData, &data); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", requestType, err)
	}
	return data.Source, nil
}

// trackInfo is the engine's description of one acquired track.
type trackInfo struct {
	TrackID string            `json:"trackId"`
	Kind    capture.TrackKind `json:"kind"`
}

// AcquireTrack asks the engine for tracks of the given kind. The system-audio
// capability may return a video track alongside the audio one.
func (c *Client) AcquireTrack(kind capture.TrackKind, sourceID string) ([]trackInfo, error) {
	resp, err := c.sendRequest("AcquireTrack", map[string]interface{}{
		"kind":     kind,
		"sourceId": sourceID,
	})
	if err != nil {
		return nil, mapRequestError(err)
	}

	var data struct {
		Tracks []trackInfo `json:"tracks"`
	}
	if err := json.Unmarshal(resp.ResponseData, &data); err != nil {
		return nil, fmt.Errorf("failed to parse acquire response: %w", err)
	}
	if len(data.Tracks) == 0 {
		return nil, fmt.Errorf("engine returned no tracks for kind %s", kind)
	}
	return data.Tracks, nil
}

// ReleaseTrack tells the engine to stop and free one track.
func (c *Client) ReleaseTrack(trackID string) error {
	if _, err := c.sendRequest("ReleaseTrack", map[string]interface{}{
		"trackId": trackID,
	}); err != nil {
		return fmt.Errorf("failed to release track %s: %w", trackID, err)
	}
	return nil
}

// StartEncode begins an encode job over the given tracks. Chunks arrive as
// binary frames at the flush interval until StopEncode or AbortEncode.
func (c *Client) StartEncode(trackIDs []string, settings capture.EncodeSettings) error {
	if _, err := c.sendRequest("StartEncode", map[string]interface{}{
		"trackIds":        trackIDs,
		"width":           settings.Width,
		"height":          settings.Height,
		"bitrate":         settings.Bitrate,
		"frameRate":       settings.FrameRate,
		"flushIntervalMs": settings.FlushInterval.Milliseconds(),
	}); err != nil {
		return fmt.Errorf("%w: %v", capture.ErrEncoderFailure, err)
	}
	return nil
}

// PauseEncode suspends chunk production without ending the job.
func (c *Client) PauseEncode() error {
	if _, err := c.sendRequest("PauseEncode", nil); err != nil {
		return fmt.Errorf("failed to pause encode: %w", err)
	}
	return nil
}

// ResumeEncode resumes a paused encode job.
func (c *Client) ResumeEncode() error {
	if _, err := c.sendRequest("ResumeEncode", nil); err != nil {
		return fmt.Errorf("failed to resume encode: %w", err)
	}
	return nil
}

// StopEncode ends the job and returns the final flush of the engine's
// internal buffer. After the response arrives no further binary frames are
// sent for this job.
func (c *Client) StopEncode() ([]byte, error) {
	resp, err := c.sendRequest("StopEncode", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", capture.ErrEncoderFailure, err)
	}
	var data struct {
		Tail []byte `json:"tail"` // base64 in JSON
	}
	if err := json.Unmarshal(resp.ResponseData, &data); err != nil {
		return nil, fmt.Errorf("failed to parse stop response: %w", err)
	}
	return data.Tail, nil
}

// AbortEncode ends the job discarding any buffered data.
func (c *Client) AbortEncode() error {
	if _, err := c.sendRequest("AbortEncode", nil); err != nil {
		return fmt.Errorf("failed to abort encode: %w", err)
	}
	return nil
}

// CaptureStill asks the engine to rasterize one frame of the source as an
// encoded image (PNG).
func (c *Client) CaptureStill(sourceID string) ([]byte, error) {
	resp, err := c.sendRequest("CaptureStill", map[string]interface{}{
		"sourceId": sourceID,
	})
	if err != nil {
		return nil, mapRequestError(err)
	}
	var data struct {
		Image []byte `json:"image"` // base64 in JSON
	}
	if err := json.Unmarshal(resp.ResponseData, &data); err != nil {
		return nil, fmt.Errorf("failed to parse screenshot response: %w", err)
	}
	return data.Image, nil
}

// mapRequestError translates engine status codes into the capture error
// taxonomy so callers can branch with errors.Is.
func mapRequestError(err error) error {
	var reqErr *requestError
	if !errors.As(err, &reqErr) {
		return err
	}
	switch reqErr.Code {
	case CodeSourceUnavailable:
		return fmt.Errorf("%w: %s", capture.ErrSourceUnavailable, reqErr.Comment)
	case CodePermissionDenied:
		return fmt.Errorf("%w: %s", capture.ErrPermissionDenied, reqErr.Comment)
	case CodeUnsupported:
		return fmt.Errorf("%w: %s", capture.ErrUnsupported, reqErr.Comment)
	case CodeEncoderFailure:
		return fmt.Errorf("%w: %s", capture.ErrEncoderFailure, reqErr.Comment)
	default:
		return err
	}
}
