package capturews

import "encoding/json"

// The capture engine speaks a small WebSocket protocol: JSON text frames for
// the handshake, requests, responses, and events; binary frames for encoded
// media chunks while an encode job is running.

// Message is the envelope for every text frame.
type Message struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

// OpCodes for the text-frame protocol.
const (
	OpHello           = 0
	OpIdentify        = 1
	OpIdentified      = 2
	OpEvent           = 5
	OpRequest         = 6
	OpRequestResponse = 7
)

// HelloData is sent by the engine on connect. The challenge/salt pair is
// empty when the engine runs without authentication.
type HelloData struct {
	EngineVersion  string `json:"engineVersion"`
	RPCVersion     int    `json:"rpcVersion"`
	Authentication struct {
		Challenge string `json:"challenge"`
		Salt      string `json:"salt"`
	} `json:"authentication"`
}

// IdentifyData answers the Hello.
type IdentifyData struct {
	RPCVersion     int    `json:"rpcVersion"`
	Authentication string `json:"authentication,omitempty"`
}

// Request is one client request; the engine echoes RequestID in its response.
type Request struct {
	RequestType string      `json:"requestType"`
	RequestID   string      `json:"requestId"`
	RequestData interface{} `json:"requestData,omitempty"`
}

// Response status codes, mapped onto the capture error taxonomy in
// operations.go.
const (
	CodeSourceUnavailable = 404
	CodePermissionDenied  = 401
	CodeUnsupported       = 501
	CodeEncoderFailure    = 500
)

// Response is the engine's answer to one Request.
type Response struct {
	RequestType   string `json:"requestType"`
	RequestID     string `json:"requestId"`
	RequestStatus struct {
		Result  bool   `json:"result"`
		Code    int    `json:"code"`
		Comment string `json:"comment,omitempty"`
	} `json:"requestStatus"`
	ResponseData json.RawMessage `json:"responseData,omitempty"`
}

// Event is an unsolicited engine notification.
type Event struct {
	EventType string          `json:"eventType"`
	EventData json.RawMessage `json:"eventData,omitempty"`
}

// Event types emitted by the engine.
const (
	// EventEncodeError signals a fatal mid-session encoder failure; the
	// payload carries a human-readable reason.
	EventEncodeError = "EncodeError"
)
