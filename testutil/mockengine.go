package testutil

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MockEngine simulates the capture engine's WebSocket service for testing.
// It completes the Hello/Identify handshake, answers requests with canned
// success responses (or a configured failure), and can emit binary chunk
// frames and events on demand.
type MockEngine struct {
	listener net.Listener
	server   *http.Server

	mu        sync.Mutex
	conn      *websocket.Conn
	writeMu   sync.Mutex
	connected bool
	mode      string
	failCode  int
	password  string
	responses map[string]interface{}
	requests  []string
	tail      []byte
}

// Failure modes define how the mock engine behaves
const (
	ModeNormal     = "normal"
	ModeFail       = "fail"       // every request fails with failCode
	ModeTimeout    = "timeout"    // responses delayed past the client timeout
	ModeDisconnect = "disconnect" // connection dropped on first request
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewMockEngine creates a mock engine with no authentication.
func NewMockEngine() *MockEngine {
	return &MockEngine{
		mode:      ModeNormal,
		responses: make(map[string]interface{}),
		tail:      []byte("tail"),
	}
}

// SetPassword enables challenge/response authentication.
func (m *MockEngine) SetPassword(password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.password = password
}

// SetFailureMode configures how the engine responds to requests.
func (m *MockEngine) SetFailureMode(mode string, code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
	m.failCode = code
}

// SetTail sets the bytes returned by StopEncode as the final flush.
func (m *MockEngine) SetTail(tail []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tail = tail
}

// QueueResponse overrides the canned responseData for one request type.
func (m *MockEngine) QueueResponse(requestType string, responseData interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[requestType] = responseData
}

// Requests returns the request types received so far, in order.
func (m *MockEngine) Requests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.requests...)
}

// Start begins listening on a dynamic port
func (m *MockEngine) Start() error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	m.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/", m.handleWebSocket)
	m.server = &http.Server{Handler: mux}

	go func() {
		_ = m.server.Serve(m.listener)
	}()

	// Give server time to start
	time.Sleep(50 * time.Millisecond)
	return nil
}

// Stop shuts down the server and drops any open connection.
func (m *MockEngine) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	if m.server != nil {
		_ = m.server.Close()
	}
	if m.listener != nil {
		_ = m.listener.Close()
	}
	m.connected = false
	return nil
}

// URL returns the ws:// address clients should dial.
func (m *MockEngine) URL() string {
	if m.listener == nil {
		return ""
	}
	return "ws://" + m.listener.Addr().String()
}

// Connected returns whether a client is currently connected
func (m *MockEngine) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// EmitChunk sends one binary media-chunk frame to the connected client.
func (m *MockEngine) EmitChunk(data []byte) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("no client connected")
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

// EmitEncodeError sends an EncodeError event to the connected client.
func (m *MockEngine) EmitEncodeError(reason string) error {
	event := map[string]interface{}{
		"op": 5,
		"d": map[string]interface{}{
			"eventType": "EncodeError",
			"eventData": map[string]interface{}{"reason": reason},
		},
	}
	return m.writeJSON(event)
}

// DropConnection closes the client connection without shutting the server
// down, so reconnect behaviour can be observed.
func (m *MockEngine) DropConnection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.connected = false
}

func (m *MockEngine) writeJSON(v interface{}) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("no client connected")
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteJSON(v)
}

const (
	mockChallenge = "mock-challenge"
	mockSalt      = "mock-salt"
)

func (m *MockEngine) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	m.mu.Lock()
	m.conn = conn
	m.connected = true
	password := m.password
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		if m.conn == conn {
			m.conn = nil
			m.connected = false
		}
		m.mu.Unlock()
		_ = conn.Close()
	}()

	// Send Hello (op 0)
	hello := map[string]interface{}{
		"op": 0,
		"d": map[string]interface{}{
			"engineVersion": "1.0.0-mock",
			"rpcVersion":    1,
		},
	}
	if password != "" {
		hello["d"].(map[string]interface{})["authentication"] = map[string]interface{}{
			"challenge": mockChallenge,
			"salt":      mockSalt,
		}
	}
	if err := m.writeJSONTo(conn, hello); err != nil {
		return
	}

	// Wait for Identify (op 1)
	var identify struct {
		Op int `json:"op"`
		D  struct {
			RPCVersion     int    `json:"rpcVersion"`
			Authentication string `json:"authentication"`
		} `json:"d"`
	}
	if err := conn.ReadJSON(&identify); err != nil {
		return
	}
	if password != "" && identify.D.Authentication != expectedAuth(password) {
		// Wrong password: drop the connection without identifying.
		return
	}

	// Send Identified (op 2)
	identified := map[string]interface{}{
		"op": 2,
		"d":  map[string]interface{}{"negotiatedRpcVersion": 1},
	}
	if err := m.writeJSONTo(conn, identified); err != nil {
		return
	}

	// Handle subsequent requests
	for {
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}

		response := m.generateResponse(msg)
		if response == nil {
			continue
		}

		m.mu.Lock()
		mode := m.mode
		m.mu.Unlock()

		if mode == ModeTimeout {
			// Longer than the client's request timeout.
			time.Sleep(11 * time.Second)
		}
		if mode == ModeDisconnect {
			break
		}

		if err := m.writeJSONTo(conn, response); err != nil {
			break
		}
	}
}

func (m *MockEngine) writeJSONTo(conn *websocket.Conn, v interface{}) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteJSON(v)
}

// expectedAuth mirrors the client's challenge response:
// b64(sha256(b64(sha256(password + salt)) + challenge)).
func expectedAuth(password string) string {
	secret := sha256.Sum256([]byte(password + mockSalt))
	secretB64 := base64.StdEncoding.EncodeToString(secret[:])
	auth := sha256.Sum256([]byte(secretB64 + mockChallenge))
	return base64.StdEncoding.EncodeToString(auth[:])
}

// generateResponse creates a response for one request frame.
func (m *MockEngine) generateResponse(msg map[string]interface{}) map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := msg["d"].(map[string]interface{})
	if !ok {
		return nil
	}
	requestType, _ := d["requestType"].(string)
	requestID, _ := d["requestId"].(string)
	m.requests = append(m.requests, requestType)

	if m.mode == ModeFail {
		return map[string]interface{}{
			"op": 7,
			"d": map[string]interface{}{
				"requestType": requestType,
				"requestId":   requestID,
				"requestStatus": map[string]interface{}{
					"result":  false,
					"code":    m.failCode,
					"comment": "mock failure",
				},
			},
		}
	}

	data := m.responseData(requestType)
	return map[string]interface{}{
		"op": 7,
		"d": map[string]interface{}{
			"requestType": requestType,
			"requestId":   requestID,
			"requestStatus": map[string]interface{}{
				"result":  true,
				"code":    100,
				"comment": "",
			},
			"responseData": data,
		},
	}
}

// responseData returns the canned payload for one request type. Callers must
// hold m.mu.
func (m *MockEngine) responseData(requestType string) interface{} {
	if queued, ok := m.responses[requestType]; ok {
		return queued
	}

	switch requestType {
	case "ListSources":
		return map[string]interface{}{
			"sources": []map[string]interface{}{
				{"id": "screen-1", "display_name": "Built-in Display", "kind": "screen"},
				{"id": "window-7", "display_name": "Terminal", "kind": "window"},
			},
		}
	case "GetPrimaryScreen":
		return map[string]interface{}{
			"source": map[string]interface{}{
				"id": "screen-1", "display_name": "Built-in Display", "kind": "screen",
			},
		}
	case "GetFocusedWindow":
		return map[string]interface{}{
			"source": map[string]interface{}{
				"id": "window-7", "display_name": "Terminal", "kind": "window",
			},
		}
	case "AcquireTrack":
		return map[string]interface{}{
			"tracks": []map[string]interface{}{
				{"trackId": "track-1", "kind": "video"},
			},
		}
	case "StopEncode":
		return map[string]interface{}{
			"tail": base64.StdEncoding.EncodeToString(m.tail),
		}
	case "CaptureStill":
		return map[string]interface{}{
			"image": base64.StdEncoding.EncodeToString([]byte("png-bytes")),
		}
	default:
		return map[string]interface{}{}
	}
}
