// Package capturews implements the WebSocket client for the capture engine:
// the external service that enumerates screens/windows, acquires media
// tracks, encodes them into chunked media bytes, and rasterizes screenshots.
package capturews

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/snapmark/snapmark/internal/diaglog"
)

// Client is a capture-engine WebSocket client. One client serves one daemon
// process; requests are correlated to responses by id, and binary frames are
// fanned out to the registered chunk handler.
type Client struct {
	url      string
	password string

	mu         sync.RWMutex
	conn       *websocket.Conn
	connected  bool
	identified bool

	requestID   int
	requestIDMu sync.Mutex
	responses   map[int]chan *Response
	responseMu  sync.RWMutex

	logger   *diaglog.Logger
	loggerMu sync.RWMutex

	onChunk        func([]byte)
	onEncodeError  func(error)
	onDisconnected func()
	handlerMu      sync.RWMutex

	reconnectEnabled bool
	reconnectDelay   time.Duration
	stopChan         chan struct{}

	identifiedChan chan struct{}
	helloChan      chan *HelloData
	helloErrChan   chan error
}

// NewClient creates a client for the engine at url. password may be empty
// when the engine runs unauthenticated.
func NewClient(url, password string) *Client {
	return &Client{
		url:              url,
		password:         password,
		responses:        make(map[int]chan *Response),
		reconnectEnabled: true,
		reconnectDelay:   5 * time.Second,
		stopChan:         make(chan struct{}),
		identifiedChan:   make(chan struct{}),
		helloChan:        make(chan *HelloData, 1),
		helloErrChan:     make(chan error, 1),
	}
}

// SetLogger injects a diaglog.Logger for protocol-level diagnostics.
func (c *Client) SetLogger(l *diaglog.Logger) {
	c.loggerMu.Lock()
	c.logger = l
	c.loggerMu.Unlock()
}

// OnChunk registers the handler for binary media-chunk frames.
func (c *Client) OnChunk(fn func([]byte)) {
	c.handlerMu.Lock()
	c.onChunk = fn
	c.handlerMu.Unlock()
}

// OnEncodeError registers the handler for fatal mid-session encoder errors.
func (c *Client) OnEncodeError(fn func(error)) {
	c.handlerMu.Lock()
	c.onEncodeError = fn
	c.handlerMu.Unlock()
}

// OnDisconnected registers a callback invoked when the connection drops.
func (c *Client) OnDisconnected(fn func()) {
	c.handlerMu.Lock()
	c.onDisconnected = fn
	c.handlerMu.Unlock()
}

// IsConnected reports whether the connection is up and identified.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.identified
}

// Connect establishes the WebSocket connection and completes the
// Hello/Identify handshake.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return fmt.Errorf("already connected")
	}
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.log(diaglog.LogEntry{
		Event:   diaglog.EventWSConnect,
		Payload: map[string]interface{}{"url": c.url},
	})

	go c.readMessages()

	select {
	case hello := <-c.helloChan:
		return c.identify(hello)
	case err := <-c.helloErrChan:
		c.disconnect()
		return err
	case <-time.After(10 * time.Second):
		c.disconnect()
		return fmt.Errorf("timeout waiting for Hello message")
	}
}

// identify answers the Hello, computing the challenge response when the
// engine requires authentication: auth = b64(sha256(b64(sha256(password +
// salt)) + challenge)).
func (c *Client) identify(hello *HelloData) error {
	identify := IdentifyData{RPCVersion: 1}
	if hello.Authentication.Challenge != "" && c.password != "" {
		secret := sha256.Sum256([]byte(c.password + hello.Authentication.Salt))
		secretB64 := base64.StdEncoding.EncodeToString(secret[:])
		auth := sha256.Sum256([]byte(secretB64 + hello.Authentication.Challenge))
		identify.Authentication = base64.StdEncoding.EncodeToString(auth[:])
	}

	msg := Message{Op: OpIdentify}
	msg.D, _ = json.Marshal(identify)

	c.mu.RLock()
	err := c.conn.WriteJSON(msg)
	c.mu.RUnlock()
	if err != nil {
		c.disconnect()
		return fmt.Errorf("failed to send Identify: %w", err)
	}

	select {
	case <-c.identifiedChan:
		return nil
	case <-time.After(10 * time.Second):
		c.disconnect()
		return fmt.Errorf("timeout waiting for Identified message")
	}
}

// readMessages is the single reader goroutine: it routes text frames by
// opcode and hands binary frames to the chunk handler.
func (c *Client) readMessages() {
	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		if msgType == websocket.BinaryMessage {
			c.handlerMu.RLock()
			fn := c.onChunk
			c.handlerMu.RUnlock()
			if fn != nil {
				fn(data)
			}
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		c.log(diaglog.LogEntry{
			Event:   diaglog.EventWSRecv,
			Payload: map[string]interface{}{"op": msg.Op},
		})

		switch msg.Op {
		case OpHello:
			var hello HelloData
			if err := json.Unmarshal(msg.D, &hello); err != nil {
				select {
				case c.helloErrChan <- fmt.Errorf("malformed Hello: %w", err):
				default:
				}
				continue
			}
			select {
			case c.helloChan <- &hello:
			default:
			}

		case OpIdentified:
			c.mu.Lock()
			c.identified = true
			c.mu.Unlock()
			select {
			case c.identifiedChan <- struct{}{}:
			default:
			}

		case OpEvent:
			var event Event
			if err := json.Unmarshal(msg.D, &event); err == nil {
				c.handleEvent(&event)
			}

		case OpRequestResponse:
			var resp Response
			if err := json.Unmarshal(msg.D, &resp); err == nil {
				c.handleResponse(&resp)
			}
		}
	}
}

func (c *Client) handleEvent(event *Event) {
	switch event.EventType {
	case EventEncodeError:
		var data struct {
			Reason string `json:"reason"`
		}
		_ = json.Unmarshal(event.EventData, &data)
		c.handlerMu.RLock()
		fn := c.onEncodeError
		c.handlerMu.RUnlock()
		if fn != nil {
			fn(errors.New(data.Reason))
		}
	}
}

func (c *Client) handleResponse(resp *Response) {
	var id int
	if _, err := fmt.Sscanf(resp.RequestID, "%d", &id); err != nil {
		log.Printf("Warning: failed to parse request ID: %v", err)
		return
	}

	c.responseMu.RLock()
	defer c.responseMu.RUnlock()
	if ch, ok := c.responses[id]; ok {
		ch <- resp
	}
}

func (c *Client) handleReadError(err error) {
	c.log(diaglog.LogEntry{
		Event:  diaglog.EventWSDisconnect,
		Reason: err.Error(),
	})
	c.disconnect()

	c.handlerMu.RLock()
	fn := c.onDisconnected
	c.handlerMu.RUnlock()
	if fn != nil {
		fn()
	}

	if c.reconnectEnabled {
		go c.reconnect()
	}
}

// sendRequest sends one request and waits up to 10s for its response.
func (c *Client) sendRequest(requestType string, requestData interface{}) (*Response, error) {
	c.mu.RLock()
	if !c.connected || !c.identified {
		c.mu.RUnlock()
		return nil, fmt.Errorf("not connected")
	}
	c.mu.RUnlock()

	c.requestIDMu.Lock()
	c.requestID++
	id := c.requestID
	c.requestIDMu.Unlock()
	requestID := fmt.Sprintf("%d", id)

	req := Request{
		RequestType: requestType,
		RequestID:   requestID,
		RequestData: requestData,
	}
	msg := Message{Op: OpRequest}
	msg.D, _ = json.Marshal(req)

	c.log(diaglog.LogEntry{
		Event:   diaglog.EventWSSend,
		Payload: map[string]interface{}{"request_type": requestType, "request_id": requestID},
	})

	respChan := make(chan *Response, 1)
	c.responseMu.Lock()
	c.responses[id] = respChan
	c.responseMu.Unlock()
	defer func() {
		c.responseMu.Lock()
		delete(c.responses, id)
		c.responseMu.Unlock()
	}()

	c.mu.RLock()
	err := c.conn.WriteJSON(msg)
	c.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	select {
	case resp := <-respChan:
		if !resp.RequestStatus.Result {
			return nil, &requestError{
				RequestType: requestType,
				Code:        resp.RequestStatus.Code,
				Comment:     resp.RequestStatus.Comment,
			}
		}
		return resp, nil
	case <-time.After(10 * time.Second):
		return nil, fmt.Errorf("request timeout after 10s (request: %s)", requestType)
	}
}

// requestError carries the engine's status code so operations can map it
// onto the capture error taxonomy.
type requestError struct {
	RequestType string
	Code        int
	Comment     string
}

func (e *requestError) Error() string {
	return fmt.Sprintf("request %s failed (code %d): %s", e.RequestType, e.Code, e.Comment)
}

// disconnect closes the WebSocket connection.
func (c *Client) disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			log.Printf("Warning: failed to close connection: %v", err)
		}
		c.conn = nil
	}
	c.connected = false
	c.identified = false
}

// reconnect retries the connection with exponential backoff and jitter.
// Reconnection never touches recording state; the session controller decides
// what a mid-session disconnect means.
func (c *Client) reconnect() {
	delay := c.reconnectDelay
	attempt := 0
	for {
		select {
		case <-c.stopChan:
			return
		case <-time.After(delay):
			attempt++
			c.log(diaglog.LogEntry{
				Event:   diaglog.EventWSReconnectAttempt,
				Payload: map[string]interface{}{"attempt": attempt, "delay_ms": delay.Milliseconds()},
			})
			if err := c.Connect(); err == nil {
				c.log(diaglog.LogEntry{
					Event:   diaglog.EventWSReconnectSuccess,
					Payload: map[string]interface{}{"attempt": attempt},
				})
				return
			} else {
				c.log(diaglog.LogEntry{
					Event:   diaglog.EventWSReconnectFailed,
					Payload: map[string]interface{}{"attempt": attempt, "error": err.Error()},
				})
			}

			delay *= 2
			if delay > 60*time.Second {
				delay = 60 * time.Second
			}
			// ±10% jitter to avoid synchronized retries
			jitter := time.Duration((delay.Seconds() * 0.2) * (rand.Float64() - 0.5) * float64(time.Second))
			delay += jitter
			if delay < time.Second {
				delay = time.Second
			}
		}
	}
}

// Disconnect gracefully closes the connection and stops reconnection.
func (c *Client) Disconnect() {
	c.reconnectEnabled = false
	close(c.stopChan)
	c.disconnect()
}

func (c *Client) log(entry diaglog.LogEntry) {
	c.loggerMu.RLock()
	l := c.logger
	c.loggerMu.RUnlock()
	if entry.Component == "" {
		entry.Component = diaglog.ComponentEngineClient
	}
	l.Log(entry)
}
