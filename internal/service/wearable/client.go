package wearable

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"CalmPulse/internal/domain/models"
	drepo "CalmPulse/internal/domain/repository"
)

// Client implements a ReadingSource backed by a wearable vendor's streaming
// WebSocket API. One connection carries all subscribed devices. Connect and
// Close may be called from the collector's reconnect path while the ping and
// read goroutines are live, so connection state is guarded by a mutex; writes
// share the same lock since the underlying connection allows only one writer.
type Client struct {
	apiKey         string
	websocketURL   string
	deviceIDs      []string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

func New(apiKey, websocketURL string, deviceIDs []string, reconnectDelay, pingInterval time.Duration) *Client {
	return &Client{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		deviceIDs:      deviceIDs,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
	}
}

// Connect establishes the WebSocket connection and subscribes the configured
// devices.
func (c *Client) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", c.websocketURL, c.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("wearable connect: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	c.connected = true

	for _, id := range c.deviceIDs {
		msg := map[string]string{"type": "subscribe", "device": id}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe device %s: %w", id, err)
		}
	}
	return nil
}

// current snapshots the connection for use outside the lock. Blocking reads
// must not hold the mutex.
func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) ping() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.PingMessage, nil)
	}
}

// wsSample is one biometric frame on the wire. Channels the device did not
// measure are absent, which the pointer fields preserve.
type wsSample struct {
	HeartRate   *float64 `json:"hr"`
	HRV         *float64 `json:"hrv"`
	Temperature *float64 `json:"temp"`
	Motion      *float64 `json:"motion"`
	Confidence  float64  `json:"confidence"`
	Source      string   `json:"source"`
	T           int64    `json:"t"` // ms
}

type wsFrame struct {
	Type string     `json:"type"`
	Data []wsSample `json:"data"`
}

// Read streams readings and errors. The reading channel is buffered; on
// backpressure frames are dropped rather than stalling the socket, since a
// fresher sample is always seconds away.
func (c *Client) Read(ctx context.Context) (<-chan models.Reading, <-chan error) {
	readings := make(chan models.Reading, 256)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.ping()
			}
		}
	}()

	// read loop
	go func() {
		defer close(readings)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				conn := c.current()
				if conn == nil {
					errs <- fmt.Errorf("wearable conn nil")
					return
				}
				_, b, err := conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("wearable read: %w", err)
					return
				}
				var frame wsFrame
				if err := json.Unmarshal(b, &frame); err != nil {
					// ignore non-biometric frames
					continue
				}
				if frame.Type != "biometrics" {
					continue
				}
				for _, s := range frame.Data {
					r := models.Reading{
						Timestamp:   time.UnixMilli(s.T),
						HeartRate:   s.HeartRate,
						HRV:         s.HRV,
						Temperature: s.Temperature,
						Motion:      s.Motion,
						Confidence:  s.Confidence,
						Source:      sourceFor(s.Source),
					}
					select {
					case readings <- r:
					default:
						// drop on backpressure
					}
				}
			}
		}
	}()

	return readings, errs
}

// Reconnect closes and reconnects.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	time.Sleep(c.reconnectDelay)
	return c.Connect(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func sourceFor(s string) models.BiometricSource {
	switch models.BiometricSource(s) {
	case models.SourceWatch, models.SourceBand, models.SourcePhone, models.SourceSimulator:
		return models.BiometricSource(s)
	default:
		return models.SourceWatch
	}
}

var _ drepo.ReadingSource = (*Client)(nil)
