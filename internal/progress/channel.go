package progress

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	apperrors "github.com/vidgrab/vidgrab/internal/errors"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

// StartRequest is the single client frame sent after opening a stream for a
// new job.
type StartRequest struct {
	URL     string `json:"url"`
	Type    string `json:"type"`
	Quality string `json:"quality"`
	Format  string `json:"format"`
}

// Channel is one job's progress stream. Events are delivered in arrival
// order on Events(); once that channel closes, Err reports why (nil for a
// normal server close).
type Channel struct {
	jobID  string
	conn   *websocket.Conn
	events chan Event

	// writeMu serializes Start, Close and pingLoop; gorilla connections
	// support at most one concurrent writer.
	writeMu sync.Mutex

	mu     sync.Mutex
	err    error
	closed bool
}

// Dial opens the progress stream for jobID against the given ws base URL.
func Dial(ctx context.Context, wsBaseURL, jobID string) (*Channel, error) {
	target := strings.TrimRight(wsBaseURL, "/") + "/ws/download/" + jobID

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, apperrors.ConnectionError(fmt.Sprintf("failed to open progress channel for job %s", jobID)).WithCause(err)
	}

	c := &Channel{
		jobID:  jobID,
		conn:   conn,
		events: make(chan Event, 16),
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// JobID returns the job this channel is bound to.
func (c *Channel) JobID() string {
	return c.jobID
}

// Start sends the one start frame for a newly submitted job.
func (c *Channel) Start(req StartRequest) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(req); err != nil {
		return apperrors.ConnectionError("failed to send start frame").WithCause(err)
	}
	return nil
}

// Events returns the stream of decoded server events. The channel closes
// when the stream ends for any reason.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// Err reports why the event stream ended. Nil means the server closed the
// stream normally after a terminal event.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close tears the stream down locally. Safe to call more than once and
// after the stream has already ended.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

// readLoop pumps server messages into the events channel until the stream
// ends or an event violates the contract.
func (c *Channel) readLoop() {
	defer close(c.events)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.finish(closeError(err))
			return
		}

		event, err := DecodeEvent(data)
		if err != nil {
			// A malformed payload is a server-side contract violation;
			// quarantine the stream rather than applying undefined fields.
			c.finish(apperrors.MalformedEvent(err.Error()))
			c.conn.Close()
			return
		}

		c.events <- event
	}
}

// pingLoop keeps the connection alive while the job runs.
func (c *Channel) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := c.conn.WriteMessage(websocket.PingMessage, nil)
		c.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

// finish records why the stream ended, keeping the first cause.
func (c *Channel) finish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil && !c.closed {
		c.err = err
	}
}

// closeError maps a websocket read error to the channel error contract:
// normal closes (and local closes) are nil, everything else is abnormal.
func closeError(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return apperrors.ChannelClosed("progress channel closed abnormally").WithCause(err)
}
