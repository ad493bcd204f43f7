// Package feed is the optional live-update channel: the backend pushes new
// peer messages and unread-count changes over a websocket. Everything it
// applies moves state forward only (tail appends, scalar overwrites), so it
// can run beside the optimistic synchronizers without reconciliation.
package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/R1Sobriquet/esportapp-client/internal/config"
	"github.com/R1Sobriquet/esportapp-client/internal/logger"
	"github.com/R1Sobriquet/esportapp-client/pkg/types"
)

// Event is the wire envelope of one push.
type Event struct {
	Type    string         `json:"type"` // "message" | "unread"
	Message *types.Message `json:"message,omitempty"`
	Count   int            `json:"count,omitempty"`
}

// Handlers receive decoded pushes. They are invoked from the feed goroutine;
// implementations forward into their owner's inbox.
type Handlers struct {
	OnMessage func(types.Message)
	OnUnread  func(int)
}

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	readTimeout    = 60 * time.Second
)

type Client struct {
	url     string
	token   string
	handler Handlers

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Dial starts the feed against url, reconnecting with capped backoff until
// Stop or parent cancellation.
func Dial(parent context.Context, url string, sess config.Session, h Handlers) *Client {
	ctx, cancel := context.WithCancel(parent)
	c := &Client{
		url:     url,
		token:   sess.Token,
		handler: h,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go c.run()
	return c
}

// Stop closes the connection and waits for the run loop to exit.
func (c *Client) Stop() {
	c.cancel()
	<-c.done
}

func (c *Client) run() {
	defer close(c.done)

	backoff := initialBackoff
	for {
		if c.ctx.Err() != nil {
			return
		}

		clean := c.connectAndRead()
		if clean {
			backoff = initialBackoff
		}

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// connectAndRead runs one connection to exhaustion. Returns true when at
// least one event was read, resetting the reconnect backoff.
func (c *Client) connectAndRead() bool {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := websocket.Dial(c.ctx, c.url, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		logger.Log.Debug("feed dial failed", zap.Error(err))
		return false
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	logger.Log.Info("feed connected", zap.String("url", c.url))

	sawEvent := false
	for {
		ctx, cancel := context.WithTimeout(c.ctx, readTimeout)
		_, data, err := conn.Read(ctx)
		cancel()
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return sawEvent
			}
			logger.Log.Debug("feed read failed", zap.Error(err))
			return sawEvent
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			logger.Log.Warn("feed event undecodable", zap.Error(err))
			continue
		}
		sawEvent = true
		c.dispatch(ev)
	}
}

func (c *Client) dispatch(ev Event) {
	switch ev.Type {
	case "message":
		if ev.Message != nil && c.handler.OnMessage != nil {
			c.handler.OnMessage(*ev.Message)
		}
	case "unread":
		if c.handler.OnUnread != nil {
			c.handler.OnUnread(ev.Count)
		}
	default:
		logger.Log.Debug("feed event ignored", zap.String("type", ev.Type))
	}
}
