package notify

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/katinat-coffee/ordering-backend/internal/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 64
)

// Client is one websocket connection with its topic memberships.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	identity auth.Identity

	mu        sync.Mutex
	topics    map[string]struct{}
	closeOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, identity auth.Identity) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		identity: identity,
		topics:   make(map[string]struct{}),
	}
}

func (c *Client) addTopic(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics[topic] = struct{}{}
}

func (c *Client) removeTopic(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.topics, topic)
}

func (c *Client) snapshotTopics() map[string]struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]struct{}, len(c.topics))
	for t := range c.topics {
		out[t] = struct{}{}
	}
	return out
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// clientMessage is the only client-to-server protocol: track or untrack an
// order by id.
type clientMessage struct {
	Action  string `json:"action"`
	OrderID string `json:"orderId"`
}

// handleMessage applies one inbound message. Tracking needs no ownership
// proof: the topic only ever carries status transitions.
func (c *Client) handleMessage(raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.OrderID == "" {
		return
	}
	switch msg.Action {
	case "track":
		c.hub.Subscribe(c, OrderTopic(msg.OrderID))
	case "untrack":
		c.hub.Unsubscribe(c, OrderTopic(msg.OrderID))
	}
}

// readPump consumes inbound messages until the connection dies, then tears
// down every membership.
func (c *Client) readPump() {
	defer func() {
		c.hub.Drop(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.handleMessage(raw)
	}
}

// writePump drains the send buffer onto the wire and keeps the connection
// alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
