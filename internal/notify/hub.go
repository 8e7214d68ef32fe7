// Package notify fans order events out to connected clients over
// websockets. Topics mirror the interested parties: the owning customer,
// the fulfilling store's staff, admins, and anyone tracking a specific
// order. Delivery is fire-and-forget, at-most-once; nothing is persisted
// for disconnected subscribers.
package notify

import (
	"encoding/json"
	"sync"

	"github.com/katinat-coffee/ordering-backend/pkg/logger"
)

// Topic names.
const TopicAdmin = "admin"

func UserTopic(userID string) string   { return "user:" + userID }
func StoreTopic(storeID string) string { return "store:" + storeID }
func OrderTopic(orderID string) string { return "order:" + orderID }

type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Hub is the topic-indexed connection registry. It owns all membership
// state; nothing outside this package reaches into it.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Client]struct{}
	log    *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Default()
	}
	return &Hub{
		topics: make(map[string]map[*Client]struct{}),
		log:    log.WithComponent("notify_hub"),
	}
}

// Subscribe joins a client to a topic.
func (h *Hub) Subscribe(c *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.topics[topic]
	if !ok {
		set = make(map[*Client]struct{})
		h.topics[topic] = set
	}
	set[c] = struct{}{}
	c.addTopic(topic)
}

// Unsubscribe removes a client from a topic.
func (h *Hub) Unsubscribe(c *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c, topic)
	c.removeTopic(topic)
}

// Drop removes a client from every topic and closes its send channel.
// Called on disconnect; a reconnecting client re-derives its memberships.
func (h *Hub) Drop(c *Client) {
	h.mu.Lock()
	for topic := range c.snapshotTopics() {
		h.removeLocked(c, topic)
	}
	h.mu.Unlock()
	c.close()
}

func (h *Hub) removeLocked(c *Client, topic string) {
	if set, ok := h.topics[topic]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Publish sends an event to every subscriber of a topic. It never blocks:
// a subscriber whose buffer is full is dropped rather than stalling the
// producer, which keeps slow clients off the transition path.
func (h *Hub) Publish(topic, event string, data interface{}) {
	msg, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		h.log.Warn("marshal event failed", "event", event, "error", err)
		return
	}

	var stragglers []*Client
	h.mu.RLock()
	for c := range h.topics[topic] {
		select {
		case c.send <- msg:
		default:
			stragglers = append(stragglers, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stragglers {
		h.log.Warn("dropping slow subscriber", "topic", topic, "user_id", c.identity.UserID)
		h.Drop(c)
	}
}

// OrderStatusChanged publishes a status transition to the order's trackers.
// Status only: line items stay on the authenticated request path.
func (h *Hub) OrderStatusChanged(orderID, status string) {
	h.Publish(OrderTopic(orderID), "order:update", map[string]string{
		"orderId": orderID,
		"status":  status,
	})
}

// OrderPlaced announces a new order to the fulfilling store and to admins.
func (h *Hub) OrderPlaced(orderID, storeID string) {
	data := map[string]string{"orderId": orderID, "store": storeID}
	if storeID != "" {
		h.Publish(StoreTopic(storeID), "order:new", data)
	}
	h.Publish(TopicAdmin, "order:new", data)
}

// NotifyUser sends an arbitrary notice to one user's connections.
func (h *Hub) NotifyUser(userID string, data interface{}) {
	h.Publish(UserTopic(userID), "notification", data)
}
