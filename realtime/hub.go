// Package realtime pushes invalidation events to staff and customer connections.
package realtime

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"settlement-service/models"
)

var (
	eventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_realtime_events_delivered_total",
			Help: "Events handed to subscriber queues",
		},
		[]string{"type"},
	)

	eventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_realtime_events_dropped_total",
			Help: "Events evicted from full subscriber queues",
		},
		[]string{"type"},
	)

	subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "settlement_realtime_subscribers",
			Help: "Open real-time subscriptions",
		},
	)
)

// StaffTopic receives every event of a tenant.
func StaffTopic(tenantID string) string {
	return tenantID + "/staff"
}

// CustomerTopic receives the events of one table session.
func CustomerTopic(tenantID, tableID, sessionID string) string {
	return tenantID + "/table/" + tableID + "/session/" + sessionID
}

// Topics lists where evt is delivered.
func Topics(evt models.Event) []string {
	topics := []string{StaffTopic(evt.TenantID)}
	if evt.TableID != "" && evt.SessionID != "" {
		topics = append(topics, CustomerTopic(evt.TenantID, evt.TableID, evt.SessionID))
	}
	return topics
}

type Subscription struct {
	C     <-chan models.Event
	ch    chan models.Event
	topic string
	hub   *Hub
	once  sync.Once
}

// Close unsubscribes and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.remove(s) })
}

func (s *Subscription) Topic() string {
	return s.topic
}

// Hub fans events out to in-process subscribers. Each subscriber owns a bounded
// queue; when it is full the oldest event is evicted.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{topics: make(map[string]map[*Subscription]struct{}), buffer: buffer}
}

func (h *Hub) Subscribe(topic string) *Subscription {
	ch := make(chan models.Event, h.buffer)
	sub := &Subscription{C: ch, ch: ch, topic: topic, hub: h}

	h.mu.Lock()
	set, ok := h.topics[topic]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.topics[topic] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	subscribers.Inc()
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.topics[sub.topic]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.topics, sub.topic)
		}
	}
	close(sub.ch)
	subscribers.Dec()
}

// Publish never blocks on slow subscribers.
func (h *Hub) Publish(_ context.Context, evt models.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, topic := range Topics(evt) {
		for sub := range h.topics[topic] {
			h.deliver(sub, evt)
		}
	}
	return nil
}

func (h *Hub) deliver(sub *Subscription, evt models.Event) {
	select {
	case sub.ch <- evt:
		eventsDelivered.WithLabelValues(string(evt.Type)).Inc()
		return
	default:
	}
	select {
	case <-sub.ch:
		eventsDropped.WithLabelValues(string(evt.Type)).Inc()
	default:
	}
	select {
	case sub.ch <- evt:
		eventsDelivered.WithLabelValues(string(evt.Type)).Inc()
	default:
		eventsDropped.WithLabelValues(string(evt.Type)).Inc()
	}
}

// SubscriberCount is used by health checks and tests.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
