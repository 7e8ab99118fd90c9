package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"health-service/internal/logging"
	"health-service/internal/models"
)

// maxConnsPerTopic caps subscribers per machine id ("" subscribes to all devices).
const maxConnsPerTopic = 10

// subscriber serializes data frames on one connection; gorilla allows a
// single concurrent writer.
type subscriber struct {
	topic string
	conn  *websocket.Conn
	mu    sync.Mutex
}

// AlertHub pushes alerts to dashboard WebSocket subscribers. It is a Sink.
// The hub mutex guards the subscription map only; writes happen outside it.
type AlertHub struct {
	connections map[string]map[*websocket.Conn]*subscriber // machine id -> connections
	mutex       sync.Mutex
	logger      *logging.Logger
}

func NewAlertHub(logger *logging.Logger) *AlertHub {
	return &AlertHub{
		connections: make(map[string]map[*websocket.Conn]*subscriber),
		logger:      logger,
	}
}

func (h *AlertHub) Name() string { return "websocket" }

// AddConnection subscribes conn to alerts for machineID, or every device when empty.
func (h *AlertHub) AddConnection(machineID string, conn *websocket.Conn) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, exists := h.connections[machineID]; !exists {
		h.connections[machineID] = make(map[*websocket.Conn]*subscriber)
	}
	if len(h.connections[machineID]) >= maxConnsPerTopic {
		h.logger.Warnf("Max connections reached for topic %q", machineID)
		return fmt.Errorf("too many subscribers for %q", machineID)
	}
	h.connections[machineID][conn] = &subscriber{topic: machineID, conn: conn}
	h.logger.Infof("Added WebSocket connection for topic %q (total: %d)", machineID, len(h.connections[machineID]))
	return nil
}

// RemoveConnection unsubscribes conn.
func (h *AlertHub) RemoveConnection(machineID string, conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if conns, exists := h.connections[machineID]; exists {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.connections, machineID)
		}
		h.logger.Infof("Removed WebSocket connection for topic %q (remaining: %d)", machineID, len(conns))
	}
}

// Subscribers reports how many connections are open across all topics.
func (h *AlertHub) Subscribers() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	n := 0
	for _, conns := range h.connections {
		n += len(conns)
	}
	return n
}

// Send writes the alert to subscribers of its device and of the whole fleet.
// Connections that fail a write are dropped.
func (h *AlertHub) Send(ctx context.Context, alert models.Alert) error {
	message, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert %d: %w", alert.ID, err)
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(5 * time.Second)
	}

	var failed []*subscriber
	for _, sub := range h.snapshot(alert.MachineID, "") {
		if err := sub.write(deadline, message); err != nil {
			h.logger.Errorf("Failed to send WebSocket message on topic %q: %v", sub.topic, err)
			failed = append(failed, sub)
		}
	}
	h.drop(failed)
	return nil
}

func (h *AlertHub) snapshot(topics ...string) []*subscriber {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	var subs []*subscriber
	for _, topic := range topics {
		for _, sub := range h.connections[topic] {
			subs = append(subs, sub)
		}
	}
	return subs
}

// drop closes failed subscribers still registered under their topic.
func (h *AlertHub) drop(failed []*subscriber) {
	if len(failed) == 0 {
		return
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for _, sub := range failed {
		_ = sub.conn.Close()
		conns, exists := h.connections[sub.topic]
		if !exists || conns[sub.conn] != sub {
			continue
		}
		delete(conns, sub.conn)
		if len(conns) == 0 {
			delete(h.connections, sub.topic)
		}
	}
}

func (s *subscriber) write(deadline time.Time, message []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(deadline)
	return s.conn.WriteMessage(websocket.TextMessage, message)
}
