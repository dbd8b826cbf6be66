package server

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"verdant/internal/events"
)

// Conn is one live WebSocket client as the broadcast manager sees it.
type Conn interface {
	Write(ctx context.Context, payload []byte) error
	Close() error
}

// Manager tracks WebSocket clients per topic and fans events out to
// them. A client whose write fails is disconnected and dropped.
type Manager struct {
	mu      sync.Mutex
	clients map[events.Topic]map[string]Conn
	log     zerolog.Logger
}

// NewManager creates an empty broadcast manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		clients: make(map[events.Topic]map[string]Conn),
		log:     log.With().Str("component", "broadcast").Logger(),
	}
}

// Connect registers a client for a topic and returns its id.
func (m *Manager) Connect(topic events.Topic, conn Conn) string {
	id := uuid.New().String()
	m.mu.Lock()
	if m.clients[topic] == nil {
		m.clients[topic] = make(map[string]Conn)
	}
	m.clients[topic][id] = conn
	count := len(m.clients[topic])
	m.mu.Unlock()

	m.log.Info().Str("topic", string(topic)).Str("client_id", id).Int("clients", count).Msg("WebSocket client connected")
	return id
}

// Disconnect removes a client. Safe to call for unknown ids.
func (m *Manager) Disconnect(topic events.Topic, id string) {
	m.mu.Lock()
	conn, ok := m.clients[topic][id]
	if ok {
		delete(m.clients[topic], id)
	}
	m.mu.Unlock()

	if ok {
		_ = conn.Close()
		m.log.Info().Str("topic", string(topic)).Str("client_id", id).Msg("WebSocket client disconnected")
	}
}

// Broadcast sends a payload to every client on the topic. Clients whose
// write fails are dropped.
func (m *Manager) Broadcast(topic events.Topic, payload []byte) {
	m.mu.Lock()
	targets := make(map[string]Conn, len(m.clients[topic]))
	for id, conn := range m.clients[topic] {
		targets[id] = conn
	}
	m.mu.Unlock()

	for id, conn := range targets {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := conn.Write(ctx, payload)
		cancel()
		if err != nil {
			m.log.Warn().Err(err).Str("topic", string(topic)).Str("client_id", id).Msg("Dropping dead WebSocket client")
			m.Disconnect(topic, id)
		}
	}
}

// ClientCount returns the number of clients on a topic.
func (m *Manager) ClientCount(topic events.Topic) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients[topic])
}

// CloseAll disconnects every client; used at shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.clients
	m.clients = make(map[events.Topic]map[string]Conn)
	m.mu.Unlock()

	for _, conns := range all {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}
}
