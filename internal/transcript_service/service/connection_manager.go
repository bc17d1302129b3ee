package service

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/bigballadanny/dwschatbot/internal/models"
	"github.com/bigballadanny/dwschatbot/pkg/logger"
)

// ConnectionManager tracks one WebSocket connection per user and pushes
// processing progress to it. Delivery is best effort: a user without a
// connection simply misses the live update and polls the status endpoint.
type ConnectionManager struct {
	mu          sync.Mutex
	connections map[string]*websocket.Conn
	log         *logger.Logger
}

// NewConnectionManager creates an empty ConnectionManager.
func NewConnectionManager(log *logger.Logger) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*websocket.Conn),
		log:         log,
	}
}

// Add registers the connection for a user, closing any previous one.
func (m *ConnectionManager) Add(userID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.connections[userID]; ok {
		old.Close()
	}
	m.connections[userID] = conn
}

// Remove drops the user's connection, but only when it still is the given
// one, so a late cleanup cannot evict a newer connection.
func (m *ConnectionManager) Remove(userID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.connections[userID]; ok && current == conn {
		current.Close()
		delete(m.connections, userID)
	}
}

// Notify pushes a progress update to the user's connection if one exists.
func (m *ConnectionManager) Notify(userID string, update models.ProgressUpdate) {
	payload, err := json.Marshal(update)
	if err != nil {
		m.log.WithUser(userID).Error(fmt.Sprintf("Failed to marshal progress update: %v", err))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.connections[userID]
	if !ok {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		// A broken connection gets dropped; the client reconnects on its own.
		conn.Close()
		delete(m.connections, userID)
		m.log.WithUser(userID).Warn(fmt.Sprintf("Dropped WebSocket connection after write error: %v", err))
	}
}
