package ws

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var singletonMutex sync.Mutex

// Conn is the subset of a websocket connection the hub writes to.
type Conn interface {
	WriteJSON(v any) error
}

type listener struct {
	writeMutex sync.Mutex
	conn       Conn
}

type WebSocketNotificationHub struct {
	registrationMutex sync.RWMutex
	listeners         map[string]map[Conn]*listener
}

func (hub *WebSocketNotificationHub) RegisterListener(topic string, conn Conn) {
	hub.registrationMutex.Lock()
	defer hub.registrationMutex.Unlock()

	if hub.listeners[topic] == nil {
		hub.listeners[topic] = make(map[Conn]*listener)
	}
	hub.listeners[topic][conn] = &listener{conn: conn}
}

func (hub *WebSocketNotificationHub) UnregisterListener(topic string, conn Conn) {
	hub.registrationMutex.Lock()
	defer hub.registrationMutex.Unlock()

	delete(hub.listeners[topic], conn)
	if len(hub.listeners[topic]) == 0 {
		delete(hub.listeners, topic)
	}
}

func (hub *WebSocketNotificationHub) ListenerCount(topic string) int {
	hub.registrationMutex.RLock()
	defer hub.registrationMutex.RUnlock()
	return len(hub.listeners[topic])
}

// Publish writes event to every listener of targetTopic. Write failures are
// logged; the reading side unregisters dead connections.
func (hub *WebSocketNotificationHub) Publish(targetTopic string, event any) {
	hub.registrationMutex.RLock()
	targets := make([]*listener, 0, len(hub.listeners[targetTopic]))
	for _, l := range hub.listeners[targetTopic] {
		targets = append(targets, l)
	}
	hub.registrationMutex.RUnlock()

	for _, l := range targets {
		l.writeMutex.Lock()
		err := l.conn.WriteJSON(event)
		l.writeMutex.Unlock()
		if err != nil {
			log.Warn().Err(err).Str("topic", targetTopic).Msg("Error writing ws message")
		}
	}
}

var notificationHubSingleton *WebSocketNotificationHub

func NewNotificationHub() *WebSocketNotificationHub {
	singletonMutex.Lock()
	defer singletonMutex.Unlock()

	if notificationHubSingleton == nil {
		notificationHubSingleton = newHub()
	}

	return notificationHubSingleton
}

func newHub() *WebSocketNotificationHub {
	return &WebSocketNotificationHub{
		listeners: make(map[string]map[Conn]*listener),
	}
}

var _ Conn = (*websocket.Conn)(nil)
