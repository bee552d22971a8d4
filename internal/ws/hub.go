package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/studytips-bot/internal/logger"
	"github.com/ignatzorin/studytips-bot/internal/notify"
)

// Hub рассылает события жизненного цикла всем подключённым администраторам.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	log        *logrus.Entry
}

// envelope сообщение для клиента: "type" имя события, "data" полезная нагрузка.
type envelope struct {
	Type notify.EventType `json:"type"`
	Data notify.Event     `json:"data"`
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
		log:        logger.WithComponent("ws_hub"),
	}
}

// Run запускает главный цикл хаба до отмены ctx. После выхода все клиенты закрыты.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case payload := <-h.broadcast:
			h.send(payload)
		}
	}
}

// Register добавляет клиента. false, если хаб уже остановлен.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister удаляет клиента.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish реализует notify.EventPublisher. Не блокирует: при переполненной
// очереди событие отбрасывается.
func (h *Hub) Publish(ev notify.Event) {
	raw, err := json.Marshal(envelope{Type: ev.Type, Data: ev})
	if err != nil {
		h.log.WithError(fmt.Errorf("ws: не удалось сериализовать событие: %w", err)).Error("event dropped")
		return
	}

	select {
	case h.broadcast <- raw:
	default:
		h.log.WithField("type", ev.Type).Warn("event queue full, event dropped")
	}
}

// ClientCount число подключённых клиентов.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
	h.log.WithField("user_id", client.userID).Debug("admin stream connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.closeSend()
	}
}

func (h *Hub) send(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			// Медленный клиент отключается.
			delete(h.clients, client)
			client.closeSend()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		client.closeSend()
	}
}
