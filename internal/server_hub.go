package internal

import (
	"strconv"
	"sync"
	"sync/atomic"

	"roomchat/internal/stomp"
)

// Hub tracks live STOMP sessions and their topic subscriptions.
type Hub struct {
	mutex     sync.Mutex
	clients   map[*Client]bool
	topics    map[string]map[*Client]string
	messageID atomic.Uint64
}

// builds an empty hub ready to serve websocket requests
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		topics:  make(map[string]map[*Client]string),
	}
}

func (hub *Hub) register(client *Client) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	hub.clients[client] = true
}

// unregister drops every subscription of client and closes its send queue.
func (hub *Hub) unregister(client *Client) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	hub.dropLocked(client)
}

func (hub *Hub) dropLocked(client *Client) {
	if !hub.clients[client] {
		return
	}
	delete(hub.clients, client)
	for dest, subs := range hub.topics {
		delete(subs, client)
		if len(subs) == 0 {
			delete(hub.topics, dest)
		}
	}
	close(client.send)
}

func (hub *Hub) subscribe(client *Client, id, destination string) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	if !hub.clients[client] {
		return
	}
	subs, ok := hub.topics[destination]
	if !ok {
		subs = make(map[*Client]string)
		hub.topics[destination] = subs
	}
	subs[client] = id
}

func (hub *Hub) unsubscribe(client *Client, id string) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	for dest, subs := range hub.topics {
		if subs[client] == id {
			delete(subs, client)
			if len(subs) == 0 {
				delete(hub.topics, dest)
			}
		}
	}
}

// deliver queues a raw frame for one client. It reports false when the
// client is gone or too slow.
func (hub *Hub) deliver(client *Client, payload []byte) bool {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	if !hub.clients[client] {
		return false
	}
	select {
	case client.send <- payload:
		return true
	default:
		hub.dropLocked(client)
		return false
	}
}

// Publish sends body as a MESSAGE frame to every subscriber of destination
// and returns how many received it. A subscriber whose send buffer is full
// is dropped.
func (hub *Hub) Publish(destination string, body []byte) int {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	delivered := 0
	for client, subID := range hub.topics[destination] {
		select {
		case client.send <- hub.messageFrame(destination, subID, body):
			delivered++
		default:
			hub.dropLocked(client)
		}
	}
	return delivered
}

// PublishTo sends body on destination to client alone, if it is subscribed.
func (hub *Hub) PublishTo(client *Client, destination string, body []byte) bool {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	subID, ok := hub.topics[destination][client]
	if !ok {
		return false
	}
	select {
	case client.send <- hub.messageFrame(destination, subID, body):
		return true
	default:
		hub.dropLocked(client)
		return false
	}
}

func (hub *Hub) messageFrame(destination, subID string, body []byte) []byte {
	id := strconv.FormatUint(hub.messageID.Add(1), 10)
	return stomp.Encode(stomp.Message(destination, subID, id, "application/json", body))
}

// Subscribers counts the sessions subscribed to destination.
func (hub *Hub) Subscribers(destination string) int {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	return len(hub.topics[destination])
}
