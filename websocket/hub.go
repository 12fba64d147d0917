package websocket

import (
	"encoding/json"
	"log"
	"sync"
)

// Hub maintains the set of active clients and their room subscriptions
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Rooms mapping (roomID -> clients)
	rooms map[uint]map[*Client]bool

	// Mutex for rooms map
	roomsMux sync.RWMutex

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client
}

// NewHub creates a new hub instance
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		rooms:      make(map[uint]map[*Client]bool),
	}
}

// Run starts the hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)

				// Remove client from all rooms. Closing the send channel
				// under the same lock keeps broadcastToRoom from writing
				// to a closed channel.
				h.roomsMux.Lock()
				for roomID, clients := range h.rooms {
					if _, ok := clients[client]; ok {
						delete(h.rooms[roomID], client)
						// Clean up empty rooms
						if len(h.rooms[roomID]) == 0 {
							delete(h.rooms, roomID)
						}
					}
				}
				close(client.send)
				h.roomsMux.Unlock()
			}
		}
	}
}

// joinRoom adds a client to a room
func (h *Hub) joinRoom(client *Client, roomID uint) {
	h.roomsMux.Lock()
	defer h.roomsMux.Unlock()

	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
}

// leaveRoom removes a client from a room
func (h *Hub) leaveRoom(client *Client, roomID uint) {
	h.roomsMux.Lock()
	defer h.roomsMux.Unlock()

	if _, ok := h.rooms[roomID]; ok {
		delete(h.rooms[roomID], client)
		// Clean up empty rooms
		if len(h.rooms[roomID]) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// broadcastToRoom sends a message to all clients subscribed to a room.
// A client whose send buffer is full is dropped from the room; its channel
// stays open and is closed once, by the unregister path, when its pumps
// shut the connection down.
func (h *Hub) broadcastToRoom(roomID uint, message []byte) {
	h.roomsMux.Lock()
	defer h.roomsMux.Unlock()

	clients, ok := h.rooms[roomID]
	if !ok {
		return
	}

	for client := range clients {
		select {
		case client.send <- message:
		default:
			delete(clients, client)
		}
	}

	if len(clients) == 0 {
		delete(h.rooms, roomID)
	}
}

// BroadcastToRoom pushes an event to all clients subscribed to a room.
// Event types used by the API: "message", "message_edited",
// "message_deleted", "room_deleted".
func BroadcastToRoom(roomID uint, msgType string, payload interface{}) {
	if hub == nil {
		return
	}

	msg := Message{
		Type:    msgType,
		Payload: payload,
	}

	msgBytes, err := json.Marshal(msg)
	if err != nil {
		log.Printf("error marshaling message: %v", err)
		return
	}

	hub.broadcastToRoom(roomID, msgBytes)
}

// Global hub instance
var hub *Hub

// InitHub initializes the global hub
func InitHub() {
	hub = NewHub()
	go hub.Run()
}
