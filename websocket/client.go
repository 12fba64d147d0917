package websocket

import (
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/studygroup/backend/database"
	"github.com/studygroup/backend/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

// Client represents a connected websocket client
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	userID   uint
	rooms    map[uint]bool
	roomsMux sync.RWMutex
}

// Message represents a websocket message
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// readPump pumps control messages from the websocket connection. Clients
// only subscribe and unsubscribe here; messages are posted over the REST
// API so rate limiting and validation always apply.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("error unmarshaling message: %v", err)
			continue
		}

		switch msg.Type {
		case "join_room":
			if roomID, ok := msg.Payload.(string); ok {
				c.joinRoom(parseRoomID(roomID))
			}
		case "leave_room":
			if roomID, ok := msg.Payload.(string); ok {
				c.leaveRoom(parseRoomID(roomID))
			}
		}
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

// joinRoom subscribes the client to a room after verifying membership
func (c *Client) joinRoom(roomID uint) {
	if roomID == 0 {
		return
	}

	// Only participants receive a room's events
	var roomUser models.RoomUser
	if err := database.DB.Where("room_id = ? AND user_id = ?", roomID, c.userID).First(&roomUser).Error; err != nil {
		log.Printf("user %d attempted to subscribe to room %d without joining", c.userID, roomID)
		return
	}

	c.roomsMux.Lock()
	defer c.roomsMux.Unlock()
	c.rooms[roomID] = true
	c.hub.joinRoom(c, roomID)
}

// leaveRoom removes the client's subscription to a room
func (c *Client) leaveRoom(roomID uint) {
	c.roomsMux.Lock()
	defer c.roomsMux.Unlock()
	delete(c.rooms, roomID)
	c.hub.leaveRoom(c, roomID)
}

// parseRoomID converts a string room ID to uint
func parseRoomID(roomID string) uint {
	id, err := strconv.ParseUint(roomID, 10, 64)
	if err != nil {
		log.Printf("error parsing room ID: %v", err)
		return 0
	}
	return uint(id)
}
