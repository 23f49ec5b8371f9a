package realtime

import (
	"fmt"
	"sync"
)

// RoomName is the room every subscriber of an issue's chat joins.
func RoomName(issueID int64) string {
	return fmt.Sprintf("issue:%d", issueID)
}

// Hub is the room membership table of one gateway instance.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	clients map[*Client]map[string]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms:   make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]map[string]struct{}),
	}
}

// Register adds a connected client with no rooms.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		h.clients[c] = make(map[string]struct{})
	}
}

// Unregister removes the client from every room it joined.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) {
	for room := range h.clients[c] {
		members := h.rooms[room]
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(h.clients, c)
}

// Join subscribes c to room and reports whether c is still registered.
// Joining twice is a no-op.
func (h *Hub) Join(c *Client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	joined, ok := h.clients[c]
	if !ok {
		return false
	}
	joined[room] = struct{}{}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	return true
}

// Leave unsubscribes c from room. Leaving a room never joined is a no-op.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients[c], room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Rooms lists the rooms c currently belongs to.
func (h *Hub) Rooms(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rooms := make([]string, 0, len(h.clients[c]))
	for room := range h.clients[c] {
		rooms = append(rooms, room)
	}
	return rooms
}

// RoomSize counts the members of room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ClientCount counts registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues frame for every member of room and returns how many
// members accepted it. Members whose queue is full are closed and removed.
func (h *Hub) Broadcast(room string, frame []byte) (delivered int, dropped int) {
	h.mu.RLock()
	var slow []*Client
	for c := range h.rooms[room] {
		if c.enqueue(frame) {
			delivered++
			continue
		}
		slow = append(slow, c)
	}
	h.mu.RUnlock()

	if len(slow) == 0 {
		return delivered, 0
	}
	h.mu.Lock()
	for _, c := range slow {
		c.Close()
		h.removeLocked(c)
	}
	h.mu.Unlock()
	return delivered, len(slow)
}

// Close closes every client and empties the hub.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.Close()
	}
	h.rooms = make(map[string]map[*Client]struct{})
	h.clients = make(map[*Client]map[string]struct{})
}
