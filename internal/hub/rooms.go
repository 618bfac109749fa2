package hub

import (
	"sync"
)

// Router keeps which connections are subscribed to which channel rooms.
// It does no authorization; callers check access before Join.
type Router struct {
	mutex  sync.RWMutex
	rooms  map[int64]map[string]struct{}
	joined map[string]map[int64]struct{}
}

func NewRouter() *Router {
	return &Router{
		rooms:  make(map[int64]map[string]struct{}),
		joined: make(map[string]map[int64]struct{}),
	}
}

func (r *Router) Join(connID string, channelID int64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	room, ok := r.rooms[channelID]
	if !ok {
		room = make(map[string]struct{})
		r.rooms[channelID] = room
	}
	room[connID] = struct{}{}

	channels, ok := r.joined[connID]
	if !ok {
		channels = make(map[int64]struct{})
		r.joined[connID] = channels
	}
	channels[channelID] = struct{}{}
}

func (r *Router) Leave(connID string, channelID int64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.leave(connID, channelID)
}

func (r *Router) leave(connID string, channelID int64) {
	if room, ok := r.rooms[channelID]; ok {
		delete(room, connID)
		// delete room from map if no connection is subscribed to it
		if len(room) == 0 {
			delete(r.rooms, channelID)
		}
	}

	if channels, ok := r.joined[connID]; ok {
		delete(channels, channelID)
		if len(channels) == 0 {
			delete(r.joined, connID)
		}
	}
}

// LeaveAll drops every subscription of connID and returns the rooms it was in.
func (r *Router) LeaveAll(connID string) []int64 {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	channels := r.joined[connID]
	left := make([]int64, 0, len(channels))
	for channelID := range channels {
		left = append(left, channelID)
	}
	for _, channelID := range left {
		r.leave(connID, channelID)
	}
	return left
}

func (r *Router) SubscribersOf(channelID int64) []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	room := r.rooms[channelID]
	subscribers := make([]string, 0, len(room))
	for connID := range room {
		subscribers = append(subscribers, connID)
	}
	return subscribers
}

func (r *Router) IsSubscribed(connID string, channelID int64) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	_, ok := r.rooms[channelID][connID]
	return ok
}

// DropRoom removes a room and all its subscriptions, used when the channel is deleted.
func (r *Router) DropRoom(channelID int64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for connID := range r.rooms[channelID] {
		if channels, ok := r.joined[connID]; ok {
			delete(channels, channelID)
			if len(channels) == 0 {
				delete(r.joined, connID)
			}
		}
	}
	delete(r.rooms, channelID)
}
