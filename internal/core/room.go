package core

// subscribers groups the live connections receiving events for one room.
// It mirrors durable membership; it never decides it.
type subscribers struct {
	roomID  string
	clients map[*Client]struct{}
}

func newSubscribers(roomID string) *subscribers {
	return &subscribers{
		roomID:  roomID,
		clients: make(map[*Client]struct{}),
	}
}

// add inserts a client. Returns true if newly added.
func (s *subscribers) add(c *Client) bool {
	if _, exists := s.clients[c]; exists {
		return false
	}
	s.clients[c] = struct{}{}
	return true
}

// remove deletes a client. Returns true if removed.
func (s *subscribers) remove(c *Client) bool {
	if _, exists := s.clients[c]; !exists {
		return false
	}
	delete(s.clients, c)
	return true
}

// snapshot copies the current set so delivery can happen outside the hub lock.
func (s *subscribers) snapshot() []*Client {
	out := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		out = append(out, c)
	}
	return out
}

func (s *subscribers) empty() bool {
	return len(s.clients) == 0
}
