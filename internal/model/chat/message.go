package chat

import "time"

// Message is one chat line. It is immutable once created; the store keeps the durable copy
// and the router only sees it for the length of a broadcast.
type Message struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Text      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
