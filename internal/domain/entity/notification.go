package entity

import "time"

// Notification is an in-app message addressed to one user
type Notification struct {
	ID         int64      `json:"id"`
	UserID     string     `json:"user_id"`
	Type       string     `json:"type"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	EntityType string     `json:"entity_type,omitempty"`
	EntityID   string     `json:"entity_id,omitempty"`
	Urgent     bool       `json:"urgent"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsRead returns true once the user opened the notification
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}
