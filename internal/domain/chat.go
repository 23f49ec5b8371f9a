package domain

import "time"

// Channel is the chat thread bound 1:1 to an issue.
type Channel struct {
	ID        int64
	IssueID   int64
	CreatedAt time.Time
}

// Message is an immutable chat entry. Author is filled in by the service layer.
type Message struct {
	ID        int64
	ChannelID int64
	AuthorID  int64
	Content   string
	CreatedAt time.Time
	Author    *Profile
}
