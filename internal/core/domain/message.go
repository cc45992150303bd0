package domain

import "time"

// MailMessage is the stored summary of one email as exposed by the message store.
// InternalDate is milliseconds since epoch, as delivered by the mailbox provider.
type MailMessage struct {
	ID           string   `json:"id"`
	Subject      string   `json:"subject"`
	From         string   `json:"from"`
	Snippet      string   `json:"snippet"`
	InternalDate int64    `json:"internal_date"`
	Labels       []string `json:"labels,omitempty"`
}

// ReceivedAt converts the provider millisecond timestamp; zero means unknown.
func (m MailMessage) ReceivedAt() time.Time {
	if m.InternalDate <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(m.InternalDate).UTC()
}

// SenderCount is one row of a top-senders aggregate.
type SenderCount struct {
	Sender string `json:"sender"`
	Count  int    `json:"count"`
}
