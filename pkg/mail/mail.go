package mail

import "context"

// Message is a single outbound email.
type Message struct {
	ToName    string
	ToAddress string
	Subject   string
	HTML      string
	Text      string
}

// Mailer delivers transactional email. Send is synchronous; callers that
// cannot tolerate provider latency should dispatch through the task queue.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}
