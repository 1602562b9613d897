package mail

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// ConsoleMailer logs messages instead of delivering them. Used in development
// and as the test double for the SendGrid backend.
type ConsoleMailer struct {
	logger *zap.Logger

	mu   sync.Mutex
	sent []Message
}

// NewConsoleMailer constructs a console mailer.
func NewConsoleMailer(logger *zap.Logger) *ConsoleMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleMailer{logger: logger}
}

// Send records the message and logs it.
func (m *ConsoleMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()

	m.logger.Info("email (console backend)",
		zap.String("to", msg.ToAddress),
		zap.String("subject", msg.Subject),
	)
	return nil
}

// Sent returns a copy of all recorded messages.
func (m *ConsoleMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}
