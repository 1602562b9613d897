package mail

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/classcover/classcover-api/pkg/config"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendgridMailer delivers mail through the SendGrid v3 API.
type SendgridMailer struct {
	key    string
	from   *sgmail.Email
	logger *zap.Logger
}

// NewSendgridMailer constructs a SendGrid-backed mailer.
func NewSendgridMailer(cfg config.MailConfig, logger *zap.Logger) (*SendgridMailer, error) {
	if cfg.SendgridKey == "" {
		return nil, fmt.Errorf("sendgrid api key missing")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SendgridMailer{
		key:    cfg.SendgridKey,
		from:   sgmail.NewEmail(cfg.FromName, cfg.FromAddress),
		logger: logger,
	}, nil
}

// Send delivers a single message, returning an error on provider rejection.
func (m *SendgridMailer) Send(ctx context.Context, msg Message) error {
	if msg.ToAddress == "" {
		return fmt.Errorf("message has no recipient")
	}

	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.ToAddress))

	v3 := sgmail.NewV3Mail()
	v3.SetFrom(m.from)
	v3.AddPersonalizations(p)
	text := msg.Text
	if text == "" {
		text = msg.Subject
	}
	v3.AddContent(
		sgmail.NewContent("text/plain", text),
		sgmail.NewContent("text/html", msg.HTML),
	)

	req := sendgrid.GetRequest(m.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(v3)

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		m.logger.Warn("sendgrid rejected message",
			zap.Int("status", res.StatusCode),
			zap.String("body", res.Body),
		)
		return fmt.Errorf("sendgrid status %d", res.StatusCode)
	}
	return nil
}
