package services

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/resend/resend-go/v2"

	"github.com/openplay/sportmatch/internal/logging"
)

type EmailServiceInterface interface {
	SendVerificationCode(ctx context.Context, to, username, code string) error
}

type EmailConfig struct {
	Provider     string
	FromAddress  string
	FromName     string
	ResendAPIKey string
}

type EmailService struct {
	cfg    EmailConfig
	resend *resend.Client
}

func NewEmailService(cfg EmailConfig) (*EmailService, error) {
	s := &EmailService{cfg: cfg}

	switch cfg.Provider {
	case "resend":
		if strings.TrimSpace(cfg.ResendAPIKey) == "" {
			return nil, fmt.Errorf("resend api key is required for the resend email provider")
		}
		s.resend = resend.NewClient(cfg.ResendAPIKey)
	case "console", "":
		// Development fallback: codes go to the log instead of an inbox.
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}

	return s, nil
}

func (s *EmailService) SendVerificationCode(ctx context.Context, to, username, code string) error {
	subject, htmlBody, textBody := buildVerificationEmail(username, code)

	if s.resend == nil {
		logging.Info("verification code issued", map[string]interface{}{
			"to":   to,
			"code": code,
		})
		return nil
	}

	_, err := s.resend.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.FromAddress),
		To:      []string{to},
		Subject: subject,
		Html:    htmlBody,
		Text:    textBody,
	})
	if err != nil {
		return fmt.Errorf("sending verification email: %w", err)
	}
	return nil
}

func buildVerificationEmail(username, code string) (string, string, string) {
	subject := "Your SportMatch verification code"
	if username == "" {
		username = "there"
	}
	safeName := templateEscape(username)
	safeCode := templateEscape(code)

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 640px; margin: 0 auto; padding: 24px;">
  <h1 style="color: #333; font-size: 24px;">SportMatch</h1>
  <p style="font-size: 16px;">Hi %s,</p>
  <p style="color: #666;">Enter this code to verify your email address:</p>
  <p style="font-size: 32px; letter-spacing: 8px; font-weight: bold; color: #0f6f62;">%s</p>
  <p style="color: #666; font-size: 14px;">The code expires in 15 minutes. If you did not create an account, you can ignore this email.</p>
</body>
</html>`,
		safeName,
		safeCode,
	)

	textBody := fmt.Sprintf(`Hi %s,

Your SportMatch verification code is: %s

The code expires in 15 minutes. If you did not create an account, you can ignore this email.`,
		username,
		code,
	)

	return subject, htmlBody, textBody
}

func templateEscape(value string) string {
	return html.EscapeString(value)
}
