package notify

import (
	"context"
	"log/slog"
)

// Result is the provider specific outcome of a send.
type Result map[string]any

// Provider delivers messages for one channel.
type Provider interface {
	Send(ctx context.Context, m Message) (Result, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, m Message) (Result, error)

func (f ProviderFunc) Send(ctx context.Context, m Message) (Result, error) { return f(ctx, m) }

// EmailProvider sends through SES or any SMTP compatible relay.
type EmailProvider struct {
	Sender string
	Logger *slog.Logger
}

func (p *EmailProvider) Send(_ context.Context, m Message) (Result, error) {
	logger(p.Logger).Info("sending email", "recipient", m.Recipient, "sender", p.Sender)
	return Result{"provider": "ses", "recipient": m.Recipient, "subject": m.Subject}, nil
}

// SMSProvider sends through Twilio.
type SMSProvider struct {
	From   string
	Logger *slog.Logger
}

func (p *SMSProvider) Send(_ context.Context, m Message) (Result, error) {
	logger(p.Logger).Info("sending sms", "recipient", m.Recipient)
	return Result{"provider": "twilio", "recipient": m.Recipient, "from": p.From}, nil
}

// PushProvider sends to FCM or APNs. The target is metadata["device_token"]
// when present, else the recipient; the platform is metadata["platform"],
// else fcm when an FCM key is configured and apns otherwise.
type PushProvider struct {
	FCMKey  string
	APNSKey string
	Logger  *slog.Logger
}

func (p *PushProvider) Send(_ context.Context, m Message) (Result, error) {
	target := m.Meta("device_token")
	if target == "" {
		target = m.Recipient
	}
	platform := m.Meta("platform")
	if platform == "" {
		platform = "apns"
		if p.FCMKey != "" {
			platform = "fcm"
		}
	}
	logger(p.Logger).Info("sending push", "platform", platform, "target", target)
	return Result{"provider": platform, "target": target, "title": m.Subject}, nil
}

func logger(lg *slog.Logger) *slog.Logger {
	if lg == nil {
		return slog.Default()
	}
	return lg
}
