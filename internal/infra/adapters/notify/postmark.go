package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mrz1836/postmark"
	"github.com/rs/zerolog"

	"checkout-confirmation/internal/domain"
	"checkout-confirmation/internal/domain/ports/adapter"
	"checkout-confirmation/internal/infra/metrics"
)

// Compile-time check
var _ adapter.Notifier = (*PostmarkNotifier)(nil)

const (
	activatedSubject = "Your subscription is active"
	activatedTag     = "subscription-activated"
)

// sender is the part of *postmark.Client the notifier uses.
type sender interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

type PostmarkConfig struct {
	ServerToken  string
	AccountToken string
	From         string
	SupportEmail string
	AppURL       string
}

type PostmarkNotifier struct {
	client sender
	cfg    PostmarkConfig
	log    *zerolog.Logger
}

func NewPostmarkNotifier(cfg PostmarkConfig, logger *zerolog.Logger) (*PostmarkNotifier, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("%w: postmark server token is required", domain.ErrInvalidArgument)
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("%w: postmark sender address is required", domain.ErrInvalidArgument)
	}
	return newPostmarkNotifier(postmark.NewClient(cfg.ServerToken, cfg.AccountToken), cfg, logger), nil
}

func newPostmarkNotifier(client sender, cfg PostmarkConfig, logger *zerolog.Logger) *PostmarkNotifier {
	nl := logger.With().Str("component", "PostmarkNotifier").Logger()
	return &PostmarkNotifier{client: client, cfg: cfg, log: &nl}
}

func (n *PostmarkNotifier) SendSubscriptionActivatedEmail(ctx context.Context, address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("%w: empty recipient", domain.ErrInvalidArgument)
	}

	resp, err := n.client.SendEmail(ctx, postmark.Email{
		From:       n.cfg.From,
		ReplyTo:    n.cfg.SupportEmail,
		To:         address,
		Subject:    activatedSubject,
		Tag:        activatedTag,
		HTMLBody:   n.htmlBody(),
		TextBody:   n.textBody(),
		TrackOpens: true,
		TrackLinks: "HtmlOnly",
	})
	if err != nil {
		metrics.IncActivationEmail("error")
		return errors.Join(domain.ErrOperationFailed, err)
	}
	if resp.ErrorCode > 0 {
		metrics.IncActivationEmail("error")
		return errors.Join(
			domain.ErrOperationFailed,
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message),
		)
	}
	metrics.IncActivationEmail("sent")
	n.log.Info().Str("message_id", resp.MessageID).Msg("activation email sent")
	return nil
}

func (n *PostmarkNotifier) textBody() string {
	var b strings.Builder
	b.WriteString("Thanks for subscribing. Your payment was confirmed and your subscription is now active.\n")
	if n.cfg.AppURL != "" {
		fmt.Fprintf(&b, "\nOpen your dashboard: %s\n", n.cfg.AppURL)
	}
	if n.cfg.SupportEmail != "" {
		fmt.Fprintf(&b, "\nQuestions? Reply to this email or write to %s.\n", n.cfg.SupportEmail)
	}
	return b.String()
}

func (n *PostmarkNotifier) htmlBody() string {
	var b strings.Builder
	b.WriteString("<p>Thanks for subscribing. Your payment was confirmed and your subscription is now active.</p>")
	if n.cfg.AppURL != "" {
		fmt.Fprintf(&b, `<p><a href="%s">Open your dashboard</a></p>`, n.cfg.AppURL)
	}
	if n.cfg.SupportEmail != "" {
		fmt.Fprintf(&b, "<p>Questions? Reply to this email or write to %s.</p>", n.cfg.SupportEmail)
	}
	return b.String()
}
