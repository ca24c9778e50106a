package email

import (
	"context"
	"log/slog"
	"time"

	"github.com/ridewatch/onboarding/internal/domain"
)

// Service composes templates and a Sender into the three outbound flows the
// API exposes. All input validation happens here so a malformed request never
// reaches the provider.
type Service struct {
	sender       Sender
	contactEmail string
	logger       *slog.Logger
}

// NewService creates an email service. contactEmail is the support inbox
// that receives contact-form submissions.
func NewService(sender Sender, contactEmail string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		sender:       sender,
		contactEmail: contactEmail,
		logger:       logger,
	}
}

// SendVerificationCode emails a six digit verification code to a registrant
func (s *Service) SendVerificationCode(ctx context.Context, toEmail, displayName, code string) error {
	if !domain.ValidEmail(toEmail) {
		return domain.Invalid("A valid email address is required.")
	}
	if code == "" {
		return domain.Invalid("A verification code is required.")
	}

	subject, text, html := BuildVerificationEmail(displayName, code)
	return s.sender.Send(ctx, &Message{
		ToEmail: toEmail,
		Subject: subject,
		Text:    text,
		HTML:    html,
	})
}

// SendDriverInvitation emails an invitation link to a prospective driver.
// expiresAt may be zero when the caller did not supply one.
func (s *Service) SendDriverInvitation(ctx context.Context, toEmail, schoolName, inviterName, invitationLink string, expiresAt time.Time) error {
	if !domain.ValidEmail(toEmail) {
		return domain.Invalid("A valid email address is required.")
	}
	if schoolName == "" || inviterName == "" || invitationLink == "" {
		return domain.Invalid("School name, inviter name and invitation link are required.")
	}

	subject, text, html := BuildInvitationEmail(schoolName, inviterName, invitationLink, expiresAt)
	return s.sender.Send(ctx, &Message{
		ToEmail: toEmail,
		Subject: subject,
		Text:    text,
		HTML:    html,
	})
}

// SendContactMessage forwards a contact-form submission to the support
// inbox, with reply-to set to the submitter.
func (s *Service) SendContactMessage(ctx context.Context, name, fromEmail, phone, topic, message string) error {
	if name == "" || topic == "" || message == "" {
		return domain.Invalid("Name, subject and message are required.")
	}
	if !domain.ValidEmail(fromEmail) {
		return domain.Invalid("A valid email address is required.")
	}
	if phone != "" && !domain.ValidPhone(phone) {
		return domain.Invalid("The phone number looks invalid.")
	}

	subject, text, html := BuildContactEmail(name, fromEmail, phone, topic, message)
	return s.sender.Send(ctx, &Message{
		ToEmail: s.contactEmail,
		Subject: subject,
		Text:    text,
		HTML:    html,
		ReplyTo: fromEmail,
	})
}
