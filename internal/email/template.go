package email

import (
	"fmt"
	"strings"
	"time"
)

// escaper neutralizes HTML metacharacters before user-supplied text is
// interpolated into a message body. Ampersand must be replaced first so
// already-produced entities are not double-escaped.
var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#039;",
)

// Escape sanitizes a string for inclusion in an HTML email body
func Escape(s string) string {
	return escaper.Replace(s)
}

// BuildVerificationEmail renders the account verification message carrying
// the six digit code the recipient types back into the app.
func BuildVerificationEmail(displayName, code string) (subject, text, html string) {
	name := displayName
	if name == "" {
		name = "there"
	}

	subject = "Verify your RideWatch account"
	text = fmt.Sprintf(
		"Hi %s,\n\nYour RideWatch verification code is: %s\n\nThe code expires in 15 minutes. If you did not create a RideWatch account, you can ignore this email.\n",
		name, code,
	)
	html = fmt.Sprintf(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #1a73e8;">Verify your RideWatch account</h2>
  <p>Hi %s,</p>
  <p>Your verification code is:</p>
  <p style="font-size: 28px; font-weight: bold; letter-spacing: 4px;">%s</p>
  <p>The code expires in 15 minutes. If you did not create a RideWatch account, you can ignore this email.</p>
</div>`, Escape(name), Escape(code))

	return subject, text, html
}

// BuildInvitationEmail renders the driver invitation message. expiresAt may
// be zero when the sender did not include an expiry, in which case the copy
// falls back to the default seven day window.
func BuildInvitationEmail(schoolName, inviterName, invitationLink string, expiresAt time.Time) (subject, text, html string) {
	expiry := "in 7 days"
	if !expiresAt.IsZero() {
		expiry = "on " + expiresAt.Format("January 2, 2006")
	}

	subject = fmt.Sprintf("You're invited to drive for %s on RideWatch", schoolName)
	text = fmt.Sprintf(
		"%s has invited you to join %s as a driver on RideWatch.\n\nAccept the invitation here: %s\n\nThis invitation expires %s.\n",
		inviterName, schoolName, invitationLink, expiry,
	)
	html = fmt.Sprintf(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #1a73e8;">Driver invitation</h2>
  <p><strong>%s</strong> has invited you to join <strong>%s</strong> as a driver on RideWatch.</p>
  <p style="margin: 24px 0;">
    <a href="%s" style="background: #1a73e8; color: #fff; padding: 12px 24px; border-radius: 4px; text-decoration: none;">Accept invitation</a>
  </p>
  <p>Or paste this link into your browser: %s</p>
  <p style="color: #666;">This invitation expires %s.</p>
</div>`, Escape(inviterName), Escape(schoolName), Escape(invitationLink), Escape(invitationLink), expiry)

	return subject, text, html
}

// BuildContactEmail renders a contact-form submission for the support inbox
func BuildContactEmail(name, fromEmail, phone, topic, message string) (subject, text, html string) {
	subject = fmt.Sprintf("Contact form: %s", topic)

	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\nEmail: %s\n", name, fromEmail)
	if phone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", phone)
	}
	fmt.Fprintf(&b, "Subject: %s\n\n%s\n", topic, message)
	text = b.String()

	phoneRow := ""
	if phone != "" {
		phoneRow = fmt.Sprintf("<p><strong>Phone:</strong> %s</p>\n  ", Escape(phone))
	}
	html = fmt.Sprintf(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Contact form submission</h2>
  <p><strong>Name:</strong> %s</p>
  <p><strong>Email:</strong> %s</p>
  %s<p><strong>Subject:</strong> %s</p>
  <p style="white-space: pre-wrap;">%s</p>
</div>`, Escape(name), Escape(fromEmail), phoneRow, Escape(topic), Escape(message))

	return subject, text, html
}
