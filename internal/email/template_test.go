package email

import (
	"strings"
	"testing"
	"time"
)

func TestEscapeNeutralizesMarkup(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`<script>alert(1)</script>`, "&lt;script&gt;alert(1)&lt;/script&gt;"},
		{`Tom & "Jerry"`, "Tom &amp; &quot;Jerry&quot;"},
		{`O'Brien`, "O&#039;Brien"},
		{"plain text", "plain text"},
		{"&amp;", "&amp;amp;"},
	}

	for _, tc := range cases {
		if got := Escape(tc.in); got != tc.want {
			t.Errorf("Escape(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestInvitationEmailEscapesFields(t *testing.T) {
	_, _, html := BuildInvitationEmail(
		`<script>alert(1)</script>`,
		`Bob & Carol`,
		"https://app.ridewatch.org/accept-invite?token=abc",
		time.Time{},
	)

	if strings.Contains(html, "<script>") {
		t.Fatalf("school name was not escaped: %s", html)
	}
	if !strings.Contains(html, "&lt;script&gt;alert(1)&lt;/script&gt;") {
		t.Fatalf("expected escaped school name in body")
	}
	if !strings.Contains(html, "Bob &amp; Carol") {
		t.Fatalf("expected escaped inviter name in body")
	}
}

func TestInvitationEmailExpiryCopy(t *testing.T) {
	_, text, _ := BuildInvitationEmail("Lincoln Elementary", "Ana", "https://x/accept", time.Time{})
	if !strings.Contains(text, "expires in 7 days") {
		t.Fatalf("expected default expiry copy, got: %s", text)
	}

	when := time.Date(2026, time.September, 6, 12, 0, 0, 0, time.UTC)
	_, text, _ = BuildInvitationEmail("Lincoln Elementary", "Ana", "https://x/accept", when)
	if !strings.Contains(text, "expires on September 6, 2026") {
		t.Fatalf("expected dated expiry copy, got: %s", text)
	}
}

func TestVerificationEmailCarriesCode(t *testing.T) {
	subject, text, html := BuildVerificationEmail("Ana", "123456")
	if subject == "" {
		t.Fatal("expected a subject")
	}
	if !strings.Contains(text, "123456") || !strings.Contains(html, "123456") {
		t.Fatal("expected code in both bodies")
	}
}

func TestVerificationEmailFallbackName(t *testing.T) {
	_, text, _ := BuildVerificationEmail("", "123456")
	if !strings.Contains(text, "Hi there,") {
		t.Fatalf("expected fallback greeting, got: %s", text)
	}
}

func TestContactEmailOmitsEmptyPhone(t *testing.T) {
	_, text, html := BuildContactEmail("Ana", "ana@example.com", "", "Billing", "Hello")
	if strings.Contains(text, "Phone:") || strings.Contains(html, "Phone:") {
		t.Fatal("expected no phone row when phone is empty")
	}

	_, text, _ = BuildContactEmail("Ana", "ana@example.com", "+1 555 000 1234", "Billing", "Hello")
	if !strings.Contains(text, "Phone: +1 555 000 1234") {
		t.Fatalf("expected phone row, got: %s", text)
	}
}
