package test

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ridewatch/onboarding/internal/domain"
)

// TestOwnerSignupFlow verifies register -> verify -> login end to end over
// HTTP, including that no session exists before the code is redeemed.
func TestOwnerSignupFlow(t *testing.T) {
	h := NewTestServer(t)

	body, status := h.Post(t, "/api/auth/register", "", map[string]string{
		"email": "owner@example.com", "displayName": "Pat Owner", "password": "sturdy-password",
	})
	if status != http.StatusAccepted {
		t.Fatalf("register returned %d: %v", status, body)
	}

	// Login before verification must fail: no account exists yet.
	_, status = h.Post(t, "/api/auth/login", "", map[string]string{
		"email": "owner@example.com", "password": "sturdy-password",
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 before verification, got %d", status)
	}

	code := h.VerificationCodeFor(t, "owner@example.com")
	body, status = h.Post(t, "/api/auth/verify", "", map[string]string{
		"email": "owner@example.com", "verificationCode": code,
	})
	if status != http.StatusCreated {
		t.Fatalf("verify returned %d: %v", status, body)
	}
	user, _ := body["user"].(map[string]interface{})
	if user["role"] != domain.RoleBusCompany {
		t.Errorf("expected role %s, got %v", domain.RoleBusCompany, user["role"])
	}
	if user["emailVerified"] != true {
		t.Errorf("expected verified account, got %v", user["emailVerified"])
	}

	body, status = h.Post(t, "/api/auth/login", "", map[string]string{
		"email": "owner@example.com", "password": "sturdy-password",
	})
	if status != http.StatusOK {
		t.Fatalf("login returned %d: %v", status, body)
	}
	if tok, _ := body["token"].(string); tok == "" {
		t.Error("login returned no token")
	}
}

// TestInvitationLifecycle walks an invitation from creation through the
// emailed link to an accepted driver on the school roster.
func TestInvitationLifecycle(t *testing.T) {
	h := NewTestServer(t)
	session := h.RegisterAndVerify(t, "owner@example.com", "Pat Owner", "sturdy-password")

	school, status := h.Post(t, "/api/schools", session, map[string]string{
		"name": "Lincoln Elementary", "address": "12 Oak St",
	})
	if status != http.StatusCreated {
		t.Fatalf("create school returned %d: %v", status, school)
	}
	schoolID, _ := school["id"].(string)

	body, status := h.Post(t, "/api/invites", session, map[string]string{
		"email": "driver@example.com", "school_id": schoolID,
	})
	if status != http.StatusCreated {
		t.Fatalf("create invite returned %d: %v", status, body)
	}
	link, _ := body["invitationLink"].(string)
	if !strings.Contains(link, "/accept-invite?token=") {
		t.Errorf("unexpected invitation link %q", link)
	}

	token := h.InviteTokenFor(t, "driver@example.com")
	if !strings.HasSuffix(link, token) {
		t.Errorf("emailed token does not match returned link")
	}

	// The invite page is public: no session required to inspect it.
	body, status = h.Get(t, "/api/invites/"+token, "")
	if status != http.StatusOK {
		t.Fatalf("get invite returned %d: %v", status, body)
	}
	if body["status"] != domain.InviteStatusPending {
		t.Errorf("expected pending invite, got %v", body["status"])
	}

	body, status = h.Post(t, "/api/invites/"+token+"/accept", "", map[string]string{
		"fullName": "Dana Driver", "password": "driver-password", "phone": "555-0100",
		"license_no": "DL-9981", "plate_no": "BUS-42",
	})
	if status != http.StatusCreated {
		t.Fatalf("accept returned %d: %v", status, body)
	}
	driver, _ := body["user"].(map[string]interface{})
	if driver["role"] != domain.RoleDriver {
		t.Errorf("expected role %s, got %v", domain.RoleDriver, driver["role"])
	}
	if driver["current_school_id"] != schoolID {
		t.Errorf("expected current school %s, got %v", schoolID, driver["current_school_id"])
	}

	// Replaying a consumed link conflicts.
	_, status = h.Post(t, "/api/invites/"+token+"/accept", "", map[string]string{
		"fullName": "Someone Else", "password": "another-password",
	})
	if status != http.StatusConflict {
		t.Errorf("expected 409 on replay, got %d", status)
	}

	roster, status := h.Get(t, "/api/schools/"+schoolID+"/drivers", session)
	if status != http.StatusOK {
		t.Fatalf("roster returned %d: %v", status, roster)
	}
	drivers, _ := roster["drivers"].([]interface{})
	if len(drivers) != 1 {
		t.Fatalf("expected 1 driver on roster, got %d", len(drivers))
	}
}

// TestExpiredInvitationReportsGone rewrites a stored invitation into the
// past and checks the link reports expiry, not a generic failure.
func TestExpiredInvitationReportsGone(t *testing.T) {
	h := NewTestServer(t)
	session := h.RegisterAndVerify(t, "owner@example.com", "Pat Owner", "sturdy-password")

	school, _ := h.Post(t, "/api/schools", session, map[string]string{"name": "Lincoln Elementary"})
	schoolID, _ := school["id"].(string)

	_, status := h.Post(t, "/api/invites", session, map[string]string{
		"email": "late@example.com", "school_id": schoolID,
	})
	if status != http.StatusCreated {
		t.Fatalf("create invite returned %d", status)
	}

	token := h.InviteTokenFor(t, "late@example.com")
	inv, err := h.Invites.Get(t.Context(), token)
	if err != nil {
		t.Fatalf("get stored invite: %v", err)
	}
	inv.ExpiresAt = time.Now().Add(-time.Hour)
	if err := h.Invites.Create(t.Context(), inv); err != nil {
		t.Fatalf("rewrite invite: %v", err)
	}

	_, status = h.Get(t, "/api/invites/"+token, "")
	if status != http.StatusGone {
		t.Errorf("expected 410 for expired invite, got %d", status)
	}
	_, status = h.Post(t, "/api/invites/"+token+"/accept", "", map[string]string{
		"fullName": "Dana Driver", "password": "driver-password",
	})
	if status != http.StatusGone {
		t.Errorf("expected 410 accepting expired invite, got %d", status)
	}
}

// TestEmailEndpoints exercises the three dispatch endpoints against the
// fake provider.
func TestEmailEndpoints(t *testing.T) {
	h := NewTestServer(t)

	body, status := h.Post(t, "/api/send-verification-email", "", map[string]string{
		"email": "new@example.com", "displayName": "New User", "verificationToken": "482913",
	})
	if status != http.StatusOK {
		t.Fatalf("send-verification-email returned %d: %v", status, body)
	}
	mail, ok := h.Provider.LastTo("new@example.com")
	if !ok {
		t.Fatal("no verification email captured")
	}
	if !strings.Contains(mail.Text, "482913") {
		t.Errorf("verification email missing code: %q", mail.Text)
	}

	_, status = h.Post(t, "/api/send-driver-invitation", "", map[string]string{
		"email":          "driver@example.com",
		"schoolName":     "Lincoln Elementary",
		"inviterName":    "Pat Owner",
		"invitationLink": "https://app.ridewatch.test/accept-invite?token=abc",
	})
	if status != http.StatusOK {
		t.Fatalf("send-driver-invitation returned %d", status)
	}
	mail, ok = h.Provider.LastTo("driver@example.com")
	if !ok {
		t.Fatal("no invitation email captured")
	}
	if !strings.Contains(mail.Text, "Lincoln Elementary") {
		t.Errorf("invitation email missing school name: %q", mail.Text)
	}

	_, status = h.Post(t, "/api/send-contact-email", "", map[string]string{
		"name": "Visitor", "email": "visitor@example.com",
		"subject": "Pricing", "message": "How much per bus?",
	})
	if status != http.StatusOK {
		t.Fatalf("send-contact-email returned %d", status)
	}
	mail, ok = h.Provider.LastTo("support@ridewatch.org")
	if !ok {
		t.Fatal("no contact email captured")
	}
	if mail.ReplyTo != "visitor@example.com" {
		t.Errorf("expected reply-to visitor@example.com, got %q", mail.ReplyTo)
	}
}

// TestEmailUnconfiguredDegradesCleanly verifies a missing provider key
// yields a 500 with a stable message and the server keeps answering.
func TestEmailUnconfiguredDegradesCleanly(t *testing.T) {
	h := NewTestServerWithoutEmailKey(t)

	body, status := h.Post(t, "/api/send-verification-email", "", map[string]string{
		"email": "new@example.com", "displayName": "New User", "verificationToken": "482913",
	})
	if status != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %v", status, body)
	}
	if body["error"] != "Email service not configured" {
		t.Errorf("unexpected error message: %v", body["error"])
	}

	// Registration depends on email delivery, so it degrades too.
	_, status = h.Post(t, "/api/auth/register", "", map[string]string{
		"email": "owner@example.com", "displayName": "Pat", "password": "sturdy-password",
	})
	if status != http.StatusInternalServerError {
		t.Errorf("expected 500 registering without email, got %d", status)
	}

	// The process survives: unrelated endpoints still respond.
	if _, status := h.Get(t, "/metrics", ""); status != http.StatusOK {
		t.Errorf("metrics returned %d after email failures", status)
	}

	if h.Provider.Count() != 0 {
		t.Errorf("provider should never be called without an API key, got %d sends", h.Provider.Count())
	}
}

// TestAuthRequired verifies protected endpoints reject anonymous requests.
func TestAuthRequired(t *testing.T) {
	h := NewTestServer(t)

	if _, status := h.Post(t, "/api/invites", "", map[string]string{
		"email": "driver@example.com", "school_id": "s1",
	}); status != http.StatusUnauthorized {
		t.Errorf("expected 401 creating invite anonymously, got %d", status)
	}

	if _, status := h.Get(t, "/api/schools", ""); status != http.StatusUnauthorized {
		t.Errorf("expected 401 listing schools anonymously, got %d", status)
	}

	if _, status := h.Get(t, "/api/company", "not-a-real-token"); status != http.StatusUnauthorized {
		t.Errorf("expected 401 with garbage token, got %d", status)
	}
}

// TestMetricsEndpoint verifies the Prometheus endpoint serves after traffic.
func TestMetricsEndpoint(t *testing.T) {
	h := NewTestServer(t)
	h.RegisterAndVerify(t, "owner@example.com", "Pat Owner", "sturdy-password")

	resp, err := http.Get(h.URL() + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics returned %d", resp.StatusCode)
	}
	data, _ := io.ReadAll(resp.Body)
	if len(data) == 0 {
		t.Error("expected metrics output, got empty body")
	}
}
