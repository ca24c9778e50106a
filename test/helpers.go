package test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ridewatch/onboarding/internal/email"
	"github.com/ridewatch/onboarding/internal/handler"
	"github.com/ridewatch/onboarding/internal/infrastructure/logger"
	redisinfra "github.com/ridewatch/onboarding/internal/infrastructure/redis"
	"github.com/ridewatch/onboarding/internal/repository"
	"github.com/ridewatch/onboarding/internal/security/auth"
	"github.com/ridewatch/onboarding/internal/security/middleware"
	"github.com/ridewatch/onboarding/internal/service"
	"github.com/ridewatch/onboarding/internal/testutil"
)

// SentMail is one message captured by the fake email provider.
type SentMail struct {
	To      string
	Subject string
	Text    string
	ReplyTo string
}

// FakeProvider stands in for the SendGrid API and records every message.
type FakeProvider struct {
	Server *httptest.Server
	mu     sync.Mutex
	mails  []SentMail
}

func NewFakeProvider(t *testing.T) *FakeProvider {
	p := &FakeProvider{}
	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Personalizations []struct {
				To []struct {
					Email string `json:"email"`
				} `json:"to"`
			} `json:"personalizations"`
			ReplyTo *struct {
				Email string `json:"email"`
			} `json:"reply_to"`
			Subject string `json:"subject"`
			Content []struct {
				Type  string `json:"type"`
				Value string `json:"value"`
			} `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		mail := SentMail{Subject: payload.Subject}
		if len(payload.Personalizations) > 0 && len(payload.Personalizations[0].To) > 0 {
			mail.To = payload.Personalizations[0].To[0].Email
		}
		if payload.ReplyTo != nil {
			mail.ReplyTo = payload.ReplyTo.Email
		}
		for _, c := range payload.Content {
			if c.Type == "text/plain" {
				mail.Text = c.Value
			}
		}

		p.mu.Lock()
		p.mails = append(p.mails, mail)
		p.mu.Unlock()

		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(p.Server.Close)
	return p
}

// LastTo returns the most recent message sent to the given address.
func (p *FakeProvider) LastTo(addr string) (SentMail, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.mails) - 1; i >= 0; i-- {
		if p.mails[i].To == addr {
			return p.mails[i], true
		}
	}
	return SentMail{}, false
}

// Count returns how many messages the provider accepted.
func (p *FakeProvider) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.mails)
}

// TestServerHelper wires the full HTTP stack against in-memory persistence,
// a miniredis instance, and a fake email provider.
type TestServerHelper struct {
	Server   *httptest.Server
	Provider *FakeProvider
	Logger   *slog.Logger

	Users   *testutil.MemoryUserRepo
	Invites *repository.RedisInvitationStore
	Codes   *repository.RedisVerificationStore
}

func NewTestServer(t *testing.T) *TestServerHelper {
	return newTestServer(t, "SG.test-key")
}

// NewTestServerWithoutEmailKey builds the same stack with no provider API
// key, for exercising the degraded email path.
func NewTestServerWithoutEmailKey(t *testing.T) *TestServerHelper {
	return newTestServer(t, "")
}

func newTestServer(t *testing.T, apiKey string) *TestServerHelper {
	log := logger.NewLogger("debug")

	mr := miniredis.RunT(t)
	rc := redisinfra.NewClientFromAddr(mr.Addr())

	users := testutil.NewMemoryUserRepo()
	companies := testutil.NewMemoryCompanyRepo()
	schools := testutil.NewMemorySchoolRepo()
	invites := repository.NewRedisInvitationStore(rc, log)
	codes := repository.NewRedisVerificationStore(rc, log)

	provider := NewFakeProvider(t)
	sender := email.NewSendGridClient(apiKey, "noreply@ridewatch.org", "RideWatch", log)
	sender.SetBaseURL(provider.Server.URL)
	emails := email.NewService(sender, "support@ridewatch.org", log)

	tokens := auth.NewTokenManager("integration-test-secret", "ridewatch")
	prov := service.NewProvisioningService(users, companies, schools, log)
	registration := service.NewRegistrationService(users, codes, emails, tokens, 15*time.Minute, time.Hour, log)
	invitations := service.NewInvitationService(
		invites, users, prov, emails, tokens, "https://app.ridewatch.test", 7*24*time.Hour, time.Hour, log)

	authHandler := handler.NewAuthHandler(registration, log)
	inviteHandler := handler.NewInviteHandler(invitations, log)
	schoolHandler := handler.NewSchoolHandler(prov, log)
	emailHandler := handler.NewEmailHandler(emails, log)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/verify", authHandler.Verify)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/invites", inviteHandler.Create)
	mux.HandleFunc("GET /api/invites", inviteHandler.List)
	mux.HandleFunc("GET /api/invites/{token}", inviteHandler.Get)
	mux.HandleFunc("POST /api/invites/{token}/accept", inviteHandler.Accept)
	mux.HandleFunc("GET /api/company", schoolHandler.GetCompany)
	mux.HandleFunc("GET /api/schools", schoolHandler.List)
	mux.HandleFunc("POST /api/schools", schoolHandler.Create)
	mux.HandleFunc("GET /api/schools/{id}/drivers", schoolHandler.ListDrivers)
	mux.HandleFunc("POST /api/send-verification-email", emailHandler.SendVerification)
	mux.HandleFunc("POST /api/send-driver-invitation", emailHandler.SendDriverInvitation)
	mux.HandleFunc("POST /api/send-contact-email", emailHandler.SendContact)
	mux.Handle("/metrics", promhttp.Handler())

	root := middleware.ValidateJSONContentType(log)(
		middleware.JWTMiddleware(tokens, log)(mux),
	)

	server := httptest.NewServer(root)
	t.Cleanup(server.Close)

	return &TestServerHelper{
		Server:   server,
		Provider: provider,
		Logger:   log,
		Users:    users,
		Invites:  invites,
		Codes:    codes,
	}
}

func (h *TestServerHelper) URL() string {
	return h.Server.URL
}

// Post sends a JSON POST, with a bearer token when one is given, and decodes
// the response body.
func (h *TestServerHelper) Post(t *testing.T, path, token string, payload interface{}) (map[string]interface{}, int) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	req, err := http.NewRequest("POST", h.URL()+path, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return h.do(t, req)
}

// Get sends a GET, with a bearer token when one is given.
func (h *TestServerHelper) Get(t *testing.T, path, token string) (map[string]interface{}, int) {
	t.Helper()
	req, err := http.NewRequest("GET", h.URL()+path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return h.do(t, req)
}

func (h *TestServerHelper) do(t *testing.T, req *http.Request) (map[string]interface{}, int) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&body)
	return body, resp.StatusCode
}

var (
	codePattern       = regexp.MustCompile(`\b[0-9]{6}\b`)
	inviteLinkPattern = regexp.MustCompile(`token=([0-9a-f]{48})`)
)

// VerificationCodeFor pulls the 6-digit code out of the last email sent to
// the address.
func (h *TestServerHelper) VerificationCodeFor(t *testing.T, addr string) string {
	t.Helper()
	mail, ok := h.Provider.LastTo(addr)
	if !ok {
		t.Fatalf("no email captured for %s", addr)
	}
	code := codePattern.FindString(mail.Text)
	if code == "" {
		t.Fatalf("no verification code in email to %s: %q", addr, mail.Text)
	}
	return code
}

// InviteTokenFor pulls the invitation token out of the last email sent to
// the address.
func (h *TestServerHelper) InviteTokenFor(t *testing.T, addr string) string {
	t.Helper()
	mail, ok := h.Provider.LastTo(addr)
	if !ok {
		t.Fatalf("no email captured for %s", addr)
	}
	m := inviteLinkPattern.FindStringSubmatch(mail.Text)
	if m == nil {
		t.Fatalf("no invitation link in email to %s: %q", addr, mail.Text)
	}
	return m[1]
}

// RegisterAndVerify walks a bus company account through signup and returns
// its session token.
func (h *TestServerHelper) RegisterAndVerify(t *testing.T, addr, name, password string) string {
	t.Helper()
	_, status := h.Post(t, "/api/auth/register", "", map[string]string{
		"email": addr, "displayName": name, "password": password,
	})
	if status != http.StatusAccepted {
		t.Fatalf("register returned %d", status)
	}

	body, status := h.Post(t, "/api/auth/verify", "", map[string]string{
		"email": addr, "verificationCode": h.VerificationCodeFor(t, addr),
	})
	if status != http.StatusCreated {
		t.Fatalf("verify returned %d: %v", status, body)
	}

	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("verify returned no session token")
	}
	return token
}
