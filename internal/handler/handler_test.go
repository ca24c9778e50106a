package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/ridewatch/onboarding/internal/domain"
	"github.com/ridewatch/onboarding/internal/infrastructure/redis"
	"github.com/ridewatch/onboarding/internal/repository"
	"github.com/ridewatch/onboarding/internal/security/auth"
	"github.com/ridewatch/onboarding/internal/security/middleware"
	"github.com/ridewatch/onboarding/internal/service"
	"github.com/ridewatch/onboarding/internal/testutil"
)

type stubMailer struct {
	mu    sync.Mutex
	codes map[string]string // email -> last code
}

func newStubMailer() *stubMailer {
	return &stubMailer{codes: map[string]string{}}
}

func (m *stubMailer) SendVerificationCode(_ context.Context, toEmail, _ string, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[toEmail] = code
	return nil
}

func (m *stubMailer) SendDriverInvitation(_ context.Context, _, _, _, _ string, _ time.Time) error {
	return nil
}

type fixture struct {
	mux     *http.ServeMux
	mailer  *stubMailer
	users   *testutil.MemoryUserRepo
	tokens  *auth.TokenManager
	invites domain.InvitationStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClientFromAddr(mr.Addr())

	users := testutil.NewMemoryUserRepo()
	companies := testutil.NewMemoryCompanyRepo()
	schools := testutil.NewMemorySchoolRepo()
	invites := repository.NewRedisInvitationStore(rc, nil)
	codes := repository.NewRedisVerificationStore(rc, nil)

	mailer := newStubMailer()
	tokens := auth.NewTokenManager("test-secret", "ridewatch")

	prov := service.NewProvisioningService(users, companies, schools, nil)
	reg := service.NewRegistrationService(users, codes, mailer, tokens, 15*time.Minute, time.Hour, nil)
	inv := service.NewInvitationService(invites, users, prov, mailer, tokens,
		"https://app.ridewatch.org", 7*24*time.Hour, time.Hour, nil)

	authHandler := NewAuthHandler(reg, nil)
	inviteHandler := NewInviteHandler(inv, nil)
	schoolHandler := NewSchoolHandler(prov, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/verify", authHandler.Verify)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/invites", withClaims(tokens, inviteHandler.Create))
	mux.HandleFunc("GET /api/invites", withClaims(tokens, inviteHandler.List))
	mux.HandleFunc("GET /api/invites/{token}", inviteHandler.Get)
	mux.HandleFunc("POST /api/invites/{token}/accept", inviteHandler.Accept)
	mux.HandleFunc("GET /api/schools", withClaims(tokens, schoolHandler.List))
	mux.HandleFunc("POST /api/schools", withClaims(tokens, schoolHandler.Create))
	mux.HandleFunc("GET /api/schools/{id}/drivers", withClaims(tokens, schoolHandler.ListDrivers))

	return &fixture{mux: mux, mailer: mailer, users: users, tokens: tokens, invites: invites}
}

// withClaims validates the bearer token the way the JWT middleware does,
// trimmed down to what these routes need.
func withClaims(tm *auth.TokenManager, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header != "" {
			if tok, err := auth.ExtractToken(header); err == nil {
				if claims, err := tm.ValidateToken(tok); err == nil {
					ctx := context.WithValue(r.Context(), middleware.ClaimsContextKey{}, claims)
					next(w, r.WithContext(ctx))
					return
				}
			}
		}
		next(w, r)
	}
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = strings.NewReader(string(b))
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
}

// registerAdmin walks the register/verify flow and returns a session token
func (f *fixture) registerAdmin(t *testing.T, email string) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": email, "displayName": "Ana", "password": "hunter2hunter2",
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("register returned %d: %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodPost, "/api/auth/verify", "", map[string]string{
		"email": email, "verificationCode": f.mailer.codes[email],
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("verify returned %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Token string `json:"token"`
	}
	decode(t, w, &resp)
	return resp.Token
}

func (f *fixture) createSchool(t *testing.T, token string) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/schools", token, map[string]string{"name": "Lincoln Elementary"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create school returned %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	decode(t, w, &resp)
	return resp.ID
}

func TestRegisterVerifyLoginFlow(t *testing.T) {
	f := newFixture(t)

	token := f.registerAdmin(t, "ana@example.com")
	if token == "" {
		t.Fatal("expected a session token")
	}

	w := f.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ana@example.com", "password": "hunter2hunter2",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ana@example.com", "password": "wrong-password",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad login returned %d, want 401", w.Code)
	}
}

func TestRegisterValidationMessages(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "ana@example.com", "displayName": "Ana", "password": " padded-password",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var resp struct {
		Error string `json:"error"`
	}
	decode(t, w, &resp)
	if resp.Error != "Password cannot start or end with spaces. Please retype it." {
		t.Fatalf("expected corrective whitespace message, got %q", resp.Error)
	}
}

func TestVerifyStatusCodes(t *testing.T) {
	f := newFixture(t)

	// Unknown email: no pending registration at all.
	w := f.do(t, http.MethodPost, "/api/auth/verify", "", map[string]string{
		"email": "nobody@example.com", "verificationCode": "123456",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown email, got %d", w.Code)
	}

	w = f.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "ana@example.com", "displayName": "Ana", "password": "hunter2hunter2",
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("register returned %d", w.Code)
	}

	wrong := "000000"
	if wrong == f.mailer.codes["ana@example.com"] {
		wrong = "000001"
	}
	w = f.do(t, http.MethodPost, "/api/auth/verify", "", map[string]string{
		"email": "ana@example.com", "verificationCode": wrong,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for wrong code, got %d", w.Code)
	}

	// Correct code works, replay conflicts.
	code := f.mailer.codes["ana@example.com"]
	w = f.do(t, http.MethodPost, "/api/auth/verify", "", map[string]string{
		"email": "ana@example.com", "verificationCode": code,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	w = f.do(t, http.MethodPost, "/api/auth/verify", "", map[string]string{
		"email": "ana@example.com", "verificationCode": code,
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on replay, got %d", w.Code)
	}
}

func TestInviteLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)
	token := f.registerAdmin(t, "ana@example.com")
	schoolID := f.createSchool(t, token)

	w := f.do(t, http.MethodPost, "/api/invites", token, map[string]string{
		"email": "dan@example.com", "school_id": schoolID,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create invite returned %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		Invitation struct {
			Token string `json:"token"`
		} `json:"invitation"`
		InvitationLink string `json:"invitationLink"`
	}
	decode(t, w, &created)
	if !strings.Contains(created.InvitationLink, "/accept-invite?token="+created.Invitation.Token) {
		t.Fatalf("unexpected invitation link %q", created.InvitationLink)
	}

	// Public lookup for the acceptance page.
	w = f.do(t, http.MethodGet, "/api/invites/"+created.Invitation.Token, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("invite lookup returned %d", w.Code)
	}

	w = f.do(t, http.MethodPost, "/api/invites/"+created.Invitation.Token+"/accept", "", map[string]string{
		"fullName": "Dan Driver", "password": "hunter2hunter2", "phone": "+1 555 000 1234",
		"license_no": "DL-9981", "plate_no": "BUS-42",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("accept returned %d: %s", w.Code, w.Body.String())
	}
	var accepted struct {
		Token string `json:"token"`
		User  struct {
			Role            string `json:"role"`
			CurrentSchoolID string `json:"current_school_id"`
		} `json:"user"`
	}
	decode(t, w, &accepted)
	if accepted.User.Role != domain.RoleDriver || accepted.User.CurrentSchoolID != schoolID {
		t.Fatalf("unexpected driver payload: %s", w.Body.String())
	}

	// Replay conflicts; unknown token 404s.
	w = f.do(t, http.MethodPost, "/api/invites/"+created.Invitation.Token+"/accept", "", map[string]string{
		"fullName": "Eve", "password": "hunter2hunter2",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on replay, got %d", w.Code)
	}
	w = f.do(t, http.MethodGet, "/api/invites/definitely-not-a-token", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown token, got %d", w.Code)
	}

	// The new driver shows up on the roster.
	w = f.do(t, http.MethodGet, "/api/schools/"+schoolID+"/drivers", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("roster returned %d: %s", w.Code, w.Body.String())
	}
	var roster struct {
		Drivers []struct {
			Email string `json:"email"`
		} `json:"drivers"`
	}
	decode(t, w, &roster)
	if len(roster.Drivers) != 1 || roster.Drivers[0].Email != "dan@example.com" {
		t.Fatalf("unexpected roster: %s", w.Body.String())
	}
}

func TestExpiredInviteReturnsGone(t *testing.T) {
	f := newFixture(t)
	token := f.registerAdmin(t, "ana@example.com")
	schoolID := f.createSchool(t, token)

	w := f.do(t, http.MethodPost, "/api/invites", token, map[string]string{
		"email": "dan@example.com", "school_id": schoolID,
	})
	var created struct {
		Invitation struct {
			Token string `json:"token"`
		} `json:"invitation"`
	}
	decode(t, w, &created)

	// Rewrite the stored record with an expiry in the past.
	ctx := context.Background()
	inv, err := f.invites.Get(ctx, created.Invitation.Token)
	if err != nil {
		t.Fatalf("failed to load invite: %v", err)
	}
	inv.ExpiresAt = time.Now().Add(-time.Hour)
	if err := f.invites.Create(ctx, inv); err != nil {
		t.Fatalf("failed to rewrite invite: %v", err)
	}

	w = f.do(t, http.MethodGet, "/api/invites/"+created.Invitation.Token, "", nil)
	if w.Code != http.StatusGone {
		t.Fatalf("expected 410 for expired invite, got %d", w.Code)
	}
	w = f.do(t, http.MethodPost, "/api/invites/"+created.Invitation.Token+"/accept", "", map[string]string{
		"fullName": "Dan", "password": "hunter2hunter2",
	})
	if w.Code != http.StatusGone {
		t.Fatalf("expected 410 for expired accept, got %d", w.Code)
	}
}

func TestInviteRequiresAuth(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/invites", "", map[string]string{
		"email": "dan@example.com", "school_id": "s1",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session, got %d", w.Code)
	}
}
