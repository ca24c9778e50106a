package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ridewatch/onboarding/internal/security/audit"
)

func TestAuditMiddlewareRecordsAcceptToken(t *testing.T) {
	var buf bytes.Buffer
	auditLog := audit.NewLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := AuditMiddleware(auditLog)(next)

	tok := strings.Repeat("ab", 24)
	req := httptest.NewRequest(http.MethodPost, "/api/invites/"+tok+"/accept", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if !strings.Contains(out, "resource_id="+tok) {
		t.Fatalf("audit entry missing invitation token: %s", out)
	}
	if !strings.Contains(out, "action=accept") {
		t.Fatalf("audit entry missing action: %s", out)
	}
}
