package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/campuscare/clinicdesk/internal/models"
)

const testSecret = "test-secret-32-characters-long!!"

func testPrincipal() models.Principal {
	return models.Principal{
		UserID: "user-123",
		Email:  "nurse@example.com",
		Name:   "Pat Nurse",
		Role:   models.RoleNurse,
	}
}

func TestIssueAndValidateSession(t *testing.T) {
	tm := NewTokenManager(testSecret, 1*time.Hour)

	token, sid, err := tm.IssueSession(testPrincipal())
	if err != nil {
		t.Fatalf("IssueSession() = %v, want nil", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if sid == "" {
		t.Fatal("expected non-empty session id")
	}

	claims, err := tm.ValidateSession(token)
	if err != nil {
		t.Fatalf("ValidateSession() = %v, want nil", err)
	}
	if claims.SessionID() != sid {
		t.Errorf("session id: got %q, want %q", claims.SessionID(), sid)
	}
	if claims.Principal.UserID != "user-123" {
		t.Errorf("principal user id: got %q, want %q", claims.Principal.UserID, "user-123")
	}
	if claims.Principal.Role != models.RoleNurse {
		t.Errorf("principal role: got %q, want %q", claims.Principal.Role, models.RoleNurse)
	}
	if claims.Subject != "user-123" {
		t.Errorf("subject: got %q, want %q", claims.Subject, "user-123")
	}
}

func TestValidateSession_UniqueSessionIDs(t *testing.T) {
	tm := NewTokenManager(testSecret, 1*time.Hour)

	_, sid1, err := tm.IssueSession(testPrincipal())
	if err != nil {
		t.Fatalf("IssueSession() = %v, want nil", err)
	}
	_, sid2, err := tm.IssueSession(testPrincipal())
	if err != nil {
		t.Fatalf("IssueSession() = %v, want nil", err)
	}
	if sid1 == sid2 {
		t.Error("expected distinct session ids across issuances")
	}
}

func TestValidateSession_WrongSecretRejected(t *testing.T) {
	tm := NewTokenManager(testSecret, 1*time.Hour)
	other := NewTokenManager("another-secret-32-characters-long", 1*time.Hour)

	token, _, err := tm.IssueSession(testPrincipal())
	if err != nil {
		t.Fatalf("IssueSession() = %v, want nil", err)
	}

	if _, err := other.ValidateSession(token); err != models.ErrUnauthorized {
		t.Errorf("ValidateSession() with wrong secret = %v, want ErrUnauthorized", err)
	}
}

func TestValidateSession_TamperedTokenRejected(t *testing.T) {
	tm := NewTokenManager(testSecret, 1*time.Hour)

	token, _, err := tm.IssueSession(testPrincipal())
	if err != nil {
		t.Fatalf("IssueSession() = %v, want nil", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("expected 3 token segments, got %d", len(parts))
	}
	tampered := parts[0] + "." + parts[1] + "." + "AAAA" + parts[2][4:]

	if _, err := tm.ValidateSession(tampered); err != models.ErrUnauthorized {
		t.Errorf("ValidateSession() with tampered token = %v, want ErrUnauthorized", err)
	}
}

func TestValidateSession_ExpiredTokenRejected(t *testing.T) {
	tm := NewTokenManager(testSecret, -1*time.Minute)

	token, _, err := tm.IssueSession(testPrincipal())
	if err != nil {
		t.Fatalf("IssueSession() = %v, want nil", err)
	}

	if _, err := tm.ValidateSession(token); err != models.ErrUnauthorized {
		t.Errorf("ValidateSession() with expired token = %v, want ErrUnauthorized", err)
	}
}

func TestValidateSession_GarbageRejected(t *testing.T) {
	tm := NewTokenManager(testSecret, 1*time.Hour)

	if _, err := tm.ValidateSession("not-a-token"); err != models.ErrUnauthorized {
		t.Errorf("ValidateSession() with garbage = %v, want ErrUnauthorized", err)
	}
}
