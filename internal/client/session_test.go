package client

import (
	"errors"
	"path/filepath"
	"testing"

	"taskboard/internal/model"
)

func TestSession_GuardAnonymous(t *testing.T) {
	s := NewSession("")

	if err := s.Guard(ViewTasks); !errors.Is(err, ErrLoginRequired) {
		t.Fatalf("expected ErrLoginRequired, got %v", err)
	}
	if err := s.Guard(ViewAdmin); !errors.Is(err, ErrLoginRequired) {
		t.Fatalf("expected ErrLoginRequired, got %v", err)
	}
}

func TestSession_GuardRegularUser(t *testing.T) {
	s := NewSession("")
	s.Authenticate(Identity{ID: 7, Email: "jordan@example.com", Role: model.RoleUser}, "token")

	if err := s.Guard(ViewTasks); err != nil {
		t.Fatalf("user should reach tasks view: %v", err)
	}
	if err := s.Guard(ViewAdmin); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for admin view, got %v", err)
	}
}

func TestSession_GuardAdmin(t *testing.T) {
	s := NewSession("")
	s.Authenticate(Identity{ID: 1, Email: "admin@example.com", Role: model.RoleAdmin}, "token")

	if err := s.Guard(ViewTasks); err != nil {
		t.Fatalf("admin should reach tasks view: %v", err)
	}
	if err := s.Guard(ViewAdmin); err != nil {
		t.Fatalf("admin should reach admin view: %v", err)
	}
	if !s.IsAdmin() {
		t.Fatal("IsAdmin should report true")
	}
}

func TestSession_LogoutClearsIdentityAndToken(t *testing.T) {
	s := NewSession("")
	s.Authenticate(Identity{ID: 7, Role: model.RoleUser}, "token")

	s.Logout()

	if s.IsAuthenticated() {
		t.Fatal("session should be anonymous after logout")
	}
	if s.Identity() != nil {
		t.Fatal("identity should be cleared")
	}
	if s.Token() != "" {
		t.Fatal("token should be cleared")
	}
	if err := s.Guard(ViewTasks); !errors.Is(err, ErrLoginRequired) {
		t.Fatalf("expected ErrLoginRequired after logout, got %v", err)
	}
}

func TestSession_IdentityReturnsCopy(t *testing.T) {
	s := NewSession("")
	s.Authenticate(Identity{ID: 7, FullName: "Jordan Lee", Role: model.RoleUser}, "token")

	id := s.Identity()
	id.Role = model.RoleAdmin

	if s.IsAdmin() {
		t.Fatal("mutating the returned identity must not affect the session")
	}
}

func TestSession_RememberEmailRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remember.json")
	s := NewSession(path)

	if got := s.RememberedEmail(); got != "" {
		t.Fatalf("expected no remembered email, got %q", got)
	}

	if err := s.RememberEmail("jordan@example.com"); err != nil {
		t.Fatalf("remember email: %v", err)
	}
	if got := s.RememberedEmail(); got != "jordan@example.com" {
		t.Fatalf("expected remembered email, got %q", got)
	}

	// 登出不影响记住的邮箱
	s.Logout()
	if got := s.RememberedEmail(); got != "jordan@example.com" {
		t.Fatalf("remembered email should survive logout, got %q", got)
	}

	// 清除
	if err := s.RememberEmail(""); err != nil {
		t.Fatalf("clear remembered email: %v", err)
	}
	if got := s.RememberedEmail(); got != "" {
		t.Fatalf("expected cleared email, got %q", got)
	}
}
