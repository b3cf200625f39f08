package util

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestJWTRoundTrip(t *testing.T) {
	want := Identity{UserID: 42, Role: "admin"}
	token, err := GenerateJWT(want, "secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	got, err := ParseJWT(token, "secret")
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if got != want {
		t.Errorf("identity = %+v, want %+v", got, want)
	}

	if _, err := ParseJWT(token, "other-secret"); err == nil {
		t.Error("expected signature error with a different secret")
	}
}

func TestParseJWTExpired(t *testing.T) {
	token, err := GenerateJWT(Identity{UserID: 1, Role: "user"}, "secret", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	if _, err := ParseJWT(token, "secret"); err == nil {
		t.Error("expected expired token to be rejected")
	}
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		if got := ExtractToken(r); got != tt.want {
			t.Errorf("ExtractToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword("hunter2", hash) {
		t.Error("expected password to match")
	}
	if CheckPassword("hunter3", hash) {
		t.Error("expected wrong password to be rejected")
	}
}
