package auth

import (
	"testing"
	"time"

	"taskline/internal/policy"
)

func testIssuer() Issuer {
	return Issuer{
		Config: Config{
			AccessSecret:  "access-secret",
			RefreshSecret: "refresh-secret",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
		},
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	issuer := testIssuer()
	token, err := issuer.AccessToken("user-1", policy.RoleManager)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := issuer.VerifyAccess(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("subject %q", claims.Subject)
	}
	if claims.Role != "manager" {
		t.Fatalf("role %q", claims.Role)
	}
}

func TestAccessTokenExpiry(t *testing.T) {
	issuer := testIssuer()
	issued := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	issuer.Now = func() time.Time { return issued }
	token, err := issuer.AccessToken("user-1", policy.RoleEmployee)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	issuer.Now = func() time.Time { return issued.Add(16 * time.Minute) }
	if _, err := issuer.VerifyAccess(token); err == nil {
		t.Fatalf("expected expired token error")
	}
}

func TestRefreshSecretsAreSeparate(t *testing.T) {
	issuer := testIssuer()
	refresh, err := issuer.RefreshToken("user-1")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	// a refresh token must not pass as an access token
	if _, err := issuer.VerifyAccess(refresh); err == nil {
		t.Fatalf("refresh token accepted as access token")
	}
	sub, err := issuer.VerifyRefresh(refresh)
	if err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
	if sub != "user-1" {
		t.Fatalf("subject %q", sub)
	}
	access, _ := issuer.AccessToken("user-1", policy.RoleAdmin)
	if _, err := issuer.VerifyRefresh(access); err == nil {
		t.Fatalf("access token accepted as refresh token")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter22")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := CheckPassword(hash, "hunter22"); err != nil {
		t.Fatalf("check: %v", err)
	}
	if err := CheckPassword(hash, "wrong"); err == nil {
		t.Fatalf("expected mismatch")
	}
	if _, err := HashPassword("short"); err == nil {
		t.Fatalf("expected length error")
	}
}
