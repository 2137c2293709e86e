package actor

import (
	"errors"
	"testing"
	"time"
)

func withSecret(t *testing.T, value string) {
	t.Helper()
	ResetSecretForTests()
	t.Setenv("CASESHARE_AUTH_SECRET", value)
	t.Cleanup(ResetSecretForTests)
}

func TestTokenRoundTrip(t *testing.T) {
	withSecret(t, "unit-test-secret")

	a := Context{ActorID: "u1", Role: RoleDentist, HomeOrg: "org-a", Elevated: true}
	token, err := GenerateToken(a, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	got, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if got != a {
		t.Fatalf("round trip mismatch: %+v != %+v", got, a)
	}
}

func TestTokenRejectsGarbage(t *testing.T) {
	withSecret(t, "unit-test-secret")

	for _, tok := range []string{"", "   ", "not-a-jwt", "a.b.c"} {
		if _, err := ParseAndValidate(tok); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", tok, err)
		}
	}
}

func TestTokenRejectsWrongSecret(t *testing.T) {
	withSecret(t, "secret-one")
	a := Context{ActorID: "u1", Role: RoleDentist, HomeOrg: "org-a"}
	token, err := GenerateToken(a, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	withSecret(t, "secret-two")
	if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken under rotated secret, got %v", err)
	}
}

func TestGenerateTokenRequiresIdentity(t *testing.T) {
	withSecret(t, "unit-test-secret")
	if _, err := GenerateToken(Context{}, time.Hour); err == nil {
		t.Fatal("token minted for empty actor")
	}
	if _, err := GenerateToken(Context{ActorID: "u1", Role: RoleDentist, HomeOrg: "org-a"}, 0); err == nil {
		t.Fatal("token minted with zero ttl")
	}
}

func TestGenerateTokenMissingSecret(t *testing.T) {
	ResetSecretForTests()
	t.Setenv("CASESHARE_AUTH_SECRET", "")
	t.Cleanup(ResetSecretForTests)

	if _, err := GenerateToken(Context{ActorID: "u1", Role: RoleDentist, HomeOrg: "org-a"}, time.Hour); err == nil {
		t.Fatal("token minted without a configured secret")
	}
}
