package auth

import (
	"slices"
	"testing"
	"time"

	"github.com/erazemk/izposoja/internal/model"
)

func testUser() *model.User {
	return &model.User{ID: 4, Username: "maja", Role: model.RoleUser, Teams: []string{"alpine", "kayak"}}
}

func TestGenerateAndValidateToken(t *testing.T) {
	secret := "test-secret-key"

	token, err := GenerateToken(secret, testUser())
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ValidateToken(secret, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}

	if claims.UserID != 4 {
		t.Errorf("expected user_id 4, got %d", claims.UserID)
	}
	if claims.Username != "maja" {
		t.Errorf("expected username 'maja', got %q", claims.Username)
	}
	if !slices.Equal(claims.Teams, []string{"alpine", "kayak"}) {
		t.Errorf("unexpected teams %v", claims.Teams)
	}
	if claims.ID == "" {
		t.Error("expected a token id")
	}
}

func TestTokensHaveDistinctIDs(t *testing.T) {
	a, _ := GenerateToken("s", testUser())
	b, _ := GenerateToken("s", testUser())
	ca, _ := ValidateToken("s", a)
	cb, _ := ValidateToken("s", b)
	if ca.ID == cb.ID {
		t.Error("expected distinct token ids")
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, _ := GenerateToken("secret1", testUser())

	if _, err := ValidateToken("secret2", token); err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestValidateTokenInvalid(t *testing.T) {
	if _, err := ValidateToken("secret", "not-a-token"); err == nil {
		t.Error("expected error for invalid token")
	}
}

func TestTokenExpiry(t *testing.T) {
	secret := "test"
	token, _ := GenerateToken(secret, testUser())
	claims, _ := ValidateToken(secret, token)

	diff := time.Now().Add(TokenExpiry).Sub(claims.ExpiresAt.Time)
	if diff < -5*time.Second || diff > 5*time.Second {
		t.Errorf("token expiry too far from expected: diff=%v", diff)
	}
}

func TestPrincipal(t *testing.T) {
	claims := &Claims{UserID: 4, Role: model.RoleUser, Teams: []string{"alpine"}}
	p := claims.Principal()
	if p.UserID != "4" || p.IsAdmin || p.IsManager || !p.InTeam("alpine") {
		t.Errorf("unexpected principal %+v", p)
	}

	claims.Refresh(&model.User{ID: 4, Username: "maja", Role: model.RoleManager})
	p = claims.Principal()
	if !p.IsManager || p.IsAdmin || p.InTeam("alpine") {
		t.Errorf("expected refreshed principal, got %+v", p)
	}
}
