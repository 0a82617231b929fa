package utils

import (
	"testing"
	"time"
)

func TestToken_RoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	token, err := GenerateToken("cafe-1", "anu", "staff", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.TenantID != "cafe-1" || claims.StaffAlias != "anu" || claims.Role != "staff" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestToken_Rejected(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	expired, _ := GenerateToken("cafe-1", "anu", "staff", -time.Minute)
	noTenant, _ := GenerateToken("", "anu", "staff", time.Hour)

	t.Setenv("JWT_SECRET", "other-secret")
	foreign, _ := GenerateToken("cafe-1", "anu", "staff", time.Hour)
	t.Setenv("JWT_SECRET", "test-secret")

	for name, token := range map[string]string{
		"expired":      expired,
		"no tenant":    noTenant,
		"wrong secret": foreign,
		"garbage":      "not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseToken(token); err == nil {
				t.Fatalf("expected %s token to be rejected", name)
			}
		})
	}
}
