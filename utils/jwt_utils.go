package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"settlement-service/config"
)

type Claims struct {
	TenantID   string `json:"tenant_id"`
	StaffAlias string `json:"staff_alias"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

func GenerateToken(tenantID, staffAlias, role string, ttl time.Duration) (string, error) {
	cfg := config.LoadConfig()
	now := time.Now()
	claims := Claims{
		TenantID:   tenantID,
		StaffAlias: staffAlias,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   staffAlias,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
}

func ParseToken(tokenString string) (*Claims, error) {
	cfg := config.LoadConfig()
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.TenantID == "" {
		return nil, errors.New("token has no tenant")
	}
	return claims, nil
}
