// ABOUTME: Device token issue and verification for paired clients
// ABOUTME: HS256 JWTs with the device id in the sub claim

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DeviceTokenTTL is how long an issued device token stays valid.
const DeviceTokenTTL = 180 * 24 * time.Hour

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// DeviceTokens issues and verifies device tokens signed with the
// per-install secret.
type DeviceTokens struct {
	secret []byte
}

// NewDeviceTokens creates a token manager with the given signing secret.
func NewDeviceTokens(secret []byte) *DeviceTokens {
	return &DeviceTokens{secret: secret}
}

// Issue creates a token for the device id, expiring after DeviceTokenTTL.
func (d *DeviceTokens) Issue(deviceID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": deviceID,
		"iat": now.Unix(),
		"exp": now.Add(DeviceTokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(d.secret)
}

// Verify validates the token and returns the device id from the sub claim.
func (d *DeviceTokens) Verify(tokenString string) (deviceID string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return d.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return sub, nil
}
