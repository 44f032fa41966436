package service

import (
	"errors"
	"masbaha/internal/model"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// AuthService issues and validates device credentials. A device credential
// stands in for a user identity; anyone may obtain one.
type AuthService struct {
	jwtSecret []byte
	now       func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(secret string) *AuthService {
	return &AuthService{
		jwtSecret: []byte(secret),
		now:       time.Now,
	}
}

// IssueDeviceToken mints a new device id and its signed credential
func (s *AuthService) IssueDeviceToken() (*model.DeviceResponse, error) {
	deviceID := "dev_" + uuid.New().String()

	claims := &model.DeviceClaims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(s.now()),
			// Devices keep their credential for the lifetime of local storage
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}

	return &model.DeviceResponse{
		Token:    tokenString,
		DeviceID: deviceID,
	}, nil
}

// ValidateDeviceToken validates a device JWT and returns claims
func (s *AuthService) ValidateDeviceToken(tokenString string) (*model.DeviceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.DeviceClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.DeviceClaims)
	if !ok || !token.Valid || claims.DeviceID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
