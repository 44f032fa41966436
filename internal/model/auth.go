package model

import "github.com/golang-jwt/jwt/v5"

// DeviceClaims are JWT claims for a device credential.
// The device id is self-declared; the signature only stops it being edited.
type DeviceClaims struct {
	DeviceID string `json:"deviceId"`
	jwt.RegisteredClaims
}

// DeviceResponse is returned when a device credential is issued
type DeviceResponse struct {
	Token    string `json:"token"`
	DeviceID string `json:"deviceId"`
}
