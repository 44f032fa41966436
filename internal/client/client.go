// Package client is a Go client for the room REST and WebSocket API
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"masbaha/internal/model"
	"masbaha/internal/service"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError is a non-2xx answer from the server. It unwraps to the matching
// service error so callers can use errors.Is.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API returned status code: %d, response: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return service.ErrInvalidRequest
	case http.StatusUnauthorized:
		return service.ErrInvalidToken
	case http.StatusForbidden:
		return service.ErrNotOwner
	case http.StatusNotFound:
		return service.ErrRoomNotFound
	}
	return service.ErrStorage
}

// Client talks to one server
type Client struct {
	baseURL string
	client  *http.Client
	token   string
}

// New creates a client for baseURL, e.g. http://localhost:8080
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetToken sets the device credential sent with every request
func (c *Client) SetToken(token string) {
	c.token = token
}

// SetTimeout overrides the HTTP timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

func (c *Client) do(ctx context.Context, method, endpoint string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: failed to make request: %w", service.ErrStorage, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := string(responseBody)
		if json.Unmarshal(responseBody, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil || len(responseBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func roomPath(code string, parts ...string) string {
	p := "/v1/rooms/" + url.PathEscape(code)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

type actionResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Room    *model.Room `json:"room"`
}

func (c *Client) mutate(ctx context.Context, method, endpoint string, in interface{}) (*model.Room, error) {
	var resp actionResponse
	if err := c.do(ctx, method, endpoint, in, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return resp.Room, service.ErrAlreadyCompleted
	}
	return resp.Room, nil
}

// RegisterDevice mints a device credential and starts using it
func (c *Client) RegisterDevice(ctx context.Context) (*model.DeviceResponse, error) {
	var resp model.DeviceResponse
	if err := c.do(ctx, http.MethodPost, "/v1/devices", nil, &resp); err != nil {
		return nil, err
	}
	c.token = resp.Token
	return &resp, nil
}

// CreateRoom creates a room owned by the current device
func (c *Client) CreateRoom(ctx context.Context, in *model.CreateRoomInput) (*model.Room, error) {
	var room model.Room
	if err := c.do(ctx, http.MethodPost, "/v1/rooms", in, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// GetRoom fetches the authoritative room and roster
func (c *Client) GetRoom(ctx context.Context, code string) (*model.RoomState, error) {
	var state model.RoomState
	if err := c.do(ctx, http.MethodGet, roomPath(code), nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Join adds a participant
func (c *Client) Join(ctx context.Context, code, name string) (*model.Participant, error) {
	var p model.Participant
	if err := c.do(ctx, http.MethodPost, roomPath(code, "join"), map[string]string{"name": name}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Tap counts one. A completed room yields the room and
// service.ErrAlreadyCompleted.
func (c *Client) Tap(ctx context.Context, code, participantID string) (*model.Room, error) {
	return c.mutate(ctx, http.MethodPost, roomPath(code, "tap"), map[string]string{"participantId": participantID})
}

// BulkAdjust applies a signed amount
func (c *Client) BulkAdjust(ctx context.Context, code, participantID string, amount int) (*model.Room, error) {
	return c.mutate(ctx, http.MethodPost, roomPath(code, "bulk"), map[string]interface{}{"participantId": participantID, "amount": amount})
}

// Reset zeroes the room
func (c *Client) Reset(ctx context.Context, code string) (*model.Room, error) {
	return c.mutate(ctx, http.MethodPost, roomPath(code, "reset"), nil)
}

// UpdateTarget replaces the target
func (c *Client) UpdateTarget(ctx context.Context, code string, target int) (*model.Room, error) {
	return c.mutate(ctx, http.MethodPut, roomPath(code, "target"), map[string]int{"target": target})
}

// Leave removes a participant
func (c *Client) Leave(ctx context.Context, code, participantID string) error {
	return c.do(ctx, http.MethodDelete, roomPath(code, "participants", participantID), nil, nil)
}

// SendAlert broadcasts an owner message
func (c *Client) SendAlert(ctx context.Context, code, message string) error {
	return c.do(ctx, http.MethodPost, roomPath(code, "alerts"), map[string]string{"message": message}, nil)
}

// IsAlreadyCompleted reports whether err is a declined tap
func IsAlreadyCompleted(err error) bool {
	return errors.Is(err, service.ErrAlreadyCompleted)
}
