// Package client provides an HTTP client for the receiver API.
package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/zuckdorsey/inputtrace/internal/db"
	"github.com/zuckdorsey/inputtrace/internal/models"
)

// Client talks to the receiver's query API.
type Client struct {
	BaseURL string
}

// NewClient creates a client for the receiver at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL}
}

// EventsResponse is the body of GET /api/events.
type EventsResponse struct {
	Events []models.Event `json:"events"`
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Total  int64          `json:"total"`
	ByKind []db.KindCount `json:"by_kind"`
}

// ErrorResponse is the receiver's error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// GetEvents fetches up to limit recent events, newest first.
func (c *Client) GetEvents(limit int) (*EventsResponse, error) {
	url := c.BaseURL + "/api/events"
	if limit > 0 {
		url += "?limit=" + strconv.Itoa(limit)
	}

	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseError(resp)
	}

	var result EventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetStats fetches event totals.
func (c *Client) GetStats() (*StatsResponse, error) {
	resp, err := http.Get(c.BaseURL + "/api/stats")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseError(resp)
	}

	var result StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Health checks the receiver's health endpoint.
func (c *Client) Health() error {
	resp, err := http.Get(c.BaseURL + "/healthz")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("receiver unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func parseError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return fmt.Errorf("%s", errResp.Error)
}
