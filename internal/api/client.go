package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gpuhold-net/gpuhold/internal/domain"
)

// ErrUnreachable means no server answered on the control socket. The CLI maps
// it to its own exit code, distinct from server-reported failures.
var ErrUnreachable = errors.New("no server reachable on control socket")

// Client talks the control protocol over the unix socket.
type Client struct {
	httpc *http.Client
}

// NewClient creates a client for the daemon listening at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{
		httpc: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

// Start begins supervision with the given overrides.
func (c *Client) Start(patch domain.HoldConfigPatch) (domain.CommandResponse, error) {
	return c.command("/control/start", domain.StartRequest{Patch: patch})
}

// Stop releases all devices; the server keeps running.
func (c *Client) Stop() (domain.CommandResponse, error) {
	return c.command("/control/stop", nil)
}

// Restart applies the overrides under a new generation.
func (c *Client) Restart(patch domain.HoldConfigPatch) (domain.CommandResponse, error) {
	return c.command("/control/restart", domain.RestartRequest{Patch: patch})
}

// Shutdown stops all devices and terminates the server.
func (c *Client) Shutdown() (domain.CommandResponse, error) {
	return c.command("/control/shutdown", nil)
}

// Status reads daemon state.
func (c *Client) Status() (domain.StatusResponse, error) {
	resp, err := c.httpc.Get("http://gpuhold/control/status")
	if err != nil {
		return domain.StatusResponse{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	var out domain.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.StatusResponse{}, fmt.Errorf("decode status response: %w", err)
	}
	if !out.OK && out.Error != nil {
		return out, fmt.Errorf("%s: %s", out.Error.Code, out.Error.Message)
	}
	return out, nil
}

func (c *Client) command(path string, body interface{}) (domain.CommandResponse, error) {
	payload := []byte("{}")
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return domain.CommandResponse{}, fmt.Errorf("encode request: %w", err)
		}
	}

	resp, err := c.httpc.Post("http://gpuhold"+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return domain.CommandResponse{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	var out domain.CommandResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.CommandResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if !out.OK {
		if out.Error != nil {
			return out, fmt.Errorf("%s: %s", out.Error.Code, out.Error.Message)
		}
		return out, errors.New("server reported failure")
	}
	return out, nil
}
