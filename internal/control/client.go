// File: internal/control/client.go
package control

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// CommandError is a failure reported by the server.
type CommandError struct {
	Command    string
	StatusCode int
	Message    string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s failed (HTTP %d): %s", e.Command, e.StatusCode, e.Message)
}

// IsConflict reports whether err is the server refusing a second start.
func IsConflict(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce) && ce.StatusCode == http.StatusConflict
}

// Client talks to a running control server.
type Client struct {
	base  string
	http  *http.Client
	token string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithToken sends token as a bearer credential on every command.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// NewClient returns a client for the server at addr ("host:port" or a full URL).
func NewClient(addr string, opts ...ClientOption) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	c := &Client{base: base, http: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start runs program, or the saved program when program is nil.
func (c *Client) Start(ctx context.Context, program schemas.Program) error {
	params, err := programParams(program)
	if err != nil {
		return err
	}
	return c.do(ctx, CmdStart, params, nil)
}

// Stop asks the running program to stop at the next step boundary.
func (c *Client) Stop(ctx context.Context) error {
	return c.do(ctx, CmdStop, nil, nil)
}

// Save stores program without running it.
func (c *Client) Save(ctx context.Context, program schemas.Program) error {
	if program == nil {
		program = schemas.Program{}
	}
	params, err := programParams(program)
	if err != nil {
		return err
	}
	return c.do(ctx, CmdSave, params, nil)
}

// Status returns the persisted snapshot.
func (c *Client) Status(ctx context.Context) (schemas.RunSnapshot, error) {
	var snap schemas.RunSnapshot
	err := c.do(ctx, CmdStatus, nil, &snap)
	return snap, err
}

// CurrentURL returns the URL of the browser's active page.
func (c *Client) CurrentURL(ctx context.Context) (string, error) {
	var res URLResult
	err := c.do(ctx, CmdCurrentURL, nil, &res)
	return res.URL, err
}

// Health checks /healthz.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("control server unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("control server unhealthy: HTTP %d", resp.StatusCode)
	}
	return nil
}

func programParams(program schemas.Program) (json.RawMessage, error) {
	if program == nil {
		return nil, nil
	}
	encoded, err := schemas.Serialize(program)
	if err != nil {
		return nil, err
	}
	return json.Marshal(ProgramParams{Program: encoded})
}

func (c *Client) do(ctx context.Context, command string, params json.RawMessage, out interface{}) error {
	body, err := json.Marshal(CommandRequest{Command: command, Params: params})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", command, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/v1/command", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("control server unreachable: %w", err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return &CommandError{Command: command, StatusCode: resp.StatusCode, Message: fmt.Sprintf("undecodable response: %v", err)}
	}
	if !envelope.Success {
		return &CommandError{Command: command, StatusCode: resp.StatusCode, Message: envelope.Error}
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", command, err)
		}
	}
	return nil
}
