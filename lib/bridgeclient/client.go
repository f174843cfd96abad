// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package bridgeclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/kapy9250/cli-gateway/bridge"
	"github.com/kapy9250/cli-gateway/lib/action"
	"github.com/kapy9250/cli-gateway/lib/codec"
	"github.com/kapy9250/cli-gateway/lib/totp"
)

// dialTimeout covers the connect phase only; response reading has its
// own deadline.
const dialTimeout = 5 * time.Second

// defaultResponseTimeout is how long Call waits for the server's
// reply after writing the request. Generous relative to the server's
// request timeout so a slow action fails server-side with a reason
// code instead of client-side with a bare timeout.
const defaultResponseTimeout = 30 * time.Second

// maxResponseSize caps a single response.
const maxResponseSize = 1 << 20

// CallError is a server-reported failure: the stable reason code plus
// any detail the server attached after it.
type CallError struct {
	Action string
	Reason string
	Detail string
}

func (e *CallError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Action, e.Reason, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Action, e.Reason)
}

// Client talks to a bridge socket. The zero timeout means the
// default; construct with New.
type Client struct {
	socketPath      string
	responseTimeout time.Duration
}

// New returns a client for the socket. A zero responseTimeout uses
// the default.
func New(socketPath string, responseTimeout time.Duration) *Client {
	if responseTimeout <= 0 {
		responseTimeout = defaultResponseTimeout
	}
	return &Client{socketPath: socketPath, responseTimeout: responseTimeout}
}

// Call sends one request and decodes the response data into result
// (when non-nil). The fields map carries operation-specific fields;
// "action" is injected here and must not appear in it.
func (c *Client) Call(ctx context.Context, operation string, fields map[string]any, result any) error {
	request := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		request[key] = value
	}
	request["action"] = operation

	response, err := c.send(ctx, request)
	if err != nil {
		return fmt.Errorf("bridgeclient: calling %q on %s: %w", operation, c.socketPath, err)
	}

	if !response.OK {
		reason, detail, _ := strings.Cut(response.Error, ": ")
		return &CallError{Action: operation, Reason: reason, Detail: detail}
	}

	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("bridgeclient: decoding %q response: %w", operation, err)
		}
	}
	return nil
}

// send opens a fresh connection, writes the request, half-closes, and
// reads the response.
func (c *Client) send(ctx context.Context, request any) (*bridge.Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}

	// CBOR is self-delimiting, but the half-close lets the server's
	// read side see a clean EOF.
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	conn.SetReadDeadline(time.Now().Add(c.responseTimeout))
	var response bridge.Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &response, nil
}

// Status fetches the daemon's status view for the calling owner.
func (c *Client) Status(ctx context.Context) (bridge.StatusResult, error) {
	var result bridge.StatusResult
	err := c.Call(ctx, "status", nil, &result)
	return result, err
}

// EnrollBegin starts (or resumes) a TOTP enrollment.
func (c *Client) EnrollBegin(ctx context.Context, account string, force bool) (totp.Enrollment, error) {
	var result totp.Enrollment
	err := c.Call(ctx, "enroll_begin", map[string]any{"account": account, "force": force}, &result)
	return result, err
}

// EnrollConfirm commits the pending enrollment with a code.
func (c *Client) EnrollConfirm(ctx context.Context, code string) (totp.Status, error) {
	var result totp.Status
	err := c.Call(ctx, "enroll_confirm", map[string]any{"code": code}, &result)
	return result, err
}

// EnrollCancel drops the pending enrollment.
func (c *Client) EnrollCancel(ctx context.Context) (totp.Status, error) {
	var result totp.Status
	err := c.Call(ctx, "enroll_cancel", nil, &result)
	return result, err
}

// EnrollStatus reports the caller's enrollment state.
func (c *Client) EnrollStatus(ctx context.Context) (totp.Status, error) {
	var result totp.Status
	err := c.Call(ctx, "enroll_status", nil, &result)
	return result, err
}

// ChallengeCreate opens an approval challenge for the descriptor.
func (c *Client) ChallengeCreate(ctx context.Context, descriptor action.Descriptor, summary string) (bridge.ChallengeCreateResult, error) {
	var result bridge.ChallengeCreateResult
	err := c.Call(ctx, "challenge_create", map[string]any{
		"descriptor": descriptor,
		"summary":    summary,
	}, &result)
	return result, err
}

// ChallengeApprove presents a code against a challenge and, on
// success, returns the minted grant.
func (c *Client) ChallengeApprove(ctx context.Context, challengeID, code string) (bridge.ChallengeApproveResult, error) {
	var result bridge.ChallengeApproveResult
	err := c.Call(ctx, "challenge_approve", map[string]any{
		"challenge_id": challengeID,
		"code":         code,
	}, &result)
	return result, err
}

// ChallengeStatus reads a challenge snapshot.
func (c *Client) ChallengeStatus(ctx context.Context, challengeID string) (bridge.ChallengeStatusResult, error) {
	var result bridge.ChallengeStatusResult
	err := c.Call(ctx, "challenge_status", map[string]any{"challenge_id": challengeID}, &result)
	return result, err
}

// Execute runs an action, decoding its payload into result when
// non-nil. The grant token is empty for public actions.
func (c *Client) Execute(ctx context.Context, descriptor action.Descriptor, grantToken string, result any) error {
	fields := map[string]any{"descriptor": descriptor}
	if grantToken != "" {
		fields["grant"] = grantToken
	}
	return c.Call(ctx, "execute", fields, result)
}
