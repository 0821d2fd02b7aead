// Package agenthttp delivers agent invocations as JSON over HTTP.
package agenthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/devusermeta/nubankx-sub000/internal/domain/invocation"
)

const maxReplyBytes = 4 << 20

// Transport POSTs the payload to the agent endpoint.
type Transport struct {
	client *http.Client
}

// New creates a transport. Deadlines come from the caller's context, so the
// client should not set its own Timeout.
func New(client *http.Client) *Transport {
	return &Transport{client: client}
}

// Call implements transport.Transport.
func (t *Transport) Call(ctx context.Context, endpoint string, payload *invocation.Payload) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, invocation.Rejected(invocation.KindValidation, fmt.Sprintf("encode payload: %v", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, invocation.Rejected(invocation.KindValidation, fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Correlation-ID", payload.CorrelationID)
	req.Header.Set("X-Request-ID", payload.RequestID)

	resp, err := t.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, invocation.Transient(invocation.KindTimeout, err)
		}
		return nil, invocation.Transient(invocation.KindUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, invocation.Transient(invocation.KindTimeout, err)
		}
		return nil, invocation.Transient(invocation.KindUnavailable, fmt.Errorf("read reply: %w", err))
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if len(bytes.TrimSpace(data)) == 0 {
			return json.RawMessage("null"), nil
		}
		if !json.Valid(data) {
			return nil, invocation.Rejected(invocation.KindUnknown, "agent reply is not valid JSON")
		}
		return json.RawMessage(data), nil
	}
	return nil, statusError(resp.StatusCode, data)
}

// statusError classifies a non-2xx reply. A kind in the body wins over the
// status code.
func statusError(status int, data []byte) error {
	var eb invocation.ErrorBody
	if json.Unmarshal(data, &eb) == nil && eb.Kind != "" {
		msg := eb.Message
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &invocation.Error{Kind: eb.Kind, Message: msg}
	}

	msg := fmt.Sprintf("agent returned %d %s", status, http.StatusText(status))
	switch status {
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return &invocation.Error{Kind: invocation.KindTimeout, Message: msg}
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable:
		return &invocation.Error{Kind: invocation.KindUnavailable, Message: msg}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return invocation.Rejected(invocation.KindValidation, msg)
	}
	// An agent failing with a bare 5xx is down, not refusing the request.
	if status >= http.StatusInternalServerError {
		return &invocation.Error{Kind: invocation.KindUnavailable, Message: msg}
	}
	return invocation.Rejected(invocation.KindUnknown, msg)
}
