package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/devusermeta/nubankx-sub000/internal/domain/invocation"
)

// Transport invokes agents over core NATS request/reply. Endpoints have the
// form nats://<subject>.
type Transport struct {
	nc *nats.Conn
}

// NewTransport creates a request/reply transport on nc.
func NewTransport(nc *nats.Conn) *Transport {
	return &Transport{nc: nc}
}

// reply is the agent's response envelope.
type reply struct {
	Result json.RawMessage       `json:"result"`
	Error  *invocation.ErrorBody `json:"error"`
}

// Subject extracts the request subject from a nats:// endpoint.
func Subject(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme != "nats" {
		return "", fmt.Errorf("not a nats endpoint: %q", endpoint)
	}
	subject := u.Host + strings.TrimRight(u.Path, "/")
	subject = strings.ReplaceAll(strings.TrimPrefix(subject, "/"), "/", ".")
	if subject == "" {
		return "", fmt.Errorf("nats endpoint %q has no subject", endpoint)
	}
	return subject, nil
}

// Call implements transport.Transport.
func (t *Transport) Call(ctx context.Context, endpoint string, payload *invocation.Payload) (json.RawMessage, error) {
	subject, err := Subject(endpoint)
	if err != nil {
		return nil, invocation.Rejected(invocation.KindValidation, err.Error())
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, invocation.Rejected(invocation.KindValidation, fmt.Sprintf("encode payload: %v", err))
	}

	msg := &nats.Msg{Subject: subject, Data: data, Header: nats.Header{}}
	msg.Header.Set(headerRequestID, payload.RequestID)
	msg.Header.Set(headerCorrelationID, payload.CorrelationID)

	resp, err := t.nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return nil, requestError(err)
	}

	var r reply
	if err := json.Unmarshal(resp.Data, &r); err != nil {
		return nil, invocation.Rejected(invocation.KindUnknown, fmt.Sprintf("decode reply: %v", err))
	}
	if r.Error != nil {
		kind := r.Error.Kind
		if kind == "" {
			kind = invocation.KindUnknown
		}
		return nil, &invocation.Error{Kind: kind, Message: r.Error.Message}
	}
	if r.Result == nil {
		return json.RawMessage("null"), nil
	}
	return r.Result, nil
}

func requestError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, nats.ErrTimeout):
		return invocation.Transient(invocation.KindTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		// Covers ErrNoResponders and a closed or reconnecting connection.
		return invocation.Transient(invocation.KindUnavailable, err)
	}
}
