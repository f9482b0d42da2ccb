// Package stratum implements the Stratum JSON-RPC dialect spoken to the pool
// (C1 — codec) and the persistent client connection built on top of it
// (C3 — client, state machine, reconnect).
package stratum

import (
	"encoding/json"
	"fmt"

	"github.com/silentarmy/stratum-miner/pkg/errors"
)

// Kind tags which variant a decoded Message is.
type Kind int

const (
	// KindResponse is a reply to a request this client sent, keyed by id.
	KindResponse Kind = iota
	// KindNotification is a server-initiated push with no matching request.
	KindNotification
)

// Message is the decoded form of one newline-framed Stratum JSON-RPC line.
// It is a tagged variant: a Response carries a result (even if null) and a
// Notification carries a method; a line with neither is a protocol error.
type Message struct {
	Kind   Kind
	ID     any
	Method string
	Params []any
	Result any
	Error  *Error
}

// Error represents a Stratum error response triple.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// IsResponse reports whether m is a Response variant.
func (m *Message) IsResponse() bool { return m.Kind == KindResponse }

// IsNotification reports whether m is a Notification variant.
func (m *Message) IsNotification() bool { return m.Kind == KindNotification }

// DecodeMessage parses one already newline-framed line. Presence of the
// "result" key (even with a null value) makes it a Response; presence of
// "method" makes it a Notification. Neither present is a protocol error.
func DecodeMessage(line []byte) (*Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeProtocol, "decode_message", "invalid JSON").
			WithContext("line", string(line))
	}

	if raw, ok := fields["result"]; ok {
		msg := &Message{Kind: KindResponse}
		if idRaw, ok := fields["id"]; ok {
			if err := json.Unmarshal(idRaw, &msg.ID); err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeProtocol, "decode_message", "invalid id field")
			}
		}
		if err := json.Unmarshal(raw, &msg.Result); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeProtocol, "decode_message", "invalid result field")
		}
		if errRaw, ok := fields["error"]; ok && string(errRaw) != "null" {
			var e Error
			if err := json.Unmarshal(errRaw, &e); err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeProtocol, "decode_message", "invalid error field")
			}
			msg.Error = &e
		}
		return msg, nil
	}

	if raw, ok := fields["method"]; ok {
		msg := &Message{Kind: KindNotification}
		if err := json.Unmarshal(raw, &msg.Method); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeProtocol, "decode_message", "invalid method field")
		}
		if paramsRaw, ok := fields["params"]; ok {
			if err := json.Unmarshal(paramsRaw, &msg.Params); err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeProtocol, "decode_message", "invalid params field")
			}
		}
		return msg, nil
	}

	return nil, errors.New(errors.ErrorTypeProtocol, "decode_message", "message has neither result nor method").
		WithContext("line", string(line))
}

// request is the wire shape of an outbound JSON-RPC call.
type request struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// EncodeRequest serializes an outbound request, newline-terminated as the
// wire format requires.
func EncodeRequest(method string, id int64, params []any) ([]byte, error) {
	data, err := json.Marshal(request{ID: id, Method: method, Params: params})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeProtocol, "encode_request", "failed to marshal request")
	}
	return append(data, '\n'), nil
}

// SubscribeRequest builds the mining.subscribe request params.
// params = ["silentarmy", null, host, port_as_string]
func SubscribeRequest(host string, port int) []any {
	return []any{"silentarmy", nil, host, fmt.Sprintf("%d", port)}
}

// AuthorizeRequest builds the mining.authorize request params.
// params = [user] or [user, pwd] if a password is configured.
func AuthorizeRequest(user, pwd string) []any {
	if pwd == "" {
		return []any{user}
	}
	return []any{user, pwd}
}

// SubmitRequest builds the mining.submit request params, forwarding the
// solver's solution tokens verbatim and in order (invariant 2).
func SubmitRequest(user, jobID, ntime, nonceRightPart, sol string) []any {
	return []any{user, jobID, ntime, nonceRightPart, sol}
}

// NotifyParams is the decoded mining.notify parameter tuple.
type NotifyParams struct {
	JobID          string
	NVersion       string
	HashPrevBlock  string
	HashMerkleRoot string
	HashReserved   string
	NTime          string
	NBits          string
	CleanJobs      bool
}

// ParseNotifyParams decodes mining.notify params:
// [job_id, nVersion, hashPrevBlock, hashMerkleRoot, hashReserved, nTime, nBits, clean_jobs]
func ParseNotifyParams(params []any) (*NotifyParams, error) {
	if len(params) < 8 {
		return nil, errors.New(errors.ErrorTypeProtocol, "mining.notify", "expected 8 parameters").
			WithContext("got", len(params))
	}

	strs := make([]string, 7)
	for i := range strs {
		s, ok := params[i].(string)
		if !ok {
			return nil, errors.New(errors.ErrorTypeProtocol, "mining.notify", "parameter must be a string").
				WithContext("index", i)
		}
		strs[i] = s
	}

	cleanJobs, ok := params[7].(bool)
	if !ok {
		return nil, errors.New(errors.ErrorTypeProtocol, "mining.notify", "clean_jobs must be a boolean")
	}

	return &NotifyParams{
		JobID:          strs[0],
		NVersion:       strs[1],
		HashPrevBlock:  strs[2],
		HashMerkleRoot: strs[3],
		HashReserved:   strs[4],
		NTime:          strs[5],
		NBits:          strs[6],
		CleanJobs:      cleanJobs,
	}, nil
}

// ParseSetTargetParams decodes mining.set_target params: [target_hex].
func ParseSetTargetParams(params []any) (string, error) {
	if len(params) < 1 {
		return "", errors.New(errors.ErrorTypeProtocol, "mining.set_target", "expected 1 parameter")
	}
	s, ok := params[0].(string)
	if !ok {
		return "", errors.New(errors.ErrorTypeProtocol, "mining.set_target", "target must be a string")
	}
	return s, nil
}

// ParseSubscribeResult decodes a mining.subscribe response result:
// [<ignored>, nonce_left_hex].
func ParseSubscribeResult(result any) (string, error) {
	arr, ok := result.([]any)
	if !ok || len(arr) < 2 {
		return "", errors.New(errors.ErrorTypeProtocol, "mining.subscribe", "result must be a 2-element array")
	}
	nonceLeft, ok := arr[1].(string)
	if !ok {
		return "", errors.New(errors.ErrorTypeProtocol, "mining.subscribe", "nonce_left must be a string")
	}
	return nonceLeft, nil
}

// IsTruthy reports whether a JSON-decoded result value should be treated as
// an accepted boolean outcome (authorize/submit responses).
func IsTruthy(result any) bool {
	switch v := result.(type) {
	case bool:
		return v
	case nil:
		return false
	default:
		return true
	}
}
