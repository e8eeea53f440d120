package gemini

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"

	"gemini/pkg/core"
)

var (
	errBodyNotObject = errors.New("body must serialize to a JSON object")
	errReservedField = errors.New("body must not carry nonce or request fields")
)

// canonical encodes bodies with sorted map keys so one logical body always
// produces the same bytes.
var canonical = sonic.ConfigStd

// Envelope is the signed unit of a private request: the nonce and request
// path followed by the members of Body, all in one flat JSON object.
type Envelope struct {
	Nonce   int64
	Request string
	Body    any
}

// MarshalJSON writes {"nonce":N,"request":"path",...body members}. A nil body
// or one that encodes to {} or null adds no members.
func (e Envelope) MarshalJSON() ([]byte, error) {
	path, err := canonical.Marshal(e.Request)
	if err != nil {
		return nil, &core.EnvelopeError{Path: e.Request, Err: err}
	}
	members, err := bodyMembers(e.Body)
	if err != nil {
		return nil, &core.EnvelopeError{Path: e.Request, Err: err}
	}

	buf := make([]byte, 0, 32+len(path)+len(members))
	buf = append(buf, `{"nonce":`...)
	buf = strconv.AppendInt(buf, e.Nonce, 10)
	buf = append(buf, `,"request":`...)
	buf = append(buf, path...)
	if len(members) > 0 {
		buf = append(buf, ',')
		buf = append(buf, members...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// Payload returns the base64 text of the envelope's canonical bytes.
func (e Envelope) Payload() (string, error) {
	raw, err := e.MarshalJSON()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// bodyMembers returns the inner members of the body's JSON object, without braces.
func bodyMembers(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	raw, err := canonical.Marshal(body)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if string(raw) == "null" {
		return nil, nil
	}
	if len(raw) < 2 || raw[0] != '{' || raw[len(raw)-1] != '}' {
		return nil, errBodyNotObject
	}

	var fields map[string]json.RawMessage
	if err := canonical.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if _, ok := fields["nonce"]; ok {
		return nil, errReservedField
	}
	if _, ok := fields["request"]; ok {
		return nil, errReservedField
	}
	return bytes.TrimSpace(raw[1 : len(raw)-1]), nil
}

// ParsedPayload is a payload header decoded back to its canonical bytes.
type ParsedPayload struct {
	Raw     []byte `json:"-"`
	Nonce   int64  `json:"nonce"`
	Request string `json:"request"`
}

// ParsePayload decodes a base64 payload header and reads its envelope fields.
func ParsePayload(payload string) (*ParsedPayload, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	p := &ParsedPayload{Raw: raw}
	if err := sonic.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}
	return p, nil
}

// NonceSource issues millisecond nonces that strictly increase for the
// lifetime of the source, even when the clock stalls or steps back.
type NonceSource struct {
	last atomic.Int64
	now  func() time.Time
}

func NewNonceSource() *NonceSource {
	return &NonceSource{now: time.Now}
}

// Next returns max(now in ms, previous+1). It is safe for concurrent use.
func (n *NonceSource) Next() int64 {
	for {
		last := n.last.Load()
		next := n.now().UnixMilli()
		if next <= last {
			next = last + 1
		}
		if n.last.CompareAndSwap(last, next) {
			return next
		}
	}
}
