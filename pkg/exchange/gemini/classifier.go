package gemini

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"

	"gemini/pkg/core"
)

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	errNotObject          = errors.New("frame is not a JSON object")
	errNotArray           = errors.New("frame is not a JSON array")
)

type typeTag struct {
	Type string `json:"type"`
}

func classificationError(err error, frame []byte) *core.ClassificationError {
	return &core.ClassificationError{Err: err, Raw: string(frame)}
}

// decodeMessage parses frame into a T and runs its validate tags.
func decodeMessage[T any](frame []byte) (*T, error) {
	msg := new(T)
	if err := sonic.Unmarshal(frame, msg); err != nil {
		return nil, err
	}
	if err := validate.Struct(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// ClassifyMarketData dispatches one market data frame on its type tag.
// Frames that match no tag return a *core.ClassificationError.
func ClassifyMarketData(frame []byte) (MarketDataMessage, error) {
	var tag typeTag
	if err := sonic.Unmarshal(frame, &tag); err != nil {
		return nil, classificationError(err, frame)
	}

	var (
		msg MarketDataMessage
		err error
	)
	switch tag.Type {
	case "l2_updates":
		var m *Level2Update
		m, err = decodeMessage[Level2Update](frame)
		msg = m
	case "trade":
		var m *TradeEvent
		m, err = decodeMessage[TradeEvent](frame)
		msg = m
	case "heartbeat":
		var m *Heartbeat
		m, err = decodeMessage[Heartbeat](frame)
		msg = m
	default:
		err = fmt.Errorf("%w %q", ErrUnknownMessageType, tag.Type)
	}
	if err != nil {
		return nil, classificationError(err, frame)
	}
	return msg, nil
}

// orderEventCandidate tries one frame shape. applicable is false when the
// frame is not of that shape at all; err then says why. An applicable
// candidate ends the search, successfully or not.
type orderEventCandidate struct {
	name   string
	decode func(frame []byte) (msg OrderEventMessage, applicable bool, err error)
}

// orderEventCandidates are tried in order: tagged control objects first,
// then the untagged array of order events.
var orderEventCandidates = []orderEventCandidate{
	{name: "control", decode: decodeControl},
	{name: "order batch", decode: decodeOrderBatch},
}

// ClassifyOrderEvent decodes one order events frame. Frames no candidate
// accepts return a *core.ClassificationError joining every candidate's error.
func ClassifyOrderEvent(frame []byte) (OrderEventMessage, error) {
	var errs []error
	for _, c := range orderEventCandidates {
		msg, applicable, err := c.decode(frame)
		if applicable {
			if err != nil {
				return nil, classificationError(fmt.Errorf("%s: %w", c.name, err), frame)
			}
			return msg, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
	}
	return nil, classificationError(errors.Join(errs...), frame)
}

func decodeControl(frame []byte) (OrderEventMessage, bool, error) {
	if !startsWith(frame, '{') {
		return nil, false, errNotObject
	}
	var tag typeTag
	if err := sonic.Unmarshal(frame, &tag); err != nil {
		return nil, false, err
	}
	switch tag.Type {
	case "heartbeat":
		msg, err := decodeMessage[Heartbeat](frame)
		if err != nil {
			return nil, true, err
		}
		return msg, true, nil
	case "subscription_ack":
		msg, err := decodeMessage[SubscriptionAck](frame)
		if err != nil {
			return nil, true, err
		}
		return msg, true, nil
	default:
		return nil, false, fmt.Errorf("%w %q", ErrUnknownMessageType, tag.Type)
	}
}

func decodeOrderBatch(frame []byte) (OrderEventMessage, bool, error) {
	if !startsWith(frame, '[') {
		return nil, false, errNotArray
	}
	var batch OrderBatch
	if err := sonic.Unmarshal(frame, &batch); err != nil {
		return nil, true, err
	}
	for i := range batch {
		if err := validate.Struct(&batch[i]); err != nil {
			return nil, true, fmt.Errorf("event %d: %w", i, err)
		}
	}
	return batch, true, nil
}

func startsWith(frame []byte, c byte) bool {
	trimmed := bytes.TrimLeft(frame, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == c
}
