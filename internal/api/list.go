package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ListResult is the outcome of normalising a list response: either Items or
// Unrecognized.
type ListResult interface {
	isListResult()
}

// Items is a recognised list of raw entities.
type Items []json.RawMessage

// Unrecognized carries a payload whose shape matched none of the known list
// layouts.
type Unrecognized struct {
	Raw json.RawMessage
}

func (Items) isListResult()        {}
func (Unrecognized) isListResult() {}

// fallbackKeys are tried after the caller's domain keys.
var fallbackKeys = []string{"items", "instances", "resources"}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *envelopeError  `json:"error"`
}

// Unwrap strips the {status, data} envelope when present. An error envelope
// becomes an *Error. Non-enveloped payloads are returned unchanged.
func Unwrap(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if _, ok := fields["status"]; !ok {
		return trimmed, nil
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		// Object-valued status, as on kubernetes resources.
		return trimmed, nil
	}
	switch env.Status {
	case "error":
		apiErr := &Error{Code: CodeAPI, Message: "request failed"}
		if env.Error != nil {
			if env.Error.Code != "" {
				apiErr.Code = env.Error.Code
			}
			if env.Error.Message != "" {
				apiErr.Message = env.Error.Message
			}
			if env.Error.Details != "" {
				apiErr.Details, _ = json.Marshal(env.Error.Details)
			}
		}
		return nil, apiErr
	case "success":
		return bytes.TrimSpace(env.Data), nil
	default:
		return trimmed, nil
	}
}

// DecodeList normalises a list response. The envelope is unwrapped first,
// then the payload is matched in order against: a bare array, each of keys,
// then "items", "instances" and "resources". Anything else is Unrecognized.
func DecodeList(raw json.RawMessage, keys ...string) (ListResult, error) {
	payload, err := Unwrap(raw)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return Items{}, nil
	}

	switch payload[0] {
	case '[':
		var items Items
		if err := json.Unmarshal(payload, &items); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		return items, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(payload, &obj); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		for _, key := range append(append([]string{}, keys...), fallbackKeys...) {
			field, ok := obj[key]
			field = bytes.TrimSpace(field)
			if !ok || len(field) == 0 || field[0] != '[' {
				continue
			}
			var items Items
			if err := json.Unmarshal(field, &items); err != nil {
				return nil, fmt.Errorf("decode list %q: %w", key, err)
			}
			return items, nil
		}
	}
	return Unrecognized{Raw: payload}, nil
}

// ItemsOf returns the entities of r; Unrecognized yields none.
func ItemsOf(r ListResult) []json.RawMessage {
	if items, ok := r.(Items); ok {
		return items
	}
	return nil
}
