// Package artifact recovers structured records from free-form model output.
// Everything here is pure: no I/O, no logging, no network.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Record is a decoded JSON object.
type Record map[string]any

// fenceOpen matches the opening marker of a ```json fenced block.
var fenceOpen = regexp.MustCompile("(?i)```[ \\t]*json\\b")

// ParseError is returned when no record can be recovered from a response.
// Raw holds the original text for diagnostics and must not be shown to clients.
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("no structured record in response (%d bytes): %s", len(e.Raw), e.Reason)
}

// IsParseError returns true if err is or wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// Parse extracts a single JSON object from rawText.
//
// The first ```json fenced block is tried first: the first JSON value after
// the opening marker is decoded and everything after it is ignored, so a
// closing fence is optional and fences inside string values are harmless.
// If there is no fence, or its contents do not decode, the whole text is
// decoded instead. An empty object is a valid record.
func Parse(rawText string) (Record, error) {
	var fenceErr error
	if loc := fenceOpen.FindStringIndex(rawText); loc != nil {
		rec, err := decodeFirstObject(rawText[loc[1]:])
		if err == nil {
			return rec, nil
		}
		fenceErr = err
	}

	rec, err := decodeObject(rawText)
	if err == nil {
		return rec, nil
	}

	reason := err.Error()
	if fenceErr != nil {
		reason = fmt.Sprintf("fenced block: %v; whole text: %v", fenceErr, err)
	}
	return nil, &ParseError{Raw: rawText, Reason: reason}
}

// decodeFirstObject decodes the first JSON value in text and ignores the rest.
func decodeFirstObject(text string) (Record, error) {
	var rec Record
	if err := json.NewDecoder(strings.NewReader(text)).Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty fenced block")
		}
		return nil, err
	}
	if rec == nil {
		return nil, errors.New("top-level value is null")
	}
	return rec, nil
}

func decodeObject(text string) (Record, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, errors.New("empty input")
	}

	var rec Record
	if err := json.Unmarshal([]byte(trimmed), &rec); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.New("top-level value is null")
	}
	return rec, nil
}

// Decode converts a record into a typed value by round-tripping through JSON.
func Decode[T any](rec Record) (T, error) {
	var out T

	data, err := json.Marshal(rec)
	if err != nil {
		return out, fmt.Errorf("marshal record: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("unmarshal record: %w", err)
	}
	return out, nil
}
