// Package structured turns raw generation output into typed values.
//
// The generation contract is weak: a response is expected to contain one JSON
// object somewhere in free text, and truncation or trailing garbage is common.
// Decode extracts the object, tries a strict parse, and falls back to a
// best-effort repair pass before giving up.
package structured

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoObject is returned when the response contains no JSON object at all
var ErrNoObject = errors.New("no JSON object found in response")

// ExtractObject returns the widest {...} span in the response: everything from
// the first '{' to the last '}', or from the first '{' to the end when the
// closing brace never arrives (truncated output, left for Repair).
func ExtractObject(response string) (string, error) {
	start := strings.IndexByte(response, '{')
	if start == -1 {
		return "", ErrNoObject
	}
	end := strings.LastIndexByte(response, '}')
	if end > start {
		return response[start : end+1], nil
	}
	return response[start:], nil
}

// Decode extracts the JSON object from a raw generation response and
// unmarshals it into T, repairing the text if the strict parse fails.
func Decode[T any](response string) (T, error) {
	var zero T

	jsonStr, err := ExtractObject(response)
	if err != nil {
		return zero, err
	}

	var result T
	if err := json.Unmarshal([]byte(jsonStr), &result); err == nil {
		return result, nil
	}

	repaired, err := Repair(jsonStr)
	if err != nil {
		return zero, fmt.Errorf("repair JSON: %w", err)
	}

	if err := json.Unmarshal([]byte(repaired), &result); err != nil {
		return zero, fmt.Errorf("unmarshal repaired JSON: %w", err)
	}
	return result, nil
}
