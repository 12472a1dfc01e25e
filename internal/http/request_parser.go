// Package http serves the taxdesk JSON API.
//
// This file holds the shared request decoding helpers: JSON bodies into
// field bags and (userId, taxYear) keys from query strings.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"taxdesk/internal/core"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// errBadRequest marks malformed request envelopes (not field validation).
var errBadRequest = errors.New("bad request")

// DecodeBody reads r's JSON object body into a field bag. Numbers stay
// json.Number so amounts never pass through float64.
func DecodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	var body map[string]any
	if err := decodeJSON(w, r, &body); err != nil {
		return nil, err
	}
	if body == nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", errBadRequest)
	}
	return body, nil
}

// DecodeInto reads r's JSON body into v, rejecting unknown fields.
func DecodeInto(w http.ResponseWriter, r *http.Request, v any) error {
	return decodeJSON(w, r, v, func(d *json.Decoder) { d.DisallowUnknownFields() })
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any, opts ...func(*json.Decoder)) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		return fmt.Errorf("%w: content type must be application/json", errBadRequest)
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return fmt.Errorf("%w: body exceeds %d bytes", errBadRequest, maxBodyBytes)
		}
		return fmt.Errorf("%w: read body: %v", errBadRequest, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("%w: empty body", errBadRequest)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	for _, opt := range opts {
		opt(dec)
	}
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON value", errBadRequest)
	}
	return nil
}

// KeyFromQuery parses the userId and taxYear query parameters.
func KeyFromQuery(r *http.Request) (core.Key, error) {
	q := r.URL.Query()
	return core.ParseKey(q.Get("userId"), q.Get("taxYear"))
}

// bodyUserID returns body's userId when it is a non-blank string.
func bodyUserID(body map[string]any) string {
	s, _ := body["userId"].(string)
	return strings.TrimSpace(s)
}
