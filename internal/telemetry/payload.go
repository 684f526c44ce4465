package telemetry

import (
	"encoding/json"
	"strconv"

	"github.com/aquaguard/aquaguard-go/internal/errors"
)

// Payload shapes accepted on the ingest endpoint, tried in order:
//
//  1. encrypted: {"ciphertext": "<hex>", "nonce": <n>} ("cipher" is accepted
//     as an alias for "ciphertext"); the plaintext must decode to a flat
//     sample object
//  2. a flat sample object carrying at least f_main or p_main
//  3. a {"data": {...}} wrapper around a flat sample object
//
// Anything else is rejected with a validation error.

// Parser turns raw request bodies into samples.
type Parser struct {
	key []byte
}

// NewParser creates a Parser decrypting with the given key.
func NewParser(key []byte) *Parser {
	return &Parser{key: key}
}

// Parse decodes a request body into a Sample plus the raw top-level object,
// which callers use to read envelope fields such as manual labels.
func (p *Parser) Parse(body []byte) (*Sample, map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, nil, errors.New(err).
			Component("telemetry").
			Category(errors.CategoryValidation).
			Context("detail", "body is not a JSON object").
			Build()
	}

	if cipherHex, nonce, ok := encryptedEnvelope(raw); ok {
		plaintext, err := DecryptCTR(cipherHex, nonce, p.key)
		if err != nil {
			return nil, nil, err
		}
		var inner map[string]any
		if err := json.Unmarshal(plaintext, &inner); err != nil {
			return nil, nil, errors.New(err).
				Component("telemetry").
				Category(errors.CategoryDecryption).
				Context("detail", "decrypted payload is not a JSON object").
				Build()
		}
		if !hasSampleFields(inner) {
			return nil, nil, errInvalidPayload()
		}
		return SampleFromMap(inner), raw, nil
	}

	if hasSampleFields(raw) {
		return SampleFromMap(raw), raw, nil
	}

	if data, ok := raw["data"].(map[string]any); ok && hasSampleFields(data) {
		return SampleFromMap(data), raw, nil
	}

	return nil, nil, errInvalidPayload()
}

func errInvalidPayload() error {
	return errors.Newf("payload carries neither f_main nor p_main").
		Component("telemetry").
		Category(errors.CategoryValidation).
		Build()
}

// hasSampleFields checks for the presence of either anchor field. Presence is
// enough; a zero value is a legitimate reading.
func hasSampleFields(m map[string]any) bool {
	_, f := m["f_main"]
	_, p := m["p_main"]
	return f || p
}

// encryptedEnvelope extracts the ciphertext and nonce when the object is an
// encrypted envelope. Nonces arrive as JSON numbers or decimal strings.
func encryptedEnvelope(raw map[string]any) (string, uint64, bool) {
	v, ok := raw["ciphertext"]
	if !ok {
		v, ok = raw["cipher"]
	}
	if !ok {
		return "", 0, false
	}
	cipherHex, ok := v.(string)
	if !ok {
		return "", 0, false
	}
	nv, ok := raw["nonce"]
	if !ok {
		return "", 0, false
	}
	switch n := nv.(type) {
	case float64:
		return cipherHex, uint64(n), true
	case string:
		parsed, err := strconv.ParseUint(n, 10, 64)
		if err != nil {
			return "", 0, false
		}
		return cipherHex, parsed, true
	default:
		return "", 0, false
	}
}
