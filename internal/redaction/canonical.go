package redaction

import (
	"fmt"
	"strings"
	"unicode"
)

// A canonicalizer normalizes a raw matched value into the identity half of a
// MaskKey. Canonicalization must be idempotent and must never map two
// distinct real-world values to the same key.
type canonicalizer func(raw string) (string, error)

var canonicalizers = map[EntityType]canonicalizer{
	EntityEmail:      canonicalEmail,
	EntityPhone:      canonicalDigits,
	EntitySSN:        canonicalDigits,
	EntityCreditCard: canonicalDigits,
	EntityPersonName: canonicalName,
	EntityAPIKey:     canonicalVerbatim,
	EntityAWSKey:     canonicalVerbatim,
	EntityJWT:        canonicalVerbatim,
	EntityIPAddress:  canonicalVerbatim,
}

// Canonicalize normalizes raw for the given type. Types without a registered
// canonicalizer get the verbatim form, trimmed.
func Canonicalize(t EntityType, raw string) (string, error) {
	if fn, ok := canonicalizers[t]; ok {
		return fn(raw)
	}
	return canonicalVerbatim(raw)
}

func canonicalEmail(raw string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	at := strings.IndexByte(value, '@')
	if at <= 0 || at == len(value)-1 {
		return "", fmt.Errorf("malformed email %q", raw)
	}
	return value, nil
}

// canonicalDigits keeps digits only, so separator variants of the same number
// ("555-123-4567", "(555) 123-4567") collapse to one key while numbers with
// different digits stay distinct.
func canonicalDigits(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no digits in %q", raw)
	}
	return b.String(), nil
}

func canonicalName(raw string) (string, error) {
	fields := strings.Fields(strings.ToLower(raw))
	if len(fields) == 0 {
		return "", fmt.Errorf("empty name %q", raw)
	}
	return strings.Join(fields, " "), nil
}

func canonicalVerbatim(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("empty value")
	}
	return value, nil
}
