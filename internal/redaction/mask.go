package redaction

import "strings"

// A maskStrategy computes the replacement token for a canonicalized value.
// ordinal is the 1-based first-seen index of the entity within its scope and
// type; only strategies that need referential identity (person names) use it.
//
// Every strategy must emit tokens that no detection rule can re-match, so
// redacting already-redacted text is a no-op.
type maskStrategy func(canonical string, ordinal int) string

var maskStrategies = map[EntityType]maskStrategy{
	EntityPersonName: maskPerson,
	EntityEmail:      maskEmail,
	EntityPhone:      maskPhone,
	EntitySSN:        maskSSN,
	EntityCreditCard: maskCreditCard,
	EntityAPIKey:     maskSecret,
	EntityAWSKey:     maskSecret,
}

// GenerateMask computes the mask token for a canonical value. Types without a
// specific strategy fall back to the fixed [TYPE] form, which is also the
// safe degradation path when canonicalization fails.
func GenerateMask(t EntityType, canonical string, ordinal int) string {
	if fn, ok := maskStrategies[t]; ok {
		return fn(canonical, ordinal)
	}
	return FallbackMask(t)
}

// FallbackMask returns the fully-opaque token for an entity type.
func FallbackMask(t EntityType) string {
	return "[" + strings.ToUpper(string(t)) + "]"
}

// maskPerson produces readable ordinal tokens: Person A, Person B, ... and
// Person AA once the alphabet is exhausted. Names are the one type where
// referential identity across a conversation beats opacity.
func maskPerson(_ string, ordinal int) string {
	return "Person " + letterLabel(ordinal)
}

// letterLabel converts a 1-based ordinal to bijective base-26 letters.
func letterLabel(n int) string {
	if n < 1 {
		n = 1
	}
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}

// maskEmail keeps the first two characters of the local part and of the first
// domain label, plus the full top-level suffix.
func maskEmail(canonical string, _ int) string {
	at := strings.IndexByte(canonical, '@')
	if at < 0 {
		return FallbackMask(EntityEmail)
	}
	local, domain := canonical[:at], canonical[at+1:]

	labels := strings.Split(domain, ".")
	labels[0] = keepPrefix(labels[0], 2)

	return keepPrefix(local, 2) + "@" + strings.Join(labels, ".")
}

// maskPhone keeps the first two and last four digits of the canonical
// (digits-only) number.
func maskPhone(canonical string, _ int) string {
	if len(canonical) <= 6 {
		return strings.Repeat("*", len(canonical))
	}
	return canonical[:2] + strings.Repeat("*", len(canonical)-6) + canonical[len(canonical)-4:]
}

// maskSSN is the fixed fully-opaque form regardless of value.
func maskSSN(_ string, _ int) string {
	return "***-**-****"
}

// maskCreditCard keeps the last four digits in grouped form.
func maskCreditCard(canonical string, _ int) string {
	if len(canonical) <= 4 {
		return strings.Repeat("*", len(canonical))
	}
	return "****-****-****-" + canonical[len(canonical)-4:]
}

// maskSecret keeps the first four and last four characters, masking the
// middle. Used for API keys and similar opaque credentials.
func maskSecret(canonical string, _ int) string {
	if len(canonical) <= 8 {
		return strings.Repeat("*", len(canonical))
	}
	return canonical[:4] + strings.Repeat("*", len(canonical)-8) + canonical[len(canonical)-4:]
}

// keepPrefix keeps up to n leading characters and stars the rest.
func keepPrefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + strings.Repeat("*", len(s)-n)
}
