package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// HashToken is the form credential tokens are indexed and persisted in.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func ConstantTimeEqualHex(aHex, bHex string) bool {
	a, err1 := hex.DecodeString(aHex)
	b, err2 := hex.DecodeString(bHex)
	if err1 != nil || err2 != nil {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

const sealPrefix = "sha256:"

// SealToken replaces a credential token by its hash for persistence. Sealing twice is a no-op.
func SealToken(token string) string {
	if strings.HasPrefix(token, sealPrefix) {
		return token
	}
	return sealPrefix + HashToken(token)
}

// SealedHash returns the token hash of a stored credential, sealed or not.
func SealedHash(stored string) string {
	if strings.HasPrefix(stored, sealPrefix) {
		return stored[len(sealPrefix):]
	}
	return HashToken(stored)
}

// MatchSealed reports whether presented is the token a stored credential was issued for.
func MatchSealed(stored, presented string) bool {
	return ConstantTimeEqualHex(SealedHash(stored), HashToken(presented))
}

// TokenFromHeader extracts the credential token from an Authorization header value.
// Both the "Token" and "Bearer" schemes are accepted.
func TokenFromHeader(h string) string {
	h = strings.TrimSpace(h)
	for _, scheme := range []string{"Token ", "Bearer "} {
		if len(h) > len(scheme) && strings.EqualFold(h[:len(scheme)], scheme) {
			return strings.TrimSpace(h[len(scheme):])
		}
	}
	return ""
}

// TokenCandidates lists the values a presented token may have been issued as: the literal
// value and, when it decodes, its base64 form.
func TokenCandidates(token string) []string {
	if token == "" {
		return nil
	}
	out := []string{token}
	if raw, err := base64.StdEncoding.DecodeString(token); err == nil && len(raw) > 0 && string(raw) != token {
		out = append(out, string(raw))
	}
	return out
}
