package proxy

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// minSecretLen is the shortest secret the sanitizer will redact. Below
// this length a secret is too likely to collide with ordinary output
// text, so it is left alone rather than mangling unrelated content.
const minSecretLen = 4

// redacted replaces every matched occurrence of a secret.
const redacted = "[REDACTED]"

// sanitize replaces every occurrence of each secret in output, across
// six encodings an upstream server or shell might have applied to it:
// raw, standard base64, URL-safe base64, percent-encoding, and hex in
// both cases. A credential's secret almost never appears byte-for-byte
// in a response — it shows up re-encoded in a Set-Cookie header, a
// signed URL, a JSON error payload — so the proxy pipeline checks all
// of them before returning anything to the caller.
func sanitize(output string, secrets [][]byte) string {
	result := output
	for _, secret := range secrets {
		if len(secret) < minSecretLen {
			continue
		}
		s := string(secret)

		result = strings.ReplaceAll(result, s, redacted)

		if b64 := base64.RawStdEncoding.EncodeToString(secret); len(b64) >= minSecretLen {
			result = strings.ReplaceAll(result, b64, redacted)
		}

		if b64url := base64.RawURLEncoding.EncodeToString(secret); len(b64url) >= minSecretLen {
			result = strings.ReplaceAll(result, b64url, redacted)
		}

		if enc := percentEncode(s); enc != s && len(enc) >= minSecretLen {
			result = strings.ReplaceAll(result, enc, redacted)
		}

		hx := hex.EncodeToString(secret)
		if len(hx) >= minSecretLen {
			result = strings.ReplaceAll(result, hx, redacted)
		}
		if upper := strings.ToUpper(hx); upper != hx {
			result = strings.ReplaceAll(result, upper, redacted)
		}
	}
	return result
}

// sanitizeHeaders applies sanitize to every header value, leaving
// names untouched.
func sanitizeHeaders(headers map[string]string, secrets [][]byte) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = sanitize(v, secrets)
	}
	return out
}

// percentEncode escapes every byte outside RFC 3986's unreserved set
// (ALPHA / DIGIT / "-" / "." / "_" / "~"). It exists because
// net/url.QueryEscape encodes a space as "+", while the secret strings
// this sanitizer hunts for are percent-encoded the way a URL path or
// query value would be, with a literal "%20".
func percentEncode(s string) string {
	const hexDigits = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '.', c == '_', c == '~':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0f])
		}
	}
	return b.String()
}
