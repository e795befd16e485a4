package proxy

import (
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeRaw(t *testing.T) {
	secrets := [][]byte{[]byte("mysecrettoken")}
	out := sanitize("Response: mysecrettoken was used", secrets)
	require.Equal(t, "Response: [REDACTED] was used", out)
}

func TestSanitizeBase64(t *testing.T) {
	secret := "mysecrettoken"
	b64 := base64.RawStdEncoding.EncodeToString([]byte(secret))
	out := sanitize("Header: "+b64, [][]byte{[]byte(secret)})
	require.Equal(t, "Header: [REDACTED]", out)
}

func TestSanitizePercentEncoded(t *testing.T) {
	secret := "my secret&token"
	enc := percentEncode(secret)
	out := sanitize("URL: https://example.com?key="+enc, [][]byte{[]byte(secret)})
	require.NotContains(t, out, secret)
	require.NotContains(t, out, enc)
}

func TestSanitizeHex(t *testing.T) {
	secret := "mykeyvalue"
	hx := hex.EncodeToString([]byte(secret))
	out := sanitize("Data: "+hx, [][]byte{[]byte(secret)})
	require.Equal(t, "Data: [REDACTED]", out)
}

func TestSanitizeSkipsShortSecrets(t *testing.T) {
	out := sanitize("This has ab in it", [][]byte{[]byte("ab")})
	require.Equal(t, "This has ab in it", out)
}

func TestSanitizeMultipleSecrets(t *testing.T) {
	secrets := [][]byte{[]byte("secret1"), []byte("secret2")}
	out := sanitize("Found secret1 and secret2 here", secrets)
	require.Equal(t, "Found [REDACTED] and [REDACTED] here", out)
}

func TestSanitizeHeaders(t *testing.T) {
	secrets := [][]byte{[]byte("Bearer mytoken123"), []byte("mytoken123")}
	headers := map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer mytoken123",
	}
	out := sanitizeHeaders(headers, secrets)
	require.Equal(t, "application/json", out["Content-Type"])
	require.Equal(t, "[REDACTED]", out["Authorization"])
}
