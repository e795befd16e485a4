package proxy

import (
	"bytes"
	"crypto/tls"
	"io"
	"net/http"
	"strings"

	"github.com/gravitational/trace"

	"github.com/passman/vault/internal/vault"
)

// HTTPRequestInput is the caller-supplied half of an http_request call.
type HTTPRequestInput struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

// HTTPResponse is the sanitized result of an http_request call.
type HTTPResponse struct {
	Status  int
	Headers map[string]string
	Body    string
}

// ExecuteHTTP injects credential authentication into input and sends
// the request, sanitizing the response before returning it. Supported
// credential kinds: APITokenSecret (header injection), PasswordSecret
// (HTTP basic auth), CertificateSecret (mTLS client identity). Any
// other kind is rejected.
func ExecuteHTTP(secret vault.Secret, input HTTPRequestInput) (*HTTPResponse, error) {
	method := strings.ToUpper(input.Method)
	if method == "" {
		return nil, trace.BadParameter("HTTP method must not be empty")
	}

	client := &http.Client{}
	var basicAuth *struct{ user, pass string }
	var tokenHeader, tokenValue string

	switch s := secret.(type) {
	case vault.APITokenSecret:
		tokenHeader, tokenValue = s.EffectiveHeaderName(), s.EffectivePrefix()+s.Token

	case vault.PasswordSecret:
		basicAuth = &struct{ user, pass string }{s.Username, s.Password}

	case vault.CertificateSecret:
		cert, err := tls.X509KeyPair([]byte(s.CertPEM), []byte(s.KeyPEM))
		if err != nil {
			return nil, trace.BadParameter("invalid certificate/key PEM: %v", err)
		}
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			},
		}

	default:
		return nil, trace.BadParameter("credential type not supported for HTTP requests")
	}

	var body io.Reader
	if input.Body != "" {
		body = bytes.NewBufferString(input.Body)
	}

	req, err := http.NewRequest(method, input.URL, body)
	if err != nil {
		return nil, trace.BadParameter("invalid HTTP request: %v", err)
	}

	// Credential injection happens first, then caller headers are
	// merged on top — a caller-supplied header of the same name wins.
	if tokenHeader != "" {
		req.Header.Set(tokenHeader, tokenValue)
	}
	if basicAuth != nil {
		req.SetBasicAuth(basicAuth.user, basicAuth.pass)
	}
	for k, v := range input.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, trace.Wrap(err, "HTTP request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, trace.Wrap(err, "failed to read response body")
	}

	respHeaders := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	secrets := secret.SecretStrings()
	return &HTTPResponse{
		Status:  resp.StatusCode,
		Headers: sanitizeHeaders(respHeaders, secrets),
		Body:    sanitize(string(respBody), secrets),
	}, nil
}
