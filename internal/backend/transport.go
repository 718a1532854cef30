package backend

import (
	"crypto/tls"
	stderrors "errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/zeteolabs/zeteo/internal/pkg/errors"
)

const (
	defaultQueryTimeout = 30 * time.Second

	// maxErrorBody bounds how much of a failed response we read back
	// for the error message.
	maxErrorBody = 2048
)

// newHTTPClient builds a pooled client shared by all requests to one
// backend. verifySSL=false disables certificate checks for self-signed
// lab clusters.
func newHTTPClient(timeout time.Duration, verifySSL bool) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	if !verifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// transportError maps a failed round trip onto the error taxonomy.
func transportError(backend string, err error) error {
	var urlErr *url.Error
	if stderrors.As(err, &urlErr) && urlErr.Timeout() {
		return errors.TimeoutError(backend + " query")
	}
	return errors.NetworkError(backend+" request failed", err)
}

// statusError maps a non-2xx response onto the error taxonomy.
// 401/403 are credential problems; 400 means the backend could not
// make sense of the query we built; timeouts and everything server-side
// read as transient.
func statusError(backend string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.AuthError(backend)
	case resp.StatusCode == http.StatusBadRequest:
		return errors.Newf(errors.CodeParse, "%s rejected query: %s", backend, string(body))
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return errors.TimeoutError(backend + " query")
	default:
		return errors.Newf(errors.CodeNetwork, "%s returned status %d: %s", backend, resp.StatusCode, string(body))
	}
}
