// SPDX-License-Identifier: MIT

package decoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/ManuGH/tvgrid/internal/platform/httpx"
)

const maxManifestBytes = 4 << 20

// StatusError is a non-2xx answer from a media origin.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d", e.Code)
}

func isStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// open issues a GET and fails on non-2xx answers.
func open(ctx context.Context, client httpx.Doer, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}
	return resp, nil
}

// fetchManifest downloads a bounded text document and returns it with the
// final URL after redirects, which is the base for relative references.
func fetchManifest(ctx context.Context, client httpx.Doer, rawURL string) ([]byte, string, error) {
	resp, err := open(ctx, client, rawURL)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read manifest: %w", err)
	}
	if len(body) > maxManifestBytes {
		return nil, "", fmt.Errorf("manifest exceeds %d bytes", maxManifestBytes)
	}
	final := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return body, final, nil
}

// resolveRef resolves ref against base; absolute refs are returned as is.
func resolveRef(base, ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse reference %q: %w", ref, err)
	}
	if r.IsAbs() {
		return r.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base %q: %w", base, err)
	}
	return b.ResolveReference(r).String(), nil
}

// copyTo streams rawURL into w.
func copyTo(ctx context.Context, client httpx.Doer, rawURL string, w io.Writer) (int64, error) {
	resp, err := open(ctx, client, rawURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return io.Copy(w, resp.Body)
}
