// SPDX-License-Identifier: MIT

package decoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ManuGH/tvgrid/internal/platform/httpx"
	"github.com/ManuGH/tvgrid/internal/playback/format"
)

const nativeSniffBytes = 4096

// NativeEngine plays progressive media directly: the body is sniffed and
// relayed as is. Manifests are only accepted when HLS is set, which models
// clients with built-in HLS playback.
type NativeEngine struct {
	Client httpx.Doer
	HLS    Engine
}

// NewNative returns the native binding. hls may be nil.
func NewNative(client httpx.Doer, hls Engine, opts Options) *Decoder {
	return New(NameNative, &NativeEngine{Client: client, HLS: hls}, opts)
}

// Load is ready once the first bytes are recognised as playable media.
func (e *NativeEngine) Load(ctx context.Context, rawURL string, nonFatal func(error)) (Stream, error) {
	resp, err := open(ctx, e.Client, rawURL)
	if err != nil {
		return nil, err
	}

	head := make([]byte, nativeSniffBytes)
	n, err := io.ReadAtLeast(resp.Body, head, 1)
	if err != nil {
		_ = resp.Body.Close()
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty response body")
		}
		return nil, fmt.Errorf("read media head: %w", err)
	}
	head = head[:n]

	ct := resp.Header.Get("Content-Type")
	content := format.SniffContent(ct, head)
	switch {
	case content.Playable():
	case content == format.ContentHLS && e.HLS != nil:
		_ = resp.Body.Close()
		return e.HLS.Load(ctx, rawURL, nonFatal)
	case content == format.ContentUnknown && strings.HasPrefix(strings.ToLower(ct), "application/octet-stream"):
		nonFatal(errors.New("unrecognised octet-stream, relaying as is"))
	default:
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unsupported media content %s", content)
	}

	return &nativeStream{head: head, body: resp.Body}, nil
}

type nativeStream struct {
	head []byte
	body io.ReadCloser
}

func (s *nativeStream) Run(ctx context.Context, w io.Writer) error {
	stop := context.AfterFunc(ctx, func() { _ = s.body.Close() })
	defer stop()

	if _, err := w.Write(s.head); err != nil {
		return err
	}
	_, err := io.Copy(w, s.body)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *nativeStream) Close() error { return s.body.Close() }
