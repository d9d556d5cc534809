// SPDX-License-Identifier: MIT

package decoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ManuGH/tvgrid/internal/platform/httpx"
	"github.com/grafov/m3u8"
)

const maxConsecutiveSegmentFailures = 3

// HLSEngine decodes HLS playlists with grafov/m3u8 and follows the media
// playlist segment by segment.
type HLSEngine struct {
	Client httpx.Doer
}

// NewHLS returns the HLS binding.
func NewHLS(client httpx.Doer, opts Options) *Decoder {
	return New(NameHLS, &HLSEngine{Client: client}, opts)
}

// Load is ready once a media playlist with at least one segment has been parsed.
func (e *HLSEngine) Load(ctx context.Context, rawURL string, nonFatal func(error)) (Stream, error) {
	media, base, err := e.loadMedia(ctx, rawURL, nonFatal)
	if err != nil {
		return nil, err
	}
	return &hlsStream{engine: e, url: base, media: media, nonFatal: nonFatal, seen: make(map[string]struct{})}, nil
}

func (e *HLSEngine) loadMedia(ctx context.Context, rawURL string, nonFatal func(error)) (*m3u8.MediaPlaylist, string, error) {
	pl, base, err := e.decode(ctx, rawURL)
	if err != nil {
		return nil, "", err
	}

	if master, ok := pl.(*m3u8.MasterPlaylist); ok {
		variant := pickVariant(master)
		if variant == nil {
			return nil, "", errors.New("master playlist has no variants")
		}
		variantURL, err := resolveRef(base, variant.URI)
		if err != nil {
			return nil, "", err
		}
		pl, base, err = e.decode(ctx, variantURL)
		if err != nil {
			return nil, "", fmt.Errorf("variant %s: %w", variant.URI, err)
		}
		if len(master.Variants) > 1 {
			nonFatal(fmt.Errorf("selected variant bandwidth=%d of %d", variant.Bandwidth, len(master.Variants)))
		}
	}

	media, ok := pl.(*m3u8.MediaPlaylist)
	if !ok {
		return nil, "", errors.New("nested master playlist")
	}
	if len(segments(media)) == 0 {
		return nil, "", errors.New("media playlist has no segments")
	}
	return media, base, nil
}

func (e *HLSEngine) decode(ctx context.Context, rawURL string) (m3u8.Playlist, string, error) {
	body, base, err := fetchManifest(ctx, e.Client, rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("fetch playlist: %w", err)
	}
	pl, _, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
	if err != nil {
		return nil, "", fmt.Errorf("parse playlist: %w", err)
	}
	return pl, base, nil
}

func pickVariant(master *m3u8.MasterPlaylist) *m3u8.Variant {
	var best *m3u8.Variant
	for _, v := range master.Variants {
		if v == nil || v.URI == "" {
			continue
		}
		if best == nil || v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	return best
}

func segments(media *m3u8.MediaPlaylist) []*m3u8.MediaSegment {
	out := make([]*m3u8.MediaSegment, 0, len(media.Segments))
	for _, s := range media.Segments {
		if s != nil && s.URI != "" {
			out = append(out, s)
		}
	}
	return out
}

type hlsStream struct {
	engine   *HLSEngine
	url      string
	media    *m3u8.MediaPlaylist
	nonFatal func(error)
	seen     map[string]struct{}
	sentInit bool
}

// Run writes every new segment, reloading live playlists every target duration.
func (s *hlsStream) Run(ctx context.Context, w io.Writer) error {
	failures := 0
	for {
		if s.media.Map != nil && s.media.Map.URI != "" && !s.sentInit {
			initURL, err := resolveRef(s.url, s.media.Map.URI)
			if err == nil {
				_, err = copyTo(ctx, s.engine.Client, initURL, w)
			}
			if err != nil {
				return fmt.Errorf("init segment: %w", err)
			}
			s.sentInit = true
		}

		for _, seg := range segments(s.media) {
			segURL, err := resolveRef(s.url, seg.URI)
			if err != nil {
				s.nonFatal(err)
				continue
			}
			if _, dup := s.seen[segURL]; dup {
				continue
			}
			s.seen[segURL] = struct{}{}

			if _, err := copyTo(ctx, s.engine.Client, segURL, w); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failures++
				s.nonFatal(fmt.Errorf("segment %s: %w", seg.URI, err))
				if failures >= maxConsecutiveSegmentFailures {
					return fmt.Errorf("%d consecutive segment failures: %w", failures, err)
				}
				continue
			}
			failures = 0
		}

		if s.media.Closed {
			return nil
		}

		wait := time.Duration(s.media.TargetDuration * float64(time.Second))
		if wait < time.Second {
			wait = time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		media, base, err := s.engine.loadMedia(ctx, s.url, s.nonFatal)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			s.nonFatal(fmt.Errorf("reload playlist: %w", err))
			if failures >= maxConsecutiveSegmentFailures {
				return fmt.Errorf("playlist reload failed: %w", err)
			}
			continue
		}
		s.media, s.url = media, base
	}
}

func (s *hlsStream) Close() error { return nil }
