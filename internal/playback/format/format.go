// SPDX-License-Identifier: MIT

// Package format guesses the container or transport of a stream from its URL
// and, when bytes are available, from the first few bytes of the body.
package format

import (
	"bytes"
	"strings"
)

// Kind is the transport/container family of a stream.
type Kind int

const (
	Unknown Kind = iota
	HLS
	FLV
	DASH
	MP4
	RTMP
	WebRTC
)

func (k Kind) String() string {
	switch k {
	case HLS:
		return "hls"
	case FLV:
		return "flv"
	case DASH:
		return "dash"
	case MP4:
		return "mp4"
	case RTMP:
		return "rtmp"
	case WebRTC:
		return "webrtc"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Confidence says whether a hypothesis is good enough to try its binding
// before any reachability probing.
type Confidence int

const (
	Fallback Confidence = iota
	Optimal
)

func (c Confidence) String() string {
	if c == Optimal {
		return "optimal"
	}
	return "fallback"
}

// MarshalText implements encoding.TextMarshaler.
func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Hypothesis is the classifier verdict for one URL. It is never cached.
type Hypothesis struct {
	Kind       Kind       `json:"kind"`
	Confidence Confidence `json:"confidence"`
}

// Ambiguous reports whether the caller should fall back to a trial order
// instead of trusting Kind.
func (h Hypothesis) Ambiguous() bool {
	return h.Confidence != Optimal
}

// Classify inspects url and returns a format hypothesis. It performs no I/O.
func Classify(url string) Hypothesis {
	kind := classifyKind(strings.ToLower(strings.TrimSpace(url)))
	h := Hypothesis{Kind: kind, Confidence: Fallback}
	switch kind {
	case HLS, FLV, DASH, MP4:
		h.Confidence = Optimal
	}
	return h
}

func classifyKind(u string) Kind {
	switch {
	case strings.Contains(u, ".m3u8"), strings.Contains(u, "hls"):
		return HLS
	case strings.Contains(u, ".flv"), strings.Contains(u, "flv"):
		return FLV
	case strings.Contains(u, ".mpd"), strings.Contains(u, "dash"):
		return DASH
	case strings.Contains(u, ".mp4"):
		return MP4
	case strings.HasPrefix(u, "rtmp://"), strings.HasPrefix(u, "rtmps://"):
		return RTMP
	case strings.Contains(u, "webrtc"), strings.Contains(u, ".sdp"):
		return WebRTC
	default:
		return Unknown
	}
}

// Content is the verdict of SniffContent.
type Content int

const (
	ContentUnknown Content = iota
	ContentHLS
	ContentFLV
	ContentDASH
	ContentMP4
	ContentMPEGTS
	ContentAudio
	ContentHTML
)

func (c Content) String() string {
	switch c {
	case ContentHLS:
		return "hls"
	case ContentFLV:
		return "flv"
	case ContentDASH:
		return "dash"
	case ContentMP4:
		return "mp4"
	case ContentMPEGTS:
		return "mpegts"
	case ContentAudio:
		return "audio"
	case ContentHTML:
		return "html"
	default:
		return "unknown"
	}
}

// Playable reports whether the content is media a progressive player can consume.
func (c Content) Playable() bool {
	switch c {
	case ContentMP4, ContentMPEGTS, ContentAudio, ContentFLV:
		return true
	}
	return false
}

const tsSyncByte = 0x47

// SniffContent classifies the first bytes of a response body, using the
// Content-Type header as a tie breaker.
func SniffContent(contentType string, head []byte) Content {
	trimmed := bytes.TrimLeft(head, " \t\r\n\xef\xbb\xbf")
	ct := strings.ToLower(contentType)

	switch {
	case bytes.HasPrefix(trimmed, []byte("#EXTM3U")):
		return ContentHLS
	case len(head) >= 3 && bytes.Equal(head[:3], []byte("FLV")):
		return ContentFLV
	case isMPD(trimmed):
		return ContentDASH
	case len(head) >= 8 && bytes.Equal(head[4:8], []byte("ftyp")):
		return ContentMP4
	case isTransportStream(head):
		return ContentMPEGTS
	case bytes.HasPrefix(head, []byte("ID3")), len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return ContentAudio
	case isHTML(trimmed), strings.HasPrefix(ct, "text/html"):
		return ContentHTML
	}

	switch {
	case strings.Contains(ct, "mpegurl"):
		return ContentHLS
	case strings.Contains(ct, "dash+xml"):
		return ContentDASH
	case strings.Contains(ct, "video/mp2t"):
		return ContentMPEGTS
	case strings.Contains(ct, "video/x-flv"):
		return ContentFLV
	case strings.HasPrefix(ct, "video/"):
		return ContentMP4
	case strings.HasPrefix(ct, "audio/"):
		return ContentAudio
	}
	return ContentUnknown
}

func isMPD(b []byte) bool {
	if len(b) > 512 {
		b = b[:512]
	}
	return bytes.Contains(b, []byte("<MPD"))
}

func isHTML(b []byte) bool {
	if len(b) > 64 {
		b = b[:64]
	}
	lower := bytes.ToLower(b)
	return bytes.HasPrefix(lower, []byte("<!doctype html")) || bytes.HasPrefix(lower, []byte("<html"))
}

// isTransportStream needs two sync bytes one packet apart; a single 0x47 is
// too common to mean anything.
func isTransportStream(b []byte) bool {
	if len(b) < 189 {
		return len(b) > 0 && b[0] == tsSyncByte && len(b) == 188
	}
	return b[0] == tsSyncByte && b[188] == tsSyncByte
}
