// SPDX-License-Identifier: MIT

package decoder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/ManuGH/tvgrid/internal/platform/httpx"
)

// FLV tag types.
const (
	flvTagAudio  = 8
	flvTagVideo  = 9
	flvTagScript = 18
)

const (
	flvHeaderLen    = 9
	flvTagHeaderLen = 11
	flvMaxProbeTags = 64
	flvMaxProbeSize = 1 << 20
)

var (
	errNotFLV      = errors.New("not an flv stream")
	errFLVNoMedia  = errors.New("flv stream carried no media within the probe window")
	onMetaDataName = []byte("onMetaData")
)

// FLVEngine demuxes HTTP-FLV far enough to see metadata or the first media
// tag, then relays the byte stream untouched.
type FLVEngine struct {
	Client httpx.Doer
}

// NewFLV returns the FLV binding.
func NewFLV(client httpx.Doer, opts Options) *Decoder {
	return New(NameFLV, &FLVEngine{Client: client}, opts)
}

// FLVHeader is the parsed file header.
type FLVHeader struct {
	Version  uint8
	HasAudio bool
	HasVideo bool
	Offset   uint32
}

// FLVTag is a tag header; the payload is not retained.
type FLVTag struct {
	Type      uint8
	Size      uint32
	Timestamp uint32
}

// ParseFLVHeader reads the 9-byte FLV header plus any extension up to its
// data offset.
func ParseFLVHeader(r io.Reader) (FLVHeader, error) {
	var buf [flvHeaderLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return FLVHeader{}, fmt.Errorf("%w: %v", errNotFLV, err)
	}
	if buf[0] != 'F' || buf[1] != 'L' || buf[2] != 'V' {
		return FLVHeader{}, errNotFLV
	}
	h := FLVHeader{
		Version:  buf[3],
		HasAudio: buf[4]&0x04 != 0,
		HasVideo: buf[4]&0x01 != 0,
		Offset:   binary.BigEndian.Uint32(buf[5:9]),
	}
	if h.Offset < flvHeaderLen {
		return FLVHeader{}, fmt.Errorf("%w: data offset %d", errNotFLV, h.Offset)
	}
	if extra := int64(h.Offset) - flvHeaderLen; extra > 0 {
		if _, err := io.CopyN(io.Discard, r, extra); err != nil {
			return FLVHeader{}, fmt.Errorf("skip header extension: %w", err)
		}
	}
	return h, nil
}

// ReadFLVTag reads PreviousTagSize and one tag header, and hands the payload
// to payload (which must consume exactly tag.Size bytes) or discards it.
func ReadFLVTag(r io.Reader, payload func(FLVTag, io.Reader) error) (FLVTag, error) {
	var buf [4 + flvTagHeaderLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return FLVTag{}, err
	}
	h := buf[4:]
	tag := FLVTag{
		Type:      h[0] & 0x1f,
		Size:      uint32(h[1])<<16 | uint32(h[2])<<8 | uint32(h[3]),
		Timestamp: uint32(h[7])<<24 | uint32(h[4])<<16 | uint32(h[5])<<8 | uint32(h[6]),
	}
	switch tag.Type {
	case flvTagAudio, flvTagVideo, flvTagScript:
	default:
		return tag, fmt.Errorf("unknown flv tag type %d", tag.Type)
	}
	body := io.LimitReader(r, int64(tag.Size))
	if payload != nil {
		if err := payload(tag, body); err != nil {
			return tag, err
		}
	}
	if _, err := io.Copy(io.Discard, body); err != nil {
		return tag, err
	}
	return tag, nil
}

// Load is ready at the onMetaData script tag or the first audio/video tag.
func (e *FLVEngine) Load(ctx context.Context, rawURL string, nonFatal func(error)) (Stream, error) {
	resp, err := open(ctx, e.Client, rawURL)
	if err != nil {
		return nil, err
	}

	var consumed bytes.Buffer
	br := bufio.NewReader(resp.Body)
	tee := io.TeeReader(br, &consumed)

	if _, err := ParseFLVHeader(tee); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}

	for i := 0; i < flvMaxProbeTags && consumed.Len() < flvMaxProbeSize; i++ {
		var metadata bool
		tag, err := ReadFLVTag(tee, func(t FLVTag, body io.Reader) error {
			if t.Type != flvTagScript {
				return nil
			}
			head := make([]byte, 3+len(onMetaDataName))
			n, _ := io.ReadFull(body, head)
			metadata = bytes.Contains(head[:n], onMetaDataName)
			return nil
		})
		if err != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("read flv tag: %w", err)
		}
		if metadata || tag.Type == flvTagAudio || tag.Type == flvTagVideo {
			return &flvStream{prefix: consumed.Bytes(), body: br, closer: resp.Body}, nil
		}
		nonFatal(fmt.Errorf("skipping flv script tag before media"))
	}

	_ = resp.Body.Close()
	return nil, errFLVNoMedia
}

type flvStream struct {
	prefix []byte
	body   io.Reader
	closer io.Closer
}

// Run replays the probed prefix and then relays the live body.
func (s *flvStream) Run(ctx context.Context, w io.Writer) error {
	stop := context.AfterFunc(ctx, func() { _ = s.closer.Close() })
	defer stop()

	if _, err := w.Write(s.prefix); err != nil {
		return err
	}
	_, err := io.Copy(w, s.body)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *flvStream) Close() error { return s.closer.Close() }
