// SPDX-License-Identifier: MIT

package decoder

import (
	"bytes"
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ManuGH/tvgrid/internal/playback/format"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ignore(error) {}

func serve(t *testing.T, routes map[string]string, contentType map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if ct := contentType[r.URL.Path]; ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const masterPlaylist = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=100000
low/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=900000
high/index.m3u8
`

const vodPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:2
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:2.0,
seg0.ts
#EXTINF:2.0,
seg1.ts
#EXT-X-ENDLIST
`

func TestHLSEngine_FollowsHighestVariant(t *testing.T) {
	srv := serve(t, map[string]string{
		"/live/master.m3u8":     masterPlaylist,
		"/live/high/index.m3u8": vodPlaylist,
		"/live/high/seg0.ts":    "AAAA",
		"/live/high/seg1.ts":    "BBBB",
	}, nil)

	e := &HLSEngine{Client: srv.Client()}
	stream, err := e.Load(context.Background(), srv.URL+"/live/master.m3u8", ignore)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, stream.Run(context.Background(), &out))
	assert.Equal(t, "AAAABBBB", out.String())
	require.NoError(t, stream.Close())
}

func TestHLSEngine_RejectsEmptyPlaylist(t *testing.T) {
	srv := serve(t, map[string]string{
		"/empty.m3u8": "#EXTM3U\n#EXT-X-TARGETDURATION:2\n#EXT-X-ENDLIST\n",
	}, nil)

	_, err := (&HLSEngine{Client: srv.Client()}).Load(context.Background(), srv.URL+"/empty.m3u8", ignore)
	assert.ErrorContains(t, err, "no segments")
}

func TestHLSEngine_SegmentFailuresAreBounded(t *testing.T) {
	srv := serve(t, map[string]string{
		"/live.m3u8": "#EXTM3U\n#EXT-X-TARGETDURATION:1\n#EXTINF:1,\na.ts\n#EXTINF:1,\nb.ts\n#EXTINF:1,\nc.ts\n#EXT-X-ENDLIST\n",
	}, nil)

	var warnings int
	stream, err := (&HLSEngine{Client: srv.Client()}).Load(context.Background(), srv.URL+"/live.m3u8", ignore)
	require.NoError(t, err)
	stream.(*hlsStream).nonFatal = func(error) { warnings++ }

	err = stream.Run(context.Background(), &bytes.Buffer{})
	assert.ErrorContains(t, err, "consecutive segment failures")
	assert.Equal(t, 3, warnings)
}

func TestHLSEngine_NotFound(t *testing.T) {
	srv := serve(t, nil, nil)
	_, err := (&HLSEngine{Client: srv.Client()}).Load(context.Background(), srv.URL+"/missing.m3u8", ignore)
	require.Error(t, err)
	assert.True(t, isStatus(err, http.StatusNotFound))
}

func flvFile(tags ...[]byte) []byte {
	var b bytes.Buffer
	b.Write([]byte{'F', 'L', 'V', 1, 0x05, 0, 0, 0, 9})
	prev := uint32(0)
	for _, tag := range tags {
		_ = binary.Write(&b, binary.BigEndian, prev)
		b.Write(tag)
		prev = uint32(len(tag))
	}
	return b.Bytes()
}

func flvTag(typ byte, payload []byte) []byte {
	n := len(payload)
	h := []byte{typ, byte(n >> 16), byte(n >> 8), byte(n), 0, 0, 0, 0, 0, 0, 0}
	return append(h, payload...)
}

func TestFLVEngine_ReadyOnMetadata(t *testing.T) {
	meta := append([]byte{0x02, 0x00, 0x0a}, []byte("onMetaData")...)
	file := flvFile(flvTag(flvTagScript, meta), flvTag(flvTagVideo, []byte{0x17, 0, 0, 0, 0}))
	srv := serve(t, map[string]string{"/live.flv": string(file)}, nil)

	stream, err := (&FLVEngine{Client: srv.Client()}).Load(context.Background(), srv.URL+"/live.flv", ignore)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, stream.Run(context.Background(), &out))
	assert.Equal(t, file, out.Bytes(), "probed bytes are replayed in order")
}

func TestFLVEngine_ReadyOnFirstMediaTag(t *testing.T) {
	file := flvFile(flvTag(flvTagAudio, []byte{0xaf, 0x01}))
	srv := serve(t, map[string]string{"/a.flv": string(file)}, nil)

	_, err := (&FLVEngine{Client: srv.Client()}).Load(context.Background(), srv.URL+"/a.flv", ignore)
	require.NoError(t, err)
}

func TestFLVEngine_RejectsNonFLV(t *testing.T) {
	srv := serve(t, map[string]string{"/page": "<html>nope</html>"}, nil)
	_, err := (&FLVEngine{Client: srv.Client()}).Load(context.Background(), srv.URL+"/page", ignore)
	assert.ErrorIs(t, err, errNotFLV)
}

func TestParseFLVHeader_BadOffset(t *testing.T) {
	_, err := ParseFLVHeader(bytes.NewReader([]byte{'F', 'L', 'V', 1, 5, 0, 0, 0, 3}))
	assert.ErrorIs(t, err, errNotFLV)
}

func TestReadFLVTag_UnknownType(t *testing.T) {
	var b bytes.Buffer
	b.Write([]byte{0, 0, 0, 0})
	b.Write(flvTag(7, nil))
	_, err := ReadFLVTag(&b, nil)
	assert.ErrorContains(t, err, "unknown flv tag type 7")
}

const manifest = `<?xml version="1.0"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static">
  <Period>
    <AdaptationSet contentType="audio">
      <Representation id="a1" bandwidth="64000" mimeType="audio/mp4"/>
    </AdaptationSet>
    <AdaptationSet mimeType="video/mp4">
      <SegmentTemplate initialization="init-$RepresentationID$.mp4" media="seg-$RepresentationID$-$Number%03d$.m4s" startNumber="1"/>
      <Representation id="v1" bandwidth="500000"/>
      <Representation id="v2" bandwidth="2000000"/>
    </AdaptationSet>
  </Period>
</MPD>`

func TestDASHEngine_PlaysNumberedSegments(t *testing.T) {
	srv := serve(t, map[string]string{
		"/dash/manifest.mpd":   manifest,
		"/dash/init-v2.mp4":    "I",
		"/dash/seg-v2-001.m4s": "1",
		"/dash/seg-v2-002.m4s": "2",
	}, nil)

	stream, err := (&DASHEngine{Client: srv.Client()}).Load(context.Background(), srv.URL+"/dash/manifest.mpd", ignore)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, stream.Run(context.Background(), &out))
	assert.Equal(t, "I12", out.String())
}

const timelineManifest = `<?xml version="1.0"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static">
  <BaseURL>media/</BaseURL>
  <Period>
    <AdaptationSet mimeType="video/mp4">
      <SegmentTemplate timescale="1000" initialization="$RepresentationID$/init.mp4" media="$RepresentationID$/$Time$.m4s">
        <SegmentTimeline>
          <S t="1000" d="2000" r="1"/>
          <S d="500"/>
        </SegmentTimeline>
      </SegmentTemplate>
      <Representation id="v" bandwidth="1000000"/>
    </AdaptationSet>
  </Period>
</MPD>`

func TestDASHEngine_PlaysSegmentTimeline(t *testing.T) {
	srv := serve(t, map[string]string{
		"/tv/live.mpd":         timelineManifest,
		"/tv/media/v/init.mp4": "I",
		"/tv/media/v/1000.m4s": "a",
		"/tv/media/v/3000.m4s": "b",
		"/tv/media/v/5000.m4s": "c",
	}, nil)

	stream, err := (&DASHEngine{Client: srv.Client()}).Load(context.Background(), srv.URL+"/tv/live.mpd", ignore)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, stream.Run(context.Background(), &out))
	assert.Equal(t, "Iabc", out.String())
}

func TestDASHEngine_RejectsTimeTemplateWithoutTimeline(t *testing.T) {
	mpd := `<MPD><Period><AdaptationSet mimeType="video/mp4"><SegmentTemplate media="$Time$.m4s"/><Representation id="v" bandwidth="1"/></AdaptationSet></Period></MPD>`
	srv := serve(t, map[string]string{"/m.mpd": mpd}, nil)

	_, err := (&DASHEngine{Client: srv.Client()}).Load(context.Background(), srv.URL+"/m.mpd", ignore)
	assert.ErrorContains(t, err, "no SegmentTimeline")
}

func TestSegmentTemplate_Expand(t *testing.T) {
	rep := &Representation{ID: "v1", Bandwidth: 800}
	tmpl := &SegmentTemplate{}
	assert.Equal(t, "v1/800/0042/42/00090/90/$",
		tmpl.expand("$RepresentationID$/$Bandwidth$/$Number%04d$/$Number$/$Time%05d$/$Time$/$$", rep, 42, 90))
}

func TestSegmentTemplate_OpenEndedRepeat(t *testing.T) {
	m, err := ParseMPD([]byte(`<MPD><Period><AdaptationSet><SegmentTemplate media="s-$Number$-$Time$" startNumber="5">
<SegmentTimeline><S t="0" d="10" r="-1"/><S t="40" d="10"/></SegmentTimeline></SegmentTemplate>
<Representation id="a"/></AdaptationSet></Period></MPD>`), "http://cdn.test/x/m.mpd")
	require.NoError(t, err)
	rep, ok := m.Representation("a")
	require.True(t, ok)

	segs, err := rep.Template().Segments(rep)
	require.NoError(t, err)
	var got []string
	for _, s := range segs {
		got = append(got, s.URL.String())
	}
	assert.Equal(t, []string{
		"http://cdn.test/x/s-5-0",
		"http://cdn.test/x/s-6-10",
		"http://cdn.test/x/s-7-20",
		"http://cdn.test/x/s-8-30",
		"http://cdn.test/x/s-9-40",
	}, got)
}

func TestRepresentation_ResolveBaseURL(t *testing.T) {
	m, err := ParseMPD([]byte(`<MPD><BaseURL>https://edge.test/root/</BaseURL><Period><BaseURL>p1/</BaseURL>
<AdaptationSet mimeType="video/mp4"><BaseURL>video/</BaseURL><Representation id="hd"><BaseURL>hd/</BaseURL></Representation></AdaptationSet></Period></MPD>`), "http://origin.test/m.mpd")
	require.NoError(t, err)
	rep, ok := m.Representation("hd")
	require.True(t, ok)

	base, err := rep.ResolveBaseURL()
	require.NoError(t, err)
	assert.Equal(t, "https://edge.test/root/p1/video/hd/", base.String())
	assert.Equal(t, "video/mp4", rep.MIMEType())
}

func TestNativeEngine_AcceptsProgressiveMedia(t *testing.T) {
	mp4 := string([]byte{0, 0, 0, 0x18}) + "ftypisom" + "moovdata"
	srv := serve(t, map[string]string{"/clip.mp4": mp4}, map[string]string{"/clip.mp4": "video/mp4"})

	stream, err := (&NativeEngine{Client: srv.Client()}).Load(context.Background(), srv.URL+"/clip.mp4", ignore)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, stream.Run(context.Background(), &out))
	assert.Equal(t, mp4, out.String())
}

func TestNativeEngine_Rejects(t *testing.T) {
	srv := serve(t, map[string]string{
		"/page":      "<!DOCTYPE html><html></html>",
		"/live.m3u8": vodPlaylist,
		"/empty":     "",
	}, map[string]string{"/page": "text/html"})

	e := &NativeEngine{Client: srv.Client()}
	for _, path := range []string{"/page", "/live.m3u8", "/empty"} {
		_, err := e.Load(context.Background(), srv.URL+path, ignore)
		assert.Error(t, err, path)
	}
}

func TestNativeEngine_DelegatesHLSWhenSupported(t *testing.T) {
	srv := serve(t, map[string]string{"/live.m3u8": vodPlaylist, "/seg0.ts": "x", "/seg1.ts": "y"}, nil)

	e := &NativeEngine{Client: srv.Client(), HLS: &HLSEngine{Client: srv.Client()}}
	stream, err := e.Load(context.Background(), srv.URL+"/live.m3u8", ignore)
	require.NoError(t, err)
	assert.IsType(t, &hlsStream{}, stream)
}

func TestSet_ForKind(t *testing.T) {
	s := NewSet(SetConfig{Client: http.DefaultClient})
	assert.Equal(t, []string{NameDASH, NameFLV, NameHLS, NameNative}, s.Names())

	for kind, want := range map[format.Kind]string{
		format.HLS:  NameHLS,
		format.FLV:  NameFLV,
		format.DASH: NameDASH,
		format.MP4:  NameNative,
	} {
		b, ok := s.ForKind(kind)
		require.True(t, ok)
		assert.Equal(t, want, b.Name())
	}
	_, ok := s.ForKind(format.RTMP)
	assert.False(t, ok)
	s.DetachAll()
}
