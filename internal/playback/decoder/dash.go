// SPDX-License-Identifier: MIT

package decoder

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/grafana/regexp"

	"github.com/ManuGH/tvgrid/internal/platform/httpx"
)

// maxTimelineSegments bounds SegmentTimeline expansion of one manifest.
const maxTimelineSegments = 10000

// MPD is the subset of a DASH manifest needed to address segments. Parsed
// elements keep a link to their parent so a Representation can resolve its
// own base URL and inherited SegmentTemplate.
type MPD struct {
	XMLName xml.Name `xml:"MPD"`
	Type    string   `xml:"type,attr"`
	BaseURL string   `xml:"BaseURL"`
	Periods []Period `xml:"Period"`

	location *url.URL
}

type Period struct {
	BaseURL         string           `xml:"BaseURL"`
	SegmentTemplate *SegmentTemplate `xml:"SegmentTemplate"`
	AdaptationSets  []AdaptationSet  `xml:"AdaptationSet"`

	mpd *MPD
}

type AdaptationSet struct {
	MimeType        string           `xml:"mimeType,attr"`
	ContentType     string           `xml:"contentType,attr"`
	BaseURL         string           `xml:"BaseURL"`
	SegmentTemplate *SegmentTemplate `xml:"SegmentTemplate"`
	Representations []Representation `xml:"Representation"`

	period *Period
}

type Representation struct {
	ID              string           `xml:"id,attr"`
	Bandwidth       int64            `xml:"bandwidth,attr"`
	MimeType        string           `xml:"mimeType,attr"`
	BaseURL         string           `xml:"BaseURL"`
	SegmentTemplate *SegmentTemplate `xml:"SegmentTemplate"`

	set *AdaptationSet
}

type SegmentTemplate struct {
	Initialization string           `xml:"initialization,attr"`
	Media          string           `xml:"media,attr"`
	StartNumber    *int64           `xml:"startNumber,attr"`
	Timescale      int64            `xml:"timescale,attr"`
	Timeline       *SegmentTimeline `xml:"SegmentTimeline"`
}

type SegmentTimeline struct {
	S []TimelineEntry `xml:"S"`
}

// TimelineEntry is one S element: R+1 segments of duration D starting at T.
type TimelineEntry struct {
	T *int64 `xml:"t,attr"`
	D int64  `xml:"d,attr"`
	R int64  `xml:"r,attr"`
}

// Segment is one addressable media segment.
type Segment struct {
	URL *url.URL
	// Number and Time are the $Number$ and $Time$ values it was built from.
	Number   int64
	Time     int64
	Duration time.Duration
}

// ParseMPD decodes a manifest fetched from location.
func ParseMPD(data []byte, location string) (*MPD, error) {
	loc, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse mpd location: %w", err)
	}
	m := &MPD{location: loc}
	if err := xml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse mpd: %w", err)
	}
	if len(m.Periods) == 0 {
		return nil, errors.New("mpd has no periods")
	}
	for i := range m.Periods {
		p := &m.Periods[i]
		p.mpd = m
		for j := range p.AdaptationSets {
			set := &p.AdaptationSets[j]
			set.period = p
			for k := range set.Representations {
				set.Representations[k].set = set
			}
		}
	}
	return m, nil
}

// Dynamic reports a live manifest that must be reloaded.
func (m *MPD) Dynamic() bool { return m.Type == "dynamic" }

// Representation returns the representation with id in the first period.
func (m *MPD) Representation(id string) (*Representation, bool) {
	for i := range m.Periods[0].AdaptationSets {
		set := &m.Periods[0].AdaptationSets[i]
		for j := range set.Representations {
			if set.Representations[j].ID == id {
				return &set.Representations[j], true
			}
		}
	}
	return nil, false
}

// MIMEType falls back to the adaptation set's type.
func (r *Representation) MIMEType() string {
	if r.MimeType != "" {
		return r.MimeType
	}
	if r.set != nil {
		return r.set.MimeType
	}
	return ""
}

// Template returns the nearest SegmentTemplate: representation, adaptation
// set, then period.
func (r *Representation) Template() *SegmentTemplate {
	if r.SegmentTemplate != nil {
		return r.SegmentTemplate
	}
	if r.set == nil {
		return nil
	}
	if r.set.SegmentTemplate != nil {
		return r.set.SegmentTemplate
	}
	if r.set.period != nil {
		return r.set.period.SegmentTemplate
	}
	return nil
}

// ResolveBaseURL applies every BaseURL from the MPD down to r against the
// manifest location.
func (r *Representation) ResolveBaseURL() (*url.URL, error) {
	var refs []string
	base := &url.URL{}
	if r.set != nil && r.set.period != nil && r.set.period.mpd != nil {
		m := r.set.period.mpd
		if m.location != nil {
			base = m.location
		}
		refs = append(refs, m.BaseURL, r.set.period.BaseURL)
	}
	if r.set != nil {
		refs = append(refs, r.set.BaseURL)
	}
	refs = append(refs, r.BaseURL)

	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		u, err := url.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("parse base url %q: %w", ref, err)
		}
		base = base.ResolveReference(u)
	}
	return base, nil
}

var dashWidthFmt = regexp.MustCompile(`\$(Number|Time)%0(\d+)d\$`)

func (t *SegmentTemplate) startNumber() int64 {
	if t.StartNumber != nil {
		return *t.StartNumber
	}
	return 1
}

func (t *SegmentTemplate) timescale() int64 {
	if t.Timescale > 0 {
		return t.Timescale
	}
	return 1
}

// TimeAddressed reports a template that needs a SegmentTimeline.
func (t *SegmentTemplate) TimeAddressed() bool {
	return strings.Contains(t.Media, "$Time")
}

func (t *SegmentTemplate) expand(tmpl string, r *Representation, number, at int64) string {
	out := dashWidthFmt.ReplaceAllStringFunc(tmpl, func(m string) string {
		sub := dashWidthFmt.FindStringSubmatch(m)
		width, _ := strconv.Atoi(sub[2])
		v := number
		if sub[1] == "Time" {
			v = at
		}
		return fmt.Sprintf("%0*d", width, v)
	})
	return strings.NewReplacer(
		"$RepresentationID$", r.ID,
		"$Bandwidth$", strconv.FormatInt(r.Bandwidth, 10),
		"$Number$", strconv.FormatInt(number, 10),
		"$Time$", strconv.FormatInt(at, 10),
		"$$", "$",
	).Replace(out)
}

func (t *SegmentTemplate) resolve(r *Representation, tmpl string, number, at int64) (*url.URL, error) {
	base, err := r.ResolveBaseURL()
	if err != nil {
		return nil, err
	}
	ref, err := url.Parse(t.expand(tmpl, r, number, at))
	if err != nil {
		return nil, fmt.Errorf("parse segment reference: %w", err)
	}
	return base.ResolveReference(ref), nil
}

// ResolveInitialization returns the init segment URL, nil when the template
// has none.
func (t *SegmentTemplate) ResolveInitialization(r *Representation) (*url.URL, error) {
	if t.Initialization == "" {
		return nil, nil
	}
	return t.resolve(r, t.Initialization, t.startNumber(), 0)
}

// ResolveNumber returns the URL of the number-addressed segment n.
func (t *SegmentTemplate) ResolveNumber(r *Representation, n int64) (*url.URL, error) {
	return t.resolve(r, t.Media, n, 0)
}

// Segments expands the SegmentTimeline. A negative repeat count runs until
// the next entry's start time.
func (t *SegmentTemplate) Segments(r *Representation) ([]Segment, error) {
	if t.Timeline == nil {
		return nil, errors.New("segment template has no timeline")
	}
	var (
		out    []Segment
		now    int64
		number = t.startNumber()
		scale  = t.timescale()
		s      = t.Timeline.S
	)
	for i, e := range s {
		if e.T != nil {
			now = *e.T
		}
		if e.D <= 0 {
			return nil, fmt.Errorf("timeline entry %d has no duration", i)
		}
		repeat := e.R
		if repeat < 0 {
			repeat = 0
			if i+1 < len(s) && s[i+1].T != nil {
				repeat = (*s[i+1].T-now)/e.D - 1
			}
		}
		for k := int64(0); k <= repeat; k++ {
			if len(out) >= maxTimelineSegments {
				return out, nil
			}
			u, err := t.resolve(r, t.Media, number, now)
			if err != nil {
				return nil, err
			}
			out = append(out, Segment{
				URL:      u,
				Number:   number,
				Time:     now,
				Duration: time.Duration(e.D) * time.Second / time.Duration(scale),
			})
			number++
			now += e.D
		}
	}
	return out, nil
}

// DASHEngine plays the highest-bandwidth video representation of an MPD.
// Number-addressed templates run until the origin answers 404;
// SegmentTimeline templates play the listed segments and reload dynamic
// manifests.
type DASHEngine struct {
	Client httpx.Doer
	// MaxSegments bounds number-addressed Run; zero means until 404.
	MaxSegments int
}

// NewDASH returns the DASH binding.
func NewDASH(client httpx.Doer, opts Options) *Decoder {
	return New(NameDASH, &DASHEngine{Client: client}, opts)
}

// selectRepresentation picks the highest-bandwidth video representation of
// the first period, falling back to any adaptation set.
func selectRepresentation(m *MPD) (*Representation, error) {
	period := &m.Periods[0]
	var best *Representation
	for pass := 0; pass < 2 && best == nil; pass++ {
		for i := range period.AdaptationSets {
			set := &period.AdaptationSets[i]
			if pass == 0 && !isVideoSet(set) {
				continue
			}
			for j := range set.Representations {
				rep := &set.Representations[j]
				if best == nil || rep.Bandwidth > best.Bandwidth {
					best = rep
				}
			}
		}
	}
	if best == nil {
		return nil, errors.New("mpd has no representations")
	}
	tmpl := best.Template()
	if tmpl == nil || tmpl.Media == "" {
		return nil, errors.New("representation has no segment template")
	}
	if tmpl.TimeAddressed() && tmpl.Timeline == nil {
		return nil, errors.New("time-addressed segment template has no SegmentTimeline")
	}
	return best, nil
}

func isVideoSet(s *AdaptationSet) bool {
	if s.ContentType == "video" || strings.HasPrefix(s.MimeType, "video/") {
		return true
	}
	for _, r := range s.Representations {
		if strings.HasPrefix(r.MimeType, "video/") {
			return true
		}
	}
	return false
}

func (e *DASHEngine) loadMPD(ctx context.Context, rawURL string) (*MPD, error) {
	body, final, err := fetchManifest(ctx, e.Client, rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch mpd: %w", err)
	}
	return ParseMPD(body, final)
}

// Load is ready once the first addressable segment of the selected
// representation answers.
func (e *DASHEngine) Load(ctx context.Context, rawURL string, nonFatal func(error)) (Stream, error) {
	mpd, err := e.loadMPD(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	rep, err := selectRepresentation(mpd)
	if err != nil {
		return nil, err
	}
	tmpl := rep.Template()

	first, err := tmpl.ResolveInitialization(rep)
	if err != nil {
		return nil, err
	}
	if first == nil {
		nonFatal(errors.New("representation has no initialization segment"))
		if tmpl.Timeline != nil {
			segs, err := tmpl.Segments(rep)
			if err != nil {
				return nil, err
			}
			if len(segs) == 0 {
				return nil, errors.New("segment timeline is empty")
			}
			first = segs[0].URL
		} else if first, err = tmpl.ResolveNumber(rep, tmpl.startNumber()); err != nil {
			return nil, err
		}
	}
	resp, err := open(ctx, e.Client, first.String())
	if err != nil {
		return nil, fmt.Errorf("first segment: %w", err)
	}
	_ = resp.Body.Close()

	return &dashStream{engine: e, url: rawURL, mpd: mpd, rep: rep, nonFatal: nonFatal}, nil
}

type dashStream struct {
	engine   *DASHEngine
	url      string
	mpd      *MPD
	rep      *Representation
	nonFatal func(error)

	sentInit bool
	played   bool
	lastTime int64
}

// Run writes the init segment and then the media segments of the selected
// representation.
func (s *dashStream) Run(ctx context.Context, w io.Writer) error {
	if err := s.writeInit(ctx, w); err != nil {
		return err
	}
	if s.rep.Template().Timeline == nil {
		return s.runNumbered(ctx, w)
	}
	return s.runTimeline(ctx, w)
}

func (s *dashStream) writeInit(ctx context.Context, w io.Writer) error {
	if s.sentInit {
		return nil
	}
	initURL, err := s.rep.Template().ResolveInitialization(s.rep)
	if err != nil {
		return err
	}
	if initURL != nil {
		if _, err := copyTo(ctx, s.engine.Client, initURL.String(), w); err != nil {
			return fmt.Errorf("init segment: %w", err)
		}
	}
	s.sentInit = true
	return nil
}

func (s *dashStream) runNumbered(ctx context.Context, w io.Writer) error {
	tmpl := s.rep.Template()
	for n, count := tmpl.startNumber(), 0; s.engine.MaxSegments == 0 || count < s.engine.MaxSegments; n, count = n+1, count+1 {
		segURL, err := tmpl.ResolveNumber(s.rep, n)
		if err != nil {
			return err
		}
		resp, err := open(ctx, s.engine.Client, segURL.String())
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if isStatus(err, http.StatusNotFound) {
				return nil
			}
			return fmt.Errorf("segment %d: %w", n, err)
		}
		_, err = io.Copy(w, resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return fmt.Errorf("segment %d: %w", n, err)
		}
	}
	return nil
}

func (s *dashStream) runTimeline(ctx context.Context, w io.Writer) error {
	failures := 0
	for {
		segs, err := s.rep.Template().Segments(s.rep)
		if err != nil {
			return err
		}
		var wait time.Duration
		for _, seg := range segs {
			if s.played && seg.Time <= s.lastTime {
				continue
			}
			s.played, s.lastTime, wait = true, seg.Time, seg.Duration

			if _, err := copyTo(ctx, s.engine.Client, seg.URL.String(), w); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failures++
				s.nonFatal(fmt.Errorf("segment t=%d: %w", seg.Time, err))
				if failures >= maxConsecutiveSegmentFailures {
					return fmt.Errorf("%d consecutive segment failures: %w", failures, err)
				}
				continue
			}
			failures = 0
		}

		if !s.mpd.Dynamic() {
			return nil
		}

		if wait < time.Second {
			wait = time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		if err := s.reload(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			s.nonFatal(fmt.Errorf("reload mpd: %w", err))
			if failures >= maxConsecutiveSegmentFailures {
				return fmt.Errorf("mpd reload failed: %w", err)
			}
		}
	}
}

// reload refetches the manifest and keeps following the same representation.
func (s *dashStream) reload(ctx context.Context) error {
	mpd, err := s.engine.loadMPD(ctx, s.url)
	if err != nil {
		return err
	}
	rep, ok := mpd.Representation(s.rep.ID)
	if !ok {
		return fmt.Errorf("representation %q left the manifest", s.rep.ID)
	}
	if rep.Template() == nil || rep.Template().Timeline == nil {
		return fmt.Errorf("representation %q lost its segment timeline", s.rep.ID)
	}
	s.mpd, s.rep = mpd, rep
	return nil
}

func (s *dashStream) Close() error { return nil }
