// SPDX-License-Identifier: MIT

package decoder

import (
	"sort"
	"time"

	"github.com/ManuGH/tvgrid/internal/platform/httpx"
	"github.com/ManuGH/tvgrid/internal/playback/format"
)

// SetConfig configures the default binding set.
type SetConfig struct {
	Client        httpx.Doer
	AttachTimeout time.Duration
	// NativeHLS lets the native binding play HLS manifests itself.
	NativeHLS bool
}

// Set holds one binding per name.
type Set struct {
	bindings map[string]Binding
}

// NewSet builds the native, HLS, FLV and DASH bindings around one client.
func NewSet(cfg SetConfig) *Set {
	client := cfg.Client
	if client == nil {
		client = httpx.NewStreamClient(0)
	}
	opts := Options{AttachTimeout: cfg.AttachTimeout}

	hls := &HLSEngine{Client: client}
	var nativeHLS Engine
	if cfg.NativeHLS {
		nativeHLS = hls
	}
	return NewSetOf(
		NewNative(client, nativeHLS, opts),
		New(NameHLS, hls, opts),
		NewFLV(client, opts),
		NewDASH(client, opts),
	)
}

// NewSetOf builds a set from explicit bindings; later names win.
func NewSetOf(bindings ...Binding) *Set {
	s := &Set{bindings: make(map[string]Binding, len(bindings))}
	for _, b := range bindings {
		s.bindings[b.Name()] = b
	}
	return s
}

// Get returns the binding called name.
func (s *Set) Get(name string) (Binding, bool) {
	b, ok := s.bindings[name]
	return b, ok
}

// ForKind maps a classified format to its dedicated binding.
func (s *Set) ForKind(k format.Kind) (Binding, bool) {
	switch k {
	case format.HLS:
		return s.Get(NameHLS)
	case format.FLV:
		return s.Get(NameFLV)
	case format.DASH:
		return s.Get(NameDASH)
	case format.MP4:
		return s.Get(NameNative)
	}
	return nil, false
}

// Names returns the registered binding names, sorted.
func (s *Set) Names() []string {
	out := make([]string, 0, len(s.bindings))
	for name := range s.bindings {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DetachAll detaches every binding.
func (s *Set) DetachAll() {
	for _, b := range s.bindings {
		b.Detach()
	}
}
