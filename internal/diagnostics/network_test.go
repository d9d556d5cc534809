// SPDX-License-Identifier: MIT

package diagnostics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnlineChecker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	h := OnlineChecker{Client: srv.Client(), URL: srv.URL}.Check(context.Background())
	assert.Equal(t, OK, h.Status)
	assert.Equal(t, http.StatusNoContent, h.Details.(NetworkDetails).HTTPStatus)

	srv.Close()
	h = OnlineChecker{Client: srv.Client(), URL: srv.URL}.Check(context.Background())
	assert.Equal(t, Unavailable, h.Status)
	assert.Equal(t, ErrNetworkOffline, h.ErrorCode)
}

func TestDNSChecker_DoH(t *testing.T) {
	answer := `{"Status":0,"Answer":[{"name":"google.com.","type":1,"data":"142.250.74.46"}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") == "empty" {
			_, _ = w.Write([]byte(`{"Status":3}`))
			return
		}
		_, _ = w.Write([]byte(answer))
	}))
	defer srv.Close()

	h := DNSChecker{Client: srv.Client(), URL: srv.URL + "/resolve?name=google.com"}.Check(context.Background())
	assert.Equal(t, OK, h.Status)

	h = DNSChecker{Client: srv.Client(), URL: srv.URL + "/resolve?name=empty"}.Check(context.Background())
	assert.Equal(t, Unavailable, h.Status)
	assert.Equal(t, ErrDNSNoAnswer, h.ErrorCode)
}

func TestCORSChecker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/cors" {
			w.Header().Set("Access-Control-Allow-Origin", r.Header.Get("Origin"))
		}
		_, _ = w.Write([]byte("{}"))
	}))
	defer srv.Close()

	h := CORSChecker{Client: srv.Client(), URL: srv.URL + "/cors"}.Check(context.Background())
	assert.Equal(t, OK, h.Status)

	h = CORSChecker{Client: srv.Client(), URL: srv.URL + "/plain"}.Check(context.Background())
	assert.Equal(t, Degraded, h.Status)
	assert.Equal(t, ErrCORSRestricted, h.ErrorCode)
}

func TestChecker_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	h := OnlineChecker{Client: srv.Client(), URL: srv.URL, Timeout: 50 * time.Millisecond}.Check(context.Background())
	assert.Equal(t, Unavailable, h.Status)
	assert.Equal(t, ErrNetworkTimeout, h.ErrorCode)
}

func TestGather(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Status":0,"Answer":[{"data":"1.2.3.4"}]}`))
	}))
	defer srv.Close()

	cache := NewLKGCache(time.Hour)
	report := Gather(context.Background(), cache,
		OnlineChecker{Client: srv.Client(), URL: srv.URL},
		DNSChecker{Client: srv.Client(), URL: srv.URL},
		CORSChecker{Client: srv.Client(), URL: srv.URL},
		StoreChecker{Store: pinger{}},
	)

	require.Len(t, report.Subsystems, 4)
	assert.Equal(t, Degraded, report.OverallStatus, "no allow-origin header")
	require.Len(t, report.DegradationSummary, 1)
	assert.Equal(t, SubsystemCORS, report.DegradationSummary[0].Subsystem)
	assert.Equal(t, EnvironmentFacts{Online: true, DNSReachable: true, CORSReachable: false}, report.Facts())
	assert.NotNil(t, report.Subsystems[SubsystemNetwork].LastOK)
}

func TestFacts_UncheckedCountsAsReachable(t *testing.T) {
	assert.Equal(t, EnvironmentFacts{Online: true, DNSReachable: true, CORSReachable: true}, SystemReport{}.Facts())
}
