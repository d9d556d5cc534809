// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/tvgrid/internal/platform/httpx"
	platformnet "github.com/ManuGH/tvgrid/internal/platform/net"
	"github.com/ManuGH/tvgrid/internal/playback"
	"github.com/ManuGH/tvgrid/internal/playback/browser"
	"github.com/ManuGH/tvgrid/internal/playback/decoder"
	"github.com/ManuGH/tvgrid/internal/playback/format"
	"github.com/ManuGH/tvgrid/internal/playback/orchestrator"
	"github.com/ManuGH/tvgrid/internal/playback/probe"
	"github.com/ManuGH/tvgrid/internal/playlist"
	"github.com/ManuGH/tvgrid/internal/session"
	"github.com/ManuGH/tvgrid/internal/store"
)

// ErrPlaybackFailed is returned by resolve when every method failed.
var ErrPlaybackFailed = errors.New("playback failed")

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printAttempt(w io.Writer) probe.Observer {
	return func(a playback.Attempt) {
		fmt.Fprintf(w, "  #%-2d %-22s %-8s %6dms  %s\n", a.Step, a.MethodID, a.Outcome, a.Latency.Milliseconds(), a.Detail)
	}
}

func newClassifyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <url>",
		Short: "Guess the stream format from the URL alone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h := format.Classify(args[0])
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), h)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "kind=%s confidence=%s\n", h.Kind, h.Confidence)
			return nil
		},
	}
}

func newProbeCmd(opts *options) *cobra.Command {
	var fastest bool
	cmd := &cobra.Command{
		Use:   "probe <url>",
		Short: "Check reachability directly and through the relay chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := platformnet.ParseStreamURL(args[0])
			if err != nil {
				return err
			}
			chain, err := opts.chain()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			out := cmd.OutOrStdout()
			observe := printAttempt(out)
			if opts.jsonOut {
				observe = func(playback.Attempt) {}
			}
			p := probe.New(probe.Config{Chain: chain})

			var route playback.Route
			if fastest {
				var ok bool
				route, ok = p.FindFastestProxy(ctx, target.String(), observe)
				if !ok {
					return probe.ErrUnreachable
				}
			} else if route, err = p.Probe(ctx, target.String(), observe); err != nil {
				return err
			}

			if opts.jsonOut {
				return printJSON(out, route)
			}
			fmt.Fprintf(out, "reachable via %s (%dms): %s\n", route.MethodID, route.MeasuredLatency.Milliseconds(), route.ResolvedURL)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fastest, "fastest", false, "race every relay and keep the quickest")
	return cmd
}

func newResolveCmd(opts *options) *cobra.Command {
	var (
		name      string
		userAgent string
	)
	cmd := &cobra.Command{
		Use:   "resolve <url>",
		Short: "Run the full playback resolution headless and print the report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := platformnet.ParseStreamURL(args[0]); err != nil {
				return err
			}
			chain, err := opts.chain()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			hint := browser.Detect(userAgent, "")
			o, err := orchestrator.New(orchestrator.Config{
				Prober:   probe.New(probe.Config{Chain: chain}),
				Bindings: decoder.NewSet(decoder.SetConfig{NativeHLS: hint.NativeHLS}),
				Surface:  decoder.NewSurface(decoder.SurfaceOptions{}),
				Order:    hint.Order,
				Name:     "tvctl",
			})
			if err != nil {
				return err
			}
			defer o.Close()

			out := cmd.OutOrStdout()
			done := make(chan orchestrator.Event, 1)
			var (
				mu       sync.Mutex
				finished bool
			)
			o.Play(ctx, playback.Target{URL: args[0], DisplayName: name}, func(ev orchestrator.Event) {
				mu.Lock()
				defer mu.Unlock()
				if finished {
					return
				}
				if !opts.jsonOut {
					fmt.Fprintf(out, "%s %s\n", time.Now().Format("15:04:05.000"), ev.Status)
				}
				if ev.Terminal() {
					finished = true
					done <- ev
				}
			})

			var final orchestrator.Event
			select {
			case final = <-done:
			case <-ctx.Done():
				return fmt.Errorf("resolve: %w", ctx.Err())
			}

			if opts.jsonOut {
				if err := printJSON(out, final); err != nil {
					return err
				}
			} else if final.Status == playback.StatusPlaying && final.Route != nil {
				fmt.Fprintf(out, "playing with %s via %s: %s\n", final.Binding, final.Route.MethodID, final.Route.ResolvedURL)
			} else {
				fmt.Fprintf(out, "%s: %s\n\n%s\n", final.Code, final.Message, final.Report)
			}
			if final.Status == playback.StatusFailed {
				return fmt.Errorf("%w: %s", ErrPlaybackFailed, final.Code)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name of the channel")
	cmd.Flags().StringVar(&userAgent, "user-agent", httpx.DefaultUserAgent, "browser whose binding order to use")
	return cmd
}

func newParseCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <file|url>",
		Short: "Parse a playlist and list its channels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			var (
				content []byte
				charset string
				err     error
			)
			src := args[0]
			if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
				f := playlist.NewFetcher(playlist.FetchConfig{Client: httpx.NewClient(opts.timeout)})
				content, charset, err = f.Fetch(ctx, src)
			} else {
				content, err = os.ReadFile(src)
			}
			if err != nil {
				return err
			}

			res, err := playlist.ParseCharset(content, charset)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return printJSON(out, res)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCATEGORY\tURL")
			for _, ch := range res.Channels {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", ch.Name, ch.Category, ch.URL)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nformat=%s channels=%d dropped=%d\n", res.Format, len(res.Channels), res.Dropped)
			return nil
		},
	}
}

func newLoginCmd(opts *options) *cobra.Command {
	var sessionFile string
	cmd := &cobra.Command{
		Use:   "login <code>",
		Short: "Redeem an activation code and store the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := sessionFile
			if path == "" {
				p, err := session.DefaultPath()
				if err != nil {
					return err
				}
				path = p
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			sess, err := activate(ctx, opts.server, args[0])
			if err != nil {
				return err
			}
			if err := session.NewFileStore(path).Save(sess); err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), sess)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in at level %d until %s (saved to %s)\n",
				sess.UserLevel, sess.ExpiresAt.Local().Format(time.RFC3339), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionFile, "session-file", "", "where to store the session (default: user config dir)")
	return cmd
}

// activate redeems code on the server.
func activate(ctx context.Context, server, code string) (store.Session, error) {
	body, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return store.Session{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(server, "/")+"/api/v1/auth/activate", bytes.NewReader(body))
	if err != nil {
		return store.Session{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpx.NewClient(0).Do(req)
	if err != nil {
		return store.Session{}, fmt.Errorf("activate: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		var apiErr struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&apiErr)
		return store.Session{}, fmt.Errorf("activate: %s: %s %s", resp.Status, apiErr.Error, apiErr.Detail)
	}
	var sess store.Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return store.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return sess, nil
}
