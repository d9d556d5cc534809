// SPDX-License-Identifier: MIT

// Command tvctl runs the playback engine and the playlist parser from a
// terminal and manages the viewer session of a tvgrid server.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	xglog "github.com/ManuGH/tvgrid/internal/log"
	"github.com/ManuGH/tvgrid/internal/playback/proxychain"
)

var version = "v0.1.0"

// options are the persistent flags shared by every subcommand.
type options struct {
	server   string
	timeout  time.Duration
	logLevel string
	jsonOut  bool
	relays   []string
	noRelays bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "tvctl",
		Short:         "Inspect streams and playlists with the tvgrid engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			xglog.Reconfigure(xglog.Config{Level: opts.logLevel, Output: cmd.ErrOrStderr(), Service: "tvctl", Version: version})
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.server, "server", "http://localhost:8088", "tvgrid server base URL")
	pf.DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall deadline for the command")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "log level written to stderr")
	pf.BoolVar(&opts.jsonOut, "json", false, "print JSON instead of text")
	pf.StringSliceVar(&opts.relays, "relay", nil, "relay URL template (repeatable); replaces the built-in chain")
	pf.BoolVar(&opts.noRelays, "no-relays", false, "probe direct methods only")

	root.AddCommand(
		newClassifyCmd(opts),
		newProbeCmd(opts),
		newResolveCmd(opts),
		newParseCmd(opts),
		newLoginCmd(opts),
	)
	return root
}

// chain builds the relay chain the flags ask for.
func (o *options) chain() (*proxychain.Chain, error) {
	switch {
	case o.noRelays:
		return proxychain.New()
	case len(o.relays) > 0:
		relays := make([]proxychain.Relay, 0, len(o.relays))
		for _, t := range o.relays {
			relays = append(relays, proxychain.Relay{Template: t})
		}
		return proxychain.New(relays...)
	default:
		return proxychain.New(proxychain.DefaultRelays()...)
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
