// SPDX-License-Identifier: MIT

package diagnostics

import (
	"fmt"
	"strings"

	"github.com/ManuGH/tvgrid/internal/playback"
)

// BuildReport renders the human-readable failure report for a playback run.
// It is pure and produces output for any input, including no attempts.
func BuildReport(attempts []playback.Attempt, env EnvironmentFacts) string {
	var b strings.Builder

	b.WriteString("Playback diagnostics report\n\n")

	b.WriteString("Connection status:\n")
	fmt.Fprintf(&b, "  Network: %s\n", choose(env.Online, "online", "offline"))
	fmt.Fprintf(&b, "  DNS resolution: %s\n", choose(env.DNSReachable, "ok", "failed"))
	fmt.Fprintf(&b, "  CORS support: %s\n", choose(env.CORSReachable, "ok", "restricted"))

	b.WriteString("\nAttempts:\n")
	var succeeded, timedOut int
	certificate := false
	if len(attempts) == 0 {
		b.WriteString("  no methods attempted\n")
	}
	for i, a := range attempts {
		binding := a.Binding
		if binding == "" {
			binding = "probe"
		}
		fmt.Fprintf(&b, "  %d. [step %d] %s (%s) -> %s", i+1, a.Step, a.MethodID, binding, outcome(a.Outcome))
		if a.Detail != "" {
			fmt.Fprintf(&b, ": %s", a.Detail)
		}
		b.WriteByte('\n')

		switch a.Outcome {
		case playback.OutcomeSuccess:
			succeeded++
		case playback.OutcomeTimeout:
			timedOut++
		}
		detail := strings.ToLower(a.Detail)
		if strings.Contains(detail, "certificate") || strings.Contains(detail, "x509") {
			certificate = true
		}
	}

	fmt.Fprintf(&b, "\nSummary: %d attempts, %d succeeded, %d failed, %d timed out\n",
		len(attempts), succeeded, len(attempts)-succeeded-timedOut, timedOut)

	b.WriteString("\nSuggestions:\n")
	var tips []string
	if !env.Online {
		tips = append(tips, "Check the network connection")
	}
	if !env.DNSReachable {
		tips = append(tips, "Check the DNS settings")
	}
	if !env.CORSReachable {
		tips = append(tips, "Use a CORS relay for this stream")
	}
	if certificate {
		tips = append(tips, "Check the stream's SSL certificate")
	}
	tips = append(tips, "Open the stream in an external player (VLC, mpv)")
	for i, tip := range tips {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, tip)
	}

	return b.String()
}

func outcome(o playback.Outcome) string {
	if o == "" {
		return "unknown"
	}
	return string(o)
}

func choose(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
