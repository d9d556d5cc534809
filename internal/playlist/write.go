// SPDX-License-Identifier: MIT

package playlist

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/renameio/v2"

	xglog "github.com/ManuGH/tvgrid/internal/log"
	"github.com/ManuGH/tvgrid/internal/store"
)

// WriteM3U writes channels as an extended M3U playlist.
func WriteM3U(w io.Writer, channels []store.Channel) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("#EXTM3U\n"); err != nil {
		return err
	}
	for _, ch := range channels {
		var attrs strings.Builder
		if ch.ID != "" {
			fmt.Fprintf(&attrs, ` tvg-id="%s"`, attrValue(ch.ID))
		}
		fmt.Fprintf(&attrs, ` tvg-name="%s"`, attrValue(ch.Name))
		if ch.Logo != "" {
			fmt.Fprintf(&attrs, ` tvg-logo="%s"`, attrValue(ch.Logo))
		}
		if ch.Category != "" {
			fmt.Fprintf(&attrs, ` group-title="%s"`, attrValue(ch.Category))
		}
		if _, err := fmt.Fprintf(bw, "#EXTINF:-1%s,%s\n%s\n", attrs.String(), lineValue(ch.Name), lineValue(ch.URL)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes the export to path atomically.
func WriteFile(ctx context.Context, path string, channels []store.Channel) error {
	logger := xglog.WithComponentFromContext(ctx, "playlist")

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending playlist file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending playlist file")
		}
	}()

	if err := WriteM3U(pending, channels); err != nil {
		return fmt.Errorf("write playlist data: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace playlist file: %w", err)
	}
	return nil
}

func attrValue(s string) string {
	return strings.ReplaceAll(lineValue(s), `"`, "'")
}

func lineValue(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
