package logx

import (
	"bytes"
	"strings"

	"github.com/rs/zerolog"
)

const redacted = "[REDACTED]"

// minSecretLen keeps short values from masking ordinary words.
const minSecretLen = 8

// redactWriter masks secrets in each line before it reaches any sink.
// Transport errors quote the Bot API URL, which embeds the bot token.
type redactWriter struct {
	next    zerolog.LevelWriter
	secrets [][]byte
}

func newRedactWriter(next zerolog.LevelWriter, secrets []string) zerolog.LevelWriter {
	var ss [][]byte
	for _, s := range secrets {
		if s = strings.TrimSpace(s); len(s) >= minSecretLen {
			ss = append(ss, []byte(s))
		}
	}
	if len(ss) == 0 {
		return next
	}
	return &redactWriter{next: next, secrets: ss}
}

func (w *redactWriter) mask(p []byte) []byte {
	out := p
	for _, s := range w.secrets {
		if bytes.Contains(out, s) {
			out = bytes.ReplaceAll(out, s, []byte(redacted))
		}
	}
	return out
}

func (w *redactWriter) Write(p []byte) (int, error) {
	if _, err := w.next.Write(w.mask(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *redactWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if _, err := w.next.WriteLevel(level, w.mask(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}
