package wire

import (
	"bytes"
	"encoding/json"
	"log/slog"
)

// DecodeBatch splits a raw text frame into its newline-delimited envelopes
// and parses each independently. The backend batches notifications into one
// frame when several are produced by a single state change, so a frame may
// hold more than one envelope.
//
// A part that fails to parse is logged and skipped; it never disturbs its
// siblings, so one malformed envelope cannot take down a whole batch.
// Returned envelopes preserve their order within the frame, which matters
// because batched notifications can be causally ordered.
func DecodeBatch(data []byte, logger *slog.Logger) []*Envelope {
	if logger == nil {
		logger = slog.Default()
	}
	parts := bytes.Split(data, []byte{'\n'})
	envelopes := make([]*Envelope, 0, len(parts))
	for _, part := range parts {
		part = bytes.TrimSpace(part)
		if len(part) == 0 {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(part, &env); err != nil {
			logger.Warn("wire: dropping malformed envelope", "error", err, "fragment", truncate(part, 120))
			continue
		}
		envelopes = append(envelopes, &env)
	}
	return envelopes
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
