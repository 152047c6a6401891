package utils

import "io"

// drainLimit bounds how much of an unread body is discarded before closing.
const drainLimit = 64 << 10

// DrainAndClose discards what is left of rc (up to 64 KiB) and closes it, ignoring errors,
// so the underlying keep-alive connection can be reused.
// Use for response bodies in defer statements.
func DrainAndClose(rc io.ReadCloser) {
	if rc == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, rc, drainLimit)
	_ = rc.Close()
}
