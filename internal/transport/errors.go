package transport

import (
	"fmt"

	"github.com/ployz-io/zen/internal/cluster"
)

// ConnectError wraps cluster.ErrTransientConnect so callers can
// errors.Is(err, cluster.ErrTransientConnect) regardless of the underlying
// net error, while still being able to inspect Addr and Cause directly.
type ConnectError struct {
	Addr  string
	Cause error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("transport: connect to %s: %v", e.Addr, e.Cause)
}

func (e *ConnectError) Unwrap() error {
	return cluster.ErrTransientConnect
}
