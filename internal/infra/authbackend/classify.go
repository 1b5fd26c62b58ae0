package authbackend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	authsvc "github.com/akulichev/memberdash/internal/services/auth"
)

// classify maps a raw store/transport failure onto the auth error taxonomy.
// The core retries only on authsvc.ErrNetworkTransient; everything else
// passes through wrapped so the raw cause stays in the chain for logging.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isTransient(err) {
		return fmt.Errorf("%w: %v", authsvc.ErrNetworkTransient, err)
	}
	return fmt.Errorf("auth backend: %w", err)
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
