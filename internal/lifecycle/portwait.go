package lifecycle

import (
	"context"
	"fmt"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// PortChecker reports whether a local TCP port still has a listener
type PortChecker interface {
	Listening(ctx context.Context, port int) (bool, error)
}

// SocketTable checks the host TCP socket table via gopsutil
type SocketTable struct{}

// Listening returns true while any socket is in LISTEN state on port
func (SocketTable) Listening(ctx context.Context, port int) (bool, error) {
	conns, err := psnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return false, fmt.Errorf("failed to read socket table: %w", err)
	}
	for _, c := range conns {
		if c.Status == "LISTEN" && int(c.Laddr.Port) == port {
			return true, nil
		}
	}
	return false, nil
}
