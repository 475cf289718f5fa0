//go:build !linux

package monitor

import (
	"context"
	"errors"
)

// NetlinkCounter needs sock_diag, which only Linux has.
type NetlinkCounter struct{}

func (NetlinkCounter) Count(ctx context.Context) (int, error) {
	return 0, errors.New("netlink connection counting requires linux")
}
