package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bilal/orion-agent/internal/config"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSH runs commands on a single remote host. A fresh connection is dialed
// per command; the agent issues at most a couple of commands per cycle.
type SSH struct {
	addr   string
	config *ssh.ClientConfig
}

// NewSSH builds an executor from the router section of the config. Failing
// to read the key or known_hosts file is a startup error.
func NewSSH(rc config.RouterConfig) (*SSH, error) {
	keyData, err := os.ReadFile(expandHome(rc.KeyFile))
	if err != nil {
		return nil, fmt.Errorf("read ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("parse ssh key: %w", err)
	}

	var hostKeyCallback ssh.HostKeyCallback
	if rc.InsecureIgnoreHostKey {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	} else {
		hostKeyCallback, err = knownhosts.New(expandHome(rc.KnownHostsFile))
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
	}

	port := rc.Port
	if port == 0 {
		port = 22
	}
	timeout := time.Duration(rc.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &SSH{
		addr: net.JoinHostPort(rc.Host, strconv.Itoa(port)),
		config: &ssh.ClientConfig{
			User:            rc.User,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: hostKeyCallback,
			Timeout:         timeout,
		},
	}, nil
}

func (s *SSH) Addr() string { return s.addr }

func (s *SSH) Run(ctx context.Context, command string, timeout time.Duration) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return Result{}, fmt.Errorf("dial %s: %w", s.addr, wrapTimeout(ctx, err))
	}
	// the handshake has no context of its own
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, s.addr, s.config)
	if err != nil {
		conn.Close()
		return Result{}, fmt.Errorf("ssh handshake %s: %w", s.addr, wrapTimeout(ctx, err))
	}
	// from here on ctx alone bounds the command
	conn.SetDeadline(time.Time{})
	client := ssh.NewClient(c, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		// closing the client unblocks session.Run
		client.Close()
		<-done
		return Result{Stdout: stdout.String(), Stderr: stderr.String()},
			fmt.Errorf("%q on %s: %w", command, s.addr, ErrTimeout)
	case err := <-done:
		res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
		if err == nil {
			return res, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitStatus()
			return res, nil
		}
		if ctx.Err() != nil {
			return res, fmt.Errorf("%q on %s: %w", command, s.addr, ErrTimeout)
		}
		return res, fmt.Errorf("%q on %s: %w", command, s.addr, err)
	}
}

func wrapTimeout(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
