// Package remote runs commands on game hosts over ssh.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"subuk/gamemango/util"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type Target struct {
	User    string
	Host    string
	Port    int
	KeyPath string
	// KnownHostsPath disables host key checking when empty.
	KnownHostsPath string
}

func (target Target) Addr() string {
	return net.JoinHostPort(target.Host, strconv.Itoa(target.Port))
}

type Executor interface {
	Run(ctx context.Context, target Target, command string) error
}

type CommandError struct {
	Command string
	Output  string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("remote command %q failed: %s", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

type SSHExecutor struct {
	DialTimeout time.Duration
	logger      zerolog.Logger
}

func NewSSHExecutor(dialTimeout time.Duration, logger zerolog.Logger) *SSHExecutor {
	return &SSHExecutor{
		DialTimeout: dialTimeout,
		logger:      logger.With().Str("component", "ssh").Logger(),
	}
}

func (executor *SSHExecutor) clientConfig(target Target) (*ssh.ClientConfig, error) {
	if target.User == "" {
		return nil, errors.New("ssh user not specified")
	}
	keyPath, err := util.ExpandHomeDir(target.KeyPath)
	if err != nil {
		return nil, util.NewError(err, "cannot expand key path")
	}
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, util.NewError(err, "cannot read ssh key")
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, util.NewError(err, "cannot parse ssh key %s", keyPath)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if target.KnownHostsPath != "" {
		knownHostsPath, err := util.ExpandHomeDir(target.KnownHostsPath)
		if err != nil {
			return nil, util.NewError(err, "cannot expand known hosts path")
		}
		hostKeyCallback, err = knownhosts.New(knownHostsPath)
		if err != nil {
			return nil, util.NewError(err, "cannot load known hosts")
		}
	}
	return &ssh.ClientConfig{
		User:            target.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         executor.DialTimeout,
	}, nil
}

func (executor *SSHExecutor) dial(ctx context.Context, target Target, config *ssh.ClientConfig) (*ssh.Client, error) {
	dialer := net.Dialer{Timeout: executor.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", target.Addr())
	if err != nil {
		return nil, err
	}
	// the handshake is not covered by the dialer timeout
	if executor.DialTimeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(executor.DialTimeout)); err != nil {
			conn.Close()
			return nil, err
		}
	}
	stopWatch := closeOnDone(ctx, conn)
	clientConn, channels, requests, err := ssh.NewClientConn(conn, target.Addr(), config)
	stopWatch()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		clientConn.Close()
		return nil, err
	}
	return ssh.NewClient(clientConn, channels, requests), nil
}

// closeOnDone closes conn if ctx ends before the returned func is called.
func closeOnDone(ctx context.Context, conn net.Conn) func() {
	finished := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-finished:
		}
	}()
	return func() { close(finished) }
}

type runResult struct {
	output []byte
	err    error
}

// Run executes command and waits for it to exit. Cancelling ctx closes the
// connection.
func (executor *SSHExecutor) Run(ctx context.Context, target Target, command string) error {
	config, err := executor.clientConfig(target)
	if err != nil {
		return err
	}
	logger := executor.logger.With().Str("host", target.Addr()).Str("command", command).Logger()

	client, err := executor.dial(ctx, target, config)
	if err != nil {
		return util.NewError(err, "cannot connect to %s", target.Addr())
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return util.NewError(err, "cannot open ssh session")
	}
	defer session.Close()

	results := make(chan runResult, 1)
	go func() {
		output, err := session.CombinedOutput(command)
		results <- runResult{output: output, err: err}
	}()

	select {
	case <-ctx.Done():
		client.Close()
		return &CommandError{Command: command, Err: ctx.Err()}
	case result := <-results:
		if result.err != nil {
			logger.Warn().Err(result.err).Str("output", string(result.output)).Msg("remote command failed")
			return &CommandError{Command: command, Output: string(result.output), Err: result.err}
		}
		logger.Debug().Str("output", string(result.output)).Msg("remote command finished")
		return nil
	}
}
