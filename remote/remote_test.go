package remote

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/ssh"
)

type SSHExecutorTestSuite struct {
	suite.Suite
	Dir      string
	KeyPath  string
	Executor *SSHExecutor
}

func (suite *SSHExecutorTestSuite) SetupTest() {
	suite.Dir = suite.T().TempDir()
	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	suite.Require().NoError(err)
	block, err := ssh.MarshalPrivateKey(privateKey, "")
	suite.Require().NoError(err)
	suite.KeyPath = filepath.Join(suite.Dir, "id_ed25519")
	suite.Require().NoError(os.WriteFile(suite.KeyPath, pem.EncodeToMemory(block), 0600))
	suite.Executor = NewSSHExecutor(time.Second, zerolog.Nop())
}

func (suite *SSHExecutorTestSuite) TestClientConfig() {
	config, err := suite.Executor.clientConfig(Target{User: "ec2-user", KeyPath: suite.KeyPath})
	suite.Require().NoError(err)
	suite.Equal("ec2-user", config.User)
	suite.Len(config.Auth, 1)
	suite.Equal(time.Second, config.Timeout)
}

func (suite *SSHExecutorTestSuite) TestClientConfigNoUser() {
	_, err := suite.Executor.clientConfig(Target{KeyPath: suite.KeyPath})
	suite.EqualError(err, "ssh user not specified")
}

func (suite *SSHExecutorTestSuite) TestClientConfigMissingKey() {
	_, err := suite.Executor.clientConfig(Target{User: "ec2-user", KeyPath: filepath.Join(suite.Dir, "missing")})
	suite.Require().Error(err)
	suite.True(errors.Is(err, os.ErrNotExist))
}

func (suite *SSHExecutorTestSuite) TestClientConfigInvalidKey() {
	badKey := filepath.Join(suite.Dir, "bad")
	suite.Require().NoError(os.WriteFile(badKey, []byte("not a key"), 0600))
	_, err := suite.Executor.clientConfig(Target{User: "ec2-user", KeyPath: badKey})
	suite.Require().Error(err)
	suite.Contains(err.Error(), "cannot parse ssh key")
}

func (suite *SSHExecutorTestSuite) TestClientConfigKnownHosts() {
	knownHosts := filepath.Join(suite.Dir, "known_hosts")
	suite.Require().NoError(os.WriteFile(knownHosts, []byte{}, 0600))
	config, err := suite.Executor.clientConfig(Target{User: "ec2-user", KeyPath: suite.KeyPath, KnownHostsPath: knownHosts})
	suite.Require().NoError(err)
	suite.NotNil(config.HostKeyCallback)
}

func (suite *SSHExecutorTestSuite) TestRunUnreachable() {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	suite.Require().NoError(err)
	addr := listener.Addr().(*net.TCPAddr)
	listener.Close()

	err = suite.Executor.Run(context.Background(), Target{
		User:    "ec2-user",
		Host:    "127.0.0.1",
		Port:    addr.Port,
		KeyPath: suite.KeyPath,
	}, "./close.sh")
	suite.Require().Error(err)
	suite.Contains(err.Error(), "cannot connect to 127.0.0.1:")
}

// silentListener accepts connections and never speaks ssh.
func (suite *SSHExecutorTestSuite) silentListener() *net.TCPAddr {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	suite.Require().NoError(err)
	accepted := make(chan net.Conn, 8)
	suite.T().Cleanup(func() {
		listener.Close()
		for {
			select {
			case conn := <-accepted:
				conn.Close()
			default:
				return
			}
		}
	})
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			select {
			case accepted <- conn:
			default:
				conn.Close()
			}
		}
	}()
	return listener.Addr().(*net.TCPAddr)
}

func (suite *SSHExecutorTestSuite) TestRunHandshakeTimeout() {
	addr := suite.silentListener()
	executor := NewSSHExecutor(200*time.Millisecond, zerolog.Nop())
	target := Target{User: "ec2-user", Host: "127.0.0.1", Port: addr.Port, KeyPath: suite.KeyPath}

	done := make(chan error, 1)
	go func() { done <- executor.Run(context.Background(), target, "./close.sh") }()
	select {
	case err := <-done:
		suite.Require().Error(err)
		suite.Contains(err.Error(), "cannot connect to 127.0.0.1:")
	case <-time.After(3 * time.Second):
		suite.Fail("ssh handshake not bounded by the dial timeout")
	}
}

func (suite *SSHExecutorTestSuite) TestRunHandshakeCancelled() {
	addr := suite.silentListener()
	executor := NewSSHExecutor(time.Minute, zerolog.Nop())
	target := Target{User: "ec2-user", Host: "127.0.0.1", Port: addr.Port, KeyPath: suite.KeyPath}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- executor.Run(ctx, target, "./close.sh") }()
	select {
	case err := <-done:
		suite.Require().Error(err)
	case <-time.After(3 * time.Second):
		suite.Fail("ssh handshake ignores context cancellation")
	}
}

func (suite *SSHExecutorTestSuite) TestTargetAddr() {
	suite.Equal("1.2.3.4:22", Target{Host: "1.2.3.4", Port: 22}.Addr())
}

func TestSSHExecutorTestSuite(t *testing.T) {
	suite.Run(t, new(SSHExecutorTestSuite))
}
