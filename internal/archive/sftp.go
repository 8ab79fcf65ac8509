package archive

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/tphakala/rtp-recorder/internal/errors"
)

const defaultSSHPort = 22

// SFTPConfig configures an SFTPStore.
type SFTPConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	KeyFile        string
	KnownHostsFile string
	BasePath       string
	Timeout        time.Duration
}

// sftpSession is an open SFTP client and the connection under it.
type sftpSession struct {
	client *sftp.Client
	conn   io.Closer
}

func (s *sftpSession) Close() error {
	return errors.Join(s.client.Close(), s.conn.Close())
}

// SFTPStore archives to a remote directory over SFTP. Each Put uses its own
// connection.
type SFTPStore struct {
	cfg  SFTPConfig
	dial func(ctx context.Context) (*sftpSession, error)
}

// NewSFTPStore validates cfg and prepares the SSH client configuration.
// Host keys are verified against KnownHostsFile.
func NewSFTPStore(cfg SFTPConfig) (*SFTPStore, error) {
	if cfg.Host == "" {
		return nil, configError("sftp", "host is required")
	}
	if cfg.KnownHostsFile == "" {
		return nil, configError("sftp", "known hosts file is required")
	}
	if cfg.Port == 0 {
		cfg.Port = defaultSSHPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	hostKeys, err := knownhosts.New(cfg.KnownHostsFile)
	if err != nil {
		return nil, errors.New(fmt.Errorf("sftp: failed to load known hosts: %w", err)).
			Component("archive").
			Category(errors.CategoryConfiguration).
			Context("known_hosts", cfg.KnownHostsFile).
			Build()
	}

	auth, err := sshAuth(cfg)
	if err != nil {
		return nil, err
	}

	clientCfg := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         cfg.Timeout,
	}

	s := &SFTPStore{cfg: cfg}
	s.dial = func(ctx context.Context) (*sftpSession, error) {
		addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
		d := net.Dialer{Timeout: cfg.Timeout}
		netConn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("sftp: failed to connect: %w", err)
		}
		sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, clientCfg)
		if err != nil {
			_ = netConn.Close()
			return nil, fmt.Errorf("sftp: ssh handshake failed: %w", err)
		}
		sshClient := ssh.NewClient(sshConn, chans, reqs)
		client, err := sftp.NewClient(sshClient)
		if err != nil {
			_ = sshClient.Close()
			return nil, fmt.Errorf("sftp: failed to create client: %w", err)
		}
		return &sftpSession{client: client, conn: sshClient}, nil
	}
	return s, nil
}

func sshAuth(cfg SFTPConfig) ([]ssh.AuthMethod, error) {
	switch {
	case cfg.KeyFile != "":
		key, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, errors.New(fmt.Errorf("sftp: failed to read private key: %w", err)).
				Component("archive").
				Category(errors.CategoryConfiguration).
				Build()
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, errors.New(fmt.Errorf("sftp: failed to parse private key: %w", err)).
				Component("archive").
				Category(errors.CategoryConfiguration).
				Build()
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	case cfg.Password != "":
		return []ssh.AuthMethod{ssh.Password(cfg.Password)}, nil
	default:
		return nil, configError("sftp", "no authentication method provided")
	}
}

func (s *SFTPStore) Name() string { return "sftp" }

// Put uploads to a temporary name and renames it to key.
func (s *SFTPStore) Put(ctx context.Context, key string, r io.Reader, _ int64) error {
	sess, err := s.dial(ctx)
	if err != nil {
		return networkError("sftp", err)
	}
	defer sess.Close()

	// unblock a stalled transfer when ctx ends
	stop := context.AfterFunc(ctx, func() { _ = sess.Close() })
	defer stop()

	remote := path.Join(s.cfg.BasePath, key)
	if err := sess.client.MkdirAll(path.Dir(remote)); err != nil {
		return networkError("sftp", fmt.Errorf("sftp: failed to create directory: %w", err))
	}

	tmp := path.Join(path.Dir(remote), ".upload-"+path.Base(remote))
	dst, err := sess.client.Create(tmp)
	if err != nil {
		return networkError("sftp", fmt.Errorf("sftp: failed to create file: %w", err))
	}
	if _, err := dst.ReadFrom(r); err != nil {
		_ = dst.Close()
		_ = sess.client.Remove(tmp)
		return networkError("sftp", fmt.Errorf("sftp: failed to write file: %w", err))
	}
	if err := dst.Close(); err != nil {
		_ = sess.client.Remove(tmp)
		return networkError("sftp", fmt.Errorf("sftp: failed to close file: %w", err))
	}
	if err := sess.client.Rename(tmp, remote); err != nil {
		_ = sess.client.Remove(tmp)
		return networkError("sftp", fmt.Errorf("sftp: failed to rename file: %w", err))
	}
	return nil
}

func (s *SFTPStore) Close() error { return nil }

func configError(target, msg string) error {
	return errors.New(fmt.Errorf("%s: %s", target, msg)).
		Component("archive").
		Category(errors.CategoryConfiguration).
		Context("target", target).
		Build()
}

func networkError(target string, err error) error {
	return errors.New(err).
		Component("archive").
		Category(errors.CategoryNetwork).
		Context("target", target).
		Build()
}
