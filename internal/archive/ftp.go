package archive

import (
	"context"
	"fmt"
	"io"
	"net"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
)

const defaultFTPPort = 21

// FTPConfig configures an FTPStore.
type FTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	BasePath string
	Timeout  time.Duration
}

// FTPStore archives to an FTP server. Each Put uses its own connection.
type FTPStore struct {
	cfg FTPConfig
}

// NewFTPStore validates cfg.
func NewFTPStore(cfg FTPConfig) (*FTPStore, error) {
	if cfg.Host == "" {
		return nil, configError("ftp", "host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = defaultFTPPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BasePath = strings.TrimRight(cfg.BasePath, "/")
	return &FTPStore{cfg: cfg}, nil
}

func (s *FTPStore) Name() string { return "ftp" }

func (s *FTPStore) connect(ctx context.Context) (*ftp.ServerConn, error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	conn, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(s.cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("ftp: connection failed: %w", err)
	}
	if s.cfg.Username != "" {
		if err := conn.Login(s.cfg.Username, s.cfg.Password); err != nil {
			_ = conn.Quit()
			return nil, fmt.Errorf("ftp: login failed: %w", err)
		}
	}
	return conn, nil
}

// Put stores to a temporary name and renames it to key.
func (s *FTPStore) Put(ctx context.Context, key string, r io.Reader, _ int64) error {
	conn, err := s.connect(ctx)
	if err != nil {
		return networkError("ftp", err)
	}
	defer func() { _ = conn.Quit() }()

	stop := context.AfterFunc(ctx, func() { _ = conn.Quit() })
	defer stop()

	remote := key
	if s.cfg.BasePath != "" {
		remote = path.Join(s.cfg.BasePath, key)
	}
	s.makeDirs(conn, path.Dir(remote))

	tmp := path.Join(path.Dir(remote), ".upload-"+path.Base(remote))
	if err := conn.Stor(tmp, readerWithContext(ctx, r)); err != nil {
		_ = conn.Delete(tmp)
		return networkError("ftp", fmt.Errorf("ftp: failed to store file: %w", err))
	}
	if err := conn.Rename(tmp, remote); err != nil {
		_ = conn.Delete(tmp)
		return networkError("ftp", fmt.Errorf("ftp: failed to rename file: %w", err))
	}
	return nil
}

// makeDirs creates each component of dir. Servers answer MKD on an existing
// directory with an error, so failures are ignored and surface on STOR.
func (s *FTPStore) makeDirs(conn *ftp.ServerConn, dir string) {
	if dir == "." || dir == "/" || dir == "" {
		return
	}
	current := ""
	if strings.HasPrefix(dir, "/") {
		current = "/"
	}
	for part := range strings.SplitSeq(strings.Trim(dir, "/"), "/") {
		current = path.Join(current, part)
		_ = conn.MakeDir(current)
	}
}

func (s *FTPStore) Close() error { return nil }
