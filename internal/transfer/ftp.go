package transfer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/jlaffaye/ftp"
)

type ftpDialer struct {
	cfg Config
}

func (d *ftpDialer) Dial(ctx context.Context) (Session, error) {
	addr := net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port))

	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(dialTimeout),
	}
	if d.cfg.Secure {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: d.cfg.Host}))
	}

	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("ftp dial %s: %w", addr, err)
	}

	if err := conn.Login(d.cfg.User, d.cfg.Password); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("ftp login as %s: %w", d.cfg.User, err)
	}

	return &ftpSession{conn: conn}, nil
}

type ftpSession struct {
	conn *ftp.ServerConn
}

func (s *ftpSession) EnsureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}

	var mkErr error
	for _, p := range dirChain(dir) {
		if err := s.conn.MakeDir(p); err != nil {
			mkErr = err
		} else {
			mkErr = nil
		}
	}
	if mkErr == nil {
		return nil
	}

	// MakeDir fails when the directory already exists; probe to tell that
	// apart from a real failure.
	cwd, err := s.conn.CurrentDir()
	if err != nil {
		return fmt.Errorf("ftp mkdir %s: %w", dir, mkErr)
	}
	if err := s.conn.ChangeDir(dir); err != nil {
		return fmt.Errorf("ftp mkdir %s: %w", dir, mkErr)
	}
	if err := s.conn.ChangeDir(cwd); err != nil {
		return fmt.Errorf("ftp restore dir %s: %w", cwd, err)
	}
	return nil
}

func (s *ftpSession) UploadFile(localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	if err := s.conn.Stor(remotePath, f); err != nil {
		return fmt.Errorf("ftp stor %s: %w", remotePath, err)
	}
	return nil
}

func (s *ftpSession) Close() error {
	return s.conn.Quit()
}

// dirChain expands "a/b/c" into ["a", "a/b", "a/b/c"].
func dirChain(dir string) []string {
	parts := strings.Split(strings.Trim(dir, "/"), "/")
	chain := make([]string, 0, len(parts))
	for i := range parts {
		chain = append(chain, strings.Join(parts[:i+1], "/"))
	}
	return chain
}
