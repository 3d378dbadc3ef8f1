// Package transfer provides the remote transfer contract and its FTP and S3
// backends. Sessions are single-use: one Dial per upload attempt, closed when
// the attempt finishes, never shared.
package transfer

import (
	"context"
	"fmt"
	"time"
)

const (
	BackendFTP = "ftp"
	BackendS3  = "s3"
)

const dialTimeout = 10 * time.Second

// Config describes the remote endpoint. For the s3 backend the host and port
// form the endpoint URL and the user and password act as the access and
// secret keys.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Secure   bool

	Backend string
	Bucket  string
	Region  string
}

// Dialer opens transfer sessions. Implementations must be safe for
// concurrent use; the sessions they return need not be.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// Session is one authenticated connection to the remote.
type Session interface {
	// EnsureDir creates the slash-separated directory path on the remote,
	// including parents. Backends without directories return nil.
	EnsureDir(dir string) error

	// UploadFile stores the local file at the slash-separated remote path.
	UploadFile(localPath, remotePath string) error

	Close() error
}

// NewDialer selects the backend for the given config.
func NewDialer(cfg Config) (Dialer, error) {
	switch cfg.Backend {
	case BackendFTP:
		return &ftpDialer{cfg: cfg}, nil
	case BackendS3:
		return &s3Dialer{cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("unknown transfer backend %q", cfg.Backend)
	}
}
