package artifact

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

type SFTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Path     string
	Timeout  time.Duration
}

// SFTP offloads bot data to a remote host and keeps an sftp:// pointer in the
// row. File contents go through the inline codec, so they are sealed too
// when a key is configured.
type SFTP struct {
	cfg    SFTPConfig
	codec  *Inline
	logger *zap.Logger
	now    func() time.Time
}

func NewSFTP(cfg SFTPConfig, codec *Inline, logger *zap.Logger) *SFTP {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.Path = strings.TrimRight(cfg.Path, "/")
	if cfg.Path == "" {
		cfg.Path = "bot_data"
	}
	return &SFTP{cfg: cfg, codec: codec, logger: logger, now: time.Now}
}

func (s *SFTP) connect(ctx context.Context) (*sftp.Client, error) {
	type connResult struct {
		client *sftp.Client
		err    error
	}
	resultChan := make(chan connResult, 1)

	go func() {
		config := &ssh.ClientConfig{
			User:            s.cfg.User,
			Auth:            []ssh.AuthMethod{ssh.Password(s.cfg.Password)},
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         s.cfg.Timeout,
		}

		addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
		conn, err := ssh.Dial("tcp", addr, config)
		if err != nil {
			resultChan <- connResult{nil, fmt.Errorf("sftp: failed to connect: %w", err)}
			return
		}

		client, err := sftp.NewClient(conn)
		if err != nil {
			conn.Close()
			resultChan <- connResult{nil, fmt.Errorf("sftp: failed to create client: %w", err)}
			return
		}
		resultChan <- connResult{client, nil}
	}()

	select {
	case <-ctx.Done():
		// a late connection is closed by nobody otherwise
		go func() {
			if r := <-resultChan; r.client != nil {
				r.client.Close()
			}
		}()
		return nil, ctx.Err()
	case result := <-resultChan:
		return result.client, result.err
	}
}

// objectPath is the remote file of one training result.
func (s *SFTP) objectPath(repo uuid.UUID, versionLanguageID int64) string {
	name := fmt.Sprintf("%d-%d.bot", versionLanguageID, s.now().UnixNano())
	return path.Join(s.cfg.Path, repo.String(), name)
}

func (s *SFTP) ref(remotePath string) string {
	u := url.URL{
		Scheme: "sftp",
		Host:   net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
		Path:   "/" + strings.TrimPrefix(remotePath, "/"),
	}
	return u.String()
}

func (s *SFTP) Put(ctx context.Context, repo uuid.UUID, versionLanguageID int64, botData string) (string, error) {
	if botData == "" {
		return "", nil
	}
	content, err := s.codec.Put(ctx, repo, versionLanguageID, botData)
	if err != nil {
		return "", err
	}

	client, err := s.connect(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	remotePath := s.objectPath(repo, versionLanguageID)
	if err := client.MkdirAll(path.Dir(remotePath)); err != nil {
		return "", fmt.Errorf("sftp: failed to create directory: %w", err)
	}

	dst, err := client.Create(remotePath)
	if err != nil {
		return "", fmt.Errorf("sftp: failed to create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, strings.NewReader(content)); err != nil {
		return "", fmt.Errorf("sftp: failed to write file: %w", err)
	}

	s.logger.Info("Stored bot data",
		zap.String("repository_uuid", repo.String()),
		zap.Int64("version_language_id", versionLanguageID),
		zap.String("path", remotePath))
	return s.ref(remotePath), nil
}

// Get resolves an sftp:// pointer. Other values were stored inline and are
// decoded in place.
func (s *SFTP) Get(ctx context.Context, repo uuid.UUID, ref string) (string, error) {
	if !strings.HasPrefix(ref, "sftp://") {
		return s.codec.Get(ctx, repo, ref)
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("sftp: invalid reference: %w", err)
	}

	client, err := s.connect(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	src, err := client.Open(u.Path)
	if err != nil {
		return "", fmt.Errorf("sftp: failed to open file: %w", err)
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		return "", fmt.Errorf("sftp: failed to read file: %w", err)
	}
	return s.codec.Get(ctx, repo, string(content))
}
