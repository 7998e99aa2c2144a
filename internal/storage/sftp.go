package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

type SFTPConfig struct {
	Host          string // host or host:port
	User          string
	Password      string
	PrivateKey    string // PEM, raw or base64
	HostKey       string // authorized_keys format
	RemoteDir     string
	PublicBaseURL string
}

// SFTPPublisher copies artifacts to a web root over SFTP. One SSH session
// is opened per publish.
type SFTPPublisher struct {
	cfg       SFTPConfig
	addr      string
	sshConfig *ssh.ClientConfig
	logger    zerolog.Logger
}

func NewSFTPPublisher(cfg SFTPConfig, logger zerolog.Logger) (*SFTPPublisher, error) {
	auths, err := sftpAuth(cfg)
	if err != nil {
		return nil, err
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.HostKey != "" {
		pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(cfg.HostKey))
		if err != nil {
			return nil, fmt.Errorf("parse host key: %w", err)
		}
		hostKeyCallback = ssh.FixedHostKey(pub)
	} else {
		logger.Warn().Str("host", cfg.Host).Msg("SFTP host key not configured, skipping verification")
	}

	addr := cfg.Host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "22")
	}

	return &SFTPPublisher{
		cfg:  cfg,
		addr: addr,
		sshConfig: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            auths,
			HostKeyCallback: hostKeyCallback,
			Timeout:         10 * time.Second,
		},
		logger: logger,
	}, nil
}

func sftpAuth(cfg SFTPConfig) ([]ssh.AuthMethod, error) {
	if cfg.PrivateKey != "" {
		// try to decode as base64, fall back to raw
		keyBytes, err := base64.StdEncoding.DecodeString(cfg.PrivateKey)
		if err != nil {
			keyBytes = []byte(cfg.PrivateKey)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	if cfg.Password != "" {
		return []ssh.AuthMethod{ssh.Password(cfg.Password)}, nil
	}
	return nil, fmt.Errorf("no SFTP auth method configured; set a password or private key")
}

func (p *SFTPPublisher) Name() string { return "sftp" }

func (p *SFTPPublisher) Publish(ctx context.Context, key, localPath, contentType string) (string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer src.Close()

	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return "", fmt.Errorf("dial tcp %s: %w", p.addr, err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, p.addr, p.sshConfig)
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("ssh handshake with %s: %w", p.addr, err)
	}
	sshClient := ssh.NewClient(clientConn, chans, reqs)
	defer sshClient.Close()

	// Close the session if ctx ends mid-copy
	stop := context.AfterFunc(ctx, func() { sshClient.Close() })
	defer stop()

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return "", fmt.Errorf("create sftp client: %w", err)
	}
	defer client.Close()

	remotePath := p.remotePath(key)
	dir := path.Dir(remotePath)
	if err := mkdirAllSFTP(client, dir); err != nil {
		return "", fmt.Errorf("ensure remote dir %s: %w", dir, err)
	}

	dst, err := client.Create(remotePath)
	if err != nil {
		return "", fmt.Errorf("create remote file %s: %w", remotePath, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("copy to remote file %s: %w", remotePath, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("close remote file %s: %w", remotePath, err)
	}

	p.logger.Info().Str("path", remotePath).Str("addr", p.addr).Msg("uploaded file")
	return joinURL(p.cfg.PublicBaseURL, key), nil
}

func (p *SFTPPublisher) remotePath(key string) string {
	return path.Join(p.cfg.RemoteDir, strings.TrimLeft(key, "/"))
}

// mkdirAllSFTP mirrors os.MkdirAll over SFTP.
func mkdirAllSFTP(client *sftp.Client, dir string) error {
	if dir == "" || dir == "." || dir == "/" {
		return nil
	}

	parts := strings.Split(dir, "/")
	cur := ""
	if strings.HasPrefix(dir, "/") {
		cur = "/"
	}

	for _, part := range parts {
		if part == "" {
			continue
		}
		cur = path.Join(cur, part)
		if _, err := client.Stat(cur); err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("stat %s: %w", cur, err)
			}
			if err := client.Mkdir(cur); err != nil {
				return fmt.Errorf("mkdir %s: %w", cur, err)
			}
		}
	}
	return nil
}
