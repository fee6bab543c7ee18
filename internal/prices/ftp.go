package prices

import (
	"context"
	"io"
	"net"
	"os"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPConfig locates the supplier's price list.
type FTPConfig struct {
	Addr     string // host or host:port
	User     string
	Password string
	Path     string // remote file path
	Timeout  time.Duration
}

// fetchToTemp downloads the remote price list to a temporary file and returns
// its path. The caller removes the file.
func fetchToTemp(ctx context.Context, cfg FTPConfig) (string, error) {
	addr := cfg.Addr
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "21")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	zap.L().Debug("ftp: connecting",
		zap.String("addr", addr),
		zap.String("path", cfg.Path))

	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return "", eris.Wrap(err, "prices: ftp dial")
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login(cfg.User, cfg.Password); err != nil {
		return "", eris.Wrap(err, "prices: ftp login")
	}

	resp, err := conn.Retr(cfg.Path)
	if err != nil {
		return "", eris.Wrap(err, "prices: ftp retrieve")
	}
	defer resp.Close() //nolint:errcheck

	tmp, err := os.CreateTemp("", "pricelist-*.xlsx")
	if err != nil {
		return "", eris.Wrap(err, "prices: create temp file")
	}
	defer tmp.Close() //nolint:errcheck

	if _, err := io.Copy(tmp, resp); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return "", eris.Wrap(err, "prices: download price list")
	}
	return tmp.Name(), nil
}
