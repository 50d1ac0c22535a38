// Package fetcher downloads data files over HTTP(S) and FTP, unpacks ZIP
// archives, and streams tabular input from CSV and XLSX files.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// Fetcher downloads remote files.
type Fetcher interface {
	// Download returns the body at url. The caller closes it.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
	// DownloadToFile writes the body at url to path and returns the bytes
	// written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Multi dispatches to the HTTP or FTP fetcher by URL scheme.
type Multi struct {
	HTTP *HTTPFetcher
	FTP  *FTPFetcher
}

// NewMulti creates a Multi with default HTTP and FTP fetchers.
func NewMulti(httpOpts HTTPOptions, ftpOpts FTPOptions) *Multi {
	return &Multi{HTTP: NewHTTPFetcher(httpOpts), FTP: NewFTPFetcher(ftpOpts)}
}

// For returns the fetcher for rawURL's scheme.
func (m *Multi) For(rawURL string) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse url")
	}
	switch u.Scheme {
	case "http", "https":
		return m.HTTP, nil
	case "ftp":
		return m.FTP, nil
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
}

// DownloadToFile implements Fetcher.
func (m *Multi) DownloadToFile(ctx context.Context, rawURL, path string) (int64, error) {
	f, err := m.For(rawURL)
	if err != nil {
		return 0, err
	}
	return f.DownloadToFile(ctx, rawURL, path)
}

// Download implements Fetcher.
func (m *Multi) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	f, err := m.For(rawURL)
	if err != nil {
		return nil, err
	}
	return f.Download(ctx, rawURL)
}

// WriteFile copies r to path through a temporary file in the same
// directory, so a failed download never leaves a partial file at path.
func WriteFile(r io.Reader, path string) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, eris.Wrap(err, "fetcher: create directory")
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close() //nolint:errcheck
		return n, eris.Wrap(err, "fetcher: write file")
	}
	if err := tmp.Close(); err != nil {
		return n, eris.Wrap(err, "fetcher: close file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return n, eris.Wrap(err, "fetcher: rename file")
	}
	return n, nil
}
