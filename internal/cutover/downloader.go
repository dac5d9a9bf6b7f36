package cutover

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/okian/pcarank/pkg/logger"
)

// DefaultExportURL is the public WCA results export in TSV form.
const DefaultExportURL = "https://www.worldcubeassociation.org/export/results/WCA_export.tsv.zip"

// Downloader fetches an export and unpacks it into dir.
type Downloader interface {
	Fetch(ctx context.Context, dir string) error
}

// HTTPDownloader streams the export archive to disk and extracts it.
type HTTPDownloader struct {
	client *http.Client
	url    string
	log    logger.Logger
}

// NewHTTPDownloader returns a downloader for url. A nil client gets a
// default with no overall timeout, since exports are large.
func NewHTTPDownloader(url string, client *http.Client, log logger.Logger) *HTTPDownloader {
	if client == nil {
		client = &http.Client{Transport: &http.Transport{ResponseHeaderTimeout: time.Minute}}
	}
	if url == "" {
		url = DefaultExportURL
	}
	if log == nil {
		log = logger.Get().Named("downloader")
	}
	return &HTTPDownloader{client: client, url: url, log: log}
}

// Fetch implements Downloader.
func (d *HTTPDownloader) Fetch(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrDownload, dir, err)
	}

	archive, err := os.CreateTemp(dir, "export-*.zip")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownload, err)
	}
	defer func() {
		_ = archive.Close()
		_ = os.Remove(archive.Name())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownload, err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownload, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %s", ErrDownload, d.url, resp.Status)
	}

	n, err := io.Copy(archive, resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownload, err)
	}
	d.log.Info(ctx, "export downloaded", logger.String("url", d.url), logger.Int64("bytes", n))

	files, err := Extract(archive.Name(), dir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownload, err)
	}
	d.log.Info(ctx, "export extracted", logger.Int("files", files), logger.String("dir", dir))
	return nil
}

// Extract unpacks the regular files of a zip archive into dir, flattening
// any directories. It returns the number of files written.
func Extract(archivePath, dir string) (int, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	written := 0
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(filepath.FromSlash(f.Name))
		if name == "." || name == ".." || strings.HasPrefix(name, ".") {
			continue
		}
		if err := extractFile(f, filepath.Join(dir, name)); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func extractFile(f *zip.File, dst string) error {
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return out.Close()
}
