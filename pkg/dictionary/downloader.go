package dictionary

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	repoOwner = "scriptin"
	repoName  = "jmdict-simplified"
)

// Downloader fetches the latest jmdict-eng-common release from GitHub.
type Downloader struct {
	Client  *http.Client
	APIBase string // defaults to https://api.github.com
	Log     *zap.Logger
}

// EnsureDictionary checks if the dictionary exists at path and downloads it
// with default settings when it does not.
func EnsureDictionary(ctx context.Context, path string, log *zap.Logger) error {
	return Downloader{Log: log}.Ensure(ctx, path)
}

// Ensure checks if the dictionary exists at path. If not, it discovers the
// latest release, downloads it and extracts the JSON file to path.
func (d Downloader) Ensure(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if d.Client == nil {
		d.Client = &http.Client{Timeout: 5 * time.Minute}
	}
	if d.APIBase == "" {
		d.APIBase = "https://api.github.com"
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}

	d.Log.Info("dictionary not found, downloading", zap.String("path", path))
	downloadURL, err := d.latestAssetURL(ctx)
	if err != nil {
		return fmt.Errorf("failed to find latest dictionary release: %w", err)
	}
	d.Log.Info("downloading dictionary", zap.String("url", downloadURL))
	return d.downloadAndExtract(ctx, downloadURL, path)
}

func (d Downloader) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	// GitHub rejects requests without a User-Agent.
	req.Header.Set("User-Agent", "readmark-cli")
	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return resp, nil
}

func (d Downloader) latestAssetURL(ctx context.Context) (string, error) {
	resp, err := d.get(ctx, fmt.Sprintf("%s/repos/%s/%s/releases/latest", strings.TrimRight(d.APIBase, "/"), repoOwner, repoName))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var release struct {
		Assets []struct {
			Name               string `json:"name"`
			BrowserDownloadURL string `json:"browser_download_url"`
		} `json:"assets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", err
	}
	for _, asset := range release.Assets {
		if strings.Contains(asset.Name, "jmdict-eng-common") && (strings.HasSuffix(asset.Name, ".json.tgz") || strings.HasSuffix(asset.Name, ".json.gz")) {
			return asset.BrowserDownloadURL, nil
		}
	}
	return "", fmt.Errorf("no suitable dictionary asset found in latest release")
}

// downloadAndExtract writes the first .json member of the tar.gz at url to
// destPath. The file is written to a temporary name first so an interrupted
// download never leaves a truncated dictionary behind.
func (d Downloader) downloadAndExtract(ctx context.Context, url, destPath string) error {
	resp, err := d.get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return fmt.Errorf("no json file found in downloaded archive")
		}
		if err != nil {
			return fmt.Errorf("error reading tar archive: %w", err)
		}
		if header.Typeflag != tar.TypeReg || !strings.HasSuffix(header.Name, ".json") {
			continue
		}

		tmp, err := os.CreateTemp(filepath.Dir(destPath), ".jmdict-*")
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		if _, err := io.Copy(tmp, tr); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return fmt.Errorf("failed to write to file: %w", err)
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmp.Name())
			return err
		}
		return os.Rename(tmp.Name(), destPath)
	}
}
