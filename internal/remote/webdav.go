package remote

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"dotkeep/internal/config"
	"dotkeep/internal/dot"
)

// WebDAV stores bundles in a WebDAV collection using plain HTTP verbs:
// PUT to push, PROPFIND to list, GET to pull.
type WebDAV struct {
	base     *url.URL
	username string
	password string
	client   *http.Client
	logger   dot.Logger
}

// NewWebDAV builds the backend from the remote configuration.
func NewWebDAV(cfg config.RemoteConfig, logger dot.Logger) (*WebDAV, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webdav remote requires url to be set")
	}
	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid webdav url: %w", err)
	}
	return &WebDAV{
		base:     base,
		username: cfg.Username,
		password: cfg.Password,
		client:   &http.Client{Timeout: 5 * time.Minute},
		logger:   logger,
	}, nil
}

func (w *WebDAV) entryURL(name string) string {
	u := *w.base
	u.Path = path.Join(u.Path, name)
	return u.String()
}

func (w *WebDAV) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", method, err)
	}
	if w.username != "" {
		req.SetBasicAuth(w.username, w.password)
	}
	return req, nil
}

// Push uploads the bundle under name.
func (w *WebDAV) Push(ctx context.Context, bundle io.Reader, name string) error {
	req, err := w.newRequest(ctx, http.MethodPut, w.entryURL(name), bundle)
	if err != nil {
		return err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("uploading bundle: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		w.logger.Info("bundle pushed", "url", w.entryURL(name))
		return nil
	default:
		return fmt.Errorf("uploading bundle: server returned %s", resp.Status)
	}
}

// multistatus is the slice of a PROPFIND response this backend cares
// about: just the entry hrefs.
type multistatus struct {
	XMLName   xml.Name `xml:"multistatus"`
	Responses []struct {
		Href string `xml:"href"`
	} `xml:"response"`
}

// Pull lists the collection and downloads the newest bundle.
func (w *WebDAV) Pull(ctx context.Context) (io.ReadCloser, string, error) {
	body := strings.NewReader(`<?xml version="1.0"?><propfind xmlns="DAV:"><allprop/></propfind>`)
	req, err := w.newRequest(ctx, "PROPFIND", w.base.String(), body)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Depth", "1")
	req.Header.Set("Content-Type", "application/xml")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("listing bundles: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMultiStatus {
		io.Copy(io.Discard, resp.Body)
		return nil, "", fmt.Errorf("listing bundles: server returned %s", resp.Status)
	}

	var ms multistatus
	if err := xml.NewDecoder(resp.Body).Decode(&ms); err != nil {
		return nil, "", fmt.Errorf("parsing listing: %w", err)
	}

	var newest string
	for _, r := range ms.Responses {
		name, err := url.PathUnescape(path.Base(strings.TrimSuffix(r.Href, "/")))
		if err != nil || !IsBundleName(name) {
			continue
		}
		if name > newest {
			newest = name
		}
	}
	if newest == "" {
		return nil, "", fmt.Errorf("no bundles found at %s", w.base)
	}

	get, err := w.newRequest(ctx, http.MethodGet, w.entryURL(newest), nil)
	if err != nil {
		return nil, "", err
	}
	dl, err := w.client.Do(get)
	if err != nil {
		return nil, "", fmt.Errorf("downloading bundle: %w", err)
	}
	if dl.StatusCode != http.StatusOK {
		dl.Body.Close()
		return nil, "", fmt.Errorf("downloading bundle: server returned %s", dl.Status)
	}
	return dl.Body, newest, nil
}

var _ dot.RemoteBackend = (*WebDAV)(nil)
