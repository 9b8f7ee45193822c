// Package blobstore syncs the sqlite state file with a remote object store
// over plain HTTP. Stateless runs download the file before the cycle and
// upload it afterwards so dedup state survives between invocations.
package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	logx "linkwatch/pkg/logx"
)

type Config struct {
	// ObjectURL is the full URL of the state object. GET downloads it,
	// PUT replaces it.
	ObjectURL string
	// Token, when set, is sent as a bearer token on both requests.
	Token   string
	Timeout time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
}

// Download fetches the remote state object into path. A missing object is
// not an error: the first ever run starts with an empty store.
func (c *Client) Download(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ObjectURL, nil)
	if err != nil {
		return fmt.Errorf("blob download: %w", err)
	}
	c.auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("blob download: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.log.Info("no remote state object, starting fresh")
		return nil
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("blob download: unexpected status %d", resp.StatusCode)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("blob download: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("blob download: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("blob download: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("blob download: %w", err)
	}
	c.log.Info("state downloaded", logx.String("path", path))
	return nil
}

// Upload pushes the local state file to the remote object. It is called even
// after a failed cycle so whatever was marked seen is not lost.
func (c *Client) Upload(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("blob upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.cfg.ObjectURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("blob upload: %w", err)
	}
	c.auth(req)
	req.ContentLength = int64(len(data))
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("blob upload: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("blob upload: unexpected status %d", resp.StatusCode)
	}
	c.log.Info("state uploaded", logx.Int("bytes", len(data)))
	return nil
}

func (c *Client) auth(req *http.Request) {
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
}
