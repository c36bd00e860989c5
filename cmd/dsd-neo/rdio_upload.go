package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/arancormonk/dsd-neo/internal/errtag"
	"github.com/arancormonk/dsd-neo/internal/rdio"
)

// Upload posts a call's metadata and recording as a multipart form to
// the configured Rdio-compatible API endpoint, per the export sidecar
// shape documented for the rdio package.
func (u *rdioHTTPUploader) Upload(ctx context.Context, job rdio.UploadJob) error {
	meta, err := json.Marshal(job.Call)
	if err != nil {
		return errtag.Wrap(errtag.Transient, "marshal call metadata", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("call", string(meta)); err != nil {
		return errtag.Wrap(errtag.Transient, "build upload form", err)
	}
	if err := writer.WriteField("apikey", u.apiKey); err != nil {
		return errtag.Wrap(errtag.Transient, "build upload form", err)
	}

	if job.WAVPath != "" {
		f, err := os.Open(job.WAVPath)
		if err != nil {
			return errtag.Wrap(errtag.Transient, "open recording", err)
		}
		defer f.Close()
		part, err := writer.CreateFormFile("audio", job.WAVPath)
		if err != nil {
			return errtag.Wrap(errtag.Transient, "build upload form", err)
		}
		if _, err := io.Copy(part, f); err != nil {
			return errtag.Wrap(errtag.Transient, "read recording", err)
		}
	}
	if err := writer.Close(); err != nil {
		return errtag.Wrap(errtag.Transient, "build upload form", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, &body)
	if err != nil {
		return errtag.Wrap(errtag.Transient, "build upload request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return errtag.Wrap(errtag.Transient, "upload call", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errtag.New(errtag.Transient, fmt.Sprintf("rdio upload rejected: %s", resp.Status))
	}
	return nil
}
