// Package imagehost uploads profile photos to a Cloudinary-compatible image
// host using an unsigned upload preset.
package imagehost

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"kaaj/internal/apperrors"
	"kaaj/internal/config"
	"kaaj/internal/logging"
	"kaaj/internal/validation"

	"github.com/charmbracelet/log"
	"github.com/gabriel-vasile/mimetype"
)

type Uploader struct {
	cfg    config.ImageHostConfig
	client *http.Client
	logger *log.Logger
}

type Option func(*Uploader)

func WithHTTPClient(c *http.Client) Option { return func(u *Uploader) { u.client = c } }

func WithLogger(l *log.Logger) Option { return func(u *Uploader) { u.logger = l } }

// New checks that the host secrets are configured.
func New(cfg config.ImageHostConfig, opts ...Option) (*Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	u := &Uploader{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload sends data as a base64 data URI and returns the hosted image's
// HTTPS URL. The host names the asset; filename is only used for logging.
func (u *Uploader) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	mime, err := Check(data)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	uri := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
	if err := w.WriteField("file", uri); err != nil {
		return "", apperrors.Wrap(apperrors.KindImageUploadFailed, err)
	}
	if err := w.WriteField("upload_preset", u.cfg.UploadPreset); err != nil {
		return "", apperrors.Wrap(apperrors.KindImageUploadFailed, err)
	}
	if err := w.Close(); err != nil {
		return "", apperrors.Wrap(apperrors.KindImageUploadFailed, err)
	}

	endpoint := strings.TrimRight(u.cfg.BaseURL, "/") + "/v1_1/" + u.cfg.CloudName + "/image/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindImageUploadFailed, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		u.logger.Error("image upload", "file", filename, "err", err)
		return "", apperrors.Wrap(apperrors.KindImageUploadFailed, err)
	}
	defer resp.Body.Close()

	var out uploadResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", apperrors.Wrap(apperrors.KindImageUploadFailed,
			fmt.Errorf("decode upload response (status %d): %w", resp.StatusCode, err))
	}
	if out.Error != nil {
		u.logger.Warn("image host rejected upload", "status", resp.StatusCode, "message", out.Error.Message)
		return "", apperrors.Wrap(apperrors.KindImageUploadFailed, fmt.Errorf("image host: %s", out.Error.Message))
	}
	if out.SecureURL == "" {
		return "", apperrors.Wrap(apperrors.KindImageUploadFailed, fmt.Errorf("image host returned no url (status %d)", resp.StatusCode))
	}
	return out.SecureURL, nil
}

// Check enforces the size cap and sniffs the content type, which must be an
// image. It returns the detected MIME type.
func Check(data []byte) (string, error) {
	if len(data) == 0 || len(data) > validation.MaxImageBytes {
		return "", apperrors.New(apperrors.KindInvalidImage)
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", apperrors.Wrap(apperrors.KindInvalidImage, fmt.Errorf("content type %s", mt.String()))
	}
	return mt.String(), nil
}
