package segment

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
)

const (
	DefaultRemoteModel   = "u2net"
	DefaultRemoteTimeout = 60 * time.Second

	remoteFileField  = "file"
	maxRemoteErrBody = 512
)

type RemoteOptions struct {
	// Endpoint is a rembg-compatible removal URL, e.g. http://rembg:7000/api/remove.
	Endpoint     string
	Model        string
	AlphaMatting bool
	Timeout      time.Duration
	Client       *http.Client
}

// Remote delegates segmentation to an HTTP background-removal server.
type Remote struct {
	endpoint     string
	model        string
	alphaMatting bool
	client       *http.Client
}

func NewRemote(opts RemoteOptions) *Remote {
	if opts.Model == "" {
		opts.Model = DefaultRemoteModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRemoteTimeout
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Remote{
		endpoint:     opts.Endpoint,
		model:        opts.Model,
		alphaMatting: opts.AlphaMatting,
		client:       client,
	}
}

func (r *Remote) Segment(ctx context.Context, img image.Image) (*image.NRGBA, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}

	body, contentType, err := r.buildForm(img)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create segment request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "image/png")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote segmenter request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxRemoteErrBody))
		return nil, fmt.Errorf("remote segmenter returned status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	result, err := png.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode remote segmenter output: %w", err)
	}

	want := img.Bounds()
	got := result.Bounds()
	if got.Dx() != want.Dx() || got.Dy() != want.Dy() {
		return nil, fmt.Errorf("remote segmenter returned %dx%d for a %dx%d input",
			got.Dx(), got.Dy(), want.Dx(), want.Dy())
	}

	return imaging.Clone(result), nil
}

// Ping checks that the remote endpoint answers at all.
func (r *Remote) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, r.endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func (r *Remote) buildForm(img image.Image) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile(remoteFileField, "image.png")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if err := png.Encode(part, img); err != nil {
		return nil, "", fmt.Errorf("encode segment input: %w", err)
	}

	_ = writer.WriteField("model", r.model)
	_ = writer.WriteField("a", strconv.FormatBool(r.alphaMatting))
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}
