package remover

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/disintegration/imaging"
	"github.com/phambaophuc/background-remover/internal/models"
)

const (
	formFieldFile   = "file"
	maxResponseSize = 64 * 1024 * 1024
	maxErrorBody    = 512
)

// HTTPRemover delegates removal to a rembg-compatible inference server that
// accepts a multipart "file" field and answers with the processed image.
type HTTPRemover struct {
	url          string
	maxDimension int
	client       *http.Client
}

func NewHTTPRemover(url string, maxDimension int, client *http.Client) *HTTPRemover {
	if client == nil {
		// Deadlines come from the request context.
		client = &http.Client{}
	}
	return &HTTPRemover{
		url:          url,
		maxDimension: maxDimension,
		client:       client,
	}
}

func (r *HTTPRemover) Remove(ctx context.Context, data []byte, mimeType string) ([]byte, error) {
	payload, payloadType, err := r.prepare(data, mimeType)
	if err != nil {
		return nil, err
	}

	body, contentType, err := buildForm(payload, payloadType)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", models.MimeTypePNG)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remover request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("remover request failed with status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	out, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read remover response: %w", err)
	}
	if len(out) > maxResponseSize {
		return nil, fmt.Errorf("remover response exceeds %d bytes", maxResponseSize)
	}

	return EnsurePNG(out)
}

// prepare downscales oversized inputs before they are sent for inference.
func (r *HTTPRemover) prepare(data []byte, mimeType string) ([]byte, string, error) {
	if r.maxDimension <= 0 {
		return data, mimeType, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}

	scaled, changed := fitWithin(img, r.maxDimension)
	if !changed {
		return data, mimeType, nil
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, scaled, imaging.PNG); err != nil {
		return nil, "", fmt.Errorf("failed to encode scaled image: %w", err)
	}
	return buf.Bytes(), models.MimeTypePNG, nil
}

func buildForm(data []byte, mimeType string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, formFieldFile, uploadName(mimeType)))
	header.Set("Content-Type", mimeType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}

func uploadName(mimeType string) string {
	if mimeType == models.MimeTypeJPEG {
		return "upload.jpg"
	}
	return "upload.png"
}
