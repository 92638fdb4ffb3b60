package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/rollcall/internal/facematch"
)

const (
	defaultEmbeddingURL = "http://localhost:8000"
	defaultTimeout      = 10 * time.Second
	faceEndpoint        = "/embed/face"
)

// FaceDetection is one face returned by the embedding server.
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse is the response of the face embedding endpoint.
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// HTTPDetector detects faces through the embedding server's /embed/face endpoint.
type HTTPDetector struct {
	baseURL      string
	maxFrameSize int
	client       *http.Client
}

// NewHTTPDetector creates a detector for the embedding server at baseURL.
func NewHTTPDetector(baseURL string, maxFrameSize int, timeout time.Duration) *HTTPDetector {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPDetector{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		maxFrameSize: maxFrameSize,
		client:       &http.Client{Timeout: timeout},
	}
}

// Detect implements Detector.
func (d *HTTPDetector) Detect(ctx context.Context, frame image.Image) ([]facematch.Detection, error) {
	prepared, err := PrepareFrame(frame, d.maxFrameSize)
	if err != nil {
		return nil, err
	}

	resp, err := d.ComputeFaceEmbeddings(ctx, prepared.JPEG)
	if err != nil {
		return nil, err
	}

	detections := make([]facematch.Detection, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if len(f.Embedding) == 0 {
			continue
		}
		region := toFrame(facematch.BBoxToRect(f.BBox), prepared, frame.Bounds())
		detections = append(detections, facematch.Detection{
			Region:    region,
			Embedding: f.Embedding,
			Score:     f.DetScore,
		})
	}
	return detections, nil
}

// ComputeFaceEmbeddings posts a JPEG image and returns the raw server response.
func (d *HTTPDetector) ComputeFaceEmbeddings(ctx context.Context, imageData []byte) (*FaceResponse, error) {
	body, err := d.postMultipartImage(ctx, faceEndpoint, imageData)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &faceResp, nil
}

// postMultipartImage posts imageData as the "file" form field.
func (d *HTTPDetector) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}
