// Package embedding talks to the face recognition service that turns camera
// frames into face descriptors.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/face-auth/internal/constants"
	"github.com/kozaktomas/face-auth/internal/facematch"
)

const defaultEmbeddingURL = "http://localhost:8000"

// Client computes face descriptors using the embedding server.
type Client struct {
	baseURL      string
	client       *http.Client
	maxFrameSize int
	logger       *slog.Logger
}

// NewClient creates a new embedding client. A zero timeout disables the per-request limit.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		client:       &http.Client{Timeout: timeout},
		maxFrameSize: constants.MaxFrameSize,
		logger:       logger,
	}
}

// FaceDetection represents a single detected face
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2] in pixels
	DetScore  float64   `json:"det_score"`
}

// FaceResponse represents the response from the face embedding endpoint
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

type healthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

// WarmUp checks that the server is reachable and its face model is loaded.
func (c *Client) WarmUp(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var health healthResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &health); err != nil {
			return fmt.Errorf("failed to parse health response: %w", err)
		}
	}
	if health.Status != "" && health.Status != "ok" {
		return fmt.Errorf("embedding server not ready: %s", health.Status)
	}

	c.logger.Debug("embedding server ready", "url", c.baseURL, "model", health.Model)
	return nil
}

// DetectOne returns the most confident face in the frame, or nil when the
// model found none.
func (c *Client) DetectOne(ctx context.Context, frame []byte) (*facematch.Detection, error) {
	resized, width, height, err := ResizeFrame(frame, c.maxFrameSize)
	if err != nil {
		return nil, err
	}

	faceResp, err := c.ComputeFaceEmbeddings(ctx, resized)
	if err != nil {
		return nil, err
	}

	best := pickFace(faceResp.Faces)
	if best == nil {
		return nil, nil
	}
	if faceResp.FacesCount > 1 {
		c.logger.Debug("multiple faces in frame, using most confident", "faces", faceResp.FacesCount, "score", best.DetScore)
	}

	descriptor := make(facematch.Descriptor, len(best.Embedding))
	for i, v := range best.Embedding {
		descriptor[i] = float64(v)
	}
	return &facematch.Detection{
		Descriptor: descriptor,
		Score:      best.DetScore,
		BBox:       facematch.ConvertPixelBBoxToRelative(best.BBox, width, height),
	}, nil
}

// pickFace chooses the highest scoring face; equal scores go to the larger box.
func pickFace(faces []FaceDetection) *FaceDetection {
	var best *FaceDetection
	for i := range faces {
		f := &faces[i]
		if len(f.Embedding) == 0 {
			continue
		}
		if best == nil || f.DetScore > best.DetScore ||
			(f.DetScore == best.DetScore && facematch.BBoxArea(f.BBox) > facematch.BBoxArea(best.BBox)) {
			best = f
		}
	}
	return best
}

// ComputeFaceEmbeddings detects faces and computes their embeddings
func (c *Client) ComputeFaceEmbeddings(ctx context.Context, imageData []byte) (*FaceResponse, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &faceResp, nil
}

// postMultipartImage constructs a multipart form with the image data and posts it to the given endpoint.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
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

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
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

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	return "application/octet-stream"
}
