package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3.2-vision:latest"
	DefaultPrompt  = "Describe this image in detail but concisely"
)

// Describer asks a local Ollama instance for a textual description of an
// image. The /api/generate endpoint answers with newline-delimited JSON
// fragments; the description is the concatenation of their response fields.
type Describer struct {
	BaseURL    string
	Model      string
	Prompt     string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
}

type generateFragment struct {
	Response string `json:"response"`
}

func NewDescriber(baseURL, model, prompt string, logger *zap.Logger) *Describer {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	if prompt == "" {
		prompt = DefaultPrompt
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Describer{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Model:      model,
		Prompt:     prompt,
		HTTPClient: &http.Client{},
		Logger:     logger,
	}
}

// Describe sends the image at path to the vision model and returns the
// accumulated description, trimmed of surrounding whitespace.
func (d *Describer) Describe(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	payload := generateRequest{
		Model:  d.Model,
		Prompt: d.Prompt,
		Images: []string{base64.StdEncoding.EncodeToString(data)},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	d.Logger.Debug("requesting image description",
		zap.String("image", path),
		zap.String("model", d.Model),
		zap.Int("image_bytes", len(data)),
	)

	client := d.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request image description: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("vision backend returned status %d", resp.StatusCode)
	}

	return accumulateFragments(raw), nil
}

// accumulateFragments concatenates the response fields of the streamed
// JSON lines in order. Lines that fail to parse are skipped; the backend
// occasionally emits partial fragments and a lost line only shortens the
// description.
func accumulateFragments(raw []byte) string {
	var description strings.Builder
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		if line == "" {
			continue
		}
		var fragment generateFragment
		if err := json.Unmarshal([]byte(line), &fragment); err != nil {
			continue
		}
		description.WriteString(fragment.Response)
	}
	return strings.TrimSpace(description.String())
}
