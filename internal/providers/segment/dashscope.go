package segment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// segmentInstruction asks the hosted edit model for a clean cutout on a
// transparent background. Kept deliberately short; longer prompts made the
// model invent props around the product.
const segmentInstruction = "Remove the background completely, keep only the main product with clean edges on a transparent background"

const maxResultBytes = 32 << 20

// Options configure the DashScope client.
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client calls the DashScope qwen-image-edit endpoint to cut subjects out of
// product photos. It implements pipeline.Segmenter.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://dashscope-intl.aliyuncs.com/api/v1"
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		httpClient: client,
		baseURL:    base,
		token:      strings.TrimSpace(opts.APIKey),
	}
}

type editRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []struct {
			Role    string        `json:"role"`
			Content []interface{} `json:"content"`
		} `json:"messages"`
	} `json:"input"`
	Parameters struct {
		NegativePrompt string `json:"negative_prompt,omitempty"`
		Watermark      bool   `json:"watermark"`
	} `json:"parameters"`
}

type editResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content []map[string]string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RemoveBackground sends the image through qwen-image-edit and downloads the
// returned cutout. The input goes up as a base64 data URL so no public
// hosting of user uploads is needed.
func (c *Client) RemoveBackground(ctx context.Context, img []byte) ([]byte, error) {
	if c == nil {
		return nil, errors.New("dashscope client not configured")
	}
	if c.token == "" {
		return nil, errors.New("dashscope: API key is missing")
	}
	if len(img) == 0 {
		return nil, errors.New("dashscope: image payload required")
	}

	url, err := c.editOnce(ctx, img)
	if err != nil {
		return nil, err
	}
	return c.download(ctx, url)
}

func (c *Client) editOnce(ctx context.Context, img []byte) (string, error) {
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(img)

	var payload editRequest
	payload.Model = "qwen-image-edit"
	msg := struct {
		Role    string        `json:"role"`
		Content []interface{} `json:"content"`
	}{
		Role: "user",
		Content: []interface{}{
			map[string]string{"image": dataURL},
			map[string]string{"text": segmentInstruction},
		},
	}
	payload.Input.Messages = append(payload.Input.Messages, msg)
	payload.Parameters.Watermark = false

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	endpoint := c.baseURL + "/services/aigc/multimodal-generation/generation"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out editResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return "", fmt.Errorf("dashscope: http %d", resp.StatusCode)
		}
		return "", err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		if out.Message != "" {
			return "", fmt.Errorf("dashscope error: %s (%s)", out.Message, out.Code)
		}
		return "", fmt.Errorf("dashscope: http %d", resp.StatusCode)
	}
	if len(out.Output.Choices) == 0 || len(out.Output.Choices[0].Message.Content) == 0 {
		if out.Message != "" {
			return "", fmt.Errorf("dashscope error: %s (%s)", out.Message, out.Code)
		}
		return "", errors.New("dashscope: empty response")
	}
	url := out.Output.Choices[0].Message.Content[0]["image"]
	if strings.TrimSpace(url) == "" {
		return "", errors.New("dashscope: missing result image url")
	}
	return url, nil
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dashscope: result download http %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResultBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxResultBytes {
		return nil, errors.New("dashscope: result image too large")
	}
	return data, nil
}
