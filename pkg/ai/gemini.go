package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient calls the Google AI Studio (Gemini) API.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGeminiClient constructs a client with the provided API key.
func NewGeminiClient(apiKey string) (*GeminiClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key required")
	}
	return &GeminiClient{
		apiKey:     apiKey,
		baseURL:    defaultGeminiBaseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}, nil
}

// GenerateText returns the generated response for a prompt.
func (c *GeminiClient) GenerateText(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	reqBody := generateRequest{
		Contents: []content{
			{
				Role:  "user",
				Parts: []part{{Text: userPrompt}},
			},
		},
	}
	if strings.TrimSpace(systemPrompt) != "" {
		reqBody.SystemInstruction = &content{
			Parts: []part{{Text: systemPrompt}},
		}
	}
	return c.generate(ctx, model, reqBody)
}

// GenerateVision returns the generated response for a prompt with inline
// images attached, in order, after the text part.
func (c *GeminiClient) GenerateVision(ctx context.Context, model, prompt string, images []ImagePart) (string, error) {
	parts := make([]part, 0, len(images)+1)
	parts = append(parts, part{Text: prompt})
	for _, img := range images {
		mime := strings.TrimSpace(img.MIMEType)
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, part{
			InlineData: &inlineData{
				MIMEType: mime,
				Data:     base64.StdEncoding.EncodeToString(img.Data),
			},
		})
	}
	reqBody := generateRequest{
		Contents: []content{{Role: "user", Parts: parts}},
	}
	return c.generate(ctx, model, reqBody)
}

func (c *GeminiClient) generate(ctx context.Context, model string, reqBody generateRequest) (string, error) {
	var resp generateResponse
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, normalizeModel(model), c.apiKey)
	if err := c.doJSON(ctx, url, reqBody, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from gemini")
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

func normalizeModel(model string) string {
	model = strings.TrimSpace(model)
	model = strings.TrimPrefix(model, "models/")
	return model
}

func (c *GeminiClient) doJSON(ctx context.Context, url string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Error.Message
		if msg == "" {
			msg = resp.Status
		}
		return &APIError{StatusCode: resp.StatusCode, Status: errResp.Error.Status, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return err
	}
	return nil
}

// ImagePart is one inline image attached to a vision request.
type ImagePart struct {
	MIMEType string
	Data     []byte
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents          []content `json:"contents"`
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
