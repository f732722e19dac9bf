// internal/vision/gateway.go - completion gateway reached through the MCP proxy
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type GatewayModel struct {
	httpClient *http.Client
	proxyURL   string
	apiKey     string
	model      string
}

func NewGateway(proxyURL, apiKey, model string) *GatewayModel {
	return &GatewayModel{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		proxyURL: proxyURL,
		apiKey:   apiKey,
		model:    model,
	}
}

type gatewayMessagePart struct {
	Type     string           `json:"type"`
	Text     string           `json:"text,omitempty"`
	ImageURL *gatewayImageURL `json:"image_url,omitempty"`
}

type gatewayImageURL struct {
	URL string `json:"url"`
}

type gatewayMessage struct {
	Role    string               `json:"role"`
	Content []gatewayMessagePart `json:"content"`
}

type completionRequest struct {
	Model       string           `json:"model"`
	Messages    []gatewayMessage `json:"messages"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature float64          `json:"temperature"`
}

type toolCallParams struct {
	Name      string `json:"name"`
	Arguments any    `json:"arguments"`
}

type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      int            `json:"id"`
	Method  string         `json:"method"`
	Params  toolCallParams `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result *struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *rpcError `json:"error"`
}

func (g *GatewayModel) Generate(ctx context.Context, img Image, prompt string) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", img.MIMEType, base64.StdEncoding.EncodeToString(img.Data))

	req := completionRequest{
		Model: g.model,
		Messages: []gatewayMessage{{
			Role: "user",
			Content: []gatewayMessagePart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &gatewayImageURL{URL: dataURL}},
			},
		}},
		MaxTokens:   1000,
		Temperature: 0.1,
	}

	reply, err := g.callTool(ctx, "create_completion", req)
	if err != nil {
		return "", fmt.Errorf("gateway completion: %w", err)
	}

	// Completions arrive as {"content": "..."}; anything else is the raw text.
	var completion struct {
		Content *string `json:"content"`
	}
	if err := json.Unmarshal([]byte(reply), &completion); err == nil && completion.Content != nil {
		return *completion.Content, nil
	}
	return reply, nil
}

// callTool invokes a proxy tool over JSON-RPC and returns its first text block.
func (g *GatewayModel) callTool(ctx context.Context, name string, args any) (string, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  toolCallParams{Name: name, Arguments: args},
	})
	if err != nil {
		return "", fmt.Errorf("encode %s call: %w", name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.proxyURL+"/openrouter-gateway", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("gateway status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode %s reply: %w", name, err)
	}
	switch {
	case out.Error != nil:
		return "", fmt.Errorf("%s: rpc error %d: %s", name, out.Error.Code, out.Error.Message)
	case out.Result == nil || len(out.Result.Content) == 0:
		return "", fmt.Errorf("%s: empty result", name)
	case out.Result.IsError:
		return "", fmt.Errorf("%s: %s", name, out.Result.Content[0].Text)
	}
	return out.Result.Content[0].Text, nil
}
