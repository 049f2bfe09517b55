// Package gemini provides a client for the generative language API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"gemchat-go/internal/config"
	"gemchat-go/pkg/log"
)

// Result 的结果类别。四种失败/成功形态是封闭的，编排层逐一匹配。
type Outcome int

const (
	// OutcomeOK 表示模型成功返回内容。
	OutcomeOK Outcome = iota
	// OutcomeQuotaExceeded 表示两个档位都因配额/限流失败。
	OutcomeQuotaExceeded
	// OutcomeProviderError 表示模型方返回了非配额类错误。
	OutcomeProviderError
	// OutcomeTransportError 表示请求根本没有到达模型方（网络层失败）。
	OutcomeTransportError
)

// 成功结果的内容类别。
const (
	TypeText            = "text"
	TypeImageGeneration = "image_generation"
)

// Result 是一次对话调用的完整结果。
// Outcome 为 OutcomeOK 时 Content/Type 有效；Type 为 TypeImageGeneration
// 时 ImagePrompt 携带模型给出的优化提示词。Err 保存原始错误文本，仅用于日志，
// 永远不直接展示给最终用户。
type Result struct {
	Outcome     Outcome
	Type        string
	Content     string
	ImagePrompt string
	Err         string
}

// Turn 表示一条历史消息。
type Turn struct {
	Role    string
	Content string
}

// Client defines the interface for the generative language client.
type Client interface {
	// Converse 以当前输入、历史轮次和可选的图片数据（data URI）调用模型。
	// 先尝试低成本档位，仅当失败被判定为配额类错误时才升级到高质量档位。
	Converse(ctx context.Context, prompt string, history []Turn, imageData string) Result
}

type geminiClient struct {
	cfg    config.GeminiConfig
	client *http.Client
}

// NewClient creates a new Gemini client from the config.
func NewClient(cfg config.GeminiConfig) Client {
	return &geminiClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

const systemPrompt = `You are a helpful AI assistant. You can:
- Have natural conversations and answer questions
- Analyze uploaded images when provided
- Provide helpful information on various topics

Be conversational and helpful in all interactions.`

// ---- 请求/响应结构，对应 generateContent 接口 ----

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
	Tools             []tool            `json:"tools,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text         string        `json:"text,omitempty"`
	InlineData   *inlineData   `json:"inlineData,omitempty"`
	FunctionCall *functionCall `json:"functionCall,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type functionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	TopP            float64 `json:"topP,omitempty"`
	TopK            int     `json:"topK,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type tool struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations"`
}

type functionDeclaration struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Parameters  *paramsSchema `json:"parameters,omitempty"`
}

type paramsSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]propertySchema `json:"properties,omitempty"`
	Required   []string                  `json:"required,omitempty"`
}

type propertySchema struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// callError 区分配额类、传输类和其他提供方错误。
type callError struct {
	quota     bool
	transport bool
	msg       string
}

func (e *callError) Error() string { return e.msg }

// Converse 按固定顺序（flash -> pro）尝试两个模型档位。
// 只有配额类失败才会推进到第二档；其他失败立即终止。
func (c *geminiClient) Converse(ctx context.Context, prompt string, history []Turn, imageData string) Result {
	var lastErr *callError

	for _, modelName := range []string{c.cfg.FlashModel, c.cfg.ProModel} {
		result, err := c.generate(ctx, modelName, prompt, history, imageData)
		if err == nil {
			return result
		}

		lastErr = err
		if err.quota {
			log.Warnf("模型 %s 配额耗尽，尝试回退下一档位", modelName)
			continue
		}
		// 非配额错误不再重试
		break
	}

	if lastErr == nil {
		return Result{Outcome: OutcomeProviderError, Err: "no model tier configured"}
	}
	if lastErr.quota || strings.Contains(lastErr.msg, "429") {
		return Result{Outcome: OutcomeQuotaExceeded, Err: lastErr.msg}
	}
	if lastErr.transport {
		return Result{Outcome: OutcomeTransportError, Err: lastErr.msg}
	}
	return Result{Outcome: OutcomeProviderError, Err: lastErr.msg}
}

// generate 对单个模型档位发起一次 generateContent 调用。
func (c *geminiClient) generate(ctx context.Context, modelName, prompt string, history []Turn, imageData string) (Result, *callError) {
	reqBody := generateRequest{
		Contents:          c.buildContents(prompt, history, imageData),
		SystemInstruction: &content{Parts: []part{{Text: systemPrompt}}},
		GenerationConfig:  c.buildGenerationConfig(),
		Tools: []tool{{
			FunctionDeclarations: []functionDeclaration{{
				Name:        "generate_image",
				Description: "Generate an image from a detailed text prompt when the user asks to draw, create or generate a picture.",
				Parameters: &paramsSchema{
					Type: "object",
					Properties: map[string]propertySchema{
						"prompt": {Type: "string", Description: "An optimized, detailed image prompt."},
					},
					Required: []string{"prompt"},
				},
			}},
		}},
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, &callError{msg: fmt.Sprintf("failed to marshal generate request: %v", err)}
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.cfg.BaseURL, modelName)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBytes))
	if err != nil {
		return Result{}, &callError{msg: fmt.Sprintf("failed to create generate request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, &callError{transport: true, msg: fmt.Sprintf("failed to call gemini api: %v", err)}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &callError{transport: true, msg: fmt.Sprintf("failed to read gemini response: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiErrorResponse
		_ = json.Unmarshal(bodyBytes, &apiErr)
		msg := apiErr.Error.Message
		if msg == "" {
			msg = string(bodyBytes)
		}
		return Result{}, &callError{
			quota: isQuotaFailure(resp.StatusCode, apiErr.Error.Status, msg),
			msg:   fmt.Sprintf("gemini api returned %s: %s", resp.Status, msg),
		}
	}

	var genResp generateResponse
	if err := json.Unmarshal(bodyBytes, &genResp); err != nil {
		return Result{}, &callError{msg: fmt.Sprintf("failed to decode gemini response: %v", err)}
	}
	if len(genResp.Candidates) == 0 {
		return Result{}, &callError{msg: "gemini api returned no candidates"}
	}

	var text strings.Builder
	for _, p := range genResp.Candidates[0].Content.Parts {
		if p.FunctionCall != nil && p.FunctionCall.Name == "generate_image" {
			imagePrompt, _ := p.FunctionCall.Args["prompt"].(string)
			if imagePrompt == "" {
				imagePrompt = prompt
			}
			return Result{Outcome: OutcomeOK, Type: TypeImageGeneration, ImagePrompt: imagePrompt}, nil
		}
		text.WriteString(p.Text)
	}
	return Result{Outcome: OutcomeOK, Type: TypeText, Content: text.String()}, nil
}

// buildContents 把历史轮次映射为提供方的 turn 结构：本地的 assistant
// 角色映射为提供方的 model 角色。历史轮次只携带文本；图片数据只附在
// 当前这条发出的消息上，绝不回写进历史。
func (c *geminiClient) buildContents(prompt string, history []Turn, imageData string) []content {
	contents := make([]content, 0, len(history)+1)
	for _, turn := range history {
		role := "user"
		if turn.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: turn.Content}}})
	}

	parts := make([]part, 0, 2)
	if prompt != "" {
		parts = append(parts, part{Text: prompt})
	}
	if imageData != "" {
		if mimeType, payload, err := ParseDataURI(imageData); err == nil {
			parts = append(parts, part{InlineData: &inlineData{MimeType: mimeType, Data: payload}})
		} else {
			log.Warnf("图片数据不是合法的 data URI，忽略: %v", err)
		}
	}
	contents = append(contents, content{Role: "user", Parts: parts})
	return contents
}

func (c *geminiClient) buildGenerationConfig() *generationConfig {
	gen := c.cfg.Generation
	if gen.Temperature == 0 && gen.TopP == 0 && gen.TopK == 0 && gen.MaxOutputTokens == 0 {
		return nil
	}
	return &generationConfig{
		Temperature:     gen.Temperature,
		TopP:            gen.TopP,
		TopK:            gen.TopK,
		MaxOutputTokens: gen.MaxOutputTokens,
	}
}

// isQuotaFailure 判断一次失败是否属于配额/限流：HTTP 429、
// RESOURCE_EXHAUSTED 状态或错误文本中出现 quota 字样。
func isQuotaFailure(statusCode int, status, message string) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	if status == "RESOURCE_EXHAUSTED" {
		return true
	}
	return strings.Contains(strings.ToLower(message), "quota")
}

// ParseDataURI 拆解 data URI（data:<mime>;base64,<payload>），
// 返回声明的媒体类型和 base64 负载。
func ParseDataURI(uri string) (mimeType, payload string, err error) {
	head, payload, found := strings.Cut(uri, ",")
	if !found {
		return "", "", fmt.Errorf("data URI missing payload separator")
	}
	head, _, _ = strings.Cut(head, ";")
	_, mimeType, found = strings.Cut(head, ":")
	if !found || mimeType == "" {
		return "", "", fmt.Errorf("data URI missing media type")
	}
	return mimeType, payload, nil
}
