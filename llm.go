package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"
)

const llmMaxTokens = 1024
const ocrPromptLimit = 2000

// llmField is the raw outcome of one field-extraction call before it is
// folded into an ExtractionField.
type llmField struct {
	value      string
	confidence float64
}

// inferJSON sends one prompt pair (plus optional image) to the configured
// provider and parses the response as a JSON object. Non-JSON output is
// wrapped as {"raw": text} rather than failing.
func inferJSON(cfg Config, systemPrompt, userPrompt string, image []byte) (map[string]any, error) {
	switch cfg.LLMProvider {
	case "anthropic":
		return callAnthropic(cfg, systemPrompt, userPrompt, image)
	default:
		return callOllama(cfg, systemPrompt, userPrompt, image)
	}
}

func callAnthropic(cfg Config, systemPrompt, userPrompt string, image []byte) (map[string]any, error) {
	client := anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey))

	blocks := []anthropic.ContentBlockParamUnion{}
	if len(image) > 0 {
		blocks = append(blocks, anthropic.NewImageBlockBase64("image/png", base64.StdEncoding.EncodeToString(image)))
	}
	blocks = append(blocks, anthropic.NewTextBlock(userPrompt))

	message, err := client.Messages.New(context.Background(), anthropic.MessageNewParams{
		Model:     anthropic.Model(cfg.LLMModel),
		MaxTokens: llmMaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(blocks...),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("Anthropic API error: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return parseJSONValue(block.Text), nil
		}
	}
	return nil, fmt.Errorf("no text content in Anthropic response")
}

func callOllama(cfg Config, systemPrompt, userPrompt string, image []byte) (map[string]any, error) {
	clientCfg := openai.DefaultConfig("ollama")
	clientCfg.BaseURL = cfg.OllamaAPIURL
	clientCfg.HTTPClient = externalHTTPClient
	client := openai.NewClientWithConfig(clientCfg)

	userMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if len(image) > 0 {
		userMsg.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: userPrompt},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(image),
				},
			},
		}
	} else {
		userMsg.Content = userPrompt
	}

	resp, err := client.CreateChatCompletion(context.Background(), openai.ChatCompletionRequest{
		Model: cfg.LLMModel,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			userMsg,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("Ollama API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in Ollama response")
	}
	return parseJSONValue(resp.Choices[0].Message.Content), nil
}

var jsonBlobRe = regexp.MustCompile(`\{[\s\S]*\}`)

// parseJSONValue turns a model response into a map, tolerating code fences,
// surrounding prose, and outright non-JSON output.
func parseJSONValue(text string) map[string]any {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var out map[string]any
	if err := json.Unmarshal([]byte(cleaned), &out); err == nil {
		return out
	}
	if blob := jsonBlobRe.FindString(cleaned); blob != "" {
		if err := json.Unmarshal([]byte(blob), &out); err == nil {
			return out
		}
	}
	return map[string]any{"raw": text}
}

func stringValue(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	default:
		return ""
	}
}

func floatValue(m map[string]any, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}

func truncateText(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

// --- Field extraction calls ---

func llmExtractStore(cfg Config, image []byte, ocrText, todayStr, searchNotes string) llmField {
	systemPrompt := "あなたはレシートから店名を抽出するエージェントです。" +
		"決済手段名は店名にしないでください。" +
		"支店名や末尾の「店」「支店」は省略してシンプルな店名にしてください。"

	var sb strings.Builder
	sb.WriteString("以下の情報から店名を1つ特定してください。\n")
	sb.WriteString("- ロゴやヘッダの大きな文字を優先\n")
	sb.WriteString("- 決済手段 (PayPay, QUICPay, VISA など) は店名ではありません\n")
	sb.WriteString("- 本日の日付は " + todayStr + "\n\n")
	sb.WriteString(`出力は JSON で以下の形: {"store": "店名", "confidence": 0.0~1.0, "reason": "根拠を短く"}` + "\n")
	if searchNotes != "" {
		sb.WriteString("\n検索ヒント:\n" + searchNotes + "\n")
	}
	if ocrText != "" {
		sb.WriteString("\nOCRテキスト:\n" + truncateText(ocrText, ocrPromptLimit) + "\n")
	}

	out, err := inferJSON(cfg, systemPrompt, sb.String(), image)
	if err != nil {
		log.Printf("llm store extraction error: %v", err)
		return llmField{}
	}
	return llmField{value: stringValue(out, "store"), confidence: floatValue(out, "confidence")}
}

func llmExtractDate(cfg Config, image []byte, ocrText, todayStr string) llmField {
	systemPrompt := "あなたはレシートから取引日時を抽出するエージェントです。未来日や不自然な日付は補正してください。"

	var sb strings.Builder
	sb.WriteString("レシート画像と OCR テキストから取引日付を抽出してください。\n")
	sb.WriteString("- 最も信頼できる日付を1つ\n")
	sb.WriteString("- 出力フォーマットは YYYY-MM-DD\n")
	sb.WriteString("- 本日: " + todayStr + "\n\n")
	sb.WriteString(`出力 JSON: {"date": "YYYY-MM-DD", "confidence": 0.0~1.0}` + "\n")
	if ocrText != "" {
		sb.WriteString("\nOCRテキスト:\n" + truncateText(ocrText, ocrPromptLimit) + "\n")
	}

	out, err := inferJSON(cfg, systemPrompt, sb.String(), image)
	if err != nil {
		log.Printf("llm date extraction error: %v", err)
		return llmField{}
	}
	return llmField{value: stringValue(out, "date"), confidence: floatValue(out, "confidence")}
}

func llmExtractTotalAmount(cfg Config, image []byte, ocrText string) llmField {
	systemPrompt := "あなたはレシートから支払総額を抽出するエージェントです。"

	var sb strings.Builder
	sb.WriteString("支払金額を1つ決定してください。\n")
	sb.WriteString("- 「合計」「お預り」「クレジット」「ご請求額」の近くにある最大の金額を優先\n")
	sb.WriteString("- 税抜小計や割引、ポイント残高は除外\n")
	sb.WriteString("- 金額は整数の円(JPY)として返してください\n")
	sb.WriteString(`- 出力 JSON: {"total_amount": 1234, "currency": "JPY", "confidence": 0.0~1.0}` + "\n")
	if ocrText != "" {
		sb.WriteString("\nOCRテキスト:\n" + truncateText(ocrText, ocrPromptLimit) + "\n")
	}

	out, err := inferJSON(cfg, systemPrompt, sb.String(), image)
	if err != nil {
		log.Printf("llm amount extraction error: %v", err)
		return llmField{}
	}
	return llmField{value: stringValue(out, "total_amount"), confidence: floatValue(out, "confidence")}
}

// llmClassifyCategory is the dependent call: it consumes the extracted
// store name and the already-normalized amount, so it runs after the
// fan-out joins. Text only, no image.
func llmClassifyCategory(cfg Config, ocrText, store, totalAmount string) llmField {
	systemPrompt := "あなたは家計簿カテゴリ分類のエージェントです。必ず指定カテゴリのいずれか1つを返してください。"

	if store == "" {
		store = "不明"
	}
	if totalAmount == "" {
		totalAmount = "不明"
	}

	var sb strings.Builder
	sb.WriteString("以下からカテゴリを1つだけ選び、JSONで返してください。\n")
	sb.WriteString("カテゴリ候補: " + strings.Join(CategoryOptions, ", ") + "\n\n")
	sb.WriteString("優先ルール:\n")
	sb.WriteString("- 店名と商品行から推測\n")
	sb.WriteString("- 判定が難しい場合は「その他」\n\n")
	sb.WriteString(`出力 JSON: {"category": "候補のどれか", "reason": "短い根拠"}` + "\n\n")
	sb.WriteString("店名: " + store + "\n")
	sb.WriteString("推定支払金額: " + totalAmount + "\n")
	if ocrText != "" {
		sb.WriteString("\nOCRテキスト:\n" + truncateText(ocrText, ocrPromptLimit) + "\n")
	}

	out, err := inferJSON(cfg, systemPrompt, sb.String(), nil)
	if err != nil {
		log.Printf("llm category classification error: %v", err)
		return llmField{}
	}
	return llmField{value: stringValue(out, "category"), confidence: floatValue(out, "confidence")}
}
