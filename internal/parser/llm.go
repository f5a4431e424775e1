package parser

import (
	"context"
	"encoding/json"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const enrichSystemPrompt = `Ты разбираешь запросы покупателей стройматериалов в Казахстане.
Верни строго JSON без пояснений с полями:
{"category": "категория товара или пустая строка",
 "grade": "марка, например М300, или пустая строка",
 "city": "город или пустая строка",
 "delivery": true/false,
 "volume": число или 0,
 "unit": "единица измерения или пустая строка",
 "confidence": число от 0 до 1}`

// AnthropicEnricher реализует Enricher через Anthropic API.
// Исходящие вызовы ограничены rate-лимитером.
type AnthropicEnricher struct {
	client  sdk.Client
	model   string
	limiter *rate.Limiter
}

// NewAnthropicEnricher создает обогатитель. rps ограничивает частоту
// исходящих вызовов LLM.
func NewAnthropicEnricher(apiKey, model string, rps float64) *AnthropicEnricher {
	if rps <= 0 {
		rps = 5
	}
	return &AnthropicEnricher{
		client:  sdk.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

type enrichResult struct {
	Category   string  `json:"category"`
	Grade      string  `json:"grade"`
	City       string  `json:"city"`
	Delivery   bool    `json:"delivery"`
	Volume     float64 `json:"volume"`
	Unit       string  `json:"unit"`
	Confidence float64 `json:"confidence"`
}

// Enrich вызывает LLM и приводит ответ к ParsedQuery. Категория из
// ответа привязывается к справочнику через ResolveCategory.
func (e *AnthropicEnricher) Enrich(ctx context.Context, query string) (*ParsedQuery, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "enricher: rate limit wait")
	}

	msg, err := e.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(e.model),
		MaxTokens: 256,
		System: []sdk.TextBlockParam{
			{Text: enrichSystemPrompt},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(query)),
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "enricher: create message")
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, eris.New("enricher: empty completion")
	}

	// Модель иногда оборачивает JSON в markdown-блок.
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var res enrichResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &res); err != nil {
		return nil, eris.Wrap(err, "enricher: decode completion")
	}

	out := &ParsedQuery{
		Grade:      res.Grade,
		City:       res.City,
		Delivery:   res.Delivery,
		Volume:     res.Volume,
		Unit:       res.Unit,
		Confidence: res.Confidence,
	}
	out.CategoryID, out.Category = ResolveCategory(res.Category)
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	return out, nil
}
