package parser

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// failingEnricher всегда возвращает ошибку.
type failingEnricher struct {
	calls atomic.Int32
}

func (e *failingEnricher) Enrich(ctx context.Context, query string) (*ParsedQuery, error) {
	e.calls.Add(1)
	return nil, errors.New("llm unavailable")
}

// slowEnricher отвечает позже любого разумного таймаута.
type slowEnricher struct{}

func (slowEnricher) Enrich(ctx context.Context, query string) (*ParsedQuery, error) {
	select {
	case <-time.After(10 * time.Second):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &ParsedQuery{City: "Тараз"}, nil
}

// stubEnricher возвращает фиксированный результат.
type stubEnricher struct {
	result ParsedQuery
	calls  atomic.Int32
}

func (e *stubEnricher) Enrich(ctx context.Context, query string) (*ParsedQuery, error) {
	e.calls.Add(1)
	out := e.result
	return &out, nil
}

func TestDeterministic(t *testing.T) {
	got := Deterministic("5 кубов бетона М300 Шымкент")

	require.Equal(t, 1, got.CategoryID)
	require.Equal(t, "Бетон и растворы", got.Category)
	require.Equal(t, 5.0, got.Volume)
	require.Equal(t, "м3", got.Unit)
	require.Equal(t, "М300", got.Grade)
	require.Equal(t, "Шымкент", got.City)
	require.InDelta(t, 0.9, got.Confidence, 0.001)
}

func TestDeterministicDelivery(t *testing.T) {
	got := Deterministic("кирпич 5000 шт с доставкой")

	require.Equal(t, 2, got.CategoryID)
	require.Equal(t, 5000.0, got.Volume)
	require.Equal(t, "шт", got.Unit)
	require.True(t, got.Delivery)
}

func TestDeterministicNoMatch(t *testing.T) {
	got := Deterministic("что-нибудь для ремонта")

	require.Zero(t, got.CategoryID)
	require.Zero(t, got.Confidence)
	require.NotEmpty(t, got.Suggestions)
}

func TestDeterministicEmpty(t *testing.T) {
	got := Deterministic("   ")

	require.Equal(t, ParsedQuery{}, got)
}

// Отказ LLM деградирует до словарного результата, ошибка наружу не выходит.
func TestParseLLMFailure(t *testing.T) {
	p := New(&failingEnricher{}, 100*time.Millisecond)

	got := p.Parse(context.Background(), "5 кубов бетона М300 Шымкент")

	require.Equal(t, 1, got.CategoryID)
	require.Equal(t, 5.0, got.Volume)
}

// Парсер не блокируется дольше таймаута обогащения.
func TestParseLLMTimeout(t *testing.T) {
	p := New(slowEnricher{}, 50*time.Millisecond)

	start := time.Now()
	got := p.Parse(context.Background(), "бетон М300")
	elapsed := time.Since(start)

	require.Less(t, elapsed, 1*time.Second)
	require.Equal(t, 1, got.CategoryID)
	require.Empty(t, got.City)
}

// Пустой запрос возвращается сразу, обогащение не запускается.
func TestParseEmptyBypassesEnrichment(t *testing.T) {
	enricher := &failingEnricher{}
	p := New(enricher, 100*time.Millisecond)

	got := p.Parse(context.Background(), "")

	require.Equal(t, ParsedQuery{}, got)
	require.Zero(t, enricher.calls.Load())
}

// Словарная категория выигрывает, LLM дозаполняет пустые поля.
func TestParseMergeDeterministicWins(t *testing.T) {
	enricher := &stubEnricher{result: ParsedQuery{
		Category:   "Кирпич",
		CategoryID: 2,
		Grade:      "М300",
		City:       "Шымкент",
		Delivery:   true,
		Confidence: 0.8,
	}}
	p := New(enricher, 200*time.Millisecond)

	got := p.Parse(context.Background(), "бетон 5 кубов")

	require.Equal(t, 1, got.CategoryID)
	require.Equal(t, "Бетон и растворы", got.Category)
	require.Equal(t, "М300", got.Grade)
	require.Equal(t, "Шымкент", got.City)
	require.True(t, got.Delivery)
	require.InDelta(t, 0.8, got.Confidence, 0.001)
}

// Если словарь категорию не нашел, берется результат LLM целиком.
func TestParseMergeLLMCategory(t *testing.T) {
	enricher := &stubEnricher{result: ParsedQuery{
		Category:   "Утеплители",
		CategoryID: 12,
		City:       "Шымкент",
		Confidence: 0.7,
	}}
	p := New(enricher, 200*time.Millisecond)

	got := p.Parse(context.Background(), "что-то теплое для стен")

	require.Equal(t, 12, got.CategoryID)
	require.Equal(t, "Шымкент", got.City)
	require.InDelta(t, 0.7, got.Confidence, 0.001)
}

func TestResolveCategory(t *testing.T) {
	id, name := ResolveCategory("Кирпич")
	require.Equal(t, 2, id)
	require.Equal(t, "Кирпич", name)

	id, name = ResolveCategory("красный кирпич м100")
	require.Equal(t, 2, id)

	id, _ = ResolveCategory("неизвестное")
	require.Zero(t, id)
}
