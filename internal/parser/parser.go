package parser

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ParsedQuery — структурированный результат разбора свободного
// поискового запроса покупателя.
type ParsedQuery struct {
	Category    string   `json:"category"`
	CategoryID  int      `json:"categoryId"`
	Volume      float64  `json:"volume"`
	Unit        string   `json:"unit"`
	City        string   `json:"city"`
	Delivery    bool     `json:"delivery"`
	Grade       string   `json:"grade"`
	Confidence  float64  `json:"confidence"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Enricher — внешний разборщик запроса (LLM). Лучшая попытка,
// ограничен по времени, его отказ никогда не виден снаружи.
type Enricher interface {
	Enrich(ctx context.Context, query string) (*ParsedQuery, error)
}

// Parser объединяет детерминированный разбор по словарю и
// LLM-обогащение, запущенные параллельно с гонкой по таймауту.
type Parser struct {
	enricher Enricher
	timeout  time.Duration
}

// New создает парсер. enricher может быть nil, тогда работает только
// словарный разбор.
func New(enricher Enricher, timeout time.Duration) *Parser {
	if timeout <= 0 {
		timeout = 1500 * time.Millisecond
	}
	return &Parser{enricher: enricher, timeout: timeout}
}

// Parse разбирает запрос. Никогда не возвращает ошибку и не блокируется
// дольше таймаута обогащения: в худшем случае деградирует до
// детерминированного результата. Пустой запрос обогащение не запускает.
func (p *Parser) Parse(ctx context.Context, query string) ParsedQuery {
	det := Deterministic(query)

	if strings.TrimSpace(query) == "" || p.enricher == nil {
		return det
	}

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resCh := make(chan *ParsedQuery, 1)
	go func() {
		enriched, err := p.enricher.Enrich(cctx, query)
		if err != nil {
			zap.L().Debug("query enrichment failed", zap.Error(err))
			resCh <- nil
			return
		}
		resCh <- enriched
	}()

	select {
	case enriched := <-resCh:
		if enriched == nil {
			return det
		}
		return merge(det, enriched)
	case <-cctx.Done():
		return det
	}
}

// merge сводит два результата. Словарный разбор выигрывает по категории
// (правила проверяемы), LLM заполняет только пустые grade/city/delivery;
// уверенность — максимум из двух. Если словарь категорию не нашел, а LLM
// нашла — берется результат LLM целиком.
func merge(det ParsedQuery, llm *ParsedQuery) ParsedQuery {
	if det.CategoryID == 0 && llm.CategoryID != 0 {
		out := *llm
		if det.Confidence > out.Confidence {
			out.Confidence = det.Confidence
		}
		return out
	}

	out := det
	if out.Grade == "" {
		out.Grade = llm.Grade
	}
	if out.City == "" {
		out.City = llm.City
	}
	if !out.Delivery {
		out.Delivery = llm.Delivery
	}
	if llm.Confidence > out.Confidence {
		out.Confidence = llm.Confidence
	}
	return out
}

type categoryPattern struct {
	id       int
	name     string
	keywords []string
}

// Словарь категорий. Порядок важен: более специфичные раньше общих
// ("газоблок" раньше "блок").
var categoryTable = []categoryPattern{
	{1, "Бетон и растворы", []string{"бетон", "раствор", "пескобетон"}},
	{2, "Кирпич", []string{"кирпич"}},
	{3, "Цемент", []string{"цемент"}},
	{4, "Арматура и металлопрокат", []string{"арматур", "швеллер", "уголок металл", "профтруб"}},
	{5, "Песок", []string{"песок", "песк"}},
	{6, "Щебень и гравий", []string{"щебень", "щебн", "гравий"}},
	{7, "Блоки", []string{"газоблок", "пеноблок", "шлакоблок", "блок"}},
	{8, "Плитка и кафель", []string{"плитк", "кафел", "керамогранит"}},
	{9, "Гипсокартон", []string{"гипсокартон", "гкл"}},
	{10, "Краски и грунтовки", []string{"краск", "грунтовк", "эмаль"}},
	{11, "Кровля", []string{"профнастил", "металлочерепиц", "шифер", "кровл"}},
	{12, "Утеплители", []string{"утеплит", "минват", "пенопласт", "пеноплекс"}},
	{13, "Пиломатериалы", []string{"доск", "брус", "фанер", "пиломатериал"}},
}

// Словарь городов региона.
var cityTable = []string{
	"Шымкент", "Алматы", "Астана", "Тараз", "Туркестан", "Кентау", "Сайрам", "Ленгер",
}

var deliveryKeywords = []string{"доставк", "привез", "довез"}

var (
	volumeRe = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(кубометр|кубов|куба|куб|м3|м³|тонн|мешк|шт|м2|м²)`)
	gradeRe  = regexp.MustCompile(`[МM][\s-]?(\d{2,3})`)
)

// unitAliases нормализует написание единиц измерения.
var unitAliases = map[string]string{
	"кубометр": "м3",
	"кубов":    "м3",
	"куба":     "м3",
	"куб":      "м3",
	"м3":       "м3",
	"м³":       "м3",
	"тонн":     "т",
	"мешк":     "мешок",
	"шт":       "шт",
	"м2":       "м2",
	"м²":       "м2",
}

// Deterministic — словарный разбор. Всегда завершается синхронно,
// внешних зависимостей не имеет.
func Deterministic(query string) ParsedQuery {
	out := ParsedQuery{}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return out
	}

	for _, cat := range categoryTable {
		for _, kw := range cat.keywords {
			if strings.Contains(q, kw) {
				out.Category = cat.name
				out.CategoryID = cat.id
				break
			}
		}
		if out.CategoryID != 0 {
			break
		}
	}

	if m := volumeRe.FindStringSubmatch(q); m != nil {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64); err == nil {
			out.Volume = v
			out.Unit = unitAliases[m[2]]
		}
	}

	if m := gradeRe.FindStringSubmatch(query); m != nil {
		out.Grade = "М" + m[1]
	}

	for _, city := range cityTable {
		if strings.Contains(q, strings.ToLower(city)) {
			out.City = city
			break
		}
	}

	for _, kw := range deliveryKeywords {
		if strings.Contains(q, kw) {
			out.Delivery = true
			break
		}
	}

	if out.CategoryID != 0 {
		out.Confidence = 0.5
		if out.Volume > 0 {
			out.Confidence += 0.2
		}
		if out.City != "" {
			out.Confidence += 0.2
		}
	} else {
		// Категория не распознана: подсказываем популярные категории.
		for _, cat := range categoryTable[:3] {
			out.Suggestions = append(out.Suggestions, cat.name)
		}
	}

	return out
}

// ResolveCategory ищет категорию по имени или ключевому слову.
// Используется для привязки ответа LLM к справочнику.
func ResolveCategory(name string) (int, string) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return 0, ""
	}
	for _, cat := range categoryTable {
		if strings.ToLower(cat.name) == n {
			return cat.id, cat.name
		}
		for _, kw := range cat.keywords {
			if strings.Contains(n, kw) {
				return cat.id, cat.name
			}
		}
	}
	return 0, ""
}
