package handlers

import (
	"net/http"
	"strconv"

	"stroymarket/db"
	"stroymarket/internal/apperrors"
	"stroymarket/internal/parser"
	"stroymarket/models"
)

type searchMeta struct {
	Query  string              `json:"query"`
	Parsed *parser.ParsedQuery `json:"parsed,omitempty"`
	Count  int                 `json:"count"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

type searchResponse struct {
	Results       []models.Product  `json:"results"`
	Meta          searchMeta        `json:"meta"`
	SubCategories []models.Category `json:"subCategories"`
}

func parseBoolParam(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}

// SearchHandler обрабатывает GET /search. Просмотр категории (категория
// выбрана, текста нет) идет мимо парсера напрямую по id категории и
// дополнительно возвращает подкатегории для навигации. Свободный текст
// проходит через парсер; явно выбранная категория имеет приоритет над
// распознанной.
func (h *Handler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	params := parsePaginationParams(r)
	q := r.URL.Query().Get("q")

	categoryID := 0
	if c := r.URL.Query().Get("category"); c != "" {
		id, err := strconv.Atoi(c)
		if err != nil || id <= 0 {
			apperrors.WriteError(w, apperrors.Validation("invalid category parameter"))
			return
		}
		categoryID = id
	}

	var parsed *parser.ParsedQuery
	if q != "" {
		p := h.Parser.Parse(r.Context(), q)
		parsed = &p
		if categoryID == 0 {
			categoryID = p.CategoryID
		}
	}

	filter := db.ProductFilter{
		CategoryID:  categoryID,
		InStock:     parseBoolParam(r, "inStock"),
		WithImage:   parseBoolParam(r, "withImage"),
		WithArticle: parseBoolParam(r, "withArticle"),
		Brand:       r.URL.Query().Get("brand"),
		Limit:       params.Limit,
		Offset:      params.Offset,
	}

	results, err := h.Store.SearchProducts(r.Context(), filter)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	subCategories := []models.Category{}
	if categoryID > 0 {
		subCategories, err = h.Store.GetSubCategories(r.Context(), categoryID)
		if err != nil {
			apperrors.WriteError(w, err)
			return
		}
	}

	respondJSON(w, http.StatusOK, searchResponse{
		Results: results,
		Meta: searchMeta{
			Query:  q,
			Parsed: parsed,
			Count:  len(results),
			Limit:  params.Limit,
			Offset: params.Offset,
		},
		SubCategories: subCategories,
	})
}
