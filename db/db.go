package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rotisserie/eris"

	"stroymarket/internal/apperrors"
	"stroymarket/models"
)

type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{db: db}
}

// uniqueViolation — код ошибки Postgres для нарушения UNIQUE.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// Пользователи

func (s *Storage) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	u := &models.User{}
	query := `SELECT * FROM users WHERE id=$1`
	err := s.db.GetContext(ctx, u, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("user")
	}
	if err != nil {
		return nil, apperrors.Dependency(eris.Wrap(err, "db: get user"))
	}
	return u, nil
}

// Компании

func (s *Storage) GetCompany(ctx context.Context, id int) (*models.Company, error) {
	c := &models.Company{}
	query := `SELECT * FROM companies WHERE id=$1`
	err := s.db.GetContext(ctx, c, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("company")
	}
	if err != nil {
		return nil, apperrors.Dependency(eris.Wrap(err, "db: get company"))
	}
	return c, nil
}

// GetCompaniesForCategory возвращает компании, у которых есть товары
// в категории. Используется для рассылки по новой заявке.
func (s *Storage) GetCompaniesForCategory(ctx context.Context, categoryID int) ([]models.Company, error) {
	companies := []models.Company{}
	query := `
        SELECT DISTINCT c.* FROM companies c
        JOIN products p ON p.company_id = c.id
        WHERE p.category_id = $1`
	err := s.db.SelectContext(ctx, &companies, query, categoryID)
	if err != nil {
		return nil, apperrors.Dependency(eris.Wrap(err, "db: companies for category"))
	}
	return companies, nil
}

// Категории

func (s *Storage) GetCategory(ctx context.Context, id int) (*models.Category, error) {
	c := &models.Category{}
	query := `SELECT * FROM categories WHERE id=$1`
	err := s.db.GetContext(ctx, c, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("category")
	}
	if err != nil {
		return nil, apperrors.Dependency(eris.Wrap(err, "db: get category"))
	}
	return c, nil
}

// GetSubCategories возвращает непосредственные подкатегории для навигации.
func (s *Storage) GetSubCategories(ctx context.Context, parentID int) ([]models.Category, error) {
	cats := []models.Category{}
	query := `SELECT * FROM categories WHERE parent_id=$1 ORDER BY name ASC`
	err := s.db.SelectContext(ctx, &cats, query, parentID)
	if err != nil {
		return nil, apperrors.Dependency(eris.Wrap(err, "db: subcategories"))
	}
	return cats, nil
}

// Каталог

// ProductFilter — фильтры каталожного поиска.
type ProductFilter struct {
	CategoryID  int
	InStock     bool
	WithImage   bool
	WithArticle bool
	Brand       string
	Limit       int
	Offset      int
}

// SearchProducts выполняет поиск по каталогу. Порядок стабильный:
// новые первыми, при равенстве по id.
func (s *Storage) SearchProducts(ctx context.Context, f ProductFilter) ([]models.Product, error) {
	var conds []string
	var args []interface{}

	add := func(cond string, vals ...interface{}) {
		for _, v := range vals {
			args = append(args, v)
			cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(args)), 1)
		}
		conds = append(conds, cond)
	}

	if f.CategoryID > 0 {
		add("category_id = ?", f.CategoryID)
	}
	if f.InStock {
		conds = append(conds, "in_stock = TRUE")
	}
	if f.WithImage {
		conds = append(conds, "image_url <> ''")
	}
	if f.WithArticle {
		conds = append(conds, "article <> ''")
	}
	if f.Brand != "" {
		add("brand ILIKE ?", "%"+f.Brand+"%")
	}

	query := "SELECT * FROM products"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)

	products := []models.Product{}
	err := s.db.SelectContext(ctx, &products, query, args...)
	if err != nil {
		return nil, apperrors.Dependency(eris.Wrap(err, "db: search products"))
	}
	return products, nil
}

// Заявки

func (s *Storage) CreateRequest(ctx context.Context, r *models.Request) error {
	query := `
        INSERT INTO requests
            (user_id, category_id, query, parsed_category, volume, unit, city, delivery, address, deadline, status)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        RETURNING id, created_at`
	err := s.db.QueryRowContext(ctx, query,
		r.UserID, r.CategoryID, r.Query, r.ParsedCategory, r.Volume, r.Unit,
		r.City, r.Delivery, r.Address, r.Deadline, r.Status).
		Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return apperrors.Dependency(eris.Wrap(err, "db: create request"))
	}
	return nil
}

func (s *Storage) GetRequest(ctx context.Context, id int) (*models.Request, error) {
	r := &models.Request{}
	query := `SELECT * FROM requests WHERE id=$1`
	err := s.db.GetContext(ctx, r, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("request")
	}
	if err != nil {
		return nil, apperrors.Dependency(eris.Wrap(err, "db: get request"))
	}
	return r, nil
}

func (s *Storage) GetUserRequests(ctx context.Context, userID int, limit, offset int) ([]models.Request, error) {
	requests := []models.Request{}
	query := `
        SELECT * FROM requests
        WHERE user_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2 OFFSET $3`
	err := s.db.SelectContext(ctx, &requests, query, userID, limit, offset)
	if err != nil {
		return nil, apperrors.Dependency(eris.Wrap(err, "db: user requests"))
	}
	return requests, nil
}

func (s *Storage) UpdateRequestStatus(ctx context.Context, id int, status string) error {
	query := `UPDATE requests SET status=$1 WHERE id=$2`
	res, err := s.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return apperrors.Dependency(eris.Wrap(err, "db: update request status"))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("request")
	}
	return nil
}

// Предложения

func (s *Storage) CreateOffer(ctx context.Context, o *models.Offer) error {
	query := `
        INSERT INTO offers
            (request_id, company_id, price, delivery_price, comment, status)
        VALUES
            ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at`
	err := s.db.QueryRowContext(ctx, query,
		o.RequestID, o.CompanyID, o.Price, o.DeliveryPrice, o.Comment, o.Status).
		Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return apperrors.Dependency(eris.Wrap(err, "db: create offer"))
	}
	return nil
}

func (s *Storage) GetOffer(ctx context.Context, id int) (*models.Offer, error) {
	o := &models.Offer{}
	query := `SELECT * FROM offers WHERE id=$1`
	err := s.db.GetContext(ctx, o, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("offer")
	}
	if err != nil {
		return nil, apperrors.Dependency(eris.Wrap(err, "db: get offer"))
	}
	return o, nil
}

func (s *Storage) GetOffersForRequest(ctx context.Context, requestID int) ([]models.Offer, error) {
	offers := []models.Offer{}
	query := `
        SELECT * FROM offers
        WHERE request_id = $1
        ORDER BY created_at DESC, id DESC`
	err := s.db.SelectContext(ctx, &offers, query, requestID)
	if err != nil {
		return nil, apperrors.Dependency(eris.Wrap(err, "db: offers for request"))
	}
	return offers, nil
}

// RejectOffer переводит предложение pending -> rejected. Побочных
// эффектов нет, перевод из любого другого статуса — конфликт.
func (s *Storage) RejectOffer(ctx context.Context, id int) error {
	query := `UPDATE offers SET status=$1 WHERE id=$2 AND status=$3`
	res, err := s.db.ExecContext(ctx, query, models.OfferStatusRejected, id, models.OfferStatusPending)
	if err != nil {
		return apperrors.Dependency(eris.Wrap(err, "db: reject offer"))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Conflict("offer is not pending")
	}
	return nil
}

// AcceptOffer атомарно принимает предложение: целевое предложение ->
// accepted, остальные pending по той же заявке -> rejected, заявка ->
// in_progress, создается ровно один заказ. Все четыре записи в одной
// транзакции. Гонка двух принятий разрешается через guarded update:
// проигравшая транзакция не находит строк в нужном статусе и откатывается.
func (s *Storage) AcceptOffer(ctx context.Context, offerID int) (*models.Order, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperrors.Dependency(eris.Wrap(err, "db: begin accept offer"))
	}
	defer tx.Rollback()

	offer := &models.Offer{}
	err = tx.GetContext(ctx, offer, `SELECT * FROM offers WHERE id=$1 FOR UPDATE`, offerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("offer")
	}
	if err != nil {
		return nil, apperrors.Dependency(eris.Wrap(err, "db: lock offer"))
	}
	if offer.Status != models.OfferStatusPending {
		return nil, apperrors.Conflict("offer is not pending")
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE offers SET status=$1 WHERE id=$2 AND status=$3`,
		models.OfferStatusAccepted, offerID, models.OfferStatusPending)
	if err != nil {
		return nil, apperrors.Dependency(eris.Wrap(err, "db: accept offer"))
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return nil, apperrors.Conflict("offer is not pending")
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE offers SET status=$1 WHERE request_id=$2 AND status=$3 AND id<>$4`,
		models.OfferStatusRejected, offer.RequestID, models.OfferStatusPending, offerID)
	if err != nil {
		return nil, apperrors.Dependency(eris.Wrap(err, "db: reject sibling offers"))
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE requests SET status=$1 WHERE id=$2 AND status=$3`,
		models.RequestStatusInProgress, offer.RequestID, models.RequestStatusActive)
	if err != nil {
		return nil, apperrors.Dependency(eris.Wrap(err, "db: advance request"))
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return nil, apperrors.Conflict("request is not active")
	}

	order := &models.Order{
		OfferID:    offer.ID,
		CompanyID:  offer.CompanyID,
		TotalPrice: offer.TotalPrice(),
		Status:     models.OrderStatusConfirmed,
	}
	// Клиент и адрес доставки копируются из заявки.
	err = tx.QueryRowContext(ctx, `
        INSERT INTO orders (offer_id, client_id, company_id, total_price, address, status)
        SELECT $1, r.user_id, $2, $3, r.address, $4
        FROM requests r WHERE r.id = $5
        RETURNING id, client_id, address, created_at`,
		offer.ID, offer.CompanyID, order.TotalPrice, order.Status, offer.RequestID).
		Scan(&order.ID, &order.ClientID, &order.Address, &order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.Conflict("order already exists for this offer")
		}
		return nil, apperrors.Dependency(eris.Wrap(err, "db: create order"))
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.Dependency(eris.Wrap(err, "db: commit accept offer"))
	}
	return order, nil
}

// Заказы

func (s *Storage) GetOrder(ctx context.Context, id int) (*models.Order, error) {
	o := &models.Order{}
	query := `SELECT * FROM orders WHERE id=$1`
	err := s.db.GetContext(ctx, o, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("order")
	}
	if err != nil {
		return nil, apperrors.Dependency(eris.Wrap(err, "db: get order"))
	}
	return o, nil
}

// TransitionOrder переводит заказ from -> to guarded-обновлением.
// Переход в completed дополнительно ставит completed_at и каскадно
// завершает связанную заявку в той же транзакции.
func (s *Storage) TransitionOrder(ctx context.Context, orderID int, from, to string) (*models.Order, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperrors.Dependency(eris.Wrap(err, "db: begin order transition"))
	}
	defer tx.Rollback()

	order := &models.Order{}
	var completedAt *time.Time
	if to == models.OrderStatusCompleted {
		now := time.Now().UTC()
		completedAt = &now
	}

	err = tx.GetContext(ctx, order, `
        UPDATE orders SET status=$1, completed_at=COALESCE($2, completed_at)
        WHERE id=$3 AND status=$4
        RETURNING *`,
		to, completedAt, orderID, from)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Conflict("order status changed concurrently")
	}
	if err != nil {
		return nil, apperrors.Dependency(eris.Wrap(err, "db: transition order"))
	}

	if to == models.OrderStatusCompleted {
		_, err = tx.ExecContext(ctx, `
            UPDATE requests SET status=$1
            WHERE id = (SELECT request_id FROM offers WHERE id=$2)`,
			models.RequestStatusCompleted, order.OfferID)
		if err != nil {
			return nil, apperrors.Dependency(eris.Wrap(err, "db: complete request"))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.Dependency(eris.Wrap(err, "db: commit order transition"))
	}
	return order, nil
}

// Отзывы

func (s *Storage) CreateReview(ctx context.Context, r *models.Review) error {
	query := `
        INSERT INTO reviews (order_id, company_id, client_id, rating, comment)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at`
	err := s.db.QueryRowContext(ctx, query,
		r.OrderID, r.CompanyID, r.ClientID, r.Rating, r.Comment).
		Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		// UNIQUE(order_id) гарантирует не более одного отзыва на заказ.
		if isUniqueViolation(err) {
			return apperrors.Conflict("review already exists for this order")
		}
		return apperrors.Dependency(eris.Wrap(err, "db: create review"))
	}
	return nil
}

func (s *Storage) HasReviewForOrder(ctx context.Context, orderID int) (bool, error) {
	var count int
	query := `SELECT COUNT(1) FROM reviews WHERE order_id=$1`
	err := s.db.GetContext(ctx, &count, query, orderID)
	if err != nil {
		return false, apperrors.Dependency(eris.Wrap(err, "db: has review"))
	}
	return count > 0, nil
}

func (s *Storage) GetCompanyReviews(ctx context.Context, companyID int) ([]models.Review, error) {
	reviews := []models.Review{}
	query := `
        SELECT * FROM reviews
        WHERE company_id = $1
        ORDER BY created_at DESC, id DESC`
	err := s.db.SelectContext(ctx, &reviews, query, companyID)
	if err != nil {
		return nil, apperrors.Dependency(eris.Wrap(err, "db: company reviews"))
	}
	return reviews, nil
}

// GetCompanyRating пересчитывает агрегат сканом таблицы отзывов,
// среднее округляется до одного знака. Денормализованных счетчиков нет.
func (s *Storage) GetCompanyRating(ctx context.Context, companyID int) (*models.CompanyRating, error) {
	var row struct {
		Count int             `db:"count"`
		Avg   sql.NullFloat64 `db:"avg"`
	}
	query := `SELECT COUNT(1) AS count, AVG(rating) AS avg FROM reviews WHERE company_id=$1`
	err := s.db.GetContext(ctx, &row, query, companyID)
	if err != nil {
		return nil, apperrors.Dependency(eris.Wrap(err, "db: company rating"))
	}
	rating := &models.CompanyRating{Count: row.Count}
	if row.Avg.Valid {
		rating.AvgRating = math.Round(row.Avg.Float64*10) / 10
	}
	return rating, nil
}
