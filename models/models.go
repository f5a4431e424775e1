package models

import (
	"fmt"
	"time"
)

// Роли пользователей
const (
	RoleClient   = "client"
	RoleProducer = "producer"
	RoleAdmin    = "admin"
)

// Статусы заявки
const (
	RequestStatusActive     = "active"
	RequestStatusInProgress = "in_progress"
	RequestStatusCompleted  = "completed"
	RequestStatusCancelled  = "cancelled"
)

// Статусы предложения
const (
	OfferStatusPending  = "pending"
	OfferStatusAccepted = "accepted"
	OfferStatusRejected = "rejected"
)

// Статусы заказа
const (
	OrderStatusConfirmed  = "confirmed"
	OrderStatusDelivering = "delivering"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
	OrderStatusCompleted  = "completed"
)

// Сущность Пользователя
type User struct {
	ID        int       `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Role      string    `db:"role" json:"role" validate:"required,oneof=client producer admin"`
	CompanyID *int      `db:"company_id" json:"companyId,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Сущность Компании (производитель/дилер)
type Company struct {
	ID          int       `db:"id" json:"id"`
	Name        string    `db:"name" json:"name" validate:"required,max=200"`
	Description string    `db:"description" json:"description"`
	City        string    `db:"city" json:"city"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// Сущность Категории каталога
type Category struct {
	ID       int    `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Slug     string `db:"slug" json:"slug"`
	ParentID *int   `db:"parent_id" json:"parentId,omitempty"`
}

// Сущность Товара
type Product struct {
	ID         int       `db:"id" json:"id"`
	CompanyID  int       `db:"company_id" json:"companyId"`
	CategoryID int       `db:"category_id" json:"categoryId"`
	Name       string    `db:"name" json:"name" validate:"required,max=200"`
	Brand      string    `db:"brand" json:"brand"`
	Article    string    `db:"article" json:"article"`
	Price      int       `db:"price" json:"price"`
	Unit       string    `db:"unit" json:"unit"`
	InStock    bool      `db:"in_stock" json:"inStock"`
	ImageURL   string    `db:"image_url" json:"imageUrl"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// Сущность Заявки покупателя
type Request struct {
	ID             int        `db:"id" json:"id"`
	UserID         int        `db:"user_id" json:"userId"`
	CategoryID     int        `db:"category_id" json:"categoryId" validate:"required"`
	Query          string     `db:"query" json:"query" validate:"required,max=500"`
	ParsedCategory string     `db:"parsed_category" json:"parsedCategory"`
	Volume         *float64   `db:"volume" json:"volume,omitempty"`
	Unit           string     `db:"unit" json:"unit"`
	City           string     `db:"city" json:"city"`
	Delivery       bool       `db:"delivery" json:"delivery"`
	Address        string     `db:"address" json:"address"`
	Deadline       *time.Time `db:"deadline" json:"deadline,omitempty"`
	Status         string     `db:"status" json:"status" validate:"required,oneof=active in_progress completed cancelled"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
}

// Сущность Предложения производителя по заявке
type Offer struct {
	ID            int       `db:"id" json:"id"`
	RequestID     int       `db:"request_id" json:"requestId" validate:"required"`
	CompanyID     int       `db:"company_id" json:"companyId"`
	Price         int       `db:"price" json:"price" validate:"required,gt=0"`
	DeliveryPrice *int      `db:"delivery_price" json:"deliveryPrice,omitempty"`
	Comment       string    `db:"comment" json:"comment"`
	Status        string    `db:"status" json:"status" validate:"required,oneof=pending accepted rejected"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// TotalPrice считает полную стоимость предложения с учетом доставки.
func (o *Offer) TotalPrice() int {
	total := o.Price
	if o.DeliveryPrice != nil {
		total += *o.DeliveryPrice
	}
	return total
}

// Сущность Заказа. Создается ровно один раз при принятии предложения.
type Order struct {
	ID          int        `db:"id" json:"id"`
	OfferID     int        `db:"offer_id" json:"offerId"`
	ClientID    int        `db:"client_id" json:"clientId"`
	CompanyID   int        `db:"company_id" json:"companyId"`
	TotalPrice  int        `db:"total_price" json:"totalPrice"`
	Address     string     `db:"address" json:"address"`
	Status      string     `db:"status" json:"status" validate:"required,oneof=confirmed delivering delivered cancelled completed"`
	CompletedAt *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
}

// Сущность Отзыва. Не более одного на заказ.
type Review struct {
	ID        int       `db:"id" json:"id"`
	OrderID   int       `db:"order_id" json:"orderId"`
	CompanyID int       `db:"company_id" json:"companyId"`
	ClientID  int       `db:"client_id" json:"clientId"`
	Rating    int       `db:"rating" json:"rating" validate:"required,min=1,max=5"`
	Comment   string    `db:"comment" json:"comment" validate:"max=1000"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// CompanyRating — агрегат по отзывам компании, пересчитывается по таблице отзывов.
type CompanyRating struct {
	Count     int     `json:"count"`
	AvgRating float64 `json:"avgRating"`
}

// Таблица допустимых переходов статуса заказа. Переходы вне таблицы запрещены.
var orderTransitions = map[string][]string{
	OrderStatusConfirmed:  {OrderStatusDelivering, OrderStatusCancelled},
	OrderStatusDelivering: {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:  {OrderStatusCompleted},
	OrderStatusCompleted:  {},
	OrderStatusCancelled:  {},
}

// CanOrderTransition проверяет переход статуса заказа по таблице.
func CanOrderTransition(from, to string) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// OrderTransitionError возвращает текст ошибки недопустимого перехода.
func OrderTransitionError(from, to string) string {
	return fmt.Sprintf("Cannot transition from '%s' to '%s'", from, to)
}

// ValidRequestStatus проверяет, что статус заявки из числа определенных.
func ValidRequestStatus(s string) bool {
	switch s {
	case RequestStatusActive, RequestStatusInProgress, RequestStatusCompleted, RequestStatusCancelled:
		return true
	}
	return false
}

// ValidOrderStatus проверяет, что статус заказа из числа определенных.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusConfirmed, OrderStatusDelivering, OrderStatusDelivered, OrderStatusCancelled, OrderStatusCompleted:
		return true
	}
	return false
}
