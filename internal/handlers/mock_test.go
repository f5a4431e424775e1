package handlers_test

import (
	"context"
	"time"

	"stroymarket/db"
	"stroymarket/internal/apperrors"
	"stroymarket/internal/handlers"
	"stroymarket/internal/notify"
	"stroymarket/internal/parser"
	"stroymarket/models"
)

// MockStorage реализует StorageInterface
type MockStorage struct {
	users map[int]*models.User

	GetCategoryFunc         func(ctx context.Context, id int) (*models.Category, error)
	GetSubCategoriesFunc    func(ctx context.Context, parentID int) ([]models.Category, error)
	SearchProductsFunc      func(ctx context.Context, f db.ProductFilter) ([]models.Product, error)
	CreateRequestFunc       func(ctx context.Context, r *models.Request) error
	GetRequestFunc          func(ctx context.Context, id int) (*models.Request, error)
	UpdateRequestStatusFunc func(ctx context.Context, id int, status string) error
	CreateOfferFunc         func(ctx context.Context, o *models.Offer) error
	GetOfferFunc            func(ctx context.Context, id int) (*models.Offer, error)
	RejectOfferFunc         func(ctx context.Context, id int) error
	AcceptOfferFunc         func(ctx context.Context, offerID int) (*models.Order, error)
	GetOrderFunc            func(ctx context.Context, id int) (*models.Order, error)
	TransitionOrderFunc     func(ctx context.Context, orderID int, from, to string) (*models.Order, error)
	CreateReviewFunc        func(ctx context.Context, r *models.Review) error
	GetCompaniesFunc        func(ctx context.Context, categoryID int) ([]models.Company, error)

	transitionCalls int
}

func (m *MockStorage) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, apperrors.NotFound("user")
}

func (m *MockStorage) GetCompany(ctx context.Context, id int) (*models.Company, error) {
	return &models.Company{ID: id, Name: "ТОО СтройДом", City: "Шымкент"}, nil
}

func (m *MockStorage) GetCompaniesForCategory(ctx context.Context, categoryID int) ([]models.Company, error) {
	if m.GetCompaniesFunc != nil {
		return m.GetCompaniesFunc(ctx, categoryID)
	}
	return []models.Company{{ID: 1, Name: "ТОО СтройДом"}}, nil
}

func (m *MockStorage) GetCategory(ctx context.Context, id int) (*models.Category, error) {
	if m.GetCategoryFunc != nil {
		return m.GetCategoryFunc(ctx, id)
	}
	return &models.Category{ID: id, Name: "Бетон и растворы", Slug: "beton"}, nil
}

func (m *MockStorage) GetSubCategories(ctx context.Context, parentID int) ([]models.Category, error) {
	if m.GetSubCategoriesFunc != nil {
		return m.GetSubCategoriesFunc(ctx, parentID)
	}
	return []models.Category{{ID: 21, Name: "Бетон М300", Slug: "beton-m300", ParentID: &parentID}}, nil
}

func (m *MockStorage) SearchProducts(ctx context.Context, f db.ProductFilter) ([]models.Product, error) {
	if m.SearchProductsFunc != nil {
		return m.SearchProductsFunc(ctx, f)
	}
	return []models.Product{{ID: 1, Name: "Бетон М300", CategoryID: f.CategoryID}}, nil
}

func (m *MockStorage) CreateRequest(ctx context.Context, r *models.Request) error {
	if m.CreateRequestFunc != nil {
		return m.CreateRequestFunc(ctx, r)
	}
	r.ID = 1
	r.CreatedAt = time.Now()
	return nil
}

func (m *MockStorage) GetRequest(ctx context.Context, id int) (*models.Request, error) {
	if m.GetRequestFunc != nil {
		return m.GetRequestFunc(ctx, id)
	}
	return &models.Request{ID: id, UserID: 1, CategoryID: 1, Query: "бетон", Status: models.RequestStatusActive}, nil
}

func (m *MockStorage) GetUserRequests(ctx context.Context, userID int, limit, offset int) ([]models.Request, error) {
	return []models.Request{{ID: 1, UserID: userID, Query: "бетон", Status: models.RequestStatusActive}}, nil
}

func (m *MockStorage) UpdateRequestStatus(ctx context.Context, id int, status string) error {
	if m.UpdateRequestStatusFunc != nil {
		return m.UpdateRequestStatusFunc(ctx, id, status)
	}
	return nil
}

func (m *MockStorage) CreateOffer(ctx context.Context, o *models.Offer) error {
	if m.CreateOfferFunc != nil {
		return m.CreateOfferFunc(ctx, o)
	}
	o.ID = 1
	o.CreatedAt = time.Now()
	return nil
}

func (m *MockStorage) GetOffer(ctx context.Context, id int) (*models.Offer, error) {
	if m.GetOfferFunc != nil {
		return m.GetOfferFunc(ctx, id)
	}
	return &models.Offer{ID: id, RequestID: 1, CompanyID: 1, Price: 100000, Status: models.OfferStatusPending}, nil
}

func (m *MockStorage) GetOffersForRequest(ctx context.Context, requestID int) ([]models.Offer, error) {
	return []models.Offer{{ID: 1, RequestID: requestID, Price: 100000, Status: models.OfferStatusPending}}, nil
}

func (m *MockStorage) RejectOffer(ctx context.Context, id int) error {
	if m.RejectOfferFunc != nil {
		return m.RejectOfferFunc(ctx, id)
	}
	return nil
}

func (m *MockStorage) AcceptOffer(ctx context.Context, offerID int) (*models.Order, error) {
	if m.AcceptOfferFunc != nil {
		return m.AcceptOfferFunc(ctx, offerID)
	}
	return &models.Order{ID: 1, OfferID: offerID, ClientID: 1, CompanyID: 1, TotalPrice: 100000, Status: models.OrderStatusConfirmed}, nil
}

func (m *MockStorage) GetOrder(ctx context.Context, id int) (*models.Order, error) {
	if m.GetOrderFunc != nil {
		return m.GetOrderFunc(ctx, id)
	}
	return &models.Order{ID: id, OfferID: 1, ClientID: 1, CompanyID: 1, TotalPrice: 100000, Status: models.OrderStatusConfirmed}, nil
}

func (m *MockStorage) TransitionOrder(ctx context.Context, orderID int, from, to string) (*models.Order, error) {
	m.transitionCalls++
	if m.TransitionOrderFunc != nil {
		return m.TransitionOrderFunc(ctx, orderID, from, to)
	}
	return &models.Order{ID: orderID, OfferID: 1, ClientID: 1, CompanyID: 1, TotalPrice: 100000, Status: to}, nil
}

func (m *MockStorage) CreateReview(ctx context.Context, r *models.Review) error {
	if m.CreateReviewFunc != nil {
		return m.CreateReviewFunc(ctx, r)
	}
	r.ID = 1
	r.CreatedAt = time.Now()
	return nil
}

func (m *MockStorage) HasReviewForOrder(ctx context.Context, orderID int) (bool, error) {
	return false, nil
}

func (m *MockStorage) GetCompanyReviews(ctx context.Context, companyID int) ([]models.Review, error) {
	return []models.Review{
		{ID: 1, OrderID: 1, CompanyID: companyID, ClientID: 1, Rating: 5},
		{ID: 2, OrderID: 2, CompanyID: companyID, ClientID: 2, Rating: 4},
		{ID: 3, OrderID: 3, CompanyID: companyID, ClientID: 3, Rating: 4},
	}, nil
}

func (m *MockStorage) GetCompanyRating(ctx context.Context, companyID int) (*models.CompanyRating, error) {
	return &models.CompanyRating{Count: 3, AvgRating: 4.3}, nil
}

var companyID1 = 1

// defaultUsers — клиент, производитель и админ для тестов авторизации.
func defaultUsers() map[int]*models.User {
	return map[int]*models.User{
		1: {ID: 1, Username: "client1", Role: models.RoleClient},
		2: {ID: 2, Username: "producer1", Role: models.RoleProducer, CompanyID: &companyID1},
		3: {ID: 3, Username: "admin1", Role: models.RoleAdmin},
		4: {ID: 4, Username: "client2", Role: models.RoleClient},
	}
}

func newTestHandler(store *MockStorage) *handlers.Handler {
	if store.users == nil {
		store.users = defaultUsers()
	}
	p := parser.New(nil, 10*time.Millisecond)
	return handlers.NewHandler(store, p, notify.NewDispatcher(notify.LogNotifier{}))
}
