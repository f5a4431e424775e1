package handlers

import (
	"context"

	"stroymarket/db"
	"stroymarket/models"
)

type StorageInterface interface {
	GetUserByID(ctx context.Context, id int) (*models.User, error)

	GetCompany(ctx context.Context, id int) (*models.Company, error)
	GetCompaniesForCategory(ctx context.Context, categoryID int) ([]models.Company, error)

	GetCategory(ctx context.Context, id int) (*models.Category, error)
	GetSubCategories(ctx context.Context, parentID int) ([]models.Category, error)
	SearchProducts(ctx context.Context, f db.ProductFilter) ([]models.Product, error)

	CreateRequest(ctx context.Context, r *models.Request) error
	GetRequest(ctx context.Context, id int) (*models.Request, error)
	GetUserRequests(ctx context.Context, userID int, limit, offset int) ([]models.Request, error)
	UpdateRequestStatus(ctx context.Context, id int, status string) error

	CreateOffer(ctx context.Context, o *models.Offer) error
	GetOffer(ctx context.Context, id int) (*models.Offer, error)
	GetOffersForRequest(ctx context.Context, requestID int) ([]models.Offer, error)
	RejectOffer(ctx context.Context, id int) error
	AcceptOffer(ctx context.Context, offerID int) (*models.Order, error)

	GetOrder(ctx context.Context, id int) (*models.Order, error)
	TransitionOrder(ctx context.Context, orderID int, from, to string) (*models.Order, error)

	CreateReview(ctx context.Context, r *models.Review) error
	HasReviewForOrder(ctx context.Context, orderID int) (bool, error)
	GetCompanyReviews(ctx context.Context, companyID int) ([]models.Review, error)
	GetCompanyRating(ctx context.Context, companyID int) (*models.CompanyRating, error)
}
