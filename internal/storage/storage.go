package storage

import (
	"context"
	"errors"
	"time"

	"github.com/avolkov/labelscan/internal/types/order"
	"github.com/avolkov/labelscan/internal/types/user"
)

// ErrUniqueViolation is returned by implementations when an insert or update
// breaks a unique constraint (duplicate order_id or user email).
var ErrUniqueViolation = errors.New("unique constraint violation")

// ListFilter narrows and orders the result of ListOrders.
type ListFilter struct {
	Search   string // substring match over sku and order_id
	Status   order.OrderStatus
	DateFrom *time.Time // scanned_at lower bound, inclusive
	DateTo   *time.Time // scanned_at upper bound, inclusive
	SortBy   string
	SortDesc bool
	Page     int
	PerPage  int
}

// UserRepository отвечает за операции над пользователями.
type UserRepository interface {
	CreateUser(ctx context.Context, u *user.User) error
	FindUserByEmail(ctx context.Context, email string) (*user.User, error)
	FindUserByID(ctx context.Context, id int64) (*user.User, error)
	ListUsers(ctx context.Context) ([]user.User, error)
	UpdateUser(ctx context.Context, u *user.User) error
	DeleteUser(ctx context.Context, id int64) error
	CountUsers(ctx context.Context) (int64, error)
}

// OrderRepository отвечает за операции над заказами.
type OrderRepository interface {
	CreateOrder(ctx context.Context, o *order.Order) error
	FindOrderByID(ctx context.Context, id int64) (*order.Order, error)
	FindOrderByOrderID(ctx context.Context, orderID string) (*order.Order, error)
	FindOldestPendingBySKU(ctx context.Context, sku string) (*order.Order, error)
	CountOrdersBySKU(ctx context.Context, sku string) (int64, error)
	MarkOrderPrinted(ctx context.Context, id int64, printedAt time.Time) error
	ListOrders(ctx context.Context, f ListFilter) ([]order.Order, int64, error)
	DeleteOrder(ctx context.Context, id int64) error
	CountOrders(ctx context.Context) (int64, error)
	CountOrdersByStatus(ctx context.Context, status order.OrderStatus) (int64, error)
}

// Storage объединяет все репозитории.
type Storage interface {
	UserRepository
	OrderRepository

	// Для управления соединением
	Ping(ctx context.Context) error
	Close() error
}
