package order

import (
	"context"
	"io"
	"time"

	"github.com/avolkov/labelscan/internal/storage"
	"github.com/avolkov/labelscan/internal/types/order"
)

type OrderRepository interface {
	CreateOrder(ctx context.Context, o *order.Order) error
	FindOrderByID(ctx context.Context, id int64) (*order.Order, error)
	FindOrderByOrderID(ctx context.Context, orderID string) (*order.Order, error)
	FindOldestPendingBySKU(ctx context.Context, sku string) (*order.Order, error)
	CountOrdersBySKU(ctx context.Context, sku string) (int64, error)
	MarkOrderPrinted(ctx context.Context, id int64, printedAt time.Time) error
	ListOrders(ctx context.Context, f storage.ListFilter) ([]order.Order, int64, error)
	DeleteOrder(ctx context.Context, id int64) error
}

// FileStore is the slice of the blob store the order workflows use.
type FileStore interface {
	Save(name string, r io.Reader) (string, error)
	Delete(rel string) error
}
