package order

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/avolkov/labelscan/internal/storage"
	"github.com/avolkov/labelscan/internal/types/order"
	"github.com/stretchr/testify/assert"
)

type mockRepo struct {
	createOrderFn            func(ctx context.Context, o *order.Order) error
	findOrderByIDFn          func(ctx context.Context, id int64) (*order.Order, error)
	findOrderByOrderIDFn     func(ctx context.Context, orderID string) (*order.Order, error)
	findOldestPendingBySKUFn func(ctx context.Context, sku string) (*order.Order, error)
	countOrdersBySKUFn       func(ctx context.Context, sku string) (int64, error)
	markOrderPrintedFn       func(ctx context.Context, id int64, printedAt time.Time) error
	listOrdersFn             func(ctx context.Context, f storage.ListFilter) ([]order.Order, int64, error)
	deleteOrderFn            func(ctx context.Context, id int64) error
}

func (m *mockRepo) CreateOrder(ctx context.Context, o *order.Order) error {
	return m.createOrderFn(ctx, o)
}
func (m *mockRepo) FindOrderByID(ctx context.Context, id int64) (*order.Order, error) {
	return m.findOrderByIDFn(ctx, id)
}
func (m *mockRepo) FindOrderByOrderID(ctx context.Context, orderID string) (*order.Order, error) {
	return m.findOrderByOrderIDFn(ctx, orderID)
}
func (m *mockRepo) FindOldestPendingBySKU(ctx context.Context, sku string) (*order.Order, error) {
	return m.findOldestPendingBySKUFn(ctx, sku)
}
func (m *mockRepo) CountOrdersBySKU(ctx context.Context, sku string) (int64, error) {
	return m.countOrdersBySKUFn(ctx, sku)
}
func (m *mockRepo) MarkOrderPrinted(ctx context.Context, id int64, printedAt time.Time) error {
	return m.markOrderPrintedFn(ctx, id, printedAt)
}
func (m *mockRepo) ListOrders(ctx context.Context, f storage.ListFilter) ([]order.Order, int64, error) {
	return m.listOrdersFn(ctx, f)
}
func (m *mockRepo) DeleteOrder(ctx context.Context, id int64) error {
	return m.deleteOrderFn(ctx, id)
}

type fakeFiles struct {
	saved   []string
	deleted []string
	saveErr error
	delErr  error
}

func (f *fakeFiles) Save(name string, r io.Reader) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	f.saved = append(f.saved, name)
	return "orders/" + name, nil
}

func (f *fakeFiles) Delete(rel string) error {
	f.deleted = append(f.deleted, rel)
	return f.delErr
}

func pdfUpload(name string) *Upload {
	return &Upload{
		Name:        name,
		ContentType: "application/pdf",
		Size:        1024,
		Data:        strings.NewReader("%PDF-1.4"),
	}
}

func TestStoreScanCreatesPendingOrder(t *testing.T) {
	repo := &mockRepo{
		findOrderByOrderIDFn: func(ctx context.Context, orderID string) (*order.Order, error) {
			return nil, sql.ErrNoRows
		},
		createOrderFn: func(ctx context.Context, o *order.Order) error {
			o.ID = 42
			return nil
		},
	}
	files := &fakeFiles{}
	svc := NewService(repo, files)

	o, err := svc.StoreScan(context.Background(), "SKU-100", pdfUpload("ORD555.pdf"))
	assert.NoError(t, err)
	assert.Equal(t, int64(42), o.ID)
	assert.Equal(t, "ORD555", *o.OrderID)
	assert.Equal(t, "SKU-100", o.SKU)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.False(t, o.ScannedAt.IsZero())
	assert.Nil(t, o.PrintedAt)

	assert.Len(t, files.saved, 1)
	assert.True(t, strings.HasPrefix(files.saved[0], "ORD555_"))
	assert.True(t, strings.HasSuffix(files.saved[0], ".pdf"))
	assert.Equal(t, "orders/"+files.saved[0], *o.UploadFile)
}

func TestStoreScanDuplicateIdentifier(t *testing.T) {
	existing := "ORD555"
	repo := &mockRepo{
		findOrderByOrderIDFn: func(ctx context.Context, orderID string) (*order.Order, error) {
			return &order.Order{ID: 1, OrderID: &existing, SKU: "SKU-OTHER"}, nil
		},
	}
	files := &fakeFiles{}
	svc := NewService(repo, files)

	// Duplicate base name is rejected regardless of SKU, and before any
	// file write.
	_, err := svc.StoreScan(context.Background(), "SKU-100", pdfUpload("ORD555.jpg"))
	assert.Equal(t, ErrDuplicateOrderID, err)
	assert.Empty(t, files.saved)
}

func TestStoreScanValidation(t *testing.T) {
	svc := NewService(&mockRepo{}, &fakeFiles{})

	tests := []struct {
		name  string
		sku   string
		up    *Upload
		field string
	}{
		{"missing sku", "", pdfUpload("ORD1.pdf"), "sku"},
		{"missing file", "SKU-1", nil, "upload_file"},
		{"bad extension", "SKU-1", pdfUpload("ORD1.exe"), "upload_file"},
		{"oversize", "SKU-1", &Upload{Name: "ORD1.pdf", Size: MaxUploadSize + 1, Data: strings.NewReader("x")}, "upload_file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.StoreScan(context.Background(), tt.sku, tt.up)
			var ve *ValidationError
			assert.ErrorAs(t, err, &ve)
			assert.Contains(t, ve.Fields, tt.field)
		})
	}
}

func TestStoreScanInsertRaceCleansUpFile(t *testing.T) {
	repo := &mockRepo{
		findOrderByOrderIDFn: func(ctx context.Context, orderID string) (*order.Order, error) {
			return nil, sql.ErrNoRows
		},
		createOrderFn: func(ctx context.Context, o *order.Order) error {
			return storage.ErrUniqueViolation
		},
	}
	files := &fakeFiles{}
	svc := NewService(repo, files)

	_, err := svc.StoreScan(context.Background(), "SKU-100", pdfUpload("ORD555.pdf"))
	assert.Equal(t, ErrDuplicateOrderID, err)
	assert.Len(t, files.saved, 1)
	assert.Len(t, files.deleted, 1)
}

func TestFindBySKUPending(t *testing.T) {
	want := &order.Order{ID: 7, SKU: "SKU-100", Status: order.StatusPending}
	repo := &mockRepo{
		findOldestPendingBySKUFn: func(ctx context.Context, sku string) (*order.Order, error) {
			return want, nil
		},
	}
	svc := NewService(repo, &fakeFiles{})

	got, err := svc.FindBySKU(context.Background(), "SKU-100")
	assert.NoError(t, err)
	assert.Equal(t, want, got)

	// Repeated reads without an intervening transition return the same order.
	again, err := svc.FindBySKU(context.Background(), "SKU-100")
	assert.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestFindBySKUAllPrinted(t *testing.T) {
	repo := &mockRepo{
		findOldestPendingBySKUFn: func(ctx context.Context, sku string) (*order.Order, error) {
			return nil, sql.ErrNoRows
		},
		countOrdersBySKUFn: func(ctx context.Context, sku string) (int64, error) {
			return 2, nil
		},
	}
	svc := NewService(repo, &fakeFiles{})

	_, err := svc.FindBySKU(context.Background(), "SKU-100")
	assert.Equal(t, ErrAllPrinted, err)
}

func TestFindBySKUNotFound(t *testing.T) {
	repo := &mockRepo{
		findOldestPendingBySKUFn: func(ctx context.Context, sku string) (*order.Order, error) {
			return nil, sql.ErrNoRows
		},
		countOrdersBySKUFn: func(ctx context.Context, sku string) (int64, error) {
			return 0, nil
		},
	}
	svc := NewService(repo, &fakeFiles{})

	_, err := svc.FindBySKU(context.Background(), "SKU-404")
	assert.Equal(t, ErrOrderNotFound, err)
}

func TestMarkAsPrintedTransition(t *testing.T) {
	var updatedID int64
	repo := &mockRepo{
		findOrderByIDFn: func(ctx context.Context, id int64) (*order.Order, error) {
			return &order.Order{ID: id, Status: order.StatusPending}, nil
		},
		markOrderPrintedFn: func(ctx context.Context, id int64, printedAt time.Time) error {
			updatedID = id
			return nil
		},
	}
	svc := NewService(repo, &fakeFiles{})

	o, err := svc.MarkAsPrinted(context.Background(), 7)
	assert.NoError(t, err)
	assert.Equal(t, int64(7), updatedID)
	assert.Equal(t, order.StatusCompleted, o.Status)
	assert.NotNil(t, o.PrintedAt)
}

func TestMarkAsPrintedIdempotent(t *testing.T) {
	printedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var updates int
	repo := &mockRepo{
		findOrderByIDFn: func(ctx context.Context, id int64) (*order.Order, error) {
			return &order.Order{ID: id, Status: order.StatusCompleted, PrintedAt: &printedAt}, nil
		},
		markOrderPrintedFn: func(ctx context.Context, id int64, printedAt time.Time) error {
			updates++
			return nil
		},
	}
	svc := NewService(repo, &fakeFiles{})

	o, err := svc.MarkAsPrinted(context.Background(), 7)
	assert.NoError(t, err)
	assert.Equal(t, 0, updates)
	assert.Equal(t, printedAt, *o.PrintedAt)
}

func TestMarkAsPrintedNotFound(t *testing.T) {
	repo := &mockRepo{
		findOrderByIDFn: func(ctx context.Context, id int64) (*order.Order, error) {
			return nil, sql.ErrNoRows
		},
	}
	svc := NewService(repo, &fakeFiles{})

	_, err := svc.MarkAsPrinted(context.Background(), 404)
	assert.Equal(t, ErrOrderNotFound, err)
}

func TestDeleteWithFile(t *testing.T) {
	path := "orders/ORD555_1700000000.pdf"
	var deletedRow int64
	repo := &mockRepo{
		findOrderByIDFn: func(ctx context.Context, id int64) (*order.Order, error) {
			return &order.Order{ID: id, UploadFile: &path}, nil
		},
		deleteOrderFn: func(ctx context.Context, id int64) error {
			deletedRow = id
			return nil
		},
	}
	files := &fakeFiles{}
	svc := NewService(repo, files)

	assert.NoError(t, svc.Delete(context.Background(), 7))
	assert.Equal(t, []string{path}, files.deleted)
	assert.Equal(t, int64(7), deletedRow)
}

func TestDeleteWithoutFile(t *testing.T) {
	repo := &mockRepo{
		findOrderByIDFn: func(ctx context.Context, id int64) (*order.Order, error) {
			return &order.Order{ID: id}, nil
		},
		deleteOrderFn: func(ctx context.Context, id int64) error {
			return nil
		},
	}
	files := &fakeFiles{}
	svc := NewService(repo, files)

	assert.NoError(t, svc.Delete(context.Background(), 7))
	assert.Empty(t, files.deleted)
}

func TestDeleteFileFailureStillRemovesRow(t *testing.T) {
	path := "orders/ORD555_1700000000.pdf"
	var rowDeleted bool
	repo := &mockRepo{
		findOrderByIDFn: func(ctx context.Context, id int64) (*order.Order, error) {
			return &order.Order{ID: id, UploadFile: &path}, nil
		},
		deleteOrderFn: func(ctx context.Context, id int64) error {
			rowDeleted = true
			return nil
		},
	}
	files := &fakeFiles{delErr: errors.New("disk gone")}
	svc := NewService(repo, files)

	assert.NoError(t, svc.Delete(context.Background(), 7))
	assert.True(t, rowDeleted)
}

// memRepo is a stateful in-memory repository for walking a full
// scan-print-scan sequence through the service.
type memRepo struct {
	nextID int64
	orders []*order.Order
}

func (m *memRepo) CreateOrder(ctx context.Context, o *order.Order) error {
	for _, e := range m.orders {
		if e.OrderID != nil && o.OrderID != nil && *e.OrderID == *o.OrderID {
			return storage.ErrUniqueViolation
		}
	}
	m.nextID++
	o.ID = m.nextID
	cp := *o
	m.orders = append(m.orders, &cp)
	return nil
}

func (m *memRepo) FindOrderByID(ctx context.Context, id int64) (*order.Order, error) {
	for _, e := range m.orders {
		if e.ID == id {
			cp := *e
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memRepo) FindOrderByOrderID(ctx context.Context, orderID string) (*order.Order, error) {
	for _, e := range m.orders {
		if e.OrderID != nil && *e.OrderID == orderID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memRepo) FindOldestPendingBySKU(ctx context.Context, sku string) (*order.Order, error) {
	var oldest *order.Order
	for _, e := range m.orders {
		if e.SKU != sku || e.Status != order.StatusPending {
			continue
		}
		if oldest == nil || e.ScannedAt.Before(oldest.ScannedAt) ||
			(e.ScannedAt.Equal(oldest.ScannedAt) && e.ID < oldest.ID) {
			oldest = e
		}
	}
	if oldest == nil {
		return nil, sql.ErrNoRows
	}
	cp := *oldest
	return &cp, nil
}

func (m *memRepo) CountOrdersBySKU(ctx context.Context, sku string) (int64, error) {
	var n int64
	for _, e := range m.orders {
		if e.SKU == sku {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) MarkOrderPrinted(ctx context.Context, id int64, printedAt time.Time) error {
	for _, e := range m.orders {
		if e.ID == id {
			e.Status = order.StatusCompleted
			e.PrintedAt = &printedAt
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *memRepo) ListOrders(ctx context.Context, f storage.ListFilter) ([]order.Order, int64, error) {
	out := make([]order.Order, 0, len(m.orders))
	for _, e := range m.orders {
		out = append(out, *e)
	}
	return out, int64(len(out)), nil
}

func (m *memRepo) DeleteOrder(ctx context.Context, id int64) error {
	for i, e := range m.orders {
		if e.ID == id {
			m.orders = append(m.orders[:i], m.orders[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func TestScanPrintQueueScenario(t *testing.T) {
	ctx := context.Background()
	svc := NewService(&memRepo{}, &fakeFiles{})

	first, err := svc.StoreScan(ctx, "SKU-100", pdfUpload("ORD555.pdf"))
	assert.NoError(t, err)

	// The same base name is a conflict even with a different extension.
	_, err = svc.StoreScan(ctx, "SKU-100", pdfUpload("ORD555.jpg"))
	assert.Equal(t, ErrDuplicateOrderID, err)

	second, err := svc.StoreScan(ctx, "SKU-100", pdfUpload("ORD556.pdf"))
	assert.NoError(t, err)

	got, err := svc.FindBySKU(ctx, "SKU-100")
	assert.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	printed, err := svc.MarkAsPrinted(ctx, got.ID)
	assert.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, printed.Status)

	// The queue advances to the next-oldest pending order.
	got, err = svc.FindBySKU(ctx, "SKU-100")
	assert.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	_, err = svc.MarkAsPrinted(ctx, got.ID)
	assert.NoError(t, err)

	_, err = svc.FindBySKU(ctx, "SKU-100")
	assert.Equal(t, ErrAllPrinted, err)

	_, err = svc.FindBySKU(ctx, "SKU-404")
	assert.Equal(t, ErrOrderNotFound, err)
}

func TestListDefaultsAndCaps(t *testing.T) {
	var got storage.ListFilter
	repo := &mockRepo{
		listOrdersFn: func(ctx context.Context, f storage.ListFilter) ([]order.Order, int64, error) {
			got = f
			return nil, 0, nil
		},
	}
	svc := NewService(repo, &fakeFiles{})

	_, _, err := svc.List(context.Background(), ListParams{})
	assert.NoError(t, err)
	assert.Equal(t, 1, got.Page)
	assert.Equal(t, 20, got.PerPage)
	assert.True(t, got.SortDesc)

	_, _, err = svc.List(context.Background(), ListParams{PerPage: 1000, SortOrder: "asc"})
	assert.NoError(t, err)
	assert.Equal(t, 100, got.PerPage)
	assert.False(t, got.SortDesc)
}

func TestListValidation(t *testing.T) {
	svc := NewService(&mockRepo{}, &fakeFiles{})

	_, _, err := svc.List(context.Background(), ListParams{Status: "shipped"})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "status")

	_, _, err = svc.List(context.Background(), ListParams{DateFrom: "01-02-2025"})
	assert.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "date_from")
}

func TestListDateRange(t *testing.T) {
	var got storage.ListFilter
	repo := &mockRepo{
		listOrdersFn: func(ctx context.Context, f storage.ListFilter) ([]order.Order, int64, error) {
			got = f
			return nil, 0, nil
		},
	}
	svc := NewService(repo, &fakeFiles{})

	_, _, err := svc.List(context.Background(), ListParams{DateFrom: "2025-06-01", DateTo: "2025-06-30"})
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), *got.DateFrom)
	// DateTo covers the whole final day.
	assert.Equal(t, 29, int(got.DateTo.Sub(*got.DateFrom).Hours())/24)
	assert.Equal(t, 23, got.DateTo.Hour())
}
