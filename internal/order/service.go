package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/avolkov/labelscan/internal/logger"
	"github.com/avolkov/labelscan/internal/storage"
	"github.com/avolkov/labelscan/internal/types/order"

	"go.uber.org/zap"
)

var (
	ErrDuplicateOrderID = errors.New("order identifier already exists")
	ErrOrderNotFound    = errors.New("order not found")
	ErrAllPrinted       = errors.New("all orders for this SKU have been printed")
)

// MaxUploadSize bounds the accepted label document size.
const MaxUploadSize = 10 << 20

// ValidationError carries field-level messages for a 422 response.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "validation failed: " + strings.Join(keys, ", ")
}

var allowedExts = map[string]struct{}{
	".pdf":  {},
	".jpg":  {},
	".jpeg": {},
	".png":  {},
}

// Upload describes the file part of a scan request.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Data        io.Reader
}

type Service struct {
	repo  OrderRepository
	files FileStore
}

func NewService(r OrderRepository, files FileStore) *Service {
	return &Service{repo: r, files: files}
}

// CheckSKU validates a scanned SKU before intake. Repeat SKUs are re-orders
// and always allowed; uniqueness is keyed on the file-derived identifier.
func (s *Service) CheckSKU(sku string) error {
	if strings.TrimSpace(sku) == "" {
		return &ValidationError{Fields: map[string]string{"sku": "sku is required"}}
	}
	return nil
}

// StoreScan runs the intake workflow: validate, derive the identifier from
// the file name, reject duplicates, store the file and create the order.
func (s *Service) StoreScan(ctx context.Context, sku string, up *Upload) (*order.Order, error) {
	sku = strings.TrimSpace(sku)

	fields := map[string]string{}
	if sku == "" {
		fields["sku"] = "sku is required"
	}
	var ext string
	if up == nil {
		fields["upload_file"] = "upload file is required"
	} else {
		ext = strings.ToLower(filepath.Ext(up.Name))
		if _, ok := allowedExts[ext]; !ok {
			fields["upload_file"] = "file must be a pdf, jpg, jpeg or png"
		} else if up.Size > MaxUploadSize {
			fields["upload_file"] = "file must not exceed 10 MiB"
		}
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	base := filepath.Base(up.Name)
	orderID := strings.TrimSuffix(base, filepath.Ext(base))
	if orderID == "" {
		return nil, &ValidationError{Fields: map[string]string{"upload_file": "file name must not be empty"}}
	}

	// Duplicate check before anything touches the disk.
	if _, err := s.repo.FindOrderByOrderID(ctx, orderID); err == nil {
		return nil, ErrDuplicateOrderID
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	now := time.Now().UTC()
	stored := fmt.Sprintf("%s_%d%s", orderID, now.Unix(), ext)
	path, err := s.files.Save(stored, up.Data)
	if err != nil {
		return nil, err
	}

	o := &order.Order{
		OrderID:    &orderID,
		SKU:        sku,
		UploadFile: &path,
		Status:     order.StatusPending,
		ScannedAt:  now,
	}
	if err := s.repo.CreateOrder(ctx, o); err != nil {
		// Undo the file write so a lost intake leaves no orphan behind.
		if delErr := s.files.Delete(path); delErr != nil {
			logger.Log.Warn("failed to remove file after insert failure",
				zap.String("path", path), zap.Error(delErr))
		}
		if errors.Is(err, storage.ErrUniqueViolation) {
			return nil, ErrDuplicateOrderID
		}
		return nil, err
	}
	return o, nil
}

// FindBySKU returns the oldest pending order for the SKU. The queue being
// exhausted is distinct from the SKU never having been scanned.
func (s *Service) FindBySKU(ctx context.Context, sku string) (*order.Order, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, &ValidationError{Fields: map[string]string{"sku": "sku is required"}}
	}
	o, err := s.repo.FindOldestPendingBySKU(ctx, sku)
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	n, err := s.repo.CountOrdersBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrAllPrinted
	}
	return nil, ErrOrderNotFound
}

// MarkAsPrinted transitions the order to completed. Calling it again on a
// completed order is a no-op that returns the unchanged record.
func (s *Service) MarkAsPrinted(ctx context.Context, id int64) (*order.Order, error) {
	o, err := s.repo.FindOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if o.Status == order.StatusCompleted {
		return o, nil
	}
	now := time.Now().UTC()
	if err := s.repo.MarkOrderPrinted(ctx, id, now); err != nil {
		return nil, err
	}
	updated := *o
	updated.Status = order.StatusCompleted
	updated.PrintedAt = &now
	return &updated, nil
}

// Delete removes the order and its stored file. File deletion is best
// effort: a failure is logged and the row is removed anyway.
func (s *Service) Delete(ctx context.Context, id int64) error {
	o, err := s.repo.FindOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOrderNotFound
		}
		return err
	}
	if o.UploadFile != nil {
		if err := s.files.Delete(*o.UploadFile); err != nil {
			logger.Log.Warn("failed to delete order file",
				zap.Int64("order", id), zap.String("path", *o.UploadFile), zap.Error(err))
		}
	}
	if err := s.repo.DeleteOrder(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOrderNotFound
		}
		return err
	}
	return nil
}

// ListParams are the raw query parameters of the listing endpoint.
type ListParams struct {
	Search    string
	Status    string
	DateFrom  string
	DateTo    string
	SortBy    string
	SortOrder string
	Page      int
	PerPage   int
}

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// List validates the filter parameters and returns a page of orders with the
// total match count.
func (s *Service) List(ctx context.Context, p ListParams) ([]order.Order, int64, error) {
	f := storage.ListFilter{
		Search:   strings.TrimSpace(p.Search),
		SortBy:   p.SortBy,
		SortDesc: !strings.EqualFold(p.SortOrder, "asc"),
		Page:     p.Page,
		PerPage:  p.PerPage,
	}

	switch p.Status {
	case "":
	case string(order.StatusPending), string(order.StatusCompleted):
		f.Status = order.OrderStatus(p.Status)
	default:
		return nil, 0, &ValidationError{Fields: map[string]string{"status": "status must be pending or completed"}}
	}

	if p.DateFrom != "" {
		t, err := time.Parse("2006-01-02", p.DateFrom)
		if err != nil {
			return nil, 0, &ValidationError{Fields: map[string]string{"date_from": "date must be YYYY-MM-DD"}}
		}
		f.DateFrom = &t
	}
	if p.DateTo != "" {
		t, err := time.Parse("2006-01-02", p.DateTo)
		if err != nil {
			return nil, 0, &ValidationError{Fields: map[string]string{"date_to": "date must be YYYY-MM-DD"}}
		}
		end := t.Add(24*time.Hour - time.Nanosecond)
		f.DateTo = &end
	}

	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = defaultPerPage
	}
	if f.PerPage > maxPerPage {
		f.PerPage = maxPerPage
	}

	return s.repo.ListOrders(ctx, f)
}
