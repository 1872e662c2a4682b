package order

import "time"

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusCompleted OrderStatus = "completed"
)

type Order struct {
	ID         int64       `db:"id" json:"id"`
	OrderID    *string     `db:"order_id" json:"order_id"`
	SKU        string      `db:"sku" json:"sku"`
	UploadFile *string     `db:"upload_file" json:"upload_file"`
	Status     OrderStatus `db:"status" json:"status"`
	ScannedAt  time.Time   `db:"scanned_at" json:"scanned_at"`
	PrintedAt  *time.Time  `db:"printed_at" json:"printed_at,omitempty"`
}
