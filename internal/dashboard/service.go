package dashboard

import (
	"context"

	"github.com/avolkov/labelscan/internal/types/order"
)

type OrderCounter interface {
	CountOrders(ctx context.Context) (int64, error)
	CountOrdersByStatus(ctx context.Context, status order.OrderStatus) (int64, error)
}

type UserCounter interface {
	CountUsers(ctx context.Context) (int64, error)
}

type Stats struct {
	TotalUsers      int64 `json:"total_users"`
	TotalOrders     int64 `json:"total_orders"`
	PendingOrders   int64 `json:"pending_orders"`
	CompletedOrders int64 `json:"completed_orders"`
}

type Service struct {
	orders OrderCounter
	users  UserCounter
}

func NewService(orders OrderCounter, users UserCounter) *Service {
	return &Service{orders: orders, users: users}
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	var err error
	if st.TotalUsers, err = s.users.CountUsers(ctx); err != nil {
		return nil, err
	}
	if st.TotalOrders, err = s.orders.CountOrders(ctx); err != nil {
		return nil, err
	}
	if st.PendingOrders, err = s.orders.CountOrdersByStatus(ctx, order.StatusPending); err != nil {
		return nil, err
	}
	if st.CompletedOrders, err = s.orders.CountOrdersByStatus(ctx, order.StatusCompleted); err != nil {
		return nil, err
	}
	return st, nil
}
