package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avolkov/labelscan/internal/storage"
	"github.com/avolkov/labelscan/internal/types/order"
	"github.com/avolkov/labelscan/internal/types/user"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// pgErrUniqueViolation is the Class 23 integrity constraint code raised when
// two intakes race on the same order_id.
const pgErrUniqueViolation = "23505"

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(dsn string) (*PostgresStorage, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &PostgresStorage{db: db}

	// проверяем, что БД жива
	if err := s.db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	// создаём таблицы
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStorage) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id SERIAL PRIMARY KEY,
            name TEXT NOT NULL,
            email TEXT UNIQUE NOT NULL,
            password_hash TEXT NOT NULL,
            is_admin BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS orders (
            id SERIAL PRIMARY KEY,
            order_id TEXT,
            sku TEXT NOT NULL,
            upload_file TEXT,
            status TEXT NOT NULL,
            scanned_at TIMESTAMPTZ NOT NULL,
            printed_at TIMESTAMPTZ
        )`,
		// Uniqueness is enforced at the schema level so two concurrent
		// intakes with the same derived identifier cannot both insert.
		`CREATE UNIQUE INDEX IF NOT EXISTS orders_order_id_key
            ON orders (order_id) WHERE order_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS orders_sku_idx ON orders (sku)`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

// wrapUnique maps a Postgres unique violation to storage.ErrUniqueViolation.
func wrapUnique(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
		return fmt.Errorf("%w: %s", storage.ErrUniqueViolation, pgErr.ConstraintName)
	}
	return err
}

func (s *PostgresStorage) CreateUser(ctx context.Context, u *user.User) error {
	q := `INSERT INTO users (name,email,password_hash,is_admin,created_at)
          VALUES($1,$2,$3,$4,$5) RETURNING id`
	err := s.db.QueryRowContext(ctx, q, u.Name, u.Email, u.PasswordHash, u.IsAdmin, u.CreatedAt).Scan(&u.ID)
	if err != nil {
		return wrapUnique(err)
	}
	return nil
}

func (s *PostgresStorage) FindUserByEmail(ctx context.Context, email string) (*user.User, error) {
	u := &user.User{}
	q := `SELECT id,name,email,password_hash,is_admin,created_at FROM users WHERE email=$1`
	if err := s.db.QueryRowContext(ctx, q, email).
		Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *PostgresStorage) FindUserByID(ctx context.Context, id int64) (*user.User, error) {
	u := &user.User{}
	q := `SELECT id,name,email,password_hash,is_admin,created_at FROM users WHERE id=$1`
	if err := s.db.QueryRowContext(ctx, q, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *PostgresStorage) ListUsers(ctx context.Context) ([]user.User, error) {
	q := `SELECT id,name,email,password_hash,is_admin,created_at FROM users ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []user.User
	for rows.Next() {
		var u user.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) UpdateUser(ctx context.Context, u *user.User) error {
	q := `UPDATE users SET name=$1, email=$2, password_hash=$3, is_admin=$4 WHERE id=$5`
	res, err := s.db.ExecContext(ctx, q, u.Name, u.Email, u.PasswordHash, u.IsAdmin, u.ID)
	if err != nil {
		return wrapUnique(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStorage) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStorage) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func (s *PostgresStorage) CreateOrder(ctx context.Context, o *order.Order) error {
	q := `
        INSERT INTO orders (order_id,sku,upload_file,status,scanned_at)
        VALUES ($1,$2,$3,$4,$5) RETURNING id`
	err := s.db.QueryRowContext(ctx, q,
		o.OrderID, o.SKU, o.UploadFile, o.Status, o.ScannedAt,
	).Scan(&o.ID)
	if err != nil {
		return wrapUnique(err)
	}
	return nil
}

const orderColumns = `id, order_id, sku, upload_file, status, scanned_at, printed_at`

func scanOrder(row *sql.Row) (*order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.OrderID, &o.SKU, &o.UploadFile, &o.Status, &o.ScannedAt, &o.PrintedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *PostgresStorage) FindOrderByID(ctx context.Context, id int64) (*order.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return scanOrder(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStorage) FindOrderByOrderID(ctx context.Context, orderID string) (*order.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE order_id = $1`
	return scanOrder(s.db.QueryRowContext(ctx, q, orderID))
}

// FindOldestPendingBySKU returns the pending order with the earliest scan
// time for the given SKU. Ties fall back to insertion order.
func (s *PostgresStorage) FindOldestPendingBySKU(ctx context.Context, sku string) (*order.Order, error) {
	q := `SELECT ` + orderColumns + `
        FROM orders
        WHERE sku = $1 AND status = $2
        ORDER BY scanned_at, id
        LIMIT 1`
	return scanOrder(s.db.QueryRowContext(ctx, q, sku, order.StatusPending))
}

func (s *PostgresStorage) CountOrdersBySKU(ctx context.Context, sku string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE sku=$1`, sku).Scan(&n)
	return n, err
}

func (s *PostgresStorage) MarkOrderPrinted(ctx context.Context, id int64, printedAt time.Time) error {
	q := `
        UPDATE orders
        SET status = $1, printed_at = $2
        WHERE id = $3 AND status = $4`
	_, err := s.db.ExecContext(ctx, q, order.StatusCompleted, printedAt, id, order.StatusPending)
	return err
}

// sortColumns maps caller-supplied sort keys to real columns.
var sortColumns = map[string]string{
	"id":         "id",
	"order_id":   "order_id",
	"sku":        "sku",
	"status":     "status",
	"scanned_at": "scanned_at",
	"printed_at": "printed_at",
}

func (s *PostgresStorage) ListOrders(ctx context.Context, f storage.ListFilter) ([]order.Order, int64, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		conds = append(conds, fmt.Sprintf("(sku ILIKE %s OR order_id ILIKE %s)", p, p))
	}
	if f.Status != "" {
		conds = append(conds, "status = "+arg(f.Status))
	}
	if f.DateFrom != nil {
		conds = append(conds, "scanned_at >= "+arg(*f.DateFrom))
	}
	if f.DateTo != nil {
		conds = append(conds, "scanned_at <= "+arg(*f.DateTo))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	col, ok := sortColumns[f.SortBy]
	if !ok {
		col = "scanned_at"
	}
	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}

	q := `SELECT ` + orderColumns + ` FROM orders` + where +
		fmt.Sprintf(" ORDER BY %s %s, id %s", col, dir, dir) +
		" LIMIT " + arg(f.PerPage) + " OFFSET " + arg((f.Page-1)*f.PerPage)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []order.Order
	for rows.Next() {
		var o order.Order
		if err := rows.Scan(&o.ID, &o.OrderID, &o.SKU, &o.UploadFile, &o.Status, &o.ScannedAt, &o.PrintedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

func (s *PostgresStorage) DeleteOrder(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStorage) CountOrders(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&n)
	return n, err
}

func (s *PostgresStorage) CountOrdersByStatus(ctx context.Context, status order.OrderStatus) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE status=$1`, status).Scan(&n)
	return n, err
}
