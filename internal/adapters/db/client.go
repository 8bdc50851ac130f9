package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const (
	MaxOpenConnections = 40
	MaxIdleConnections = 10

	statementTimeout = time.Second * 10
)

var ErrNoRows = sql.ErrNoRows

type Client struct {
	db   *sqlx.DB
	Goqu *goqu.Database
}

func NewDB(dsn string) (*Client, error) {
	dialectOptions := postgres.DialectOptions()
	dialectOptions.SupportsWithCTE = true
	goqu.RegisterDialect("default", dialectOptions)
	goqu.SetDefaultPrepared(true)

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(MaxOpenConnections)
	db.SetMaxIdleConns(MaxIdleConnections)
	db.SetConnMaxIdleTime(time.Minute * 5)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Client{db: db, Goqu: goqu.New("default", db)}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) QueryRow(ctx context.Context, dest any, query *goqu.SelectDataset) error {
	q, args, err := query.ToSQL()
	if err != nil {
		return fmt.Errorf("unable to build query: %w", err)
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, statementTimeout)
	defer cancel()

	row := c.db.QueryRowxContext(ctx, q, args...)

	outType := reflect.TypeOf(dest)
	if outType.Kind() == reflect.Ptr {
		outType = outType.Elem()
	}

	var scanErr error
	if outType.Kind() == reflect.Struct {
		scanErr = row.StructScan(dest)
	} else {
		scanErr = row.Scan(dest)
	}

	if errors.Is(scanErr, sql.ErrNoRows) {
		return ErrNoRows
	}

	if scanErr != nil {
		return fmt.Errorf("unable to scan row: %w", scanErr)
	}

	return nil
}

func (c *Client) Select(ctx context.Context, dest any, query *goqu.SelectDataset) error {
	q, args, err := query.ToSQL()
	if err != nil {
		return fmt.Errorf("unable to build query: %w", err)
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, statementTimeout)
	defer cancel()

	if err := c.db.SelectContext(ctx, dest, q, args...); err != nil {
		return fmt.Errorf("unable to execute select query: %w", err)
	}
	return nil
}

// InsertReturningID executes the insert and scans the generated UUID key.
func (c *Client) InsertReturningID(ctx context.Context, query *goqu.InsertDataset) (uuid.UUID, error) {
	q, args, err := query.ToSQL()
	if err != nil {
		return uuid.Nil, fmt.Errorf("unable to build query: %w", err)
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, statementTimeout)
	defer cancel()

	var id uuid.UUID
	row := c.db.QueryRowContext(ctx, q+" RETURNING id", args...)
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, errors.New("insert succeeded but returned no id")
		}
		return uuid.Nil, fmt.Errorf("failed to scan inserted id: %w", err)
	}

	return id, nil
}

func (c *Client) Update(ctx context.Context, query *goqu.UpdateDataset) (sql.Result, error) {
	q, args, err := query.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("unable to build query: %w", err)
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, statementTimeout)
	defer cancel()

	res, err := c.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to execute update query: %w", err)
	}
	return res, nil
}

func (c *Client) Delete(ctx context.Context, query *goqu.DeleteDataset) (sql.Result, error) {
	q, args, err := query.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("unable to build query: %w", err)
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, statementTimeout)
	defer cancel()

	res, err := c.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to execute delete query: %w", err)
	}
	return res, nil
}
