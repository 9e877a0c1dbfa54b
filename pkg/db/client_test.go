package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&testModel{}))
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := NewFromGorm(db, nil)

	ctx := context.Background()
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}))

	var count int64
	require.NoError(t, db.Model(&testModel{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)
	require.NoError(t, db.Model(&testModel{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestWithTx_RetriesTransientErrors(t *testing.T) {
	client := NewFromGorm(newTestDB(t), nil)
	client.configureRetry(3, time.Millisecond)

	calls := 0
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return tx.Create(&testModel{Name: "eventually"}).Error
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestWithTx_DoesNotRetryDomainErrors(t *testing.T) {
	client := NewFromGorm(newTestDB(t), nil)
	client.configureRetry(5, time.Millisecond)

	calls := 0
	sentinel := errors.New("state conflict")
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		calls++
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 1, calls)
}

func TestWithTx_GivesUpAfterMaxAttempts(t *testing.T) {
	client := NewFromGorm(newTestDB(t), nil)
	client.configureRetry(2, time.Millisecond)

	calls := 0
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		calls++
		return &pgconn.PgError{Code: "40P01"}
	})
	require.Error(t, err)
	require.True(t, IsTransient(err))
	require.Equal(t, 2, calls)
}

func TestPing(t *testing.T) {
	client := NewFromGorm(newTestDB(t), nil)
	require.NoError(t, client.Ping(context.Background()))
	require.False(t, IsPostgres(client.DB()))
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_orders_quote_id"}
	require.True(t, IsUniqueViolation(pgErr, ""))
	require.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", pgErr), "ux_orders_quote_id"))
	require.False(t, IsUniqueViolation(pgErr, "ux_other"))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))
	require.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: orders.quote_id"), ""))
	require.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: orders.quote_id"), "ux_orders_quote_id"))
	require.False(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: orders.quote_id"), "ux_orders_customer_idempotency_key"))
	require.False(t, IsUniqueViolation(nil, ""))
}

func TestIsTransient(t *testing.T) {
	require.True(t, IsTransient(&pgconn.PgError{Code: "08006"}))
	require.True(t, IsTransient(&pgconn.PgError{Code: "40001"}))
	require.False(t, IsTransient(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsTransient(errors.New("plain")))
	require.False(t, IsTransient(nil))
}
