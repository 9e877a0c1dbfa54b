// Package dbtest opens throwaway sqlite databases carrying the marketplace
// schema. Unique indexes mirror the Postgres migrations so constraint-driven
// paths behave the same in tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS pharmacies (
  id TEXT PRIMARY KEY,
  owner_user_id TEXT NOT NULL,
  name TEXT NOT NULL,
  phone TEXT,
  address TEXT,
  commission_rate TEXT,
  is_available INTEGER NOT NULL DEFAULT 1,
  status TEXT NOT NULL DEFAULT 'pending',
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS prescription_requests (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL,
  image_url TEXT NOT NULL,
  notes TEXT,
  status TEXT NOT NULL DEFAULT 'waiting_for_quotes',
  target_pharmacies TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS prescription_quotes (
  id TEXT PRIMARY KEY,
  prescription_id TEXT NOT NULL REFERENCES prescription_requests(id) ON DELETE CASCADE,
  pharmacy_id TEXT NOT NULL,
  pharmacy_name TEXT NOT NULL,
  items TEXT NOT NULL,
  total_price INTEGER NOT NULL,
  delivery_fee INTEGER NOT NULL DEFAULT 0,
  notes TEXT,
  rejection_reason TEXT,
  status TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_prescription_quotes_prescription_pharmacy ON prescription_quotes (prescription_id, pharmacy_id);
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  customer_id TEXT NOT NULL,
  customer_name TEXT NOT NULL,
  customer_phone TEXT NOT NULL,
  pharmacy_id TEXT NOT NULL,
  prescription_id TEXT,
  quote_id TEXT,
  items TEXT NOT NULL,
  total INTEGER NOT NULL,
  type TEXT NOT NULL,
  address TEXT,
  status TEXT NOT NULL DEFAULT 'pending',
  commission_rate TEXT,
  commission_amount INTEGER,
  commission_status TEXT NOT NULL DEFAULT 'pending',
  idempotency_key TEXT,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_orders_quote_id ON orders (quote_id) WHERE quote_id IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS ux_orders_customer_idempotency_key ON orders (customer_id, idempotency_key) WHERE idempotency_key IS NOT NULL;
CREATE TABLE IF NOT EXISTS settlement_events (
  id TEXT PRIMARY KEY,
  pharmacy_id TEXT NOT NULL,
  year INTEGER NOT NULL,
  month INTEGER NOT NULL,
  type TEXT NOT NULL,
  orders_affected INTEGER NOT NULL,
  amount INTEGER NOT NULL,
  actor_user_id TEXT NOT NULL,
  created_at DATETIME
);
CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  user_id TEXT,
  audience_role TEXT,
  type TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL,
  link TEXT,
  event_id TEXT,
  read_at DATETIME,
  created_at DATETIME
);
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_outbox_events_event_aggregate ON outbox_events (event_type, aggregate_type, aggregate_id) WHERE event_type = 'settlement_reminder';
CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_outbox_dlq_event_id ON outbox_dlq (event_id);
`

// Open returns an isolated in-memory database with every table created.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	// one connection keeps the shared-cache database alive and serialises writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}
