package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/farmolink/farmolink-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.NotEmpty(t, matches, "no %s migration found", suffix)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
	require.NoError(t, migrate.ValidateEmbedded())
}

func TestValidateDirReportsEveryProblem(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("20250101000000_ok.sql", "-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n")
	write("20250101000000_dupe.sql", "-- +goose Up\n-- +goose Down\n")
	write("20250102000000_no_down.sql", "-- +goose Up\nSELECT 1;\n")
	write("badname.sql", "")

	err := migrate.ValidateDir(dir)
	require.Error(t, err)
	for _, want := range []string{"duplicate migration version", "missing", "invalid migration filename"} {
		require.Contains(t, err.Error(), want)
	}
}

func TestQuotesMigrationEnforcesOneResponsePerPharmacy(t *testing.T) {
	content := readMigration(t, "create_prescription_requests")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS prescription_requests",
		"target_pharmacies uuid[] NOT NULL",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_prescription_quotes_prescription_pharmacy ON prescription_quotes (prescription_id, pharmacy_id)",
		"REFERENCES prescription_requests(id) ON DELETE CASCADE",
		"DROP TABLE IF EXISTS prescription_quotes",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOrdersMigrationContainsGuards(t *testing.T) {
	content := readMigration(t, "create_orders")
	for _, sub := range []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_orders_quote_id ON orders (quote_id) WHERE quote_id IS NOT NULL",
		"ux_orders_customer_idempotency_key ON orders (customer_id, idempotency_key)",
		"commission_status commission_status NOT NULL DEFAULT 'pending'",
		"CHECK (total >= 0)",
		"DROP TABLE IF EXISTS orders",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOutboxMigrationDedupesReminders(t *testing.T) {
	content := readMigration(t, "create_outbox")
	require.Contains(t, content, "ux_outbox_events_event_aggregate")
	require.Contains(t, content, "WHERE event_type = 'settlement_reminder'")
	require.Contains(t, content, "CREATE TABLE IF NOT EXISTS outbox_dlq")
}
