package postgres

import (
	"database/sql"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/adeilh/omnikv/backend"
	"github.com/adeilh/omnikv/backend/backendtest"
	testpg "github.com/adeilh/omnikv/internal/testutil/postgrescontainer"
)

func TestMain(m *testing.M) {
	code := m.Run()
	_ = testpg.Teardown()
	os.Exit(code)
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres integration test skipped in short mode")
	}
	if err := testpg.Setup(); err != nil {
		t.Skipf("postgres integration test skipped: %v", err)
	}
	db, err := Open(testCtx(t), WithDSN(testpg.DSN()), WithMaxOpenConns(4))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestIntegrationContract(t *testing.T) {
	db := openTestDB(t)
	table := "kv_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := Migrate(testCtx(t), db, table); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	store, err := NewStore(db, WithTable(table))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	backendtest.Run(t, func(t *testing.T) backend.Backend { return store })
}
