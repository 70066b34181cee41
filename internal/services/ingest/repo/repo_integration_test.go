//go:build integration_pg
// +build integration_pg

package repo

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"recallwatch/internal/modkit/repokit"
	perr "recallwatch/internal/platform/errors"
	"recallwatch/internal/platform/store"
	"recallwatch/internal/services/ingest/domain"
)

func startPostgres(t *testing.T) (dsn string, stop func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "postgres",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections"),
		).WithDeadline(2 * time.Minute),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		cancel()
		t.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get container host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("failed to get mapped port: %v", err)
	}

	dsn = fmt.Sprintf("postgres://postgres:postgres@%s:%s/postgres?sslmode=disable", host, mapped.Port())
	stop = func() {
		_ = c.Terminate(context.Background())
		cancel()
	}
	return dsn, stop
}

func openStore(t *testing.T, ctx context.Context, dsn string) *store.Store {
	t.Helper()
	st, err := store.Open(ctx, store.Config{
		PG: store.PGConfig{Enabled: true, URL: dsn, MaxConns: 2},
	})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	return st
}

func applyMigration(t *testing.T, ctx context.Context, st *store.Store, path string) {
	t.Helper()
	blob, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read migration %s: %v", path, err)
	}
	err = st.PG.Tx(ctx, func(q repokit.Queryer) error {
		for _, stmt := range strings.Split(string(blob), ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := q.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("%s: %w", strings.Fields(stmt)[0], err)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("apply migration %s: %v", path, err)
	}
}

func TestRunsRepo_Integration(t *testing.T) {
	dsn, stop := startPostgres(t)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	st := openStore(t, ctx, dsn)
	defer func() { _ = st.Close(context.Background()) }()

	applyMigration(t, ctx, st, "../../../../migrations/0003_ingestion_runs.up.sql")

	binder := NewPG()
	t0 := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	run1ID := uuid.New().String()
	run2ID := uuid.New().String()

	// lifecycle: create -> running -> terminal, each transition guarded
	err := st.PG.Tx(ctx, func(q repokit.Queryer) error {
		r := binder.Bind(q)
		if err := r.Create(ctx, domain.Run{
			ID: run1ID, Mode: domain.ModeIncremental, Status: domain.RunQueued, CreatedAt: t0,
		}); err != nil {
			return err
		}

		got, ok, err := r.Get(ctx, run1ID)
		if err != nil || !ok {
			t.Fatalf("Get after create: ok=%v err=%v", ok, err)
		}
		if got.Status != domain.RunQueued || got.Mode != domain.ModeIncremental {
			t.Errorf("fresh run = %+v", got)
		}

		if err := r.MarkRunning(ctx, run1ID, t0.Add(time.Second)); err != nil {
			return err
		}
		if err := r.MarkRunning(ctx, run1ID, t0.Add(2*time.Second)); !perr.IsCode(err, perr.ErrorCodeConflict) {
			t.Errorf("second MarkRunning = %v, want conflict", err)
		}

		outcomes := map[string]domain.AgencyOutcome{
			"cpsc": {Status: domain.AgencySucceeded, Fetched: 5, Inserted: 5, LastCursor: "c-1"},
			"fda":  {Status: domain.AgencyFailed, Error: "upstream 503"},
		}
		if err := r.Finish(ctx, run1ID, domain.RunPartial, outcomes, "", t0.Add(time.Minute)); err != nil {
			return err
		}
		if err := r.Finish(ctx, run1ID, domain.RunFailed, nil, "late", t0.Add(2*time.Minute)); !perr.IsCode(err, perr.ErrorCodeConflict) {
			t.Errorf("finish after terminal = %v, want conflict", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run1 lifecycle: %v", err)
	}

	// a newer run supersedes run1 as the cursor source
	err = st.PG.Tx(ctx, func(q repokit.Queryer) error {
		r := binder.Bind(q)
		if err := r.Create(ctx, domain.Run{
			ID: run2ID, Mode: domain.ModeIncremental, Status: domain.RunQueued, CreatedAt: t0.Add(time.Hour),
		}); err != nil {
			return err
		}
		if err := r.MarkRunning(ctx, run2ID, t0.Add(time.Hour)); err != nil {
			return err
		}
		return r.Finish(ctx, run2ID, domain.RunSucceeded, map[string]domain.AgencyOutcome{
			"cpsc": {Status: domain.AgencySucceeded, Fetched: 2, Updated: 2, LastCursor: "c-2"},
			"fda":  {Status: domain.AgencyFailed, Error: "upstream 503", LastCursor: ""},
		}, "", t0.Add(time.Hour+time.Minute))
	})
	if err != nil {
		t.Fatalf("run2 lifecycle: %v", err)
	}

	// cursors come from the newest persisted run; failed agencies stay unset
	err = st.PG.Tx(ctx, func(q repokit.Queryer) error {
		cursors, err := binder.Bind(q).LastCursors(ctx)
		if err != nil {
			return err
		}
		if len(cursors) != 1 || cursors["cpsc"] != "c-2" {
			t.Errorf("LastCursors = %v, want cpsc c-2 only", cursors)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("cursors: %v", err)
	}

	// listing: newest first, status filter, keyset continuation
	err = st.PG.Tx(ctx, func(q repokit.Queryer) error {
		r := binder.Bind(q)

		partial, err := r.List(ctx, domain.ListFilter{Status: domain.RunPartial}, 10)
		if err != nil {
			return err
		}
		if len(partial) != 1 || partial[0].ID != run1ID {
			t.Errorf("status filter = %+v", partial)
		}
		if partial[0].Outcomes["cpsc"].LastCursor != "c-1" {
			t.Errorf("outcomes did not round-trip: %+v", partial[0].Outcomes)
		}

		page1, err := r.List(ctx, domain.ListFilter{}, 1)
		if err != nil {
			return err
		}
		if len(page1) != 1 || page1[0].ID != run2ID {
			t.Fatalf("page1 = %+v, want newest run first", page1)
		}
		cursor := page1[0].CreatedAt.Format(time.RFC3339Nano) + "|" + page1[0].ID
		page2, err := r.List(ctx, domain.ListFilter{Cursor: cursor}, 1)
		if err != nil {
			return err
		}
		if len(page2) != 1 || page2[0].ID != run1ID {
			t.Errorf("page2 = %+v, want run1", page2)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
}
