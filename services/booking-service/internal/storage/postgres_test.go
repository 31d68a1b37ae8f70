package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tabletopreserve/tabletop/libs/db"
	"github.com/tabletopreserve/tabletop/services/booking-service/internal/model"
	"github.com/tabletopreserve/tabletop/services/booking-service/migrations"
)

// openTestRepository connects to TEST_DATABASE_URL and skips without it.
func openTestRepository(t *testing.T) *BookingRepository {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.Open(ctx, url, db.Options{MaxConns: 4})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := db.Migrate(ctx, pool, migrations.FS, migrations.LockID); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewBookingRepository(pool)
}

func seedReservation(t *testing.T, repo *BookingRepository, tableID string, start time.Time, hours int, status model.Status) string {
	t.Helper()
	now := time.Now().UTC()
	id, err := repo.CreateReservation(context.Background(), model.TableReservation{
		ShopID:        "shop-it",
		TableID:       tableID,
		TableNumber:   1,
		Start:         start,
		DurationHours: hours,
		PartySize:     2,
		Status:        status,
		Contact:       model.Contact{Name: "Ada", Phone: "+15550100"},
		Audit:         model.Audit{CreatedAt: now, CreatedBy: model.AnonymousActor, UpdatedAt: now},
	}, "")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return id
}

func TestPostgres_FindOverlapping(t *testing.T) {
	repo := openTestRepository(t)
	tableID := "it-" + uuid.NewString()
	evening := time.Date(2030, 6, 1, 18, 0, 0, 0, time.UTC)

	booked := seedReservation(t, repo, tableID, evening, 2, model.StatusConfirmed)
	seedReservation(t, repo, tableID, evening.Add(-3*time.Hour), 1, model.StatusCancelled)

	cases := []struct {
		name  string
		start time.Duration
		end   time.Duration
		want  bool
	}{
		{"ends when booking starts", -time.Hour, 0, false},
		{"starts when booking ends", 2 * time.Hour, 3 * time.Hour, false},
		{"overlaps the end", time.Hour, 3 * time.Hour, true},
		{"overlaps the start", -time.Hour, 30 * time.Minute, true},
		{"inside", 30 * time.Minute, 90 * time.Minute, true},
		{"encloses", -time.Hour, 3 * time.Hour, true},
		{"over a cancelled booking", -3 * time.Hour, -2 * time.Hour, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			window := model.Interval{Start: evening.Add(tc.start), End: evening.Add(tc.end)}
			got, err := repo.FindOverlapping(context.Background(), tableID, window, model.ActiveStatuses)
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			if tc.want != (len(got) == 1 && got[0].ID == booked) {
				t.Fatalf("window %v-%v: expected overlap=%v, got %+v", window.Start, window.End, tc.want, got)
			}
			if !tc.want && len(got) != 0 {
				t.Fatalf("expected no rows, got %d", len(got))
			}
		})
	}
}

func TestPostgres_ConditionalUpdate(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()
	id := seedReservation(t, repo, "it-"+uuid.NewString(), time.Date(2030, 6, 2, 18, 0, 0, 0, time.UTC), 1, model.StatusPending)

	at := time.Now().UTC().Truncate(time.Microsecond)
	updated, err := repo.UpdateReservation(ctx, id, model.StatusPatch{From: model.StatusPending, To: model.StatusConfirmed, At: at, By: "staff-1"})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if updated.Status != model.StatusConfirmed || updated.ConfirmedBy != "staff-1" || updated.ConfirmedAt == nil {
		t.Fatalf("unexpected row %+v", updated)
	}

	if _, err := repo.UpdateReservation(ctx, id, model.StatusPatch{From: model.StatusPending, To: model.StatusCancelled, At: at, By: "user-1"}); err == nil {
		t.Fatal("expected a stale status patch to be rejected")
	}
	got, err := repo.GetReservation(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusConfirmed || got.CancelledAt != nil {
		t.Fatalf("expected row unchanged, got %+v", got)
	}
}

func TestPostgres_LockTableRequiresTx(t *testing.T) {
	repo := openTestRepository(t)
	if err := repo.LockTable(context.Background(), "T1"); !errors.Is(err, errNoTx) {
		t.Fatalf("expected errNoTx, got %v", err)
	}
	err := repo.WithTx(context.Background(), func(ctx context.Context) error {
		return repo.LockTable(ctx, "T1")
	})
	if err != nil {
		t.Fatalf("lock in tx: %v", err)
	}
}
