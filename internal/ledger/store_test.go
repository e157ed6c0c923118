package ledger

import (
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zyetaone/z-interact-sub000/internal/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Image{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(db)
}

// seed inserts a row and pins its updated_at, bypassing auto timestamps so
// tests control the feed ordering exactly.
func seed(t *testing.T, s *Store, id, tableID, status string, updatedAt int64) models.Image {
	t.Helper()
	img := models.Image{ID: id, Status: status, URL: "https://cdn/" + id + ".png"}
	if tableID != "" {
		img.TableID = &tableID
	}
	if err := s.db.Create(&img).Error; err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
	if err := s.db.Model(&models.Image{}).Where("id = ?", id).
		UpdateColumn("updated_at", updatedAt).Error; err != nil {
		t.Fatalf("pin updated_at for %s: %v", id, err)
	}
	img.UpdatedAt = updatedAt
	return img
}

func TestInsert_FillsTimestamps(t *testing.T) {
	s := testStore(t)
	table := "1"
	img := models.Image{ID: "a", TableID: &table, Status: models.StatusGenerating}
	if err := s.Insert(&img); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.Get("a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	now := time.Now().UnixMilli()
	if got.CreatedAt == 0 || got.UpdatedAt == 0 {
		t.Fatalf("timestamps not filled: %+v", got)
	}
	// Milliseconds, not seconds: a second-resolution value would be ~1000x
	// smaller than now.
	if got.UpdatedAt < now-time.Minute.Milliseconds() || got.UpdatedAt > now+time.Minute.Milliseconds() {
		t.Errorf("updated_at = %d, not epoch milliseconds near %d", got.UpdatedAt, now)
	}
}

func TestSelectSince_StrictlyGreater(t *testing.T) {
	s := testStore(t)
	seed(t, s, "a", "1", models.StatusCompleted, 100)
	seed(t, s, "b", "2", models.StatusCompleted, 200)
	seed(t, s, "c", "3", models.StatusCompleted, 300)

	got, err := s.SelectSince(200, "", 0)
	if err != nil {
		t.Fatalf("select since: %v", err)
	}
	// The record at exactly the cursor value is excluded.
	if len(got) != 1 || got[0].ID != "c" {
		t.Fatalf("since 200 = %v, want just c", ids(got))
	}

	got, err = s.SelectSince(99, "", 0)
	if err != nil {
		t.Fatalf("select since: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("since 99 = %v, want 3 records", ids(got))
	}
	// Ascending by updated_at.
	for i := 1; i < len(got); i++ {
		if got[i].UpdatedAt < got[i-1].UpdatedAt {
			t.Errorf("not ascending: %v", ids(got))
		}
	}
}

func TestSelectSince_TableFilterAndLimit(t *testing.T) {
	s := testStore(t)
	seed(t, s, "a", "1", models.StatusCompleted, 100)
	seed(t, s, "b", "2", models.StatusCompleted, 200)
	seed(t, s, "c", "1", models.StatusLocked, 300)

	got, err := s.SelectSince(0, "1", 0)
	if err != nil {
		t.Fatalf("select since: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("table filter = %v, want [a c]", ids(got))
	}

	got, err = s.SelectSince(0, "", 2)
	if err != nil {
		t.Fatalf("select since: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("limit 2 = %v, want 2 records", ids(got))
	}
}

func TestSelectSince_SameMillisecondTies(t *testing.T) {
	s := testStore(t)
	seed(t, s, "a", "1", models.StatusCompleted, 100)
	seed(t, s, "b", "2", models.StatusCompleted, 100)

	got, err := s.SelectSince(99, "", 0)
	if err != nil {
		t.Fatalf("select since: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("ties at 100 = %v, want both", ids(got))
	}
}

func TestUpdateByID_AdvancesUpdatedAt(t *testing.T) {
	s := testStore(t)
	seed(t, s, "a", "1", models.StatusGenerating, 100)

	got, err := s.UpdateByID("a", map[string]any{"status": models.StatusCompleted})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got == nil || got.Status != models.StatusCompleted {
		t.Fatalf("update result = %+v", got)
	}
	if got.UpdatedAt <= 100 {
		t.Errorf("updated_at = %d, want advanced past 100", got.UpdatedAt)
	}
}

func TestUpdateByID_Missing(t *testing.T) {
	s := testStore(t)
	got, err := s.UpdateByID("nope", map[string]any{"status": models.StatusFailed})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got != nil {
		t.Errorf("update missing = %+v, want nil", got)
	}
}

func TestUpdateByScope(t *testing.T) {
	s := testStore(t)
	seed(t, s, "a", "1", models.StatusGenerating, 100)
	seed(t, s, "b", "1", models.StatusFailed, 150)
	seed(t, s, "c", "2", models.StatusGenerating, 200)

	n, err := s.UpdateByScope("1", map[string]any{"persona_id": "visionary"})
	if err != nil {
		t.Fatalf("update scope: %v", err)
	}
	if n != 2 {
		t.Errorf("rows affected = %d, want 2", n)
	}
	other, _ := s.Get("c")
	if other.PersonaID != "" {
		t.Errorf("other table touched: %+v", other)
	}
}

func TestLockedFor(t *testing.T) {
	s := testStore(t)
	seed(t, s, "a", "1", models.StatusCompleted, 100)

	got, err := s.LockedFor("1")
	if err != nil {
		t.Fatalf("locked for: %v", err)
	}
	if got != nil {
		t.Errorf("locked for unlocked table = %+v, want nil", got)
	}

	seed(t, s, "b", "1", models.StatusLocked, 200)
	got, err = s.LockedFor("1")
	if err != nil {
		t.Fatalf("locked for: %v", err)
	}
	if got == nil || got.ID != "b" {
		t.Errorf("locked for = %+v, want b", got)
	}
}

func TestLatestFor(t *testing.T) {
	s := testStore(t)
	seed(t, s, "a", "1", models.StatusFailed, 100)
	seed(t, s, "b", "1", models.StatusCompleted, 300)
	seed(t, s, "c", "1", models.StatusGenerating, 200)

	got, err := s.LatestFor("1")
	if err != nil {
		t.Fatalf("latest for: %v", err)
	}
	if got == nil || got.ID != "b" {
		t.Errorf("latest = %+v, want b", got)
	}

	got, err = s.LatestFor("9")
	if err != nil {
		t.Fatalf("latest for: %v", err)
	}
	if got != nil {
		t.Errorf("latest for empty table = %+v, want nil", got)
	}
}

func TestDeleteAll(t *testing.T) {
	s := testStore(t)
	seed(t, s, "a", "1", models.StatusCompleted, 100)
	seed(t, s, "b", "2", models.StatusCompleted, 200)
	seed(t, s, "c", "2", models.StatusLocked, 300)

	n, err := s.DeleteAll("2")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}

	n, err = s.DeleteAll("")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}

	rest, _ := s.SelectAll("")
	if len(rest) != 0 {
		t.Errorf("remaining = %v, want none", ids(rest))
	}
}

func TestSweepStale(t *testing.T) {
	s := testStore(t)
	old := time.Now().Add(-10 * time.Minute).UnixMilli()
	seed(t, s, "a", "1", models.StatusGenerating, old)
	seed(t, s, "b", "2", models.StatusCompleted, old)
	seed(t, s, "c", "3", models.StatusGenerating, time.Now().UnixMilli())

	n, err := s.SweepStale(2 * time.Minute)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("swept = %d, want 1", n)
	}

	swept, _ := s.Get("a")
	if swept.Status != models.StatusFailed || swept.ErrorMessage == "" {
		t.Errorf("swept row = %+v, want failed with message", swept)
	}
	if swept.UpdatedAt <= old {
		t.Errorf("sweep did not advance updated_at: %d", swept.UpdatedAt)
	}
	untouched, _ := s.Get("b")
	if untouched.Status != models.StatusCompleted {
		t.Errorf("completed row swept: %+v", untouched)
	}
	fresh, _ := s.Get("c")
	if fresh.Status != models.StatusGenerating {
		t.Errorf("fresh row swept: %+v", fresh)
	}
}

func TestTransaction_RollsBack(t *testing.T) {
	s := testStore(t)
	boom := errors.New("boom")

	err := s.Transaction(func(tx *Store) error {
		table := "1"
		if err := tx.Insert(&models.Image{ID: "a", TableID: &table}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("transaction error = %v, want boom", err)
	}

	got, _ := s.Get("a")
	if got != nil {
		t.Errorf("row survived rollback: %+v", got)
	}
}

func ids(images []models.Image) []string {
	out := make([]string, len(images))
	for i, img := range images {
		out[i] = img.ID
	}
	return out
}
