package repository

import (
	"database/sql"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"readings-server/internal/config"
	"readings-server/internal/db"
	"readings-server/internal/modules/readings/types"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Every pooled connection to :memory: is a separate database.
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if err := conn.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})
	if err := db.Migrate(conn, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func ptr[T any](v T) *T { return &v }

// newTestRepository returns a repository whose clock advances 1s per insert.
func newTestRepository(conn *sql.DB, start time.Time) *repositoryImpl {
	next := start
	return &repositoryImpl{db: conn, now: func() time.Time {
		cur := next
		next = next.Add(time.Second)
		return cur
	}}
}

func TestNewRepository(t *testing.T) {
	if repo := NewRepository(setupTestDB(t)); repo == nil {
		t.Fatal("NewRepository returned nil")
	}
}

func TestInsertReading_EchoesInputWithGeneratedID(t *testing.T) {
	conn := setupTestDB(t)
	start := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	repo := newTestRepository(conn, start)

	got, err := repo.InsertReading(types.NewReading{DeviceID: ptr("dev1"), Humidity: ptr(55.2)})
	if err != nil {
		t.Fatalf("InsertReading: %v", err)
	}
	if got.ID != 1 {
		t.Errorf("ID = %d; want 1", got.ID)
	}
	if got.DeviceID != "dev1" || got.Humidity != 55.2 {
		t.Errorf("got %+v; want dev1/55.2", got)
	}
	if got.Temperature != nil {
		t.Errorf("Temperature = %v; want nil", *got.Temperature)
	}
	if !got.Timestamp.Equal(start) {
		t.Errorf("Timestamp = %v; want %v", got.Timestamp, start)
	}

	var stored string
	var temp sql.NullFloat64
	if err := conn.QueryRow(`SELECT timestamp, temperature FROM readings WHERE id = 1`).Scan(&stored, &temp); err != nil {
		t.Fatalf("select: %v", err)
	}
	if stored != "2025-02-01T12:00:00.000Z" {
		t.Errorf("stored timestamp = %q", stored)
	}
	if temp.Valid {
		t.Errorf("stored temperature = %v; want NULL", temp.Float64)
	}
}

func TestInsertReading_IDsStrictlyIncrease(t *testing.T) {
	repo := newTestRepository(setupTestDB(t), time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))

	var last int64
	for i := 0; i < 5; i++ {
		got, err := repo.InsertReading(types.NewReading{DeviceID: ptr("dev"), Humidity: ptr(float64(i))})
		if err != nil {
			t.Fatalf("InsertReading %d: %v", i, err)
		}
		if got.ID <= last {
			t.Fatalf("id %d not greater than previous %d", got.ID, last)
		}
		last = got.ID
	}
}

func TestInsertReading_ZeroTemperatureKept(t *testing.T) {
	repo := newTestRepository(setupTestDB(t), time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))

	if _, err := repo.InsertReading(types.NewReading{DeviceID: ptr("dev"), Humidity: ptr(40.0), Temperature: ptr(0.0)}); err != nil {
		t.Fatalf("InsertReading: %v", err)
	}
	latest, err := repo.GetLatestReading()
	if err != nil {
		t.Fatalf("GetLatestReading: %v", err)
	}
	if latest == nil || latest.Temperature == nil || *latest.Temperature != 0 {
		t.Fatalf("latest = %+v; want temperature 0", latest)
	}
}

func TestInsertReading_UsesSuppliedTimestamp(t *testing.T) {
	repo := newTestRepository(setupTestDB(t), time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	supplied := time.Date(2025, 6, 1, 8, 30, 0, 123456789, time.FixedZone("CEST", 2*3600))

	got, err := repo.InsertReading(types.NewReading{DeviceID: ptr("dev"), Humidity: ptr(40.0), Timestamp: supplied})
	if err != nil {
		t.Fatalf("InsertReading: %v", err)
	}
	want := time.Date(2025, 6, 1, 6, 30, 0, 123000000, time.UTC)
	if !got.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v; want %v", got.Timestamp, want)
	}
}

func TestInsertReading_ValidationLeavesNoRow(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewRepository(conn)

	for _, in := range []types.NewReading{
		{Humidity: ptr(10.0)},
		{DeviceID: ptr("dev1")},
	} {
		_, err := repo.InsertReading(in)
		var vErr *types.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("InsertReading(%+v) err = %v; want *ValidationError", in, err)
		}
	}
	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM readings`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("rows = %d; want 0", n)
	}
}

func TestInsertReading_StorageError(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewRepository(conn)
	if _, err := conn.Exec(`DROP TABLE readings`); err != nil {
		t.Fatalf("drop: %v", err)
	}

	_, err := repo.InsertReading(types.NewReading{DeviceID: ptr("dev1"), Humidity: ptr(1.0)})
	var sErr *types.StorageError
	if !errors.As(err, &sErr) {
		t.Fatalf("err = %v; want *StorageError", err)
	}
	if sErr.Op != "insert" {
		t.Errorf("Op = %q; want insert", sErr.Op)
	}
}

func TestGetRecentReadings_Empty(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	readings, err := repo.GetRecentReadings(RecentLimit)
	if err != nil {
		t.Fatalf("GetRecentReadings: %v", err)
	}
	if readings == nil || len(readings) != 0 {
		t.Fatalf("GetRecentReadings = %#v; want empty non-nil slice", readings)
	}
}

func TestGetRecentReadings_NewestFirst(t *testing.T) {
	repo := newTestRepository(setupTestDB(t), time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC))
	for _, h := range []float64{10, 11.5, 12} {
		if _, err := repo.InsertReading(types.NewReading{DeviceID: ptr("dev"), Humidity: ptr(h)}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	readings, err := repo.GetRecentReadings(RecentLimit)
	if err != nil {
		t.Fatalf("GetRecentReadings: %v", err)
	}
	if len(readings) != 3 {
		t.Fatalf("got %d readings; want 3", len(readings))
	}
	if readings[0].Humidity != 12 || readings[1].Humidity != 11.5 || readings[2].Humidity != 10 {
		t.Errorf("order = %v, %v, %v; want 12, 11.5, 10", readings[0].Humidity, readings[1].Humidity, readings[2].Humidity)
	}
	for i := 1; i < len(readings); i++ {
		if !readings[i-1].Timestamp.After(readings[i].Timestamp) {
			t.Errorf("reading %d timestamp %v not after %v", i-1, readings[i-1].Timestamp, readings[i].Timestamp)
		}
	}
}

func TestGetRecentReadings_CapsAtLimit(t *testing.T) {
	repo := newTestRepository(setupTestDB(t), time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	for i := 0; i < RecentLimit+5; i++ {
		if _, err := repo.InsertReading(types.NewReading{DeviceID: ptr("dev"), Humidity: ptr(float64(i))}); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{name: "default", limit: RecentLimit, want: RecentLimit},
		{name: "over cap", limit: 1000, want: RecentLimit},
		{name: "non-positive", limit: 0, want: RecentLimit},
		{name: "smaller window", limit: 3, want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			readings, err := repo.GetRecentReadings(tt.limit)
			if err != nil {
				t.Fatalf("GetRecentReadings: %v", err)
			}
			if len(readings) != tt.want {
				t.Fatalf("len = %d; want %d", len(readings), tt.want)
			}
			if readings[0].Humidity != float64(RecentLimit+4) {
				t.Errorf("first humidity = %v; want newest %d", readings[0].Humidity, RecentLimit+4)
			}
		})
	}
}

func TestGetRecentReadings_SameTimestampOrderedByID(t *testing.T) {
	conn := setupTestDB(t)
	same := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	repo := &repositoryImpl{db: conn, now: func() time.Time { return same }}
	for i := 0; i < 3; i++ {
		if _, err := repo.InsertReading(types.NewReading{DeviceID: ptr("dev"), Humidity: ptr(float64(i))}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	readings, err := repo.GetRecentReadings(RecentLimit)
	if err != nil {
		t.Fatalf("GetRecentReadings: %v", err)
	}
	if readings[0].ID != 3 || readings[2].ID != 1 {
		t.Errorf("ids = %d..%d; want 3..1", readings[0].ID, readings[2].ID)
	}
}

func TestGetLatestReading(t *testing.T) {
	conn := setupTestDB(t)
	repo := newTestRepository(conn, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))

	latest, err := repo.GetLatestReading()
	if err != nil {
		t.Fatalf("GetLatestReading (empty): %v", err)
	}
	if latest != nil {
		t.Fatalf("GetLatestReading (empty) = %+v; want nil", latest)
	}

	for _, d := range []string{"a", "b", "c"} {
		if _, err := repo.InsertReading(types.NewReading{DeviceID: ptr(d), Humidity: ptr(50.0), Temperature: ptr(21.5)}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	latest, err = repo.GetLatestReading()
	if err != nil {
		t.Fatalf("GetLatestReading: %v", err)
	}
	recent, err := repo.GetRecentReadings(RecentLimit)
	if err != nil {
		t.Fatalf("GetRecentReadings: %v", err)
	}
	if latest == nil || latest.DeviceID != "c" {
		t.Fatalf("latest = %+v; want device c", latest)
	}
	if latest.ID != recent[0].ID || !latest.Timestamp.Equal(recent[0].Timestamp) {
		t.Errorf("latest %+v != recent[0] %+v", latest, recent[0])
	}
	if latest.Temperature == nil || *latest.Temperature != 21.5 {
		t.Errorf("Temperature = %v; want 21.5", latest.Temperature)
	}
}

func TestGetLatestReading_LegacyTimestamp(t *testing.T) {
	conn := setupTestDB(t)
	if _, err := conn.Exec(`INSERT INTO readings (deviceId, humidity, timestamp) VALUES ('old', 30, '2024-05-06 07:08:09')`); err != nil {
		t.Fatalf("insert legacy: %v", err)
	}

	latest, err := NewRepository(conn).GetLatestReading()
	if err != nil {
		t.Fatalf("GetLatestReading: %v", err)
	}
	want := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	if latest == nil || !latest.Timestamp.Equal(want) {
		t.Fatalf("latest = %+v; want timestamp %v", latest, want)
	}
}

func TestGetLatestReading_UnparseableTimestamp(t *testing.T) {
	conn := setupTestDB(t)
	if _, err := conn.Exec(`INSERT INTO readings (deviceId, humidity, timestamp) VALUES ('bad', 30, 'yesterday')`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	_, err := NewRepository(conn).GetLatestReading()
	var sErr *types.StorageError
	if !errors.As(err, &sErr) {
		t.Fatalf("err = %v; want *StorageError", err)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "2025-02-01T12:00:00.000Z", want: time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)},
		{in: "2025-02-01T12:00:00.5Z", want: time.Date(2025, 2, 1, 12, 0, 0, 500000000, time.UTC)},
		{in: "2025-02-01T14:00:00+02:00", want: time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)},
		{in: "2025-02-01 12:00:00", want: time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)},
		{in: "not a time", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseTimestamp(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseTimestamp(%q) err = nil; want non-nil", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseTimestamp(%q): %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseTimestamp(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

func TestRepository_ThroughSQLLogConnection(t *testing.T) {
	cfg := config.Config{
		SQLitePath:         filepath.Join(t.TempDir(), "readings.db"),
		SQLiteMaxOpenConns: 1,
		SQLiteMaxIdleConns: 1,
		SQLLog:             true,
	}
	logger := slog.New(slog.DiscardHandler)
	conn, err := db.Open(cfg, logger)
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(conn) })
	if err := db.Migrate(conn, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := newTestRepository(conn, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	for _, d := range []string{"a", "b"} {
		if _, err := repo.InsertReading(types.NewReading{DeviceID: ptr(d), Humidity: ptr(50.0)}); err != nil {
			t.Fatalf("insert %s: %v", d, err)
		}
	}

	readings, err := repo.GetRecentReadings(RecentLimit)
	if err != nil {
		t.Fatalf("GetRecentReadings: %v", err)
	}
	if len(readings) != 2 || readings[0].DeviceID != "b" {
		t.Fatalf("readings = %+v; want b then a", readings)
	}
	latest, err := repo.GetLatestReading()
	if err != nil {
		t.Fatalf("GetLatestReading: %v", err)
	}
	if latest == nil || latest.ID != readings[0].ID {
		t.Errorf("latest = %+v; want id %d", latest, readings[0].ID)
	}

	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_readings_timestamp'`).Scan(&n); err != nil {
		t.Fatalf("count index: %v", err)
	}
	if n != 1 {
		t.Errorf("idx_readings_timestamp present = %d; want 1", n)
	}
}
