package repository

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"readings-server/internal/modules/readings/types"
)

//go:embed sql/insert-reading.sql
var insertReadingSQL string

//go:embed sql/get-recent-readings.sql
var getRecentReadingsSQL string

//go:embed sql/get-latest-reading.sql
var getLatestReadingSQL string

// RecentLimit caps how many readings GetRecentReadings returns.
const RecentLimit = 100

// TimestampLayout is fixed-width so lexical order in SQLite equals time order.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// legacyTimestampLayout is what SQLite's CURRENT_TIMESTAMP produces.
const legacyTimestampLayout = "2006-01-02 15:04:05"

type ReadingsRepository interface {
	InsertReading(in types.NewReading) (types.Reading, error)
	GetRecentReadings(limit int) ([]types.Reading, error)
	GetLatestReading() (*types.Reading, error)
}

type repositoryImpl struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) ReadingsRepository {
	return &repositoryImpl{db: db, now: time.Now}
}

// InsertReading validates in, writes it with a single statement and echoes the
// stored row back with its generated id.
func (r *repositoryImpl) InsertReading(in types.NewReading) (types.Reading, error) {
	if err := in.Validate(); err != nil {
		return types.Reading{}, err
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}
	ts = ts.UTC().Truncate(time.Millisecond)

	var tempVal any
	if in.Temperature != nil {
		tempVal = *in.Temperature
	}

	res, err := r.db.Exec(insertReadingSQL, *in.DeviceID, *in.Humidity, tempVal, ts.Format(TimestampLayout))
	if err != nil {
		return types.Reading{}, &types.StorageError{Op: "insert", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return types.Reading{}, &types.StorageError{Op: "insert", Err: fmt.Errorf("last insert id: %w", err)}
	}

	return types.Reading{
		ID:          id,
		DeviceID:    *in.DeviceID,
		Humidity:    *in.Humidity,
		Temperature: in.Temperature,
		Timestamp:   ts,
	}, nil
}

func (r *repositoryImpl) GetRecentReadings(limit int) ([]types.Reading, error) {
	if limit <= 0 || limit > RecentLimit {
		limit = RecentLimit
	}
	rows, err := r.db.Query(getRecentReadingsSQL, limit)
	if err != nil {
		return nil, &types.StorageError{Op: "select recent", Err: err}
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close recent readings rows", "error", err)
		}
	}()

	out := make([]types.Reading, 0, limit)
	for rows.Next() {
		rec, err := scanReading(rows)
		if err != nil {
			return nil, &types.StorageError{Op: "select recent", Err: err}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.StorageError{Op: "select recent", Err: err}
	}
	return out, nil
}

// GetLatestReading returns nil without error when no readings exist.
func (r *repositoryImpl) GetLatestReading() (*types.Reading, error) {
	rec, err := scanReading(r.db.QueryRow(getLatestReadingSQL))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &types.StorageError{Op: "select latest", Err: err}
	}
	return &rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReading(row rowScanner) (types.Reading, error) {
	var (
		rec  types.Reading
		temp sql.NullFloat64
		ts   string
	)
	if err := row.Scan(&rec.ID, &rec.DeviceID, &rec.Humidity, &temp, &ts); err != nil {
		return types.Reading{}, err
	}
	if temp.Valid {
		v := temp.Float64
		rec.Temperature = &v
	}
	t, err := parseTimestamp(ts)
	if err != nil {
		return types.Reading{}, err
	}
	rec.Timestamp = t
	return rec, nil
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err == nil {
		return t.UTC(), nil
	}
	t, err2 := time.ParseInLocation(legacyTimestampLayout, s, time.UTC)
	if err2 != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: RFC3339Nano: %w; legacy: %w", s, err, err2)
	}
	return t, nil
}
