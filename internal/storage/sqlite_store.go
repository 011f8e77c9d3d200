package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// SqliteStore implements Store on a single SQLite database file. Writes go
// through a WAL connection, reads through a separate read-only connection.
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store for the database at dbPath. The file and
// schema are created lazily on first use; call Init to force creation up
// front.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

// Init opens the write connection and applies the schema.
func (s *SqliteStore) Init() error {
	_, err := s.getWriteDB()
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if _, err = db.Exec(schemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro&_journal_mode=WAL"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateFlightLog(ctx context.Context, log *FlightLog, tagNames []string) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	now := time.Now().UTC()
	if log.CreatedAt.IsZero() {
		log.CreatedAt = now
	}
	if log.UpdatedAt.IsZero() {
		log.UpdatedAt = now
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	_, err = tx.ExecContext(ctx, insertFlightLogSQL,
		log.ID,
		log.Title,
		log.Pilot,
		nullString(log.SerialNumber),
		nullString(log.LogIdentifier),
		log.DroneModel,
		nullFloat(log.DurationSeconds),
		log.FilePath,
		nullString(log.Comment),
		nullFloat(log.TakeoffLat),
		nullFloat(log.TakeoffLon),
		nullTime(log.FlightDate),
		encodeModes(log.FlightModes),
		log.CreatedAt,
		log.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting flight log: %w", err)
	}

	tags, err := linkTags(ctx, tx, log.ID, tagNames)
	if err != nil {
		return err
	}
	log.Tags = tags

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// linkTags resolves each name to a tag row, creating missing ones, and links
// them to the log. Names are lowercased; blanks are dropped.
func linkTags(ctx context.Context, tx *sql.Tx, logID string, names []string) ([]Tag, error) {
	tags := []Tag{}
	seen := make(map[string]struct{})
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		var tag Tag
		err := tx.QueryRowContext(ctx, selectTagSQL, name).Scan(&tag.ID, &tag.Name)
		if errors.Is(err, sql.ErrNoRows) {
			result, insErr := tx.ExecContext(ctx, insertTagSQL, name)
			if insErr != nil {
				return nil, fmt.Errorf("inserting tag %q: %w", name, insErr)
			}
			tag.Name = name
			if tag.ID, insErr = result.LastInsertId(); insErr != nil {
				return nil, fmt.Errorf("getting tag ID: %w", insErr)
			}
		} else if err != nil {
			return nil, fmt.Errorf("selecting tag %q: %w", name, err)
		}

		if _, err = tx.ExecContext(ctx, insertFlightLogTagSQL, logID, tag.ID); err != nil {
			return nil, fmt.Errorf("linking tag %q: %w", name, err)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func scanFlightLog(row interface{ Scan(...any) error }) (*FlightLog, error) {
	var (
		log      FlightLog
		serial   sql.NullString
		ident    sql.NullString
		duration sql.NullFloat64
		comment  sql.NullString
		lat      sql.NullFloat64
		lon      sql.NullFloat64
		date     sql.NullTime
		modes    string
	)
	err := row.Scan(
		&log.ID,
		&log.Title,
		&log.Pilot,
		&serial,
		&ident,
		&log.DroneModel,
		&duration,
		&log.FilePath,
		&comment,
		&lat,
		&lon,
		&date,
		&modes,
		&log.CreatedAt,
		&log.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	log.SerialNumber = stringPtr(serial)
	log.LogIdentifier = stringPtr(ident)
	log.DurationSeconds = floatPtr(duration)
	log.Comment = stringPtr(comment)
	log.TakeoffLat = floatPtr(lat)
	log.TakeoffLon = floatPtr(lon)
	log.FlightDate = timePtr(date)
	log.FlightModes = decodeModes(modes)
	log.Tags = []Tag{}
	log.Attachments = []Attachment{}
	return &log, nil
}

func (s *SqliteStore) FlightLog(ctx context.Context, id string) (*FlightLog, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	log, err := scanFlightLog(db.QueryRowContext(ctx, selectFlightLogSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning flight log: %w", err)
	}

	if err = s.loadRelations(ctx, db, log); err != nil {
		return nil, err
	}
	return log, nil
}

func (s *SqliteStore) loadRelations(ctx context.Context, db *sql.DB, log *FlightLog) (err error) {
	rows, err := db.QueryContext(ctx, selectLogTagsSQL, log.ID)
	if err != nil {
		return fmt.Errorf("querying tags: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var tag Tag
		if err = rows.Scan(&tag.ID, &tag.Name); err != nil {
			return fmt.Errorf("scanning tag: %w", err)
		}
		log.Tags = append(log.Tags, tag)
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("iterating tags: %w", err)
	}

	atts, err := s.attachments(ctx, db, log.ID)
	if err != nil {
		return err
	}
	log.Attachments = atts
	return nil
}

// listQuery builds the WHERE clause shared by the count and page queries.
func listQuery(filter ListFilter) (where string, args []any) {
	var clauses []string

	if filter.Search != "" {
		term := "%" + strings.ToLower(filter.Search) + "%"
		clauses = append(clauses, `(LOWER(title) LIKE ? OR LOWER(pilot) LIKE ? OR LOWER(COALESCE(comment, '')) LIKE ? OR LOWER(COALESCE(serial_number, '')) LIKE ?)`)
		args = append(args, term, term, term, term)
	}

	if len(filter.DroneModels) > 0 {
		ph := make([]string, 0, len(filter.DroneModels))
		for _, m := range filter.DroneModels {
			ph = append(ph, "?")
			args = append(args, m)
		}
		clauses = append(clauses, "drone_model IN ("+strings.Join(ph, ", ")+")")
	}

	if filter.Pilot != "" {
		clauses = append(clauses, "pilot = ?")
		args = append(args, filter.Pilot)
	}

	// AND semantics: the log must carry every requested tag.
	for _, tag := range filter.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		clauses = append(clauses, `EXISTS (SELECT 1
FROM flight_log_tags flt
         JOIN tags t ON t.id = flt.tag_id
WHERE
    flt.flight_log_id = flight_logs.id
    AND t.name = ?)`)
		args = append(args, tag)
	}

	if filter.DateFrom != nil {
		clauses = append(clauses, "flight_date >= ?")
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		clauses = append(clauses, "flight_date <= ?")
		args = append(args, *filter.DateTo)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "\nWHERE\n    " + strings.Join(clauses, "\n    AND "), args
}

func (s *SqliteStore) ListFlightLogs(ctx context.Context, filter ListFilter) (page *Page, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 {
		filter.PerPage = 25
	}

	where, args := listQuery(filter)

	var total int
	if err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM flight_logs"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting flight logs: %w", err)
	}

	query := "SELECT" + flightLogColumns + "\nFROM flight_logs" + where +
		"\nORDER BY flight_date DESC, created_at DESC\nLIMIT ? OFFSET ?"
	pageArgs := append(append([]any{}, args...), filter.PerPage, (filter.Page-1)*filter.PerPage)

	rows, err := db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("querying flight logs: %w", err)
	}
	defer closeWithError(rows, &err)

	items := []*FlightLog{}
	for rows.Next() {
		log, scanErr := scanFlightLog(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning flight log: %w", scanErr)
		}
		items = append(items, log)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating flight logs: %w", err)
	}

	for _, log := range items {
		if err = s.loadRelations(ctx, db, log); err != nil {
			return nil, err
		}
	}

	totalPages := (total + filter.PerPage - 1) / filter.PerPage
	if totalPages < 1 {
		totalPages = 1
	}
	return &Page{
		Items:      items,
		Total:      total,
		Page:       filter.Page,
		PerPage:    filter.PerPage,
		TotalPages: totalPages,
	}, nil
}

func (s *SqliteStore) UpdateFlightLog(ctx context.Context, id string, upd FlightLogUpdate) (log *FlightLog, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return nil, fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	var sets []string
	var args []any
	apply := func(column string, value *string) {
		if value != nil {
			sets = append(sets, column+" = ?")
			args = append(args, *value)
		}
	}
	apply("title", upd.Title)
	apply("pilot", upd.Pilot)
	apply("drone_model", upd.DroneModel)
	apply("comment", upd.Comment)

	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC())
	args = append(args, id)

	result, err := tx.ExecContext(ctx, "UPDATE flight_logs SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("updating flight log: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("getting affected rows: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}

	if upd.HasTags {
		if _, err = tx.ExecContext(ctx, deleteFlightLogTagsSQL, id); err != nil {
			return nil, fmt.Errorf("clearing tags: %w", err)
		}
		if _, err = linkTags(ctx, tx, id, upd.Tags); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return s.FlightLog(ctx, id)
}

func (s *SqliteStore) DeleteFlightLog(ctx context.Context, id string) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	result, err := db.ExecContext(ctx, deleteFlightLogSQL, id)
	if err != nil {
		return fmt.Errorf("deleting flight log: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SqliteStore) Tags(ctx context.Context, search string) (tags []Tag, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	query := "SELECT id, name FROM tags"
	var args []any
	if search != "" {
		query += " WHERE name LIKE ?"
		args = append(args, "%"+strings.ToLower(search)+"%")
	}
	query += " ORDER BY name"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tags: %w", err)
	}
	defer closeWithError(rows, &err)

	tags = []Tag{}
	for rows.Next() {
		var tag Tag
		if err = rows.Scan(&tag.ID, &tag.Name); err != nil {
			return nil, fmt.Errorf("scanning tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tags: %w", err)
	}
	return tags, nil
}

func (s *SqliteStore) CreateTag(ctx context.Context, name string) (Tag, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Tag{}, fmt.Errorf("tag name is empty")
	}

	db, err := s.getWriteDB()
	if err != nil {
		return Tag{}, fmt.Errorf("getting write connection: %w", err)
	}

	var tag Tag
	err = db.QueryRowContext(ctx, selectTagSQL, name).Scan(&tag.ID, &tag.Name)
	if err == nil {
		return tag, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Tag{}, fmt.Errorf("selecting tag: %w", err)
	}

	result, err := db.ExecContext(ctx, insertTagSQL, name)
	if err != nil {
		return Tag{}, fmt.Errorf("inserting tag: %w", err)
	}
	tag.Name = name
	if tag.ID, err = result.LastInsertId(); err != nil {
		return Tag{}, fmt.Errorf("getting tag ID: %w", err)
	}
	return tag, nil
}

func (s *SqliteStore) Stats(ctx context.Context) (stats Stats, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return stats, fmt.Errorf("getting read connection: %w", err)
	}

	var totalSeconds float64
	if err = db.QueryRowContext(ctx, selectStatsSQL).Scan(&stats.TotalFlights, &totalSeconds); err != nil {
		return stats, fmt.Errorf("scanning totals: %w", err)
	}
	stats.TotalHours = totalSeconds / 3600

	rows, err := db.QueryContext(ctx, selectHoursByModelSQL)
	if err != nil {
		return stats, fmt.Errorf("querying hours by model: %w", err)
	}
	defer closeWithError(rows, &err)

	stats.HoursByModel = make(map[string]float64)
	for rows.Next() {
		var model string
		var seconds float64
		if err = rows.Scan(&model, &seconds); err != nil {
			return stats, fmt.Errorf("scanning model hours: %w", err)
		}
		stats.HoursByModel[model] = seconds / 3600
	}
	if err = rows.Err(); err != nil {
		return stats, fmt.Errorf("iterating model hours: %w", err)
	}
	return stats, nil
}

func (s *SqliteStore) Pilots(ctx context.Context) (pilots []string, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectPilotsSQL)
	if err != nil {
		return nil, fmt.Errorf("querying pilots: %w", err)
	}
	defer closeWithError(rows, &err)

	pilots = []string{}
	for rows.Next() {
		var pilot string
		if err = rows.Scan(&pilot); err != nil {
			return nil, fmt.Errorf("scanning pilot: %w", err)
		}
		pilots = append(pilots, pilot)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pilots: %w", err)
	}
	return pilots, nil
}

func (s *SqliteStore) CheckDuplicates(ctx context.Context, items []Duplicate) (results []Duplicate, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, selectDuplicateSQL)
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	results = make([]Duplicate, 0, len(items))
	for _, item := range items {
		result := Duplicate{
			SerialNumber:  item.SerialNumber,
			LogIdentifier: item.LogIdentifier,
		}
		var id string
		scanErr := stmt.QueryRowContext(ctx, item.SerialNumber, item.LogIdentifier).Scan(&id)
		switch {
		case scanErr == nil:
			result.Exists = true
			result.ExistingLogID = &id
		case errors.Is(scanErr, sql.ErrNoRows):
			// Not a duplicate.
		default:
			return nil, fmt.Errorf("checking duplicate: %w", scanErr)
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *SqliteStore) CreateAttachment(ctx context.Context, att *Attachment) error {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	if att.CreatedAt.IsZero() {
		att.CreatedAt = time.Now().UTC()
	}

	_, err = db.ExecContext(ctx, insertAttachmentSQL,
		att.ID,
		att.FlightLogID,
		att.Filename,
		att.FilePath,
		att.FileSize,
		att.ContentType,
		att.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting attachment: %w", err)
	}
	return nil
}

func (s *SqliteStore) Attachments(ctx context.Context, logID string) ([]Attachment, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return s.attachments(ctx, db, logID)
}

func (s *SqliteStore) attachments(ctx context.Context, db *sql.DB, logID string) (atts []Attachment, err error) {
	rows, err := db.QueryContext(ctx, selectAttachmentsSQL, logID)
	if err != nil {
		return nil, fmt.Errorf("querying attachments: %w", err)
	}
	defer closeWithError(rows, &err)

	atts = []Attachment{}
	for rows.Next() {
		var att Attachment
		if err = rows.Scan(&att.ID, &att.FlightLogID, &att.Filename, &att.FilePath, &att.FileSize, &att.ContentType, &att.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning attachment: %w", err)
		}
		atts = append(atts, att)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating attachments: %w", err)
	}
	return atts, nil
}

func (s *SqliteStore) Attachment(ctx context.Context, logID, attachmentID string) (*Attachment, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	var att Attachment
	err = db.QueryRowContext(ctx, selectAttachmentSQL, attachmentID, logID).
		Scan(&att.ID, &att.FlightLogID, &att.Filename, &att.FilePath, &att.FileSize, &att.ContentType, &att.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning attachment: %w", err)
	}
	return &att, nil
}

func (s *SqliteStore) DeleteAttachment(ctx context.Context, logID, attachmentID string) error {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	result, err := db.ExecContext(ctx, deleteAttachmentSQL, attachmentID, logID)
	if err != nil {
		return fmt.Errorf("deleting attachment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}
		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		switch {
		case writeErr != nil && readErr != nil:
			s.closeErr = errors.Join(writeErr, readErr)
		case writeErr != nil:
			s.closeErr = writeErr
		case readErr != nil:
			s.closeErr = readErr
		}
	})

	return s.closeErr
}
