/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements engine.TxStore using SQLite. In production, the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  engine.Store:   Properties, bookings, ledger, reviews, wishlist
  engine.TxStore: Store + WithTx

APPEND-ONLY ENFORCEMENT:
  The ledger_entries table is append-only:
  - No UPDATE or DELETE statements are issued against it
  - Triggers abort any UPDATE or DELETE that reaches it anyway
  - Corrections are new entries (refund, adjustment)

KEY TABLES:
  properties:     Homes with cached rating fields
  bookings:       Booking records (nights stored as JSON for reads)
  booking_nights: One row per booked night, used for uniqueness
  ledger_entries: Immutable money movements
  reviews:        One per (booking, actor)
  wishlist_items: One per (actor, property), ordered by priority

INDEXES:
  Critical indexes for correctness:
  - idx_unique_property_night: No night is held twice for a property
  - ledger_entries.idempotency_key UNIQUE: No lifecycle posting twice
  - reviews UNIQUE(booking_id, actor_id): One review per booking per actor

CONCURRENCY:
  The pool is limited to a single connection. Every statement and every
  WithTx unit of work is serialized by database/sql, which also keeps a
  ":memory:" database alive and shared. In production with PostgreSQL,
  database-level concurrency control handles this instead.

USAGE:
  store, err := sqlite.New("./data/stay.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  eng := engine.New(store, engine.DefaultPolicy())

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/stay-engine/engine"
)

// Store implements engine.TxStore using SQLite.
type Store struct {
	db *sql.DB
	ops
}

var _ engine.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{db: db, ops: ops{q: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// DB exposes the handle for maintenance tasks and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
	-- Properties
	CREATE TABLE IF NOT EXISTS properties (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		province TEXT NOT NULL,
		district TEXT NOT NULL,
		city TEXT NOT NULL,
		address TEXT NOT NULL,
		latitude REAL NOT NULL DEFAULT 0,
		longitude REAL NOT NULL DEFAULT 0,
		price TEXT NOT NULL,
		currency TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		status_reason TEXT,
		bedrooms INTEGER NOT NULL DEFAULT 0,
		bathrooms INTEGER NOT NULL DEFAULT 0,
		features_json TEXT,
		images_json TEXT,
		average_rating REAL NOT NULL DEFAULT 0,
		reviews_count INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_properties_owner
		ON properties(owner_id);

	-- Bookings
	CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		property_id TEXT NOT NULL REFERENCES properties(id),
		actor_id TEXT NOT NULL,
		guest_name TEXT NOT NULL,
		guest_phone TEXT NOT NULL,
		guest_id_card TEXT NOT NULL,
		nights_json TEXT NOT NULL,
		check_in TEXT NOT NULL,
		check_out TEXT NOT NULL,
		total_price TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		refund_reason TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bookings_property
		ON bookings(property_id);

	-- One row per booked night. active = 0 once the booking is cancelled.
	CREATE TABLE IF NOT EXISTS booking_nights (
		booking_id TEXT NOT NULL REFERENCES bookings(id),
		property_id TEXT NOT NULL,
		night TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (booking_id, night)
	);

	-- CRITICAL: A night can be held by at most one non-cancelled booking
	-- of a property. Closes the check-then-insert race at the storage level.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_property_night
		ON booking_nights(property_id, night)
		WHERE active = 1;

	-- Ledger (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		booking_id TEXT NOT NULL,
		owner_id TEXT,
		entry_type TEXT NOT NULL,
		debit TEXT NOT NULL,
		credit TEXT NOT NULL,
		account_from TEXT NOT NULL,
		account_to TEXT NOT NULL,
		currency TEXT NOT NULL,
		note TEXT,
		idempotency_key TEXT UNIQUE,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_booking
		ON ledger_entries(booking_id);
	CREATE INDEX IF NOT EXISTS idx_ledger_type_owner
		ON ledger_entries(entry_type, owner_id);

	CREATE TRIGGER IF NOT EXISTS ledger_entries_no_update
		BEFORE UPDATE ON ledger_entries
		BEGIN SELECT RAISE(ABORT, 'ledger entries are append-only'); END;
	CREATE TRIGGER IF NOT EXISTS ledger_entries_no_delete
		BEFORE DELETE ON ledger_entries
		BEGIN SELECT RAISE(ABORT, 'ledger entries are append-only'); END;

	-- Reviews
	CREATE TABLE IF NOT EXISTS reviews (
		id TEXT PRIMARY KEY,
		booking_id TEXT NOT NULL REFERENCES bookings(id),
		actor_id TEXT NOT NULL,
		rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
		comment TEXT,
		created_at TEXT NOT NULL,
		UNIQUE (booking_id, actor_id)
	);

	-- Wishlist
	CREATE TABLE IF NOT EXISTS wishlist_items (
		actor_id TEXT NOT NULL,
		property_id TEXT NOT NULL REFERENCES properties(id),
		priority INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (actor_id, property_id)
	);

	CREATE INDEX IF NOT EXISTS idx_wishlist_actor_priority
		ON wishlist_items(actor_id, priority);
	`

// migrate creates the database schema.
func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

// Reset drops all data and recreates the schema. Used by the scenario loader.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DROP TABLE IF EXISTS wishlist_items;
		DROP TABLE IF EXISTS reviews;
		DROP TABLE IF EXISTS ledger_entries;
		DROP TABLE IF EXISTS booking_nights;
		DROP TABLE IF EXISTS bookings;
		DROP TABLE IF EXISTS properties;
	`)
	if err != nil {
		return fmt.Errorf("failed to reset database: %w", err)
	}
	return s.migrate()
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store engine.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(ops{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// InsertBooking and AppendEntries write several rows; outside WithTx they
// get a transaction of their own so a rejected call leaves nothing behind.

func (s *Store) InsertBooking(ctx context.Context, b engine.Booking) error {
	return s.WithTx(ctx, func(tx engine.Store) error { return tx.InsertBooking(ctx, b) })
}

func (s *Store) AppendEntries(ctx context.Context, entries []engine.LedgerEntry) error {
	return s.WithTx(ctx, func(tx engine.Store) error { return tx.AppendEntries(ctx, entries) })
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ops implements engine.Store over a querier, so the same code serves
// auto-commit calls and calls inside WithTx.
type ops struct {
	q querier
}

// =============================================================================
// PROPERTIES
// =============================================================================

const propertyColumns = `id, title, description, province, district, city, address, latitude, longitude,
	price, currency, owner_id, status, status_reason, bedrooms, bathrooms, features_json, images_json,
	average_rating, reviews_count, created_at, updated_at`

func (o ops) GetProperty(ctx context.Context, id engine.PropertyID) (*engine.Property, error) {
	props, err := o.queryProperties(ctx, `SELECT `+propertyColumns+` FROM properties WHERE id = ?`, id)
	if err != nil || len(props) == 0 {
		return nil, err
	}
	return &props[0], nil
}

func (o ops) SaveProperty(ctx context.Context, p engine.Property) error {
	features, _ := json.Marshal(p.Features)
	images, _ := json.Marshal(p.Images)

	query := `
		INSERT INTO properties (` + propertyColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			province = excluded.province,
			district = excluded.district,
			city = excluded.city,
			address = excluded.address,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			price = excluded.price,
			currency = excluded.currency,
			owner_id = excluded.owner_id,
			status = excluded.status,
			status_reason = excluded.status_reason,
			bedrooms = excluded.bedrooms,
			bathrooms = excluded.bathrooms,
			features_json = excluded.features_json,
			images_json = excluded.images_json,
			average_rating = excluded.average_rating,
			reviews_count = excluded.reviews_count,
			updated_at = excluded.updated_at
	`
	_, err := o.q.ExecContext(ctx, query,
		p.ID, p.Title, p.Description,
		p.Location.Province, p.Location.District, p.Location.City, p.Location.Address,
		p.Location.Latitude, p.Location.Longitude,
		p.Price.Value.String(), p.Price.Currency,
		p.OwnerID, p.Status, nullString(p.StatusReason),
		p.Bedrooms, p.Bathrooms, string(features), string(images),
		p.AverageRating, p.ReviewsCount,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save property: %w", err)
	}
	return nil
}

func (o ops) ListProperties(ctx context.Context) ([]engine.Property, error) {
	return o.queryProperties(ctx, `SELECT `+propertyColumns+` FROM properties ORDER BY created_at, rowid`)
}

func (o ops) ListPropertiesByOwner(ctx context.Context, owner engine.ActorID) ([]engine.Property, error) {
	return o.queryProperties(ctx, `SELECT `+propertyColumns+` FROM properties WHERE owner_id = ? ORDER BY created_at, rowid`, owner)
}

func (o ops) UpdatePropertyRating(ctx context.Context, id engine.PropertyID, average float64, count int, at time.Time) error {
	_, err := o.q.ExecContext(ctx,
		`UPDATE properties SET average_rating = ?, reviews_count = ?, updated_at = ? WHERE id = ?`,
		average, count, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to update rating: %w", err)
	}
	return nil
}

func (o ops) queryProperties(ctx context.Context, query string, args ...any) ([]engine.Property, error) {
	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query properties: %w", err)
	}
	defer rows.Close()

	var props []engine.Property
	for rows.Next() {
		var (
			p                    engine.Property
			description, reason  sql.NullString
			features, images     sql.NullString
			price, currency      string
			createdAt, updatedAt string
		)
		if err := rows.Scan(
			&p.ID, &p.Title, &description,
			&p.Location.Province, &p.Location.District, &p.Location.City, &p.Location.Address,
			&p.Location.Latitude, &p.Location.Longitude,
			&price, &currency, &p.OwnerID, &p.Status, &reason,
			&p.Bedrooms, &p.Bathrooms, &features, &images,
			&p.AverageRating, &p.ReviewsCount, &createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		p.Description = description.String
		p.StatusReason = reason.String
		if p.Price, err = parseAmount(price, currency); err != nil {
			return nil, fmt.Errorf("property %s: %w", p.ID, err)
		}
		if features.Valid {
			if err := json.Unmarshal([]byte(features.String), &p.Features); err != nil {
				return nil, fmt.Errorf("property %s: bad features: %w", p.ID, err)
			}
		}
		if images.Valid {
			if err := json.Unmarshal([]byte(images.String), &p.Images); err != nil {
				return nil, fmt.Errorf("property %s: bad images: %w", p.ID, err)
			}
		}
		if p.CreatedAt, p.UpdatedAt, err = parseTimes(createdAt, updatedAt); err != nil {
			return nil, fmt.Errorf("property %s: %w", p.ID, err)
		}
		props = append(props, p)
	}
	return props, rows.Err()
}

// =============================================================================
// BOOKINGS
// =============================================================================

const bookingColumns = `id, property_id, actor_id, guest_name, guest_phone, guest_id_card, nights_json,
	check_in, check_out, total_price, currency, status, refund_reason, created_at, updated_at`

func (o ops) GetBooking(ctx context.Context, id engine.BookingID) (*engine.Booking, error) {
	bookings, err := o.queryBookings(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	if err != nil || len(bookings) == 0 {
		return nil, err
	}
	return &bookings[0], nil
}

// InsertBooking writes the booking and one booking_nights row per night.
// A taken night aborts the whole unit of work.
func (o ops) InsertBooking(ctx context.Context, b engine.Booking) error {
	nights, _ := json.Marshal(engine.NightStrings(b.Nights))

	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := o.q.ExecContext(ctx, query,
		b.ID, b.PropertyID, b.ActorID,
		b.Guest.Name, b.Guest.Phone, b.Guest.IDCard,
		string(nights), b.CheckIn.String(), b.CheckOut.String(),
		b.TotalPrice.Value.String(), b.TotalPrice.Currency,
		b.Status, nullString(b.RefundReason),
		formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	active := 0
	if b.Status.HoldsNights() {
		active = 1
	}
	for _, n := range b.Nights {
		_, err := o.q.ExecContext(ctx,
			`INSERT INTO booking_nights (booking_id, property_id, night, active) VALUES (?, ?, ?, ?)`,
			b.ID, b.PropertyID, n.String(), active)
		if err != nil {
			if isUniqueConstraintError(err) {
				return engine.ErrNightTaken
			}
			return fmt.Errorf("failed to insert booking night: %w", err)
		}
	}
	return nil
}

func (o ops) UpdateBookingStatus(ctx context.Context, id engine.BookingID, status engine.BookingStatus, reason string, at time.Time) error {
	_, err := o.q.ExecContext(ctx,
		`UPDATE bookings SET status = ?, refund_reason = ?, updated_at = ? WHERE id = ?`,
		status, nullString(reason), formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if !status.HoldsNights() {
		if _, err := o.q.ExecContext(ctx, `UPDATE booking_nights SET active = 0 WHERE booking_id = ?`, id); err != nil {
			return fmt.Errorf("failed to release nights: %w", err)
		}
	}
	return nil
}

func (o ops) ListBookings(ctx context.Context) ([]engine.Booking, error) {
	return o.queryBookings(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY created_at, rowid`)
}

func (o ops) ListBookingsByProperty(ctx context.Context, propertyID engine.PropertyID) ([]engine.Booking, error) {
	return o.queryBookings(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE property_id = ? ORDER BY created_at, rowid`, propertyID)
}

func (o ops) HeldNights(ctx context.Context, propertyID engine.PropertyID, nights []engine.Night) ([]engine.Night, error) {
	query := `SELECT night FROM booking_nights WHERE property_id = ? AND active = 1`
	args := []any{propertyID}
	if nights != nil {
		if len(nights) == 0 {
			return nil, nil
		}
		query += ` AND night IN (?` + strings.Repeat(`, ?`, len(nights)-1) + `)`
		for _, n := range nights {
			args = append(args, n.String())
		}
	}
	query += ` ORDER BY night`

	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query held nights: %w", err)
	}
	defer rows.Close()

	var held []engine.Night
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		n, err := engine.ParseNight(s)
		if err != nil {
			return nil, err
		}
		held = append(held, n)
	}
	return held, rows.Err()
}

func (o ops) queryBookings(ctx context.Context, query string, args ...any) ([]engine.Booking, error) {
	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []engine.Booking
	for rows.Next() {
		var (
			b                    engine.Booking
			nightsJSON           string
			checkIn, checkOut    string
			total, currency      string
			reason               sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(
			&b.ID, &b.PropertyID, &b.ActorID,
			&b.Guest.Name, &b.Guest.Phone, &b.Guest.IDCard,
			&nightsJSON, &checkIn, &checkOut, &total, &currency,
			&b.Status, &reason, &createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}

		var nights []string
		if err := json.Unmarshal([]byte(nightsJSON), &nights); err != nil {
			return nil, fmt.Errorf("booking %s: bad nights: %w", b.ID, err)
		}
		for _, s := range nights {
			n, err := engine.ParseNight(s)
			if err != nil {
				return nil, fmt.Errorf("booking %s: %w", b.ID, err)
			}
			b.Nights = append(b.Nights, n)
		}
		if b.CheckIn, err = engine.ParseNight(checkIn); err != nil {
			return nil, fmt.Errorf("booking %s: %w", b.ID, err)
		}
		if b.CheckOut, err = engine.ParseNight(checkOut); err != nil {
			return nil, fmt.Errorf("booking %s: %w", b.ID, err)
		}
		if b.TotalPrice, err = parseAmount(total, currency); err != nil {
			return nil, fmt.Errorf("booking %s: %w", b.ID, err)
		}
		b.RefundReason = reason.String
		if b.CreatedAt, b.UpdatedAt, err = parseTimes(createdAt, updatedAt); err != nil {
			return nil, fmt.Errorf("booking %s: %w", b.ID, err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// =============================================================================
// LEDGER (append-only)
// =============================================================================

const entryColumns = `id, booking_id, owner_id, entry_type, debit, credit, account_from, account_to,
	currency, note, idempotency_key, created_by, created_at`

// AppendEntries inserts entries in order.
func (o ops) AppendEntries(ctx context.Context, entries []engine.LedgerEntry) error {
	// Check for duplicate idempotency keys within the batch first
	keys := make(map[string]bool)
	for _, e := range entries {
		if e.IdempotencyKey != "" {
			if keys[e.IdempotencyKey] {
				return engine.ErrDuplicateIdempotencyKey
			}
			keys[e.IdempotencyKey] = true
		}
	}

	query := `INSERT INTO ledger_entries (` + entryColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, e := range entries {
		_, err := o.q.ExecContext(ctx, query,
			e.ID, e.BookingID, nullString(string(e.OwnerID)), e.Type,
			e.Debit.String(), e.Credit.String(),
			e.Accounts.From, e.Accounts.To, e.Currency,
			nullString(e.Note), nullString(e.IdempotencyKey), nullString(string(e.CreatedBy)),
			formatTime(e.CreatedAt),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return engine.ErrDuplicateIdempotencyKey
			}
			return fmt.Errorf("failed to append ledger entry: %w", err)
		}
	}
	return nil
}

func (o ops) Entries(ctx context.Context, f engine.EntryFilter) ([]engine.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE 1 = 1`
	var args []any
	if f.BookingID != "" {
		query += ` AND booking_id = ?`
		args = append(args, f.BookingID)
	}
	if f.OwnerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, f.OwnerID)
	}
	if f.Type != "" {
		query += ` AND entry_type = ?`
		args = append(args, f.Type)
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var entries []engine.LedgerEntry
	for rows.Next() {
		var (
			e                           engine.LedgerEntry
			ownerID, note, key, creator sql.NullString
			debit, credit, createdAt    string
		)
		if err := rows.Scan(
			&e.ID, &e.BookingID, &ownerID, &e.Type, &debit, &credit,
			&e.Accounts.From, &e.Accounts.To, &e.Currency,
			&note, &key, &creator, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.OwnerID = engine.ActorID(ownerID.String)
		if e.Debit, err = parseDecimal(debit); err != nil {
			return nil, fmt.Errorf("ledger entry %s: %w", e.ID, err)
		}
		if e.Credit, err = parseDecimal(credit); err != nil {
			return nil, fmt.Errorf("ledger entry %s: %w", e.ID, err)
		}
		e.Note = note.String
		e.IdempotencyKey = key.String
		e.CreatedBy = engine.ActorID(creator.String)
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("ledger entry %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// REVIEWS
// =============================================================================

func (o ops) GetReview(ctx context.Context, id engine.ReviewID) (*engine.Review, error) {
	reviews, err := o.queryReviews(ctx,
		`SELECT id, booking_id, actor_id, rating, comment, created_at FROM reviews WHERE id = ?`, id)
	if err != nil || len(reviews) == 0 {
		return nil, err
	}
	return &reviews[0], nil
}

func (o ops) FindReview(ctx context.Context, bookingID engine.BookingID, actorID engine.ActorID) (*engine.Review, error) {
	reviews, err := o.queryReviews(ctx,
		`SELECT id, booking_id, actor_id, rating, comment, created_at FROM reviews
		 WHERE booking_id = ? AND actor_id = ?`, bookingID, actorID)
	if err != nil || len(reviews) == 0 {
		return nil, err
	}
	return &reviews[0], nil
}

func (o ops) InsertReview(ctx context.Context, r engine.Review) error {
	_, err := o.q.ExecContext(ctx,
		`INSERT INTO reviews (id, booking_id, actor_id, rating, comment, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.BookingID, r.ActorID, r.Rating, nullString(r.Comment), formatTime(r.CreatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return engine.ErrDuplicateReview
		}
		return fmt.Errorf("failed to insert review: %w", err)
	}
	return nil
}

func (o ops) DeleteReview(ctx context.Context, id engine.ReviewID) error {
	if _, err := o.q.ExecContext(ctx, `DELETE FROM reviews WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete review: %w", err)
	}
	return nil
}

func (o ops) ReviewsByBooking(ctx context.Context, bookingID engine.BookingID) ([]engine.Review, error) {
	return o.queryReviews(ctx,
		`SELECT id, booking_id, actor_id, rating, comment, created_at FROM reviews
		 WHERE booking_id = ? ORDER BY created_at DESC`, bookingID)
}

func (o ops) ReviewsByProperty(ctx context.Context, propertyID engine.PropertyID) ([]engine.Review, error) {
	return o.queryReviews(ctx, `
		SELECT r.id, r.booking_id, r.actor_id, r.rating, r.comment, r.created_at
		FROM reviews r
		JOIN bookings b ON b.id = r.booking_id
		WHERE b.property_id = ?
		ORDER BY r.created_at, r.rowid`, propertyID)
}

func (o ops) queryReviews(ctx context.Context, query string, args ...any) ([]engine.Review, error) {
	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	var reviews []engine.Review
	for rows.Next() {
		var (
			r         engine.Review
			comment   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.BookingID, &r.ActorID, &r.Rating, &comment, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		r.Comment = comment.String
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("review %s: %w", r.ID, err)
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

// =============================================================================
// WISHLIST
// =============================================================================

func (o ops) Wishlist(ctx context.Context, actorID engine.ActorID) ([]engine.WishlistItem, error) {
	rows, err := o.q.QueryContext(ctx,
		`SELECT actor_id, property_id, priority, created_at FROM wishlist_items
		 WHERE actor_id = ? ORDER BY priority`, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query wishlist: %w", err)
	}
	defer rows.Close()

	var items []engine.WishlistItem
	for rows.Next() {
		var (
			it        engine.WishlistItem
			createdAt string
		)
		if err := rows.Scan(&it.ActorID, &it.PropertyID, &it.Priority, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan wishlist item: %w", err)
		}
		if it.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("wishlist item %s: %w", it.PropertyID, err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (o ops) InsertWishlistItem(ctx context.Context, it engine.WishlistItem) error {
	_, err := o.q.ExecContext(ctx,
		`INSERT INTO wishlist_items (actor_id, property_id, priority, created_at) VALUES (?, ?, ?, ?)`,
		it.ActorID, it.PropertyID, it.Priority, formatTime(it.CreatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return engine.ErrDuplicateWishlist
		}
		return fmt.Errorf("failed to insert wishlist item: %w", err)
	}
	return nil
}

func (o ops) DeleteWishlistItem(ctx context.Context, actorID engine.ActorID, propertyID engine.PropertyID) (bool, error) {
	res, err := o.q.ExecContext(ctx,
		`DELETE FROM wishlist_items WHERE actor_id = ? AND property_id = ?`, actorID, propertyID)
	if err != nil {
		return false, fmt.Errorf("failed to delete wishlist item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (o ops) SetWishlistPriority(ctx context.Context, actorID engine.ActorID, propertyID engine.PropertyID, priority int) error {
	_, err := o.q.ExecContext(ctx,
		`UPDATE wishlist_items SET priority = ? WHERE actor_id = ? AND property_id = ?`,
		priority, actorID, propertyID)
	if err != nil {
		return fmt.Errorf("failed to update wishlist priority: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// timeLayout is fixed-width so ORDER BY on the text column is chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseTimes(created, updated string) (time.Time, time.Time, error) {
	c, err := parseTime(created)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	u, err := parseTime(updated)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return c, u, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad amount %q: %w", s, err)
	}
	return d, nil
}

func parseAmount(value, currency string) (engine.Amount, error) {
	d, err := parseDecimal(value)
	if err != nil {
		return engine.Amount{}, err
	}
	return engine.Amount{Value: d, Currency: engine.Currency(currency)}, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
