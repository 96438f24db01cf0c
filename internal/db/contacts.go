package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lure-project/lure/internal/events"
	"github.com/lure-project/lure/internal/ping"
)

// Contact is one stored request.
type Contact struct {
	ID              int64     `json:"id"`
	Kind            string    `json:"kind"`
	RemoteAddr      string    `json:"remote_addr"`
	ProtocolVersion int32     `json:"protocol_version"`
	ServerAddress   string    `json:"server_address,omitempty"`
	ServerPort      uint16    `json:"server_port,omitempty"`
	PlayerName      string    `json:"player_name,omitempty"`
	PlayerID        string    `json:"player_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ContactFromRequest flattens a request into a row.
func ContactFromRequest(req ping.Request) Contact {
	c := Contact{
		RemoteAddr: req.Remote(),
		CreatedAt:  req.ReceivedAt,
	}
	if req.Kind != nil {
		c.Kind = req.Kind.Name()
	}

	switch k := req.Kind.(type) {
	case ping.JoinAttempt:
		c.PlayerName = k.PlayerName
		c.PlayerID = k.PlayerID
	case ping.ModernPing:
		c.setPing(k.ServerListPing)
	case ping.LegacyPing:
		c.setPing(k.ServerListPing)
	}
	return c
}

func (c *Contact) setPing(slp ping.ServerListPing) {
	c.ProtocolVersion = slp.ProtocolVersion
	c.ServerAddress = slp.ServerAddress
	c.ServerPort = slp.ServerPort
}

// ContactStore persists contacts in SQLite.
type ContactStore struct {
	db *Database
}

// NewContactStore opens the database at dbPath and creates the schema.
func NewContactStore(dbPath string) (*ContactStore, error) {
	database, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	store := &ContactStore{db: database}
	if err := store.migrate(context.Background()); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate contact database: %w", err)
	}
	return store, nil
}

func (s *ContactStore) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS contacts (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			kind             TEXT    NOT NULL,
			remote_addr      TEXT    NOT NULL,
			protocol_version INTEGER NOT NULL DEFAULT 0,
			server_address   TEXT    NOT NULL DEFAULT '',
			server_port      INTEGER NOT NULL DEFAULT 0,
			player_name      TEXT    NOT NULL DEFAULT '',
			player_id        TEXT    NOT NULL DEFAULT '',
			created_at       INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_contacts_created_at ON contacts(created_at);
		CREATE INDEX IF NOT EXISTS idx_contacts_kind ON contacts(kind);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the underlying database.
func (s *ContactStore) Close() error {
	return s.db.Close()
}

// Insert stores a contact and returns its id.
func (s *ContactStore) Insert(ctx context.Context, c Contact) (int64, error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (kind, remote_addr, protocol_version, server_address,
			server_port, player_name, player_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Kind, c.RemoteAddr, c.ProtocolVersion, c.ServerAddress,
		int(c.ServerPort), c.PlayerName, c.PlayerID, c.CreatedAt.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert contact: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns up to limit contacts, newest first.
func (s *ContactStore) Recent(ctx context.Context, limit int) ([]Contact, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, remote_addr, protocol_version, server_address,
			server_port, player_name, player_id, created_at
		FROM contacts
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	contacts := make([]Contact, 0, limit)
	for rows.Next() {
		var (
			c       Contact
			port    int
			created int64
		)
		if err := rows.Scan(&c.ID, &c.Kind, &c.RemoteAddr, &c.ProtocolVersion, &c.ServerAddress,
			&port, &c.PlayerName, &c.PlayerID, &created); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		c.ServerPort = uint16(port)
		c.CreatedAt = time.Unix(0, created)
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// CountByKind returns the number of stored contacts per kind.
func (s *ContactStore) CountByKind(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM contacts GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to count contacts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			kind string
			n    int64
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

// Prune deletes contacts created before cutoff and returns how many
// were removed.
func (s *ContactStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM contacts WHERE created_at < ?`, cutoff.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to prune contacts: %w", err)
		}
		removed, err = res.RowsAffected()
		return err
	})
	return removed, err
}

// HandleContact is an event bus handler storing every contact event.
func (s *ContactStore) HandleContact(ctx context.Context, event events.Event) error {
	req, ok := events.ContactPayload(event)
	if !ok {
		return nil
	}
	id, err := s.Insert(ctx, ContactFromRequest(req))
	if err != nil {
		return err
	}
	log.Trace().Int64("id", id).Str("kind", req.Kind.Name()).Msg("contact stored")
	return nil
}
