// Package sqlite provides the SQLite-backed character store: the facet
// reader used by the Context Assembler and the reward writer used when a
// session ends.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/jwebster45206/combat-engine/internal/errs"
	"github.com/jwebster45206/combat-engine/pkg/character"
	"github.com/jwebster45206/combat-engine/pkg/combat"
)

// schemaV1 defines the character schema.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS characters (
	char_id TEXT PRIMARY KEY,
	name    TEXT NOT NULL DEFAULT '',
	xp      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS attributes (
	char_id TEXT NOT NULL REFERENCES characters(char_id) ON DELETE CASCADE,
	name    TEXT NOT NULL,
	value   INTEGER NOT NULL,
	PRIMARY KEY (char_id, name)
);

CREATE TABLE IF NOT EXISTS inventory (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	char_id    TEXT NOT NULL REFERENCES characters(char_id) ON DELETE CASCADE,
	item_id    TEXT NOT NULL,
	slot       TEXT NOT NULL,
	equipped   INTEGER NOT NULL DEFAULT 0,
	item_level INTEGER NOT NULL DEFAULT 0,
	quantity   INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_inventory_char ON inventory(char_id);

CREATE TABLE IF NOT EXISTS affixes (
	inventory_id INTEGER NOT NULL REFERENCES inventory(id) ON DELETE CASCADE,
	position     INTEGER NOT NULL,
	stat         TEXT NOT NULL,
	value        REAL NOT NULL,
	PRIMARY KEY (inventory_id, position)
);

CREATE TABLE IF NOT EXISTS skills (
	char_id TEXT NOT NULL REFERENCES characters(char_id) ON DELETE CASCADE,
	skill   TEXT NOT NULL,
	rank    INTEGER NOT NULL,
	PRIMARY KEY (char_id, skill)
);

CREATE TABLE IF NOT EXISTS vitals (
	char_id        TEXT PRIMARY KEY REFERENCES characters(char_id) ON DELETE CASCADE,
	hp_current     INTEGER NOT NULL DEFAULT -1,
	energy_current INTEGER NOT NULL DEFAULT -1,
	hp_max         INTEGER NOT NULL DEFAULT 0,
	energy_max     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS symbiotes (
	char_id         TEXT PRIMARY KEY REFERENCES characters(char_id) ON DELETE CASCADE,
	name            TEXT NOT NULL,
	attributes_json TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS wallets (
	char_id  TEXT NOT NULL REFERENCES characters(char_id) ON DELETE CASCADE,
	currency TEXT NOT NULL,
	amount   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (char_id, currency)
);

CREATE TABLE IF NOT EXISTS reward_log (
	session_id TEXT NOT NULL,
	char_id    TEXT NOT NULL,
	xp         INTEGER NOT NULL,
	gold       INTEGER NOT NULL,
	PRIMARY KEY (session_id, char_id)
);
`

// CurrencyGold is the wallet currency credited by rewards.
const CurrencyGold = "gold"

// Store persists characters in SQLite.
type Store struct {
	db *sql.DB
}

var _ character.FacetReader = (*Store)(nil)

// Open opens a SQLite character store and creates the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schemaV1); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func upstream(err error, facet, charID string) error {
	return errs.Upstream(err, "read %s", facet).With("facet", facet).With("char_id", charID)
}

func (s *Store) exists(ctx context.Context, charID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM characters WHERE char_id = ?`, charID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return errs.NotFound("character %s", charID).With("char_id", charID)
	}
	if err != nil {
		return upstream(err, "characters", charID)
	}
	return nil
}

// Name returns the display name of a character.
func (s *Store) Name(ctx context.Context, charID string) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM characters WHERE char_id = ?`, charID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errs.NotFound("character %s", charID).With("char_id", charID)
	}
	if err != nil {
		return "", upstream(err, "characters", charID)
	}
	return name, nil
}

// Attributes returns the attribute facet.
func (s *Store) Attributes(ctx context.Context, charID string) (map[string]int, error) {
	if err := s.exists(ctx, charID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM attributes WHERE char_id = ?`, charID)
	if err != nil {
		return nil, upstream(err, "attributes", charID)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var name string
		var value int
		if err := rows.Scan(&name, &value); err != nil {
			return nil, upstream(err, "attributes", charID)
		}
		out[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, upstream(err, "attributes", charID)
	}
	return out, nil
}

// Inventory returns the inventory facet in insertion order, affixes in
// bundle order.
func (s *Store) Inventory(ctx context.Context, charID string) ([]character.InventorySlot, error) {
	if err := s.exists(ctx, charID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT i.id, i.item_id, i.slot, i.equipped, i.item_level, i.quantity, a.stat, a.value
		   FROM inventory i
		   LEFT JOIN affixes a ON a.inventory_id = i.id
		  WHERE i.char_id = ?
		  ORDER BY i.id, a.position`, charID)
	if err != nil {
		return nil, upstream(err, "inventory", charID)
	}
	defer rows.Close()

	out := []character.InventorySlot{}
	lastID := int64(-1)
	for rows.Next() {
		var (
			id       int64
			slot     character.InventorySlot
			equipped int
			stat     sql.NullString
			value    sql.NullFloat64
		)
		if err := rows.Scan(&id, &slot.ItemID, &slot.Slot, &equipped, &slot.ItemLevel, &slot.Quantity, &stat, &value); err != nil {
			return nil, upstream(err, "inventory", charID)
		}
		if id != lastID {
			slot.Equipped = equipped != 0
			out = append(out, slot)
			lastID = id
		}
		if stat.Valid {
			cur := &out[len(out)-1]
			cur.Affixes = append(cur.Affixes, character.Affix{Stat: stat.String, Value: value.Float64})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, upstream(err, "inventory", charID)
	}
	return out, nil
}

// Skills returns the skill facet.
func (s *Store) Skills(ctx context.Context, charID string) (map[string]int, error) {
	if err := s.exists(ctx, charID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT skill, rank FROM skills WHERE char_id = ?`, charID)
	if err != nil {
		return nil, upstream(err, "skills", charID)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var skill string
		var rank int
		if err := rows.Scan(&skill, &rank); err != nil {
			return nil, upstream(err, "skills", charID)
		}
		out[skill] = rank
	}
	if err := rows.Err(); err != nil {
		return nil, upstream(err, "skills", charID)
	}
	return out, nil
}

// Vitals returns the vitals facet. A character without a vitals row is at
// full health.
func (s *Store) Vitals(ctx context.Context, charID string) (*character.Vitals, error) {
	if err := s.exists(ctx, charID); err != nil {
		return nil, err
	}
	var v character.Vitals
	err := s.db.QueryRowContext(ctx,
		`SELECT hp_current, energy_current, hp_max, energy_max FROM vitals WHERE char_id = ?`, charID,
	).Scan(&v.HPCurrent, &v.EnergyCurrent, &v.HPMax, &v.EnergyMax)
	if errors.Is(err, sql.ErrNoRows) {
		return &character.Vitals{HPCurrent: -1, EnergyCurrent: -1}, nil
	}
	if err != nil {
		return nil, upstream(err, "vitals", charID)
	}
	return &v, nil
}

// Symbiote returns the symbiote facet, nil when the character has none.
func (s *Store) Symbiote(ctx context.Context, charID string) (*character.Symbiote, error) {
	if err := s.exists(ctx, charID); err != nil {
		return nil, err
	}
	var sym character.Symbiote
	var attrs string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, attributes_json FROM symbiotes WHERE char_id = ?`, charID,
	).Scan(&sym.Name, &attrs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, upstream(err, "symbiote", charID)
	}
	if err := json.Unmarshal([]byte(attrs), &sym.Attributes); err != nil {
		return nil, upstream(err, "symbiote", charID)
	}
	return &sym, nil
}

// Wallet returns the wallet facet.
func (s *Store) Wallet(ctx context.Context, charID string) (map[string]int, error) {
	if err := s.exists(ctx, charID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT currency, amount FROM wallets WHERE char_id = ?`, charID)
	if err != nil {
		return nil, upstream(err, "wallet", charID)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var currency string
		var amount int
		if err := rows.Scan(&currency, &amount); err != nil {
			return nil, upstream(err, "wallet", charID)
		}
		out[currency] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, upstream(err, "wallet", charID)
	}
	return out, nil
}

// XP returns the experience total of a character.
func (s *Store) XP(ctx context.Context, charID string) (int, error) {
	var xp int
	err := s.db.QueryRowContext(ctx, `SELECT xp FROM characters WHERE char_id = ?`, charID).Scan(&xp)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errs.NotFound("character %s", charID).With("char_id", charID)
	}
	if err != nil {
		return 0, upstream(err, "characters", charID)
	}
	return xp, nil
}

// ApplyRewards credits xp and gold for a finished session. Each
// (session, character) pair is credited at most once.
func (s *Store) ApplyRewards(ctx context.Context, sessionID string, rewards map[string]combat.Reward) error {
	if len(rewards) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Upstream(err, "begin reward tx")
	}
	defer tx.Rollback()

	for charID, r := range rewards {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO reward_log (session_id, char_id, xp, gold) VALUES (?, ?, ?, ?)`,
			sessionID, charID, r.XP, r.Gold)
		if err != nil {
			return errs.Upstream(err, "log reward for %s", charID)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE characters SET xp = xp + ? WHERE char_id = ?`, r.XP, charID); err != nil {
			return errs.Upstream(err, "credit xp for %s", charID)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO wallets (char_id, currency, amount) VALUES (?, ?, ?)
			 ON CONFLICT(char_id, currency) DO UPDATE SET amount = amount + excluded.amount`,
			charID, CurrencyGold, r.Gold); err != nil {
			return errs.Upstream(err, "credit gold for %s", charID)
		}
	}
	if err := tx.Commit(); err != nil {
		return errs.Upstream(err, "commit rewards")
	}
	return nil
}
