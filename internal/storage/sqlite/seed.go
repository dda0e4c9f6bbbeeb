package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jwebster45206/combat-engine/pkg/character"
)

// CharacterRecord is the full persistent state of one character.
type CharacterRecord struct {
	ID         string                    `json:"char_id"`
	Name       string                    `json:"name"`
	Attributes map[string]int            `json:"attributes"`
	Inventory  []character.InventorySlot `json:"inventory"`
	Skills     map[string]int            `json:"skills"`
	Vitals     *character.Vitals         `json:"vitals,omitempty"`
	Symbiote   *character.Symbiote       `json:"symbiote,omitempty"`
	Wallet     map[string]int            `json:"wallet"`
}

// UpsertCharacter replaces every facet of a character. XP is preserved for
// existing characters.
func (s *Store) UpsertCharacter(ctx context.Context, c CharacterRecord) error {
	if c.ID == "" {
		return fmt.Errorf("char_id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO characters (char_id, name) VALUES (?, ?)
		 ON CONFLICT(char_id) DO UPDATE SET name = excluded.name`, c.ID, c.Name); err != nil {
		return fmt.Errorf("upsert character: %w", err)
	}
	for _, table := range []string{"attributes", "inventory", "skills", "vitals", "symbiotes", "wallets"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE char_id = ?`, c.ID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for name, v := range c.Attributes {
		if _, err := tx.ExecContext(ctx, `INSERT INTO attributes (char_id, name, value) VALUES (?, ?, ?)`, c.ID, name, v); err != nil {
			return fmt.Errorf("insert attribute: %w", err)
		}
	}
	for _, slot := range c.Inventory {
		qty := max(slot.Quantity, 1)
		res, err := tx.ExecContext(ctx,
			`INSERT INTO inventory (char_id, item_id, slot, equipped, item_level, quantity) VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, slot.ItemID, slot.Slot, slot.Equipped, slot.ItemLevel, qty)
		if err != nil {
			return fmt.Errorf("insert inventory: %w", err)
		}
		invID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("inventory id: %w", err)
		}
		for i, a := range slot.Affixes {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO affixes (inventory_id, position, stat, value) VALUES (?, ?, ?, ?)`,
				invID, i, a.Stat, a.Value); err != nil {
				return fmt.Errorf("insert affix: %w", err)
			}
		}
	}
	for skill, rank := range c.Skills {
		if _, err := tx.ExecContext(ctx, `INSERT INTO skills (char_id, skill, rank) VALUES (?, ?, ?)`, c.ID, skill, rank); err != nil {
			return fmt.Errorf("insert skill: %w", err)
		}
	}
	if c.Vitals != nil {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vitals (char_id, hp_current, energy_current, hp_max, energy_max) VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.Vitals.HPCurrent, c.Vitals.EnergyCurrent, c.Vitals.HPMax, c.Vitals.EnergyMax); err != nil {
			return fmt.Errorf("insert vitals: %w", err)
		}
	}
	if c.Symbiote != nil {
		attrs, err := json.Marshal(c.Symbiote.Attributes)
		if err != nil {
			return fmt.Errorf("marshal symbiote: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO symbiotes (char_id, name, attributes_json) VALUES (?, ?, ?)`,
			c.ID, c.Symbiote.Name, string(attrs)); err != nil {
			return fmt.Errorf("insert symbiote: %w", err)
		}
	}
	for currency, amount := range c.Wallet {
		if _, err := tx.ExecContext(ctx, `INSERT INTO wallets (char_id, currency, amount) VALUES (?, ?, ?)`, c.ID, currency, amount); err != nil {
			return fmt.Errorf("insert wallet: %w", err)
		}
	}
	return tx.Commit()
}
