package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jwebster45206/combat-engine/internal/storage/sqlite"
	"github.com/jwebster45206/combat-engine/pkg/catalog"
	"github.com/jwebster45206/combat-engine/pkg/character"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s <characters.json> <sqlite path>\n", os.Args[0])
		os.Exit(1)
	}

	records, err := loadFile(os.Args[1], catalog.Default())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
		os.Exit(1)
	}

	dbPath := os.Args[2]
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create %s: %v\n", dir, err)
			os.Exit(1)
		}
	}
	store, err := sqlite.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", dbPath, err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	for _, rec := range records {
		if err := store.UpsertCharacter(ctx, rec); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to seed %s: %v\n", rec.ID, err)
			os.Exit(1)
		}
	}
	fmt.Printf("Seeded %d characters into %s\n", len(records), dbPath)
}

// loadFile strictly decodes a JSON array of characters and checks it
// against the catalog.
func loadFile(filename string, cat *catalog.Catalog) ([]sqlite.CharacterRecord, error) {
	if !strings.HasSuffix(filename, ".json") {
		return nil, fmt.Errorf("character file must have .json extension: %s", filepath.Base(filename))
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	return parse(data, cat)
}

func parse(data []byte, cat *catalog.Catalog) ([]sqlite.CharacterRecord, error) {
	var records []sqlite.CharacterRecord
	decoder := json.NewDecoder(strings.NewReader(string(data)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&records); err != nil {
		return nil, fmt.Errorf("failed strict JSON unmarshaling: %w", err)
	}

	v := &validator{catalog: cat, seen: map[string]bool{}}
	for i := range records {
		v.validateCharacter(&records[i])
	}
	if len(v.errors) > 0 {
		return nil, fmt.Errorf("validation errors:\n%s", strings.Join(v.errors, "\n"))
	}
	return records, nil
}

type validator struct {
	catalog *catalog.Catalog
	seen    map[string]bool
	errors  []string
}

func (v *validator) validateCharacter(c *sqlite.CharacterRecord) {
	if c.ID == "" {
		v.addError("character with empty char_id")
		return
	}
	if v.seen[c.ID] {
		v.addError(fmt.Sprintf("duplicate char_id '%s'", c.ID))
	}
	v.seen[c.ID] = true
	v.validateIDFormat("char_id", c.ID)

	for attr, val := range c.Attributes {
		v.validateIDFormat("attribute", attr)
		if val < 0 {
			v.addError(fmt.Sprintf("%s: attribute %s is negative", c.ID, attr))
		}
	}

	for _, slot := range c.Inventory {
		if _, ok := v.catalog.Item(slot.ItemID); !ok {
			v.addError(fmt.Sprintf("%s: unknown item '%s'", c.ID, slot.ItemID))
		}
		if slot.Slot == character.SlotBelt && slot.Quantity <= 0 {
			v.addError(fmt.Sprintf("%s: belt item '%s' needs a positive quantity", c.ID, slot.ItemID))
		}
	}

	for skill, rank := range c.Skills {
		if _, ok := v.catalog.Skill(skill); !ok {
			v.addError(fmt.Sprintf("%s: unknown skill '%s'", c.ID, skill))
		}
		if rank < 0 {
			v.addError(fmt.Sprintf("%s: skill %s has negative rank", c.ID, skill))
		}
	}

	if c.Vitals != nil && c.Vitals.HPMax < 0 {
		v.addError(fmt.Sprintf("%s: hp_max is negative", c.ID))
	}
}

func (v *validator) validateIDFormat(fieldName, id string) {
	if id == "" {
		return
	}
	if !validIDRegex.MatchString(id) {
		v.addError(fmt.Sprintf("%s '%s' should be lowercase snake_case", fieldName, id))
	}
}

func (v *validator) addError(msg string) {
	v.errors = append(v.errors, "  - "+msg)
}

var validIDRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$|^[a-z]$`)
