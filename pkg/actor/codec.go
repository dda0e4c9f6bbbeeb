package actor

import (
	"encoding/json"
	"fmt"
)

// Dehydrate serializes an actor into the blob stored at
// combat:rbc:{session_id}:actor:{actor_id}.
func Dehydrate(a *Actor) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("actor cannot be nil")
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal actor: %w", err)
	}
	return data, nil
}

// Rehydrate rebuilds an actor from a stored blob. Unknown fields such as
// core_stats are ignored; math_model is accepted as an alias for stats.
func Rehydrate(data []byte) (*Actor, error) {
	var a Actor
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal actor: %w", err)
	}
	return &a, nil
}

// UnmarshalJSON accepts the math_model alias for the stat matrix.
func (a *Actor) UnmarshalJSON(data []byte) error {
	type Alias Actor
	aux := &struct {
		MathModel StatMatrix `json:"math_model,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if a.Stats == nil && aux.MathModel != nil {
		a.Stats = aux.MathModel
	}
	if a.Stats == nil {
		a.Stats = StatMatrix{}
	}
	return nil
}
