// Package combat resolves paired intents into events. It performs no I/O:
// the session runtime loads a Session, hands it to a Resolver and persists
// the result.
package combat

import (
	"encoding/json"
	"time"

	"github.com/jwebster45206/combat-engine/internal/errs"
	"github.com/jwebster45206/combat-engine/pkg/actor"
)

// Strategy discriminates move payloads.
type Strategy string

const (
	StrategyExchange Strategy = "exchange"
	StrategyItem     Strategy = "item"
	StrategyInstant  Strategy = "instant"
	StrategySystem   Strategy = "system"
)

// Move is a client's declared action for one exchange (CombatMoveDTO).
type Move struct {
	MoveID   string          `json:"move_id"`
	CharID   string          `json:"char_id"`
	Strategy Strategy        `json:"strategy"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Targets  []string        `json:"targets,omitempty"`
}

// ActionPair is the resolution unit (CombatActionDTO). PartnerMove is only
// read for exchanges.
type ActionPair struct {
	ActionType  Strategy `json:"action_type"`
	PrimaryMove Move     `json:"primary_move"`
	PartnerMove *Move    `json:"partner_move,omitempty"`
	IsForced    bool     `json:"is_forced"`
}

// Type returns the pair's action type, defaulting to the primary move's
// strategy.
func (p ActionPair) Type() Strategy {
	if p.ActionType != "" {
		return p.ActionType
	}
	return p.PrimaryMove.Strategy
}

// AbilityPayload uses an ability (exchange, instant).
type AbilityPayload struct {
	AbilityID string `json:"ability_id"`
}

// SwitchPayload swaps a slotted skill for a reserve skill (instant).
type SwitchPayload struct {
	Out string `json:"out"`
	In  string `json:"in"`
}

// InstantPayload is either an ability or a loadout switch.
type InstantPayload struct {
	AbilityID string         `json:"ability_id,omitempty"`
	Switch    *SwitchPayload `json:"switch,omitempty"`
}

// ItemPayload consumes a belt item.
type ItemPayload struct {
	ItemID string `json:"item_id"`
}

// System commands.
const (
	CommandForfeit = "forfeit"
	CommandPause   = "pause"
	CommandResume  = "resume"
)

// SystemPayload is an administrative mutation.
type SystemPayload struct {
	Command string `json:"command"`
}

// DecodePayload returns the typed payload for a move's strategy. Unknown
// strategies and malformed payloads are validation failures.
func DecodePayload(m Move) (any, error) {
	var dst any
	switch m.Strategy {
	case StrategyExchange:
		dst = &AbilityPayload{}
	case StrategyInstant:
		dst = &InstantPayload{}
	case StrategyItem:
		dst = &ItemPayload{}
	case StrategySystem:
		dst = &SystemPayload{}
	default:
		return nil, errs.Validation("unknown strategy %q", m.Strategy).With("move_id", m.MoveID)
	}
	if len(m.Payload) == 0 {
		return nil, errs.Validation("move %s has no payload", m.MoveID).With("move_id", m.MoveID)
	}
	if err := json.Unmarshal(m.Payload, dst); err != nil {
		return nil, errs.Validation("malformed %s payload: %v", m.Strategy, err).With("move_id", m.MoveID)
	}
	return dst, nil
}

// Event types, in the order they can appear within one resolution.
const (
	EventHit          = "hit"
	EventCrit         = "crit"
	EventMiss         = "miss"
	EventDodge        = "dodge"
	EventHeal         = "heal"
	EventRestore      = "restore"
	EventApplyEffect  = "apply_effect"
	EventRemoveEffect = "remove_effect"
	EventExpireEffect = "expire_effect"
	EventEffectTick   = "effect_tick"
	EventItemUsed     = "item_used"
	EventSwitch       = "switch"
	EventStunned      = "stunned"
	EventDeath        = "death"
	EventForfeit      = "forfeit"
	EventPause        = "pause"
	EventResume       = "resume"
)

// Event is one applied outcome. Seq is strictly increasing within a result.
type Event struct {
	Seq     int    `json:"seq"`
	Type    string `json:"type"`
	Round   int    `json:"round"`
	Actor   string `json:"actor,omitempty"`
	Target  string `json:"target,omitempty"`
	Ability string `json:"ability,omitempty"`
	Item    string `json:"item,omitempty"`
	Effect  string `json:"effect,omitempty"`
	Amount  int    `json:"amount,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// ActionResult is returned for every submitted pair (CombatActionResultDTO).
type ActionResult struct {
	SessionID string  `json:"session_id"`
	MoveID    string  `json:"move_id"`
	Round     int     `json:"round"`
	State     State   `json:"state"`
	Events    []Event `json:"events"`
	Pending   bool    `json:"pending,omitempty"` // waiting for the partner's move
	Ended     bool    `json:"ended"`
	Winner    string  `json:"winner,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// BattleType is pve or pvp.
type BattleType string

const (
	BattlePvE BattleType = "pve"
	BattlePvP BattleType = "pvp"
)

// Mode is the session format.
type Mode string

const (
	Mode1v1     Mode = "1v1"
	ModeGroup   Mode = "group"
	ModeDungeon Mode = "dungeon"
)

// Reason records why a session ended.
type Reason string

const (
	ReasonEliminated Reason = "team_eliminated"
	ReasonMaxRounds  Reason = "max_rounds"
	ReasonForfeit    Reason = "forfeit"
	ReasonInternal   Reason = "internal_error"
	ReasonAdmin      Reason = "admin"
)

// Reward is granted to a surviving player on the winning team.
type Reward struct {
	XP   int `json:"xp"`
	Gold int `json:"gold"`
}

// SessionMeta is the fight's header, stored at combat:rbc:{session_id}:meta.
type SessionMeta struct {
	ID         string                `json:"session_id"`
	Active     bool                  `json:"active"`
	StartTime  time.Time             `json:"start_time"`
	EndTime    time.Time             `json:"end_time,omitzero"`
	Winner     string                `json:"winner,omitempty"`
	Teams      map[string][]string   `json:"teams"`
	ActorsInfo map[string]actor.Kind `json:"actors_info"`
	DeadActors []string              `json:"dead_actors"`
	Rewards    map[string]Reward     `json:"rewards"`
	BattleType BattleType            `json:"battle_type"`
	Mode       Mode                  `json:"mode"`
	IsPvE      bool                  `json:"is_pve"`
	LocationID string                `json:"location_id,omitempty"`
	State      State                 `json:"state"`
	Round      int                   `json:"round"`
	IsShadow   bool                  `json:"is_shadow"`
	Paused     bool                  `json:"paused,omitempty"`
	EndReason  Reason                `json:"end_reason,omitempty"`
}

// TeamOf returns the team tag of an actor.
func (m *SessionMeta) TeamOf(actorID string) (string, bool) {
	for team, ids := range m.Teams {
		for _, id := range ids {
			if id == actorID {
				return team, true
			}
		}
	}
	return "", false
}

// SessionView is the read model returned by inspect.
type SessionView struct {
	Meta     SessionMeta             `json:"meta"`
	Actors   []*actor.Actor          `json:"actors"`
	Statuses map[string]actor.Status `json:"statuses"`
}

// ResolutionSummary is returned when a session ends.
type ResolutionSummary struct {
	SessionID  string            `json:"session_id"`
	Reason     Reason            `json:"reason"`
	Winner     string            `json:"winner,omitempty"`
	Rounds     int               `json:"rounds"`
	DeadActors []string          `json:"dead_actors"`
	Rewards    map[string]Reward `json:"rewards"`
	EndTime    time.Time         `json:"end_time"`
}

// Summary builds the resolution summary of an ended session.
func (m *SessionMeta) Summary() ResolutionSummary {
	return ResolutionSummary{
		SessionID:  m.ID,
		Reason:     m.EndReason,
		Winner:     m.Winner,
		Rounds:     m.Round,
		DeadActors: m.DeadActors,
		Rewards:    m.Rewards,
		EndTime:    m.EndTime,
	}
}
