package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jwebster45206/combat-engine/pkg/actor"
	"github.com/jwebster45206/combat-engine/pkg/combat"
)

// Meta hash fields. The first twelve are the shared layout; the rest are
// runtime extras.
const (
	fieldActive     = "active"
	fieldStartTime  = "start_time"
	fieldEndTime    = "end_time"
	fieldWinner     = "winner"
	fieldTeams      = "teams"
	fieldActorsInfo = "actors_info"
	fieldDeadActors = "dead_actors"
	fieldRewards    = "rewards"
	fieldBattleType = "battle_type"
	fieldMode       = "mode"
	fieldIsPvE      = "is_pve"
	fieldLocationID = "location_id"

	fieldState     = "state"
	fieldRound     = "round"
	fieldIsShadow  = "is_shadow"
	fieldPaused    = "paused"
	fieldEndReason = "end_reason"
)

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func unixString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.Unix(), 10)
}

func parseUnix(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(n, 0).UTC(), nil
}

// encodeMeta flattens meta into hash fields. Collections are JSON.
func encodeMeta(m *combat.SessionMeta) (map[string]any, error) {
	teams, err := json.Marshal(m.Teams)
	if err != nil {
		return nil, fmt.Errorf("marshal teams: %w", err)
	}
	info, err := json.Marshal(m.ActorsInfo)
	if err != nil {
		return nil, fmt.Errorf("marshal actors_info: %w", err)
	}
	dead := m.DeadActors
	if dead == nil {
		dead = []string{}
	}
	deadJSON, err := json.Marshal(dead)
	if err != nil {
		return nil, fmt.Errorf("marshal dead_actors: %w", err)
	}
	rewards := m.Rewards
	if rewards == nil {
		rewards = map[string]combat.Reward{}
	}
	rewardsJSON, err := json.Marshal(rewards)
	if err != nil {
		return nil, fmt.Errorf("marshal rewards: %w", err)
	}

	return map[string]any{
		fieldActive:     flag(m.Active),
		fieldStartTime:  unixString(m.StartTime),
		fieldEndTime:    unixString(m.EndTime),
		fieldWinner:     m.Winner,
		fieldTeams:      string(teams),
		fieldActorsInfo: string(info),
		fieldDeadActors: string(deadJSON),
		fieldRewards:    string(rewardsJSON),
		fieldBattleType: string(m.BattleType),
		fieldMode:       string(m.Mode),
		fieldIsPvE:      flag(m.IsPvE),
		fieldLocationID: m.LocationID,
		fieldState:      string(m.State),
		fieldRound:      strconv.Itoa(m.Round),
		fieldIsShadow:   flag(m.IsShadow),
		fieldPaused:     flag(m.Paused),
		fieldEndReason:  string(m.EndReason),
	}, nil
}

// decodeMeta rebuilds meta from hash fields. Missing extras take their zero
// value so hashes written by other producers still load.
func decodeMeta(sessionID string, h map[string]string) (*combat.SessionMeta, error) {
	m := &combat.SessionMeta{
		ID:         sessionID,
		Active:     h[fieldActive] == "1",
		Winner:     h[fieldWinner],
		BattleType: combat.BattleType(h[fieldBattleType]),
		Mode:       combat.Mode(h[fieldMode]),
		IsPvE:      h[fieldIsPvE] == "1",
		LocationID: h[fieldLocationID],
		State:      combat.State(h[fieldState]),
		IsShadow:   h[fieldIsShadow] == "1",
		Paused:     h[fieldPaused] == "1",
		EndReason:  combat.Reason(h[fieldEndReason]),
		Teams:      map[string][]string{},
		ActorsInfo: map[string]actor.Kind{},
		DeadActors: []string{},
		Rewards:    map[string]combat.Reward{},
	}

	var err error
	if m.StartTime, err = parseUnix(h[fieldStartTime]); err != nil {
		return nil, fmt.Errorf("parse start_time: %w", err)
	}
	if m.EndTime, err = parseUnix(h[fieldEndTime]); err != nil {
		return nil, fmt.Errorf("parse end_time: %w", err)
	}
	if v := h[fieldRound]; v != "" {
		if m.Round, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("parse round: %w", err)
		}
	}

	jsonFields := []struct {
		name string
		dst  any
	}{
		{fieldTeams, &m.Teams},
		{fieldActorsInfo, &m.ActorsInfo},
		{fieldDeadActors, &m.DeadActors},
		{fieldRewards, &m.Rewards},
	}
	for _, f := range jsonFields {
		raw := h[f.name]
		if raw == "" || raw == "null" {
			continue
		}
		if err := json.Unmarshal([]byte(raw), f.dst); err != nil {
			return nil, fmt.Errorf("parse %s: %w", f.name, err)
		}
	}

	if m.State == "" {
		if m.Active {
			m.State = combat.StateActive
		} else {
			m.State = combat.StateEnded
		}
	}
	return m, nil
}
