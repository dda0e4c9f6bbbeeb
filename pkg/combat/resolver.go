package combat

import (
	"maps"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/jwebster45206/combat-engine/internal/errs"
	"github.com/jwebster45206/combat-engine/pkg/actor"
	"github.com/jwebster45206/combat-engine/pkg/catalog"
	"github.com/jwebster45206/combat-engine/pkg/chance"
)

// Resolver applies action pairs to a session. It holds no session state and
// is safe to share; callers serialize access per session.
type Resolver struct {
	catalog   *catalog.Catalog
	oracle    *chance.Oracle
	maxRounds int
}

func NewResolver(c *catalog.Catalog, o *chance.Oracle, maxRounds int) *Resolver {
	return &Resolver{catalog: c, oracle: o, maxRounds: maxRounds}
}

// Outcome is the result of resolving one pair.
type Outcome struct {
	Events []Event
	Ended  bool
	Reason Reason
	Winner string
}

// plan is a validated ability use.
type plan struct {
	move    Move
	actor   *actor.Actor
	ability catalog.Ability
	targets []string
	speed   float64
}

type resolution struct {
	*Resolver
	s       *Session
	round   int
	events  []Event
	outcome Outcome
}

// Resolve validates and applies a pair. Validation and conflict errors leave
// the session untouched. When a termination condition fires the session is
// moved to resolving and the outcome carries the reason and winner; call
// Finalize to end it.
func (r *Resolver) Resolve(s *Session, pair ActionPair) (*Outcome, error) {
	if s.Meta.State != StateActive {
		return nil, errs.Conflict("session %s is %s", s.Meta.ID, s.Meta.State).With("session_id", s.Meta.ID)
	}
	typ := pair.Type()
	if typ != pair.PrimaryMove.Strategy {
		return nil, errs.Validation("action type %s does not match move strategy %s", typ, pair.PrimaryMove.Strategy)
	}
	payload, err := DecodePayload(pair.PrimaryMove)
	if err != nil {
		return nil, err
	}
	if s.Meta.Paused && typ != StrategySystem {
		return nil, errs.Conflict("session %s is paused", s.Meta.ID).With("session_id", s.Meta.ID)
	}

	rs := &resolution{Resolver: r, s: s, round: s.Meta.Round + 1}
	switch p := payload.(type) {
	case *AbilityPayload:
		err = rs.exchange(pair, p)
	case *ItemPayload:
		err = rs.item(pair.PrimaryMove, p)
	case *InstantPayload:
		err = rs.instant(pair.PrimaryMove, p)
	case *SystemPayload:
		err = rs.system(pair.PrimaryMove, p)
	}
	if err != nil {
		return nil, err
	}
	rs.outcome.Events = rs.events
	if rs.outcome.Events == nil {
		rs.outcome.Events = []Event{}
	}
	return &rs.outcome, nil
}

func (rs *resolution) exchange(pair ActionPair, p *AbilityPayload) error {
	primary := pair.PrimaryMove
	var partner *Move
	if !pair.IsForced {
		if pair.PartnerMove == nil {
			return errs.Validation("exchange requires a partner move unless forced").With("move_id", primary.MoveID)
		}
		partner = pair.PartnerMove
	}

	defTarget := ""
	if partner != nil {
		defTarget = partner.CharID
	}
	first, err := rs.validateAbility(primary, p.AbilityID, defTarget)
	if err != nil {
		return err
	}
	plans := []*plan{first}

	if partner != nil {
		if partner.Strategy != StrategyExchange {
			return errs.Validation("partner move must be an exchange, got %s", partner.Strategy).With("move_id", partner.MoveID)
		}
		if partner.MoveID == primary.MoveID {
			return errs.Validation("partner move reuses move_id %s", partner.MoveID)
		}
		if partner.CharID == primary.CharID {
			return errs.Validation("actor %s cannot exchange with itself", primary.CharID)
		}
		pp, err := DecodePayload(*partner)
		if err != nil {
			return err
		}
		second, err := rs.validateAbility(*partner, pp.(*AbilityPayload).AbilityID, primary.CharID)
		if err != nil {
			return err
		}
		if second.actor.Team == first.actor.Team {
			return errs.Validation("actors %s and %s are on the same team", primary.CharID, partner.CharID)
		}
		plans = append(plans, second)
	}

	rs.recomputeAll()
	for _, pl := range plans {
		pl.speed = pl.actor.Stats.Get(actor.StatSpeed) * pl.ability.SpeedFactor()
	}
	sort.SliceStable(plans, func(i, j int) bool {
		if plans[i].speed != plans[j].speed {
			return plans[i].speed > plans[j].speed
		}
		return plans[i].actor.ID < plans[j].actor.ID
	})

	for _, pl := range plans {
		if pl.actor.Dead() {
			continue
		}
		rs.perform(pl)
	}
	rs.endRound()
	rs.checkTermination()
	return nil
}

func (rs *resolution) item(m Move, p *ItemPayload) error {
	a, err := rs.livingActor(m)
	if err != nil {
		return err
	}
	if !a.CanAct() {
		return errs.Validation("actor %s is stunned", a.ID).With("move_id", m.MoveID)
	}
	idx := slices.Index(a.Loadout.Belt, p.ItemID)
	if idx < 0 {
		return errs.Validation("item %s is not on the belt", p.ItemID).With("move_id", m.MoveID)
	}
	it, ok := rs.catalog.Item(p.ItemID)
	if !ok || !it.Consumable() {
		return errs.Validation("item %s cannot be used in combat", p.ItemID).With("move_id", m.MoveID)
	}

	rs.recomputeAll()
	a.Loadout.Belt = slices.Delete(a.Loadout.Belt, idx, idx+1)
	rs.emit(Event{Type: EventItemUsed, Actor: a.ID, Item: it.ID})
	if it.Heal != 0 {
		got := a.AdjustHP(it.Heal)
		rs.emit(Event{Type: EventHeal, Actor: a.ID, Target: a.ID, Item: it.ID, Amount: got})
	}
	if it.Energy != 0 {
		before := a.Energy
		a.SetEnergy(a.Energy + it.Energy)
		rs.emit(Event{Type: EventRestore, Actor: a.ID, Target: a.ID, Item: it.ID, Amount: a.Energy - before})
	}
	for _, tpl := range it.Effects {
		rs.applyEffect(a, a, tpl)
	}
	rs.endRound()
	rs.checkTermination()
	return nil
}

func (rs *resolution) instant(m Move, p *InstantPayload) error {
	switch {
	case p.Switch != nil && p.AbilityID != "":
		return errs.Validation("instant payload must carry an ability or a switch, not both").With("move_id", m.MoveID)
	case p.Switch != nil:
		return rs.switchSkill(m, p.Switch)
	case p.AbilityID == "":
		return errs.Validation("instant payload is empty").With("move_id", m.MoveID)
	}
	pl, err := rs.validateAbility(m, p.AbilityID, "")
	if err != nil {
		return err
	}
	if !pl.actor.CanAct() {
		return errs.Validation("actor %s is stunned", pl.actor.ID).With("move_id", m.MoveID)
	}
	rs.recomputeAll()
	rs.perform(pl)
	rs.checkTermination()
	return nil
}

func (rs *resolution) switchSkill(m Move, sw *SwitchPayload) error {
	a, err := rs.livingActor(m)
	if err != nil {
		return err
	}
	if a.SwitchCharges <= 0 {
		return errs.Validation("actor %s has no switch charges left", a.ID).With("move_id", m.MoveID)
	}
	out := slices.Index(a.Loadout.Skills, sw.Out)
	if out < 0 {
		return errs.Validation("skill %s is not slotted", sw.Out).With("move_id", m.MoveID)
	}
	in := slices.Index(a.Loadout.Reserve, sw.In)
	if in < 0 {
		return errs.Validation("skill %s is not in reserve", sw.In).With("move_id", m.MoveID)
	}
	a.Loadout.Skills[out], a.Loadout.Reserve[in] = sw.In, sw.Out
	a.SwitchCharges--
	rs.emit(Event{Type: EventSwitch, Actor: a.ID, Ability: sw.In, Detail: sw.Out})
	return nil
}

func (rs *resolution) system(m Move, p *SystemPayload) error {
	a, ok := rs.s.Actors[m.CharID]
	if !ok {
		return errs.Validation("unknown actor %s", m.CharID).With("move_id", m.MoveID)
	}
	switch p.Command {
	case CommandForfeit:
		rs.emit(Event{Type: EventForfeit, Actor: a.ID})
		winner := ""
		var others []string
		for _, team := range rs.s.TeamNames() {
			if team != a.Team {
				others = append(others, team)
			}
		}
		if len(others) == 1 {
			winner = others[0]
		}
		rs.end(ReasonForfeit, winner)
	case CommandPause:
		if rs.s.Meta.Paused {
			return errs.Conflict("session %s is already paused", rs.s.Meta.ID)
		}
		rs.s.Meta.Paused = true
		rs.emit(Event{Type: EventPause, Actor: a.ID})
	case CommandResume:
		if !rs.s.Meta.Paused {
			return errs.Conflict("session %s is not paused", rs.s.Meta.ID)
		}
		rs.s.Meta.Paused = false
		rs.emit(Event{Type: EventResume, Actor: a.ID})
	default:
		return errs.Validation("unknown system command %q", p.Command).With("move_id", m.MoveID)
	}
	return nil
}

func (rs *resolution) livingActor(m Move) (*actor.Actor, error) {
	a, ok := rs.s.Actors[m.CharID]
	if !ok {
		return nil, errs.Validation("unknown actor %s", m.CharID).With("move_id", m.MoveID)
	}
	if a.Dead() {
		return nil, errs.Validation("actor %s is dead", m.CharID).With("move_id", m.MoveID)
	}
	return a, nil
}

// validateAbility checks ownership, resources and targets of an ability use
// without touching state.
func (rs *resolution) validateAbility(m Move, abilityID, defTarget string) (*plan, error) {
	a, err := rs.livingActor(m)
	if err != nil {
		return nil, err
	}
	ab, ok := rs.catalog.Ability(abilityID)
	if !ok || !a.Loadout.Usable(abilityID) {
		return nil, errs.Validation("ability %s is not available to %s", abilityID, a.ID).With("move_id", m.MoveID)
	}
	if a.Energy < ab.EnergyCost {
		return nil, errs.Validation("actor %s needs %d energy for %s, has %d", a.ID, ab.EnergyCost, ab.ID, a.Energy).With("move_id", m.MoveID)
	}
	targets, err := rs.resolveTargets(a, ab, m, defTarget)
	if err != nil {
		return nil, err
	}
	return &plan{move: m, actor: a, ability: ab, targets: targets}, nil
}

func (rs *resolution) resolveTargets(a *actor.Actor, ab catalog.Ability, m Move, defTarget string) ([]string, error) {
	requested := m.Targets
	if len(requested) == 0 {
		switch {
		case ab.TargetSelf:
			return []string{a.ID}, nil
		case defTarget != "":
			requested = []string{defTarget}
		default:
			opp := rs.s.Opponents(a.Team)
			if len(opp) == 0 {
				return nil, errs.Validation("no target available for %s", a.ID).With("move_id", m.MoveID)
			}
			requested = []string{opp[0].ID}
		}
	}
	var out []string
	for _, id := range requested {
		t, ok := rs.s.Actors[id]
		if !ok {
			return nil, errs.Validation("unknown target %s", id).With("move_id", m.MoveID)
		}
		if t.Dead() {
			return nil, errs.Validation("target %s is dead", id).With("move_id", m.MoveID)
		}
		if !ab.Heal && !ab.TargetSelf && t.ID == a.ID {
			return nil, errs.Validation("%s cannot target its user", ab.ID).With("move_id", m.MoveID)
		}
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (rs *resolution) perform(pl *plan) {
	a := pl.actor
	if !a.CanAct() {
		rs.emit(Event{Type: EventStunned, Actor: a.ID, Ability: pl.ability.ID})
		return
	}
	a.SetEnergy(a.Energy - pl.ability.EnergyCost)
	for _, id := range pl.targets {
		t := rs.s.Actors[id]
		if t.Dead() {
			continue
		}
		if pl.ability.Heal {
			rs.heal(a, t, pl.ability)
		} else if pl.ability.TargetSelf && t.ID == a.ID {
			for _, tpl := range pl.ability.Effects {
				rs.applyEffect(a, t, tpl)
			}
		} else {
			rs.strike(a, t, pl.ability)
		}
	}
	if a.Dead() {
		return
	}
	for _, tpl := range pl.ability.SelfEffects {
		rs.applyEffect(a, a, tpl)
	}
}

func (rs *resolution) strike(src, dst *actor.Actor, ab catalog.Ability) {
	if !rs.oracle.Probability(ab.HitChance()) {
		rs.emit(Event{Type: EventMiss, Actor: src.ID, Target: dst.ID, Ability: ab.ID})
		return
	}
	if rs.oracle.Percent(dst.Stats.Get(actor.StatDodge)) {
		rs.emit(Event{Type: EventDodge, Actor: src.ID, Target: dst.ID, Ability: ab.ID})
		return
	}
	raw := rs.magnitude(src, ab)
	typ := EventHit
	if !ab.NoCrit && rs.oracle.Percent(src.Stats.Get(actor.StatCritChance)) {
		typ = EventCrit
		raw *= rs.critPower(src)
	}
	armor := max(dst.Stats.Get(actor.StatArmor), 0)
	dmg := max(int(math.Round(raw*100/(100+armor))), 1)
	dst.Damage(dmg)
	rs.emit(Event{Type: typ, Actor: src.ID, Target: dst.ID, Ability: ab.ID, Amount: dmg})

	if dst.Dead() {
		rs.markDead(dst)
		return
	}
	for _, tpl := range ab.Effects {
		rs.applyEffect(src, dst, tpl)
	}
}

func (rs *resolution) heal(src, dst *actor.Actor, ab catalog.Ability) {
	amt := max(int(math.Round(rs.magnitude(src, ab))), 0)
	got := dst.AdjustHP(amt)
	rs.emit(Event{Type: EventHeal, Actor: src.ID, Target: dst.ID, Ability: ab.ID, Amount: got})
	for _, tpl := range ab.Effects {
		rs.applyEffect(src, dst, tpl)
	}
}

// magnitude is Power + sum(computed[stat] * coefficient), visited in stat
// name order so float sums are reproducible.
func (rs *resolution) magnitude(src *actor.Actor, ab catalog.Ability) float64 {
	v := ab.Power
	for _, stat := range slices.Sorted(maps.Keys(ab.Scaling)) {
		v += src.Stats.Get(stat) * ab.Scaling[stat]
	}
	return v
}

func (rs *resolution) critPower(src *actor.Actor) float64 {
	if p := src.Stats.Get(actor.StatCritPower); p > 0 {
		return p
	}
	if rs.catalog.CritPower > 0 {
		return rs.catalog.CritPower
	}
	return 1.5
}

func (rs *resolution) applyEffect(src, dst *actor.Actor, tpl actor.Effect) {
	e := tpl.Clone()
	e.Source = src.ID
	dst.AddEffect(e)
	dst.Recompute()
	rs.emit(Event{Type: EventApplyEffect, Actor: src.ID, Target: dst.ID, Effect: e.ID})
}

func (rs *resolution) markDead(a *actor.Actor) {
	if !a.Dead() || slices.Contains(rs.s.Meta.DeadActors, a.ID) {
		return
	}
	rs.s.Meta.DeadActors = append(rs.s.Meta.DeadActors, a.ID)
	rs.emit(Event{Type: EventDeath, Target: a.ID})
}

// emit appends an event and fires removal conditions: the target side sees
// is_<type>, the acting side did_<type>.
func (rs *resolution) emit(e Event) {
	e.Seq = len(rs.events) + 1
	e.Round = rs.round
	rs.events = append(rs.events, e)

	switch e.Type {
	case EventHit, EventMiss, EventDodge, EventHeal:
		rs.removeOn(e.Target, "is_"+e.Type)
		rs.removeOn(e.Actor, "did_"+e.Type)
	case EventCrit:
		rs.removeOn(e.Target, "is_crit", "is_hit")
		rs.removeOn(e.Actor, "did_crit", "did_hit")
	}
}

func (rs *resolution) removeOn(actorID string, tags ...string) {
	a, ok := rs.s.Actors[actorID]
	if !ok || actorID == "" {
		return
	}
	var removed []actor.Effect
	for _, tag := range tags {
		removed = append(removed, a.RemoveEffectsOn(tag)...)
	}
	if len(removed) == 0 {
		return
	}
	a.Recompute()
	for _, eff := range removed {
		rs.events = append(rs.events, Event{
			Seq: len(rs.events) + 1, Type: EventRemoveEffect, Round: rs.round,
			Actor: eff.Source, Target: a.ID, Effect: eff.ID,
		})
	}
}

func (rs *resolution) recomputeAll() {
	for _, id := range rs.s.ActorIDs() {
		rs.s.Actors[id].Recompute()
	}
}

// endRound applies effect ticks, decrements durations and advances the
// round counter.
func (rs *resolution) endRound() {
	for _, id := range rs.s.ActorIDs() {
		a := rs.s.Actors[id]
		if a.Dead() {
			continue
		}
		for _, e := range a.Effects {
			if len(e.Tick) == 0 || a.Dead() {
				continue
			}
			if d := int(math.Round(e.Tick["hp"] * e.Scale())); d != 0 {
				got := a.AdjustHP(d)
				rs.emit(Event{Type: EventEffectTick, Actor: e.Source, Target: a.ID, Effect: e.ID, Amount: got, Detail: "hp"})
			}
			if d := int(math.Round(e.Tick["energy"] * e.Scale())); d != 0 {
				before := a.Energy
				a.SetEnergy(a.Energy + d)
				rs.emit(Event{Type: EventEffectTick, Actor: e.Source, Target: a.ID, Effect: e.ID, Amount: a.Energy - before, Detail: "energy"})
			}
		}
		if a.Dead() {
			rs.markDead(a)
			continue
		}

		kept := a.Effects[:0]
		var expired []actor.Effect
		for _, e := range a.Effects {
			e.Duration--
			if e.Duration <= 0 {
				expired = append(expired, e)
				continue
			}
			kept = append(kept, e)
		}
		a.Effects = kept
		for _, e := range expired {
			rs.emit(Event{Type: EventExpireEffect, Actor: e.Source, Target: a.ID, Effect: e.ID})
		}
		a.Recompute()
	}
	rs.s.Meta.Round++
}

func (rs *resolution) checkTermination() {
	if rs.outcome.Ended {
		return
	}
	alive := rs.s.AliveTeams()
	if len(rs.s.Meta.Teams) > 1 && len(alive) <= 1 {
		winner := ""
		if len(alive) == 1 {
			winner = alive[0]
		}
		rs.end(ReasonEliminated, winner)
		return
	}
	if rs.maxRounds > 0 && rs.s.Meta.Round >= rs.maxRounds {
		rs.end(ReasonMaxRounds, rs.leadingTeam())
	}
}

// leadingTeam returns the team with the highest remaining HP fraction, or
// "" on a tie.
func (rs *resolution) leadingTeam() string {
	best, bestFrac, tie := "", -1.0, false
	for _, team := range rs.s.TeamNames() {
		var hp, maxHP int
		for _, id := range rs.s.Meta.Teams[team] {
			if a, ok := rs.s.Actors[id]; ok {
				hp += a.HP
				maxHP += a.MaxHP
			}
		}
		frac := 0.0
		if maxHP > 0 {
			frac = float64(hp) / float64(maxHP)
		}
		switch {
		case frac > bestFrac:
			best, bestFrac, tie = team, frac, false
		case frac == bestFrac:
			tie = true
		}
	}
	if tie {
		return ""
	}
	return best
}

func (rs *resolution) end(reason Reason, winner string) {
	rs.outcome.Ended = true
	rs.outcome.Reason = reason
	rs.outcome.Winner = winner
	rs.s.Meta.Winner = winner
	rs.s.Meta.EndReason = reason
	_ = rs.s.Meta.Transition(StateResolving)
}

// Finalize ends a session and records rewards. It is a no-op on an ended
// session, so rewards are computed exactly once.
func (r *Resolver) Finalize(s *Session, reason Reason, winner string, now time.Time) ResolutionSummary {
	if s.Meta.State == StateEnded {
		return s.Meta.Summary()
	}
	if reason == ReasonInternal {
		winner = ""
	}
	s.Meta.Winner = winner
	s.Meta.EndReason = reason
	s.Meta.EndTime = now.UTC()
	s.Meta.Paused = false
	s.Meta.Rewards = map[string]Reward{}
	if winner != "" {
		s.Meta.Rewards = ComputeRewards(s, r.catalog.Rewards)
	}
	if s.Meta.DeadActors == nil {
		s.Meta.DeadActors = []string{}
	}
	s.Meta.State = StateEnded
	s.Meta.Active = false
	return s.Meta.Summary()
}

// ComputeRewards returns rewards for every living player on the winning
// team, scaled by the mean gear score of the other teams.
func ComputeRewards(s *Session, f catalog.RewardFormula) map[string]Reward {
	out := map[string]Reward{}
	winner := s.Meta.Winner
	if winner == "" {
		return out
	}
	var gs, n int
	for _, a := range s.Actors {
		if a.Team != winner {
			gs += a.GearScore
			n++
		}
	}
	mean := 0.0
	if n > 0 {
		mean = float64(gs) / float64(n)
	}
	xp, gold := f.Rewards(mean)
	for _, id := range slices.Sorted(maps.Keys(s.Meta.ActorsInfo)) {
		if s.Meta.ActorsInfo[id] != actor.KindPlayer {
			continue
		}
		a, ok := s.Actors[id]
		if !ok || a.Dead() || a.Team != winner {
			continue
		}
		out[id] = Reward{XP: xp, Gold: gold}
	}
	return out
}
