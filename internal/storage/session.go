package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/combat-engine/internal/errs"
	"github.com/jwebster45206/combat-engine/pkg/actor"
	"github.com/jwebster45206/combat-engine/pkg/combat"
)

// Session operations (Redis-backed)

func (r *RedisStorage) CreateSession(ctx context.Context, s *combat.Session) error {
	n, err := r.client.Exists(ctx, MetaKey(s.Meta.ID)).Result()
	if err != nil {
		return errs.Upstream(err, "check session %s", s.Meta.ID)
	}
	if n > 0 {
		return errs.Conflict("session %s already exists", s.Meta.ID)
	}
	return r.Commit(ctx, s, nil)
}

func (r *RedisStorage) LoadMeta(ctx context.Context, sessionID string) (*combat.SessionMeta, error) {
	h, err := r.client.HGetAll(ctx, MetaKey(sessionID)).Result()
	if err != nil {
		r.logger.Error("Failed to load session meta", "session_id", sessionID, "error", err)
		return nil, errs.Upstream(err, "load session %s", sessionID)
	}
	if len(h) == 0 {
		return nil, errs.NotFound("session %s", sessionID).With("session_id", sessionID)
	}
	m, err := decodeMeta(sessionID, h)
	if err != nil {
		return nil, errs.Internal(err, "decode session %s", sessionID)
	}
	return m, nil
}

func (r *RedisStorage) LoadSession(ctx context.Context, sessionID string) (*combat.Session, error) {
	meta, err := r.LoadMeta(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(meta.ActorsInfo))
	keys := make([]string, 0, len(meta.ActorsInfo))
	for _, members := range meta.Teams {
		for _, id := range members {
			ids = append(ids, id)
			keys = append(keys, ActorKey(sessionID, id))
		}
	}
	s := &combat.Session{Meta: meta, Actors: make(map[string]*actor.Actor, len(ids))}
	if len(keys) == 0 {
		return s, nil
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		r.logger.Error("Failed to load session actors", "session_id", sessionID, "error", err)
		return nil, errs.Upstream(err, "load actors of %s", sessionID)
	}
	for i, v := range vals {
		blob, ok := v.(string)
		if !ok {
			return nil, errs.Internal(nil, "actor %s missing from session %s", ids[i], sessionID)
		}
		a, err := actor.Rehydrate([]byte(blob))
		if err != nil {
			return nil, errs.Internal(err, "decode actor %s", ids[i])
		}
		s.Actors[ids[i]] = a
	}
	return s, nil
}

func (r *RedisStorage) Commit(ctx context.Context, s *combat.Session, result *combat.ActionResult, consumed ...combat.Move) error {
	sid := s.Meta.ID
	fields, err := encodeMeta(s.Meta)
	if err != nil {
		return errs.Internal(err, "encode session %s", sid)
	}
	blobs := make(map[string][]byte, len(s.Actors))
	for id, a := range s.Actors {
		data, err := actor.Dehydrate(a)
		if err != nil {
			return errs.Internal(err, "encode actor %s", id)
		}
		blobs[id] = data
	}
	var resultJSON []byte
	var unpark []string
	if result != nil {
		if resultJSON, err = json.Marshal(result); err != nil {
			return errs.Internal(err, "encode result %s", result.MoveID)
		}
		if unpark, err = r.parkedFields(ctx, sid, consumed); err != nil {
			return err
		}
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, MetaKey(sid), fields)
		pipe.Expire(ctx, MetaKey(sid), r.ttl)
		for id, data := range blobs {
			pipe.Set(ctx, ActorKey(sid, id), data, r.ttl)
		}
		if result != nil {
			pipe.Set(ctx, ResultKey(sid, result.MoveID), resultJSON, r.ttl)
			for _, m := range consumed {
				pipe.Set(ctx, ResultKey(sid, m.MoveID), resultJSON, r.ttl)
			}
			if len(unpark) > 0 {
				pipe.HDel(ctx, PendingKey(sid), unpark...)
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to commit session", "session_id", sid, "error", err)
		return errs.Upstream(err, "commit session %s", sid)
	}
	return nil
}

// parkedFields returns the pending fields that still hold one of the
// consumed moves. Callers hold the session lock, so the read cannot race a
// park.
func (r *RedisStorage) parkedFields(ctx context.Context, sid string, consumed []combat.Move) ([]string, error) {
	if len(consumed) == 0 {
		return nil, nil
	}
	chars := make([]string, len(consumed))
	for i, m := range consumed {
		chars[i] = m.CharID
	}
	vals, err := r.client.HMGet(ctx, PendingKey(sid), chars...).Result()
	if err != nil {
		return nil, errs.Upstream(err, "load pending moves of %s", sid)
	}
	var fields []string
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var parked combat.Move
		if err := json.Unmarshal([]byte(raw), &parked); err != nil {
			return nil, errs.Internal(err, "decode pending move of %s", chars[i])
		}
		if parked.MoveID == consumed[i].MoveID {
			fields = append(fields, chars[i])
		}
	}
	return fields, nil
}

func (r *RedisStorage) LoadResult(ctx context.Context, sessionID, moveID string) (*combat.ActionResult, error) {
	data, err := r.client.Get(ctx, ResultKey(sessionID, moveID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Upstream(err, "load result %s", moveID)
	}
	var res combat.ActionResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, errs.Internal(err, "decode result %s", moveID)
	}
	return &res, nil
}

func (r *RedisStorage) SetPending(ctx context.Context, sessionID string, m combat.Move) error {
	data, err := json.Marshal(m)
	if err != nil {
		return errs.Internal(err, "encode move %s", m.MoveID)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, PendingKey(sessionID), m.CharID, data)
		pipe.Expire(ctx, PendingKey(sessionID), r.ttl)
		return nil
	})
	if err != nil {
		return errs.Upstream(err, "store pending move %s", m.MoveID)
	}
	return nil
}

func (r *RedisStorage) Pending(ctx context.Context, sessionID string) (map[string]combat.Move, error) {
	h, err := r.client.HGetAll(ctx, PendingKey(sessionID)).Result()
	if err != nil {
		return nil, errs.Upstream(err, "load pending moves of %s", sessionID)
	}
	out := make(map[string]combat.Move, len(h))
	for charID, raw := range h {
		var m combat.Move
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, errs.Internal(err, "decode pending move of %s", charID)
		}
		out[charID] = m
	}
	return out, nil
}
