package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/combat-engine/internal/errs"
)

// Status is the lifecycle state of a queue entry.
type Status string

const (
	StatusQueued        Status = "queued"
	StatusPaired        Status = "paired"
	StatusCreating      Status = "creating"
	StatusCreated       Status = "created"
	StatusShadowCreated Status = "shadow_created"
	StatusCancelled     Status = "cancelled"
	StatusExpired       Status = "expired"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCreated, StatusShadowCreated, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// ResultTTL is how long a finished entry stays readable for polling.
const ResultTTL = 10 * time.Minute

// Entry is one character waiting in (or leaving) a match queue.
type Entry struct {
	CharID    string
	MatchType string
	Status    Status
	GS        int
	JoinedAt  time.Time
	SessionID string
	IsShadow  bool
}

// QueueKey is the ordered set of waiting characters for a match type.
func QueueKey(matchType string) string {
	return "queue:" + matchType
}

// EntryKey is the per-entry hash.
func EntryKey(matchType, charID string) string {
	return "queue:" + matchType + ":entry:" + charID
}

// IndexKey maps a character to the match type it last joined.
func IndexKey(charID string) string {
	return "queue:char:" + charID
}

// LockKey serializes scans of one match type.
func LockKey(matchType string) string {
	return "queue:" + matchType + ":lock"
}

// MatchQueue stores matchmaking entries in Redis.
type MatchQueue struct {
	client *Client
}

func NewMatchQueue(client *Client) *MatchQueue {
	return &MatchQueue{client: client}
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1000
}

func entryFields(e Entry) map[string]any {
	return map[string]any{
		"status":     string(e.Status),
		"gs":         strconv.Itoa(e.GS),
		"joined_at":  strconv.FormatInt(e.JoinedAt.UnixMilli(), 10),
		"session_id": e.SessionID,
		"is_shadow":  strconv.FormatBool(e.IsShadow),
	}
}

// Add enqueues a fresh entry, replacing any finished one for the character.
func (q *MatchQueue) Add(ctx context.Context, e Entry) error {
	rdb := q.client.rdb
	_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, EntryKey(e.MatchType, e.CharID))
		pipe.HSet(ctx, EntryKey(e.MatchType, e.CharID), entryFields(e))
		pipe.ZAdd(ctx, QueueKey(e.MatchType), redis.Z{Score: score(e.JoinedAt), Member: e.CharID})
		pipe.Set(ctx, IndexKey(e.CharID), e.MatchType, 0)
		return nil
	})
	if err != nil {
		return errs.Upstream(err, "enqueue %s", e.CharID)
	}
	return nil
}

// Update writes an entry's state. Entries leaving the queued state are
// removed from the ordered set; terminal entries expire after ResultTTL.
func (q *MatchQueue) Update(ctx context.Context, e Entry) error {
	rdb := q.client.rdb
	key := EntryKey(e.MatchType, e.CharID)
	_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, entryFields(e))
		if e.Status == StatusQueued {
			pipe.ZAdd(ctx, QueueKey(e.MatchType), redis.Z{Score: score(e.JoinedAt), Member: e.CharID})
			pipe.Persist(ctx, key)
		} else {
			pipe.ZRem(ctx, QueueKey(e.MatchType), e.CharID)
		}
		if e.Status.Terminal() {
			pipe.Expire(ctx, key, ResultTTL)
			pipe.Expire(ctx, IndexKey(e.CharID), ResultTTL)
		}
		return nil
	})
	if err != nil {
		return errs.Upstream(err, "update queue entry %s", e.CharID)
	}
	return nil
}

// Get loads one entry. Returns nil, nil when the character has no entry.
func (q *MatchQueue) Get(ctx context.Context, matchType, charID string) (*Entry, error) {
	h, err := q.client.rdb.HGetAll(ctx, EntryKey(matchType, charID)).Result()
	if err != nil {
		return nil, errs.Upstream(err, "load queue entry %s", charID)
	}
	if len(h) == 0 {
		return nil, nil
	}
	return decodeEntry(matchType, charID, h)
}

// MatchTypeOf returns the match type a character last joined, or "".
func (q *MatchQueue) MatchTypeOf(ctx context.Context, charID string) (string, error) {
	mt, err := q.client.rdb.Get(ctx, IndexKey(charID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", errs.Upstream(err, "lookup queue of %s", charID)
	}
	return mt, nil
}

// Waiting returns the queued entries of a match type, oldest first.
func (q *MatchQueue) Waiting(ctx context.Context, matchType string) ([]Entry, error) {
	rdb := q.client.rdb
	ids, err := rdb.ZRange(ctx, QueueKey(matchType), 0, -1).Result()
	if err != nil {
		return nil, errs.Upstream(err, "scan queue %s", matchType)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, EntryKey(matchType, id))
		}
		return nil
	})
	if err != nil {
		return nil, errs.Upstream(err, "load queue %s", matchType)
	}

	out := make([]Entry, 0, len(ids))
	for i, cmd := range cmds {
		h := cmd.Val()
		if len(h) == 0 {
			q.client.logger.Warn("Dropping queue member without entry", "match_type", matchType, "char_id", ids[i])
			rdb.ZRem(ctx, QueueKey(matchType), ids[i])
			continue
		}
		e, err := decodeEntry(matchType, ids[i], h)
		if err != nil {
			return nil, err
		}
		if e.Status == StatusQueued {
			out = append(out, *e)
		}
	}
	return out, nil
}

func decodeEntry(matchType, charID string, h map[string]string) (*Entry, error) {
	e := &Entry{
		CharID:    charID,
		MatchType: matchType,
		Status:    Status(h["status"]),
		SessionID: h["session_id"],
		IsShadow:  h["is_shadow"] == "true",
	}
	var err error
	if v := h["gs"]; v != "" {
		if e.GS, err = strconv.Atoi(v); err != nil {
			return nil, errs.Internal(err, "decode gs of %s", charID)
		}
	}
	if v := h["joined_at"]; v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, errs.Internal(err, "decode joined_at of %s", charID)
		}
		e.JoinedAt = time.UnixMilli(ms).UTC()
	}
	return e, nil
}

// Depth returns the number of waiting characters.
func (q *MatchQueue) Depth(ctx context.Context, matchType string) (int, error) {
	n, err := q.client.rdb.ZCard(ctx, QueueKey(matchType)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue depth: %w", err)
	}
	return int(n), nil
}
