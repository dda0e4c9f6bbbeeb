package storage

const sessionPrefix = "combat:rbc:"

// MetaKey is the session meta hash.
func MetaKey(sessionID string) string {
	return sessionPrefix + sessionID + ":meta"
}

// ActorKey is the serialized actor blob.
func ActorKey(sessionID, actorID string) string {
	return sessionPrefix + sessionID + ":actor:" + actorID
}

// ResultKey holds the stored result of one move for idempotent replays.
func ResultKey(sessionID, moveID string) string {
	return sessionPrefix + sessionID + ":result:" + moveID
}

// PendingKey is the hash of one-sided exchange moves waiting for a partner.
func PendingKey(sessionID string) string {
	return sessionPrefix + sessionID + ":pending"
}
