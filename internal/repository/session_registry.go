package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/contacts-api/internal/model"
)

// Key layout of the session registry.  The forward record is the owner of a
// session; the reverse index is only a weak back-reference and every read
// through it re-validates against the forward record, so an entry left
// dangling by an overwrite can never resolve to a session that no longer
// exists.
const (
	refreshKeyPrefix = "refresh:"        // refresh:{uid} -> hash {token, expires_at, username, email, role, epoch}
	lookupKeyPrefix  = "refresh_lookup:" // refresh_lookup:{token} -> uid
	activeKeyPrefix  = "active_user:"    // active_user:{uid} -> "1", 24h TTL
	recentKeyPrefix  = "recent_login:"   // recent_login:{uid} -> "1", 2h TTL
	epochKey         = "session_epoch"   // generation counter, bumped at boot
)

const (
	activeTTL      = 24 * time.Hour
	recentLoginTTL = 2 * time.Hour
)

// Presence is the three-state classification shown next to each account in
// the multi-account switcher.  It is informational only and never feeds an
// authorization decision.
type Presence string

const (
	PresenceGreen  Presence = "green"  // live refresh-token record exists
	PresenceYellow Presence = "yellow" // no refresh record, but an activity marker is present
	PresenceGray   Presence = "gray"   // nothing known, or the registry is unreachable
)

// SessionRegistry is the Redis-backed store of ephemeral session state: the
// live refresh token per user, its reverse index, and the activity markers.
// All TTLs are enforced by Redis itself, so correctness never depends on a
// background sweep.  Records are tagged with the current epoch; bumping the
// epoch at startup invalidates every pre-restart session in O(1) instead of
// scanning the key space.
type SessionRegistry struct {
	rdb *redis.Client
}

// NewSessionRegistry wraps a Redis client.  A nil client is tolerated and
// puts the registry into degraded mode: writes fail with
// ErrUpstreamUnavailable and presence reads report gray.
func NewSessionRegistry(rdb *redis.Client) *SessionRegistry {
	return &SessionRegistry{rdb: rdb}
}

// Available reports whether a Redis connection was established.
func (r *SessionRegistry) Available() bool { return r.rdb != nil }

func refreshKey(uid int64) string { return refreshKeyPrefix + strconv.FormatInt(uid, 10) }
func lookupKey(token string) string { return lookupKeyPrefix + token }
func activeKey(uid int64) string  { return activeKeyPrefix + strconv.FormatInt(uid, 10) }
func recentKey(uid int64) string  { return recentKeyPrefix + strconv.FormatInt(uid, 10) }

// epoch returns the current session generation.  A missing key counts as
// generation zero so a fresh Redis instance works without initialization.
func (r *SessionRegistry) epoch(ctx context.Context) (int64, error) {
	v, err := r.rdb.Get(ctx, epochKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

// Reset bumps the session epoch, invalidating every previously stored
// refresh record at once.  Called at process startup so no token minted
// before a registry restart is ever honored afterwards.
func (r *SessionRegistry) Reset(ctx context.Context) error {
	if r.rdb == nil {
		return ErrUpstreamUnavailable
	}
	return r.rdb.Incr(ctx, epochKey).Err()
}

// StoreRefresh writes the forward record and reverse index for a freshly
// minted refresh token and refreshes the activity markers.  Any previous
// record for the user is overwritten; its reverse entry is deleted for
// hygiene, though readers would reject it anyway via forward re-validation.
func (r *SessionRegistry) StoreRefresh(ctx context.Context, uid int64, token string, expiresAt time.Time, snap model.Identity) error {
	if r.rdb == nil {
		return ErrUpstreamUnavailable
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return ErrInvalidRefreshToken
	}
	epoch, err := r.epoch(ctx)
	if err != nil {
		return err
	}

	// Drop the reverse entry of the token being superseded, if any.
	if old, err := r.rdb.HGet(ctx, refreshKey(uid), "token").Result(); err == nil && old != "" && old != token {
		_ = r.rdb.Del(ctx, lookupKey(old)).Err()
	}

	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, refreshKey(uid), map[string]interface{}{
			"token":      token,
			"expires_at": expiresAt.UTC().Unix(),
			"username":   snap.Username,
			"email":      snap.Email,
			"role":       snap.Role,
			"epoch":      epoch,
		})
		p.Expire(ctx, refreshKey(uid), ttl)
		p.Set(ctx, lookupKey(token), strconv.FormatInt(uid, 10), ttl)
		p.Set(ctx, activeKey(uid), "1", activeTTL)
		p.Set(ctx, recentKey(uid), "1", recentLoginTTL)
		return nil
	})
	return err
}

// LookupUserByRefresh resolves a refresh token to its owner.  The reverse
// index alone is not trusted: the forward record must exist, hold the same
// token, and belong to the current epoch, otherwise the token is treated as
// revoked.
func (r *SessionRegistry) LookupUserByRefresh(ctx context.Context, token string) (int64, error) {
	if r.rdb == nil {
		return 0, ErrUpstreamUnavailable
	}
	raw, err := r.rdb.Get(ctx, lookupKey(token)).Result()
	if err == redis.Nil {
		return 0, ErrInvalidRefreshToken
	}
	if err != nil {
		return 0, err
	}
	uid, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, ErrInvalidRefreshToken
	}
	rec, err := r.record(ctx, uid)
	if err != nil {
		return 0, err
	}
	if rec == nil || rec["token"] != token {
		return 0, ErrInvalidRefreshToken
	}
	return uid, nil
}

// GetRefresh returns the live refresh token and expiry for a user, or
// ErrNotFound when there is no current-epoch record.
func (r *SessionRegistry) GetRefresh(ctx context.Context, uid int64) (string, time.Time, error) {
	if r.rdb == nil {
		return "", time.Time{}, ErrUpstreamUnavailable
	}
	rec, err := r.record(ctx, uid)
	if err != nil {
		return "", time.Time{}, err
	}
	if rec == nil {
		return "", time.Time{}, ErrNotFound
	}
	sec, _ := strconv.ParseInt(rec["expires_at"], 10, 64)
	return rec["token"], time.Unix(sec, 0).UTC(), nil
}

// record fetches the forward hash and filters out records from a previous
// epoch.  A nil map means "no live session".
func (r *SessionRegistry) record(ctx context.Context, uid int64) (map[string]string, error) {
	rec, err := r.rdb.HGetAll(ctx, refreshKey(uid)).Result()
	if err != nil {
		return nil, err
	}
	if len(rec) == 0 {
		return nil, nil
	}
	epoch, err := r.epoch(ctx)
	if err != nil {
		return nil, err
	}
	if rec["epoch"] != strconv.FormatInt(epoch, 10) {
		return nil, nil
	}
	return rec, nil
}

// DeleteRefresh removes the forward record and its reverse entry.  The
// operation is idempotent: deleting an absent session returns false with no
// error.
func (r *SessionRegistry) DeleteRefresh(ctx context.Context, uid int64) (bool, error) {
	if r.rdb == nil {
		return false, ErrUpstreamUnavailable
	}
	token, err := r.rdb.HGet(ctx, refreshKey(uid), "token").Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, lookupKey(token))
		p.Del(ctx, refreshKey(uid))
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkActive refreshes both activity markers for the user.
func (r *SessionRegistry) MarkActive(ctx context.Context, uid int64) error {
	if r.rdb == nil {
		return ErrUpstreamUnavailable
	}
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, activeKey(uid), "1", activeTTL)
		p.Set(ctx, recentKey(uid), "1", recentLoginTTL)
		return nil
	})
	return err
}

// IsActive reports whether the 24h activity marker is present.  Errors fail
// soft to false; activity markers are presentation data only.
func (r *SessionRegistry) IsActive(ctx context.Context, uid int64) bool {
	if r.rdb == nil {
		return false
	}
	n, err := r.rdb.Exists(ctx, activeKey(uid)).Result()
	return err == nil && n > 0
}

// IsRecentLogin reports whether the short-lived login marker is present.
func (r *SessionRegistry) IsRecentLogin(ctx context.Context, uid int64) bool {
	if r.rdb == nil {
		return false
	}
	n, err := r.rdb.Exists(ctx, recentKey(uid)).Result()
	return err == nil && n > 0
}

// PresenceOf computes the dot-status for one user.  Every caller that shows
// presence must go through this method so the classification stays uniform.
func (r *SessionRegistry) PresenceOf(ctx context.Context, uid int64) Presence {
	if r.rdb == nil {
		return PresenceGray
	}
	if _, _, err := r.GetRefresh(ctx, uid); err == nil {
		return PresenceGreen
	}
	if r.IsActive(ctx, uid) || r.IsRecentLogin(ctx, uid) {
		return PresenceYellow
	}
	return PresenceGray
}

// ActiveSessions scans the forward records and returns the denormalized
// snapshot of every live session in the current epoch.  Used by the admin
// session listing; the result is approximate by nature and safe to cache.
func (r *SessionRegistry) ActiveSessions(ctx context.Context) ([]model.Identity, error) {
	if r.rdb == nil {
		return nil, ErrUpstreamUnavailable
	}
	epoch, err := r.epoch(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.Identity
	iter := r.rdb.Scan(ctx, 0, refreshKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		rec, err := r.rdb.HGetAll(ctx, iter.Val()).Result()
		if err != nil || len(rec) == 0 {
			continue
		}
		if rec["epoch"] != strconv.FormatInt(epoch, 10) {
			continue
		}
		uid, err := strconv.ParseInt(iter.Val()[len(refreshKeyPrefix):], 10, 64)
		if err != nil {
			continue
		}
		out = append(out, model.Identity{
			ID:       uid,
			Username: rec["username"],
			Email:    rec["email"],
			Role:     rec["role"],
		})
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
