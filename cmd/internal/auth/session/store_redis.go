package session

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"worksite/cmd/security/token"
)

// RedisStore implements Store on Redis.
//
// Each record is a hash at {prefix}:rt:<digest> that Redis expires at
// ExpiresAt; {prefix}:user:<id> indexes a user's digests for bulk revoke and
// {prefix}:users lists the users that have an index. The braces are a hash
// tag: every key of one store maps to the same cluster slot, so the Lua
// scripts that touch several keys also run on a cluster client.
type RedisStore struct {
	rdb    redis.UniversalClient
	digest token.Digester
	tag    string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore returns a Redis-backed Store. prefix defaults to "worksite".
func NewRedisStore(rdb redis.UniversalClient, digest token.Digester, prefix string) (*RedisStore, error) {
	if rdb == nil {
		return nil, errors.New("session: nil redis client")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "worksite"
	}
	return &RedisStore{rdb: rdb, digest: digest, tag: "{" + prefix + "}"}, nil
}

func (s *RedisStore) recordKey(hash string) string { return s.tag + ":rt:" + hash }
func (s *RedisStore) userKey(userID string) string { return s.tag + ":user:" + userID }
func (s *RedisStore) usersKey() string             { return s.tag + ":users" }

// KEYS[1]=record KEYS[2]=user index KEYS[3]=user registry
// ARGV: hash, id, user_id, expires_ms, created_ms
var createLua = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "id", ARGV[2], "user_id", ARGV[3], "expires_at", ARGV[4], "created_at", ARGV[5])
redis.call("PEXPIREAT", KEYS[1], ARGV[4])
redis.call("SADD", KEYS[2], ARGV[1])
redis.call("SADD", KEYS[3], ARGV[3])
return 1
`)

// KEYS[1]=record ARGV[1]=now_ms
var revokeLua = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
return redis.call("HSETNX", KEYS[1], "revoked_at", ARGV[1])
`)

// KEYS[1]=user index ARGV[1]=now_ms ARGV[2]=record key prefix
var revokeAllLua = redis.NewScript(`
local n = 0
for _, h in ipairs(redis.call("SMEMBERS", KEYS[1])) do
  local k = ARGV[2] .. h
  if redis.call("EXISTS", k) == 1 then
    n = n + redis.call("HSETNX", k, "revoked_at", ARGV[1])
  else
    redis.call("SREM", KEYS[1], h)
  end
end
return n
`)

// KEYS[1]=old record KEYS[2]=new record KEYS[3]=user index KEYS[4]=user registry
// ARGV: now_ms, new hash, new id, user_id, new expires_ms, new created_ms
var rotateLua = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HEXISTS", KEYS[1], "revoked_at") == 1 then
  return 0
end
if tonumber(redis.call("HGET", KEYS[1], "expires_at")) <= tonumber(ARGV[1]) then
  return 0
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return -1
end
redis.call("HSET", KEYS[1], "revoked_at", ARGV[1])
redis.call("HSET", KEYS[2], "id", ARGV[3], "user_id", ARGV[4], "expires_at", ARGV[5], "created_at", ARGV[6])
redis.call("PEXPIREAT", KEYS[2], ARGV[5])
redis.call("SADD", KEYS[3], ARGV[2])
redis.call("SADD", KEYS[4], ARGV[4])
return 1
`)

// KEYS[1]=user index KEYS[2]=user registry ARGV[1]=user_id
var pruneUserLua = redis.NewScript(`
if redis.call("SCARD", KEYS[1]) == 0 then
  return redis.call("SREM", KEYS[2], ARGV[1])
end
return 0
`)

func (s *RedisStore) Create(ctx context.Context, rec Record) error {
	h := s.digest.Digest(rec.Token)
	res, err := createLua.Run(ctx, s.rdb,
		[]string{s.recordKey(h), s.userKey(rec.UserID), s.usersKey()},
		h, rec.ID, rec.UserID, rec.ExpiresAt.UnixMilli(), rec.CreatedAt.UnixMilli(),
	).Int64()
	if err != nil {
		return err
	}
	if res == 0 {
		return ErrTokenConflict
	}
	return nil
}

func (s *RedisStore) FindActiveByToken(ctx context.Context, tok string, now time.Time) (Record, error) {
	h := s.digest.Digest(tok)
	fields, err := s.rdb.HGetAll(ctx, s.recordKey(h)).Result()
	if err != nil {
		return Record{}, err
	}
	if len(fields) == 0 {
		return Record{}, ErrSessionNotFound
	}

	rec, err := decodeRedisRecord(h, fields)
	if err != nil {
		return Record{}, err
	}
	if !rec.Active(now) {
		return Record{}, ErrSessionNotFound
	}
	return rec, nil
}

func (s *RedisStore) Revoke(ctx context.Context, tok string, now time.Time) error {
	h := s.digest.Digest(tok)
	return revokeLua.Run(ctx, s.rdb, []string{s.recordKey(h)}, now.UnixMilli()).Err()
}

func (s *RedisStore) RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	return revokeAllLua.Run(ctx, s.rdb,
		[]string{s.userKey(userID)},
		now.UnixMilli(), s.recordKey(""),
	).Int64()
}

// PurgeExpired drops records past expiry that Redis has not evicted yet and
// prunes user-index entries whose records are gone. It walks the user
// registry rather than SCAN so it sees every index on a cluster too.
func (s *RedisStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var removed int64
	nowMS := now.UnixMilli()

	iter := s.rdb.SScan(ctx, s.usersKey(), 0, "", 256).Iterator()
	for iter.Next(ctx) {
		userID := iter.Val()
		userKey := s.userKey(userID)
		members, err := s.rdb.SMembers(ctx, userKey).Result()
		if err != nil {
			return removed, err
		}
		for _, h := range members {
			recKey := s.recordKey(h)
			exp, err := s.rdb.HGet(ctx, recKey, "expires_at").Int64()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return removed, err
			case exp > nowMS:
				continue
			default:
				if err := s.rdb.Del(ctx, recKey).Err(); err != nil {
					return removed, err
				}
			}
			if err := s.rdb.SRem(ctx, userKey, h).Err(); err != nil {
				return removed, err
			}
			removed++
		}
		if err := pruneUserLua.Run(ctx, s.rdb, []string{userKey, s.usersKey()}, userID).Err(); err != nil {
			return removed, err
		}
	}
	return removed, iter.Err()
}

func (s *RedisStore) Rotate(ctx context.Context, oldToken string, next Record, now time.Time) error {
	oldHash := s.digest.Digest(oldToken)
	newHash := s.digest.Digest(next.Token)

	res, err := rotateLua.Run(ctx, s.rdb,
		[]string{s.recordKey(oldHash), s.recordKey(newHash), s.userKey(next.UserID), s.usersKey()},
		now.UnixMilli(), newHash, next.ID, next.UserID, next.ExpiresAt.UnixMilli(), next.CreatedAt.UnixMilli(),
	).Int64()
	if err != nil {
		return err
	}
	switch res {
	case 1:
		return nil
	case -1:
		return ErrTokenConflict
	default:
		return ErrSessionNotFound
	}
}

func decodeRedisRecord(hash string, fields map[string]string) (Record, error) {
	rec := Record{
		ID:        fields["id"],
		UserID:    fields["user_id"],
		TokenHash: hash,
	}

	exp, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return Record{}, errors.New("session: corrupt redis record: expires_at")
	}
	created, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return Record{}, errors.New("session: corrupt redis record: created_at")
	}
	rec.ExpiresAt = time.UnixMilli(exp).UTC()
	rec.CreatedAt = time.UnixMilli(created).UTC()

	if v, ok := fields["revoked_at"]; ok {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Record{}, errors.New("session: corrupt redis record: revoked_at")
		}
		at := time.UnixMilli(ms).UTC()
		rec.RevokedAt = &at
	}
	return rec, nil
}
