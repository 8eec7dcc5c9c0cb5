package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix        = "crabs:"
	accountSeqKey    = keyPrefix + "account:seq"
	avatarsActiveKey = keyPrefix + "avatars:active"
	messagesExpiry   = keyPrefix + "messages:expiry"
)

func accountKey(id int) string           { return keyPrefix + "account:" + strconv.Itoa(id) }
func accountEmailKey(email string) string { return keyPrefix + "account:email:" + email }
func avatarKey(id string) string          { return keyPrefix + "avatar:" + id }
func avatarSessionKey(sid string) string  { return keyPrefix + "avatar:session:" + sid }
func messageKey(id string) string         { return keyPrefix + "message:" + id }

type redisAccount struct {
	Id           int    `redis:"id"`
	Username     string `redis:"username"`
	EmailAddress string `redis:"email"`
	PasswordHash string `redis:"password_hash"`
	CreatedAt    int64  `redis:"created_at"`
	UpdatedAt    int64  `redis:"updated_at"`
}

// owner_id 0 means no owner; account ids start at 1.
type redisAvatar struct {
	Id          string  `redis:"id"`
	SessionId   string  `redis:"session_id"`
	OwnerId     int     `redis:"owner_id"`
	DisplayName string  `redis:"display_name"`
	X           float64 `redis:"x"`
	Y           float64 `redis:"y"`
	Color       string  `redis:"color"`
	LastActive  int64   `redis:"last_active"`
	CreatedAt   int64   `redis:"created_at"`
}

type redisMessage struct {
	Id        string `redis:"id"`
	AvatarId  string `redis:"avatar_id"`
	Text      string `redis:"text"`
	CreatedAt int64  `redis:"created_at"`
	ExpiresAt int64  `redis:"expires_at"`
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func (ra redisAvatar) avatar() Avatar {
	a := Avatar{
		Id:          ra.Id,
		SessionId:   ra.SessionId,
		DisplayName: ra.DisplayName,
		X:           ra.X,
		Y:           ra.Y,
		Color:       ra.Color,
		LastActive:  fromMillis(ra.LastActive),
		CreatedAt:   fromMillis(ra.CreatedAt),
	}
	if ra.OwnerId != 0 {
		id := ra.OwnerId
		a.OwnerId = &id
	}
	return a
}

func (rm redisMessage) message() Message {
	return Message{
		Id:        rm.Id,
		AvatarId:  rm.AvatarId,
		Text:      rm.Text,
		CreatedAt: fromMillis(rm.CreatedAt),
		ExpiresAt: fromMillis(rm.ExpiresAt),
	}
}

// RedisCrabRepository stores each row as a hash. Sorted sets scored by
// last_active and expires_at serve the recency and expiry scans.
type RedisCrabRepository struct {
	client *redis.Client
}

func NewRedisCrabRepository(ctx context.Context, addr, password string, db int) (*RedisCrabRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisCrabRepository{client: client}, nil
}

func (r *RedisCrabRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCrabRepository) Close() error {
	return r.client.Close()
}

func (r *RedisCrabRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (User, error) {
	id, err := r.client.Incr(ctx, accountSeqKey).Result()
	if err != nil {
		return User{}, fmt.Errorf("next account id: %w", err)
	}

	ok, err := r.client.SetNX(ctx, accountEmailKey(params.EmailAddress), id, 0).Result()
	if err != nil {
		return User{}, fmt.Errorf("reserve email: %w", err)
	}
	if !ok {
		return User{}, ErrDuplicate
	}

	now := time.Now().UTC().Round(time.Millisecond)
	ra := redisAccount{
		Id:           int(id),
		Username:     params.Username,
		EmailAddress: params.EmailAddress,
		PasswordHash: params.PasswordHash,
		CreatedAt:    now.UnixMilli(),
		UpdatedAt:    now.UnixMilli(),
	}
	if err := r.client.HSet(ctx, accountKey(ra.Id), ra).Err(); err != nil {
		r.client.Del(ctx, accountEmailKey(params.EmailAddress))
		return User{}, fmt.Errorf("save account: %w", err)
	}

	return User{
		Id:           ra.Id,
		Username:     ra.Username,
		EmailAddress: ra.EmailAddress,
		PasswordHash: ra.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (r *RedisCrabRepository) GetAccountById(ctx context.Context, id int) (User, error) {
	cmd := r.client.HGetAll(ctx, accountKey(id))
	if err := cmd.Err(); err != nil {
		return User{}, fmt.Errorf("get account %d: %w", id, err)
	}
	if len(cmd.Val()) == 0 {
		return User{}, ErrNotFound
	}

	var ra redisAccount
	if err := cmd.Scan(&ra); err != nil {
		return User{}, fmt.Errorf("scan account: %w", err)
	}

	return User{
		Id:           ra.Id,
		Username:     ra.Username,
		EmailAddress: ra.EmailAddress,
		PasswordHash: ra.PasswordHash,
		CreatedAt:    fromMillis(ra.CreatedAt),
		UpdatedAt:    fromMillis(ra.UpdatedAt),
	}, nil
}

func (r *RedisCrabRepository) GetAccountByEmail(ctx context.Context, email string) (User, error) {
	id, err := r.client.Get(ctx, accountEmailKey(email)).Int()
	if errors.Is(err, redis.Nil) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get account by email: %w", err)
	}

	return r.GetAccountById(ctx, id)
}

func (r *RedisCrabRepository) getAvatar(ctx context.Context, id string) (Avatar, error) {
	cmd := r.client.HGetAll(ctx, avatarKey(id))
	if err := cmd.Err(); err != nil {
		return Avatar{}, fmt.Errorf("get avatar %s: %w", id, err)
	}
	if len(cmd.Val()) == 0 {
		return Avatar{}, ErrNotFound
	}

	var ra redisAvatar
	if err := cmd.Scan(&ra); err != nil {
		return Avatar{}, fmt.Errorf("scan avatar: %w", err)
	}

	return ra.avatar(), nil
}

func (r *RedisCrabRepository) avatarExists(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, avatarKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("avatar exists: %w", err)
	}
	return n == 1, nil
}

func (r *RedisCrabRepository) GetAvatarBySessionId(ctx context.Context, sessionId string) (Avatar, error) {
	id, err := r.client.Get(ctx, avatarSessionKey(sessionId)).Result()
	if errors.Is(err, redis.Nil) {
		return Avatar{}, ErrNotFound
	}
	if err != nil {
		return Avatar{}, fmt.Errorf("get avatar by session: %w", err)
	}

	return r.getAvatar(ctx, id)
}

// CreateAvatarIfAbsent writes the row before claiming the session key so the
// session key never points at a missing hash. A losing writer removes its row.
func (r *RedisCrabRepository) CreateAvatarIfAbsent(ctx context.Context, params CreateAvatarParams) (Avatar, bool, error) {
	now := params.Now.UTC().Round(time.Millisecond)
	ra := redisAvatar{
		Id:          uuid.NewString(),
		SessionId:   params.SessionId,
		DisplayName: params.DisplayName,
		X:           params.X,
		Y:           params.Y,
		Color:       params.Color,
		LastActive:  now.UnixMilli(),
		CreatedAt:   now.UnixMilli(),
	}
	if params.OwnerId != nil {
		ra.OwnerId = *params.OwnerId
	}

	if err := r.client.HSet(ctx, avatarKey(ra.Id), ra).Err(); err != nil {
		return Avatar{}, false, fmt.Errorf("save avatar: %w", err)
	}

	ok, err := r.client.SetNX(ctx, avatarSessionKey(ra.SessionId), ra.Id, 0).Result()
	if err != nil {
		r.client.Del(ctx, avatarKey(ra.Id))
		return Avatar{}, false, fmt.Errorf("claim session: %w", err)
	}
	if !ok {
		if err := r.client.Del(ctx, avatarKey(ra.Id)).Err(); err != nil {
			return Avatar{}, false, fmt.Errorf("discard avatar: %w", err)
		}

		a, err := r.GetAvatarBySessionId(ctx, params.SessionId)
		return a, false, err
	}

	err = r.client.ZAdd(ctx, avatarsActiveKey, redis.Z{
		Score:  float64(ra.LastActive),
		Member: ra.Id,
	}).Err()
	if err != nil {
		return Avatar{}, false, fmt.Errorf("index avatar: %w", err)
	}

	return ra.avatar(), true, nil
}

func (r *RedisCrabRepository) TouchAvatar(ctx context.Context, avatarId string, lastActive time.Time, ownerId *int) (Avatar, error) {
	exists, err := r.avatarExists(ctx, avatarId)
	if err != nil {
		return Avatar{}, err
	}
	if !exists {
		return Avatar{}, ErrNotFound
	}

	ms := lastActive.UnixMilli()
	fields := []any{"last_active", ms}
	if ownerId != nil {
		fields = append(fields, "owner_id", *ownerId)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, avatarKey(avatarId), fields...)
		pipe.ZAdd(ctx, avatarsActiveKey, redis.Z{Score: float64(ms), Member: avatarId})
		return nil
	})
	if err != nil {
		return Avatar{}, fmt.Errorf("touch avatar %s: %w", avatarId, err)
	}

	return r.getAvatar(ctx, avatarId)
}

func (r *RedisCrabRepository) UpdateAvatarPosition(ctx context.Context, avatarId string, x, y float64, lastActive time.Time) error {
	exists, err := r.avatarExists(ctx, avatarId)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}

	ms := lastActive.UnixMilli()
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, avatarKey(avatarId), "x", x, "y", y, "last_active", ms)
		pipe.ZAdd(ctx, avatarsActiveKey, redis.Z{Score: float64(ms), Member: avatarId})
		return nil
	})
	if err != nil {
		return fmt.Errorf("update avatar position: %w", err)
	}

	return nil
}

func exclusiveMin(t time.Time) string {
	return "(" + strconv.FormatInt(t.UnixMilli(), 10)
}

func (r *RedisCrabRepository) ListAvatarsActiveSince(ctx context.Context, since time.Time) ([]Avatar, error) {
	ids, err := r.client.ZRangeByScore(ctx, avatarsActiveKey, &redis.ZRangeBy{
		Min: exclusiveMin(since),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list active avatars: %w", err)
	}

	cmds := make([]*redis.MapStringStringCmd, 0, len(ids))
	if len(ids) > 0 {
		_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, id := range ids {
				cmds = append(cmds, pipe.HGetAll(ctx, avatarKey(id)))
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("fetch avatars: %w", err)
		}
	}

	avatars := make([]Avatar, 0, len(cmds))
	for _, cmd := range cmds {
		if len(cmd.Val()) == 0 {
			continue
		}
		var ra redisAvatar
		if err := cmd.Scan(&ra); err != nil {
			return nil, fmt.Errorf("scan avatar: %w", err)
		}
		avatars = append(avatars, ra.avatar())
	}

	return avatars, nil
}

func (r *RedisCrabRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	exists, err := r.avatarExists(ctx, params.AvatarId)
	if err != nil {
		return Message{}, err
	}
	if !exists {
		return Message{}, ErrNotFound
	}

	rm := redisMessage{
		Id:        uuid.NewString(),
		AvatarId:  params.AvatarId,
		Text:      params.Text,
		CreatedAt: params.CreatedAt.UnixMilli(),
		ExpiresAt: params.ExpiresAt.UnixMilli(),
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, messageKey(rm.Id), rm)
		pipe.ZAdd(ctx, messagesExpiry, redis.Z{Score: float64(rm.ExpiresAt), Member: rm.Id})
		return nil
	})
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	return rm.message(), nil
}

func (r *RedisCrabRepository) ListMessagesExpiringAfter(ctx context.Context, t time.Time) ([]Message, error) {
	ids, err := r.client.ZRangeByScore(ctx, messagesExpiry, &redis.ZRangeBy{
		Min: exclusiveMin(t),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	cmds := make([]*redis.MapStringStringCmd, 0, len(ids))
	if len(ids) > 0 {
		_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, id := range ids {
				cmds = append(cmds, pipe.HGetAll(ctx, messageKey(id)))
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("fetch messages: %w", err)
		}
	}

	messages := make([]Message, 0, len(cmds))
	for _, cmd := range cmds {
		// swept between the range and the fetch
		if len(cmd.Val()) == 0 {
			continue
		}
		var rm redisMessage
		if err := cmd.Scan(&rm); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, rm.message())
	}

	return messages, nil
}

func (r *RedisCrabRepository) DeleteMessagesExpiredBy(ctx context.Context, t time.Time) (int64, error) {
	ids, err := r.client.ZRangeByScore(ctx, messagesExpiry, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(t.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("list expired messages: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = messageKey(id)
		members[i] = id
	}

	var removed *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		removed = pipe.ZRem(ctx, messagesExpiry, members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete expired messages: %w", err)
	}

	return removed.Val(), nil
}
