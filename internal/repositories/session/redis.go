package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/KirkDiggler/turnkeep/internal/models"
	"github.com/KirkDiggler/turnkeep/internal/services/outcome"
)

const (
	// Key prefixes for Redis
	sessionKeyPrefix = "session:"
	channelKeyPrefix = "session:channel:"
	claimKeyPrefix   = "session:claim:"
	outcomeKeyPrefix = "session:outcome:"
	activeSessionKey = "active_sessions"
)

var (
	// ErrSessionNotFound is returned when a session is not found
	ErrSessionNotFound = errors.New("session not found")

	// ErrOutcomeNotFound is returned when a session has no stored outcome
	ErrOutcomeNotFound = errors.New("outcome not found")

	// ErrClaimContended is returned when the claim keeps changing hands
	// while it is being read
	ErrClaimContended = errors.New("session claim is contended")
)

// Config holds configuration for the Redis session repository
type Config struct {
	// Redis client
	RedisClient *redis.Client
}

// redisRepository implements the Repository interface using Redis
type redisRepository struct {
	client *redis.Client
}

// NewRedis creates a new Redis-backed session repository
func NewRedis(cfg *Config) (*redisRepository, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.RedisClient == nil {
		return nil, errors.New("redis client cannot be nil")
	}

	if err := cfg.RedisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &redisRepository{
		client: cfg.RedisClient,
	}, nil
}

// SaveSession persists a session to Redis
func (r *redisRepository) SaveSession(ctx context.Context, input *SaveSessionInput) error {
	if input == nil || input.Session == nil {
		return errors.New("input and session cannot be nil")
	}
	if input.Session.ID == "" {
		return errors.New("session ID cannot be empty")
	}

	sessionJSON, err := json.Marshal(input.Session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+input.Session.ID, sessionJSON, 0)

	if input.Session.ChannelID != "" {
		pipe.Set(ctx, channelKeyPrefix+input.Session.ChannelID, input.Session.ID, 0)
	}

	if input.Session.State.IsTerminal() {
		pipe.SRem(ctx, activeSessionKey, input.Session.ID)
	} else {
		pipe.SAdd(ctx, activeSessionKey, input.Session.ID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

// GetSession retrieves a session by ID from Redis
func (r *redisRepository) GetSession(ctx context.Context, input *GetSessionInput) (*models.Session, error) {
	if input == nil || input.SessionID == "" {
		return nil, errors.New("input and session ID cannot be empty")
	}

	sessionJSON, err := r.client.Get(ctx, sessionKeyPrefix+input.SessionID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal([]byte(sessionJSON), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

// GetSessionByChannel retrieves a session by channel ID from Redis
func (r *redisRepository) GetSessionByChannel(ctx context.Context, input *GetSessionByChannelInput) (*models.Session, error) {
	if input == nil || input.ChannelID == "" {
		return nil, errors.New("input and channel ID cannot be empty")
	}

	sessionID, err := r.client.Get(ctx, channelKeyPrefix+input.ChannelID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session ID for channel: %w", err)
	}

	return r.GetSession(ctx, &GetSessionInput{
		SessionID: sessionID,
	})
}

// ListActiveSessions retrieves all non-terminated sessions, oldest first
func (r *redisRepository) ListActiveSessions(ctx context.Context, input *ListActiveSessionsInput) (*ListActiveSessionsOutput, error) {
	sessionIDs, err := r.client.SMembers(ctx, activeSessionKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get active session IDs: %w", err)
	}

	if len(sessionIDs) == 0 {
		return &ListActiveSessionsOutput{
			Sessions: []*models.Session{},
		}, nil
	}

	pipe := r.client.Pipeline()
	commands := make(map[string]*redis.StringCmd, len(sessionIDs))
	for _, id := range sessionIDs {
		commands[id] = pipe.Get(ctx, sessionKeyPrefix+id)
	}

	// A missing row fails its own command, not the pipeline
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get active sessions: %w", err)
	}

	sessions := make([]*models.Session, 0, len(sessionIDs))
	for id, cmd := range commands {
		sessionJSON, err := cmd.Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Session was deleted between getting the IDs and fetching it
				continue
			}
			return nil, fmt.Errorf("failed to get session %s: %w", id, err)
		}

		var session models.Session
		if err := json.Unmarshal([]byte(sessionJSON), &session); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session %s: %w", id, err)
		}
		sessions = append(sessions, &session)
	}

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})

	return &ListActiveSessionsOutput{
		Sessions: sessions,
	}, nil
}

// DeleteSession removes a session from Redis
func (r *redisRepository) DeleteSession(ctx context.Context, input *DeleteSessionInput) error {
	if input == nil || input.SessionID == "" {
		return errors.New("input and session ID cannot be empty")
	}

	session, err := r.GetSession(ctx, &GetSessionInput{
		SessionID: input.SessionID,
	})
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx,
		sessionKeyPrefix+input.SessionID,
		claimKeyPrefix+input.SessionID,
		outcomeKeyPrefix+input.SessionID,
	)
	if session.ChannelID != "" {
		pipe.Del(ctx, channelKeyPrefix+session.ChannelID)
	}
	pipe.SRem(ctx, activeSessionKey, input.SessionID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}

// ClaimSession sets the claim key only if nobody holds it yet. Re-claiming
// by the current holder succeeds and renews the TTL.
func (r *redisRepository) ClaimSession(ctx context.Context, input *ClaimSessionInput) (*ClaimSessionOutput, error) {
	if input == nil || input.SessionID == "" || input.ObserverID == "" {
		return nil, errors.New("input, session ID and observer ID cannot be empty")
	}

	return r.claim(ctx, input, true)
}

func (r *redisRepository) claim(ctx context.Context, input *ClaimSessionInput, retry bool) (*ClaimSessionOutput, error) {
	key := claimKeyPrefix + input.SessionID
	ok, err := r.client.SetNX(ctx, key, input.ObserverID, input.TTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim session: %w", err)
	}
	if ok {
		return &ClaimSessionOutput{Claimed: true, Owner: input.ObserverID}, nil
	}

	owner, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// The claim expired between SETNX and GET; try once more
			if retry {
				return r.claim(ctx, input, false)
			}
			return nil, ErrClaimContended
		}
		return nil, fmt.Errorf("failed to read session claim: %w", err)
	}

	if owner == input.ObserverID && input.TTL > 0 {
		if err := r.client.Expire(ctx, key, input.TTL).Err(); err != nil {
			return nil, fmt.Errorf("failed to renew session claim: %w", err)
		}
	}

	return &ClaimSessionOutput{
		Claimed: owner == input.ObserverID,
		Owner:   owner,
	}, nil
}

// SaveOutcome persists an outcome snapshot to Redis
func (r *redisRepository) SaveOutcome(ctx context.Context, input *SaveOutcomeInput) error {
	if input == nil || input.SessionID == "" || input.Snapshot == nil {
		return errors.New("input, session ID and snapshot cannot be empty")
	}

	snapshotJSON, err := json.Marshal(input.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	if err := r.client.Set(ctx, outcomeKeyPrefix+input.SessionID, snapshotJSON, 0).Err(); err != nil {
		return fmt.Errorf("failed to save outcome: %w", err)
	}

	return nil
}

// GetOutcome retrieves an outcome snapshot from Redis
func (r *redisRepository) GetOutcome(ctx context.Context, input *GetOutcomeInput) (*outcome.Snapshot, error) {
	if input == nil || input.SessionID == "" {
		return nil, errors.New("input and session ID cannot be empty")
	}

	snapshotJSON, err := r.client.Get(ctx, outcomeKeyPrefix+input.SessionID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrOutcomeNotFound
		}
		return nil, fmt.Errorf("failed to get outcome: %w", err)
	}

	var snap outcome.Snapshot
	if err := json.Unmarshal([]byte(snapshotJSON), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outcome: %w", err)
	}

	return &snap, nil
}
