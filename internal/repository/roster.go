package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/joseph-ayodele/responder-tracker/constants"
	"github.com/joseph-ayodele/responder-tracker/internal/pipeline"
)

// RedisConfig configures the live roster connection.
type RedisConfig struct {
	URL         string
	Prefix      string
	TTL         time.Duration
	DialTimeout time.Duration
	PoolSize    int
}

// RosterEntry is a sender's latest status-bearing state in a mission.
type RosterEntry struct {
	Status constants.Status `json:"status"`
	ETA    *time.Time       `json:"eta,omitempty"`
	At     time.Time        `json:"at"`
}

// RedisRoster keeps one hash per mission (sender -> RosterEntry JSON) so the
// context lookup for a new message is a single HGETALL.
type RedisRoster struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisClient parses the URL, applies the pool settings and pings.
func NewRedisClient(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.DialTimeout > 0 {
		opt.DialTimeout = cfg.DialTimeout
	}
	if cfg.PoolSize > 0 {
		opt.PoolSize = cfg.PoolSize
	}
	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	if logger != nil {
		logger.Info("successfully connected to redis", "addr", opt.Addr)
	}
	return rdb, nil
}

func NewRedisRoster(rdb *redis.Client, prefix string, ttl time.Duration, logger *slog.Logger) *RedisRoster {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "responders"
	}
	return &RedisRoster{rdb: rdb, prefix: prefix, ttl: ttl, logger: logger}
}

func (r *RedisRoster) key(missionID string) string {
	return fmt.Sprintf("%s:mission:%s:roster", r.prefix, missionID)
}

// Track records the sender's state. Informational and Unknown results do
// not replace a known state; an entry older than the stored one is ignored.
func (r *RedisRoster) Track(ctx context.Context, missionID, sender string, res pipeline.Result, at time.Time) error {
	if res.Status == constants.StatusInformational || res.Status == constants.StatusUnknown {
		return nil
	}
	key := r.key(missionID)
	entry := RosterEntry{Status: res.Status, ETA: res.ETATimestampUTC, At: at.UTC()}

	return r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, key, sender).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			var prev RosterEntry
			if json.Unmarshal([]byte(cur), &prev) == nil && prev.At.After(entry.At) {
				r.logger.Debug("roster.track.stale", "mission_id", missionID, "sender", sender)
				return nil
			}
		}
		blob, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, sender, blob)
			if r.ttl > 0 {
				p.Expire(ctx, key, r.ttl)
			}
			return nil
		})
		return err
	}, key)
}

func (r *RedisRoster) entries(ctx context.Context, missionID string) (map[string]RosterEntry, error) {
	raw, err := r.rdb.HGetAll(ctx, r.key(missionID)).Result()
	if err != nil {
		r.logger.Error("roster.read.failed", "mission_id", missionID, "error", err)
		return nil, fmt.Errorf("read roster: %w", err)
	}
	out := make(map[string]RosterEntry, len(raw))
	for sender, blob := range raw {
		var e RosterEntry
		if err := json.Unmarshal([]byte(blob), &e); err != nil {
			r.logger.Warn("roster.entry.corrupt", "mission_id", missionID, "sender", sender, "error", err)
			continue
		}
		out[sender] = e
	}
	return out, nil
}

// LatestETA implements RosterReader. Only the newest state is kept, so an
// entry at or after before (a replayed message) yields nil.
func (r *RedisRoster) LatestETA(ctx context.Context, missionID, sender string, before time.Time) (*time.Time, error) {
	all, err := r.entries(ctx, missionID)
	if err != nil {
		return nil, err
	}
	e, ok := all[sender]
	if !ok || !e.At.Before(before) || !e.Status.Active() || e.ETA == nil {
		return nil, nil
	}
	eta := *e.ETA
	return &eta, nil
}

// ActivePeers implements RosterReader.
func (r *RedisRoster) ActivePeers(ctx context.Context, missionID, excludeSender string, before, ref time.Time) ([]pipeline.PeerETA, error) {
	all, err := r.entries(ctx, missionID)
	if err != nil {
		return nil, err
	}
	var peers []pipeline.PeerETA
	for sender, e := range all {
		if sender == excludeSender || !e.At.Before(before) || !e.Status.Active() || e.ETA == nil {
			continue
		}
		peers = append(peers, pipeline.PeerETA{
			Name:                sender,
			MinutesUntilArrival: int(math.Round(e.ETA.Sub(ref).Minutes())),
		})
	}
	sortPeers(peers)
	return peers, nil
}
