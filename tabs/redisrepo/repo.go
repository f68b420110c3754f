// Package redisrepo backs the shared tab store with Redis: the tab map lives
// as a JSON blob under one key, the process-wide current token under a
// second, and change notification rides Redis pub/sub. Every handle carries
// an origin ID and ignores its own publishes, so subscribers fire only for
// writes made elsewhere - including other processes.
package redisrepo

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-portal-sessions/tabs"
)

const (
	defaultRecordsKey = "portal:tabs"
	defaultTokenKey   = "portal:active_token"
	defaultChannel    = "portal:tabs:changed"
)

type changeMessage struct {
	Origin string `json:"origin"`
}

// Repo is a Redis-backed handle on the shared tab store.
type Repo struct {
	client     *redis.Client
	origin     string
	recordsKey string
	tokenKey   string
	channel    string
	logger     zerolog.Logger

	subLock     sync.Mutex
	subscribers map[int]func(map[string]tabs.TabRecord)
	nextSubID   int
	pubsub      *redis.PubSub
	cancel      context.CancelFunc
}

var _ tabs.Repo = (*Repo)(nil)

// Option modifies a Repo instance.
type Option func(*Repo)

// WithKeyPrefix replaces the default "portal" prefix on keys and channel.
func WithKeyPrefix(prefix string) Option {
	return func(r *Repo) {
		r.recordsKey = prefix + ":tabs"
		r.tokenKey = prefix + ":active_token"
		r.channel = prefix + ":tabs:changed"
	}
}

// WithLogger sets the repo's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Repo) {
		r.logger = logger
	}
}

// New creates a handle on the Redis-backed store. Each handle represents one
// tab context and has its own origin ID.
func New(client *redis.Client, options ...Option) (*Repo, error) {
	if client == nil {
		return nil, errors.New("[redisrepo.New] client is required")
	}
	r := &Repo{
		client:     client,
		origin:     uuid.NewString(),
		recordsKey: defaultRecordsKey,
		tokenKey:   defaultTokenKey,
		channel:    defaultChannel,
		logger:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

func (r *Repo) ReadAll(ctx context.Context) (map[string]tabs.TabRecord, error) {
	records := make(map[string]tabs.TabRecord)
	data, err := r.client.Get(ctx, r.recordsKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return records, nil
		}
		return nil, errors.Wrap(err, "[redisrepo.ReadAll] GET")
	}
	// A corrupt blob reads as empty and self-heals on the next write.
	if err := json.Unmarshal(data, &records); err != nil {
		return make(map[string]tabs.TabRecord), nil
	}
	return records, nil
}

func (r *Repo) WriteAll(ctx context.Context, records map[string]tabs.TabRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return errors.Wrap(err, "[redisrepo.WriteAll] marshal records")
	}
	if err := r.client.Set(ctx, r.recordsKey, data, 0).Err(); err != nil {
		return errors.Wrap(err, "[redisrepo.WriteAll] SET")
	}

	msg, err := json.Marshal(changeMessage{Origin: r.origin})
	if err != nil {
		return errors.Wrap(err, "[redisrepo.WriteAll] marshal change message")
	}
	if err := r.client.Publish(ctx, r.channel, msg).Err(); err != nil {
		return errors.Wrap(err, "[redisrepo.WriteAll] PUBLISH")
	}
	return nil
}

func (r *Repo) ActiveToken(ctx context.Context) (string, error) {
	token, err := r.client.Get(ctx, r.tokenKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", errors.Wrap(err, "[redisrepo.ActiveToken] GET")
	}
	return token, nil
}

func (r *Repo) SetActiveToken(ctx context.Context, token string) error {
	if token == "" {
		if err := r.client.Del(ctx, r.tokenKey).Err(); err != nil {
			return errors.Wrap(err, "[redisrepo.SetActiveToken] DEL")
		}
		return nil
	}
	if err := r.client.Set(ctx, r.tokenKey, token, 0).Err(); err != nil {
		return errors.Wrap(err, "[redisrepo.SetActiveToken] SET")
	}
	return nil
}

// Subscribe registers fn for changes published by other handles. The first
// subscription starts the pub/sub listener; Close stops it.
func (r *Repo) Subscribe(fn func(map[string]tabs.TabRecord)) func() {
	r.subLock.Lock()
	defer r.subLock.Unlock()

	if r.subscribers == nil {
		r.subscribers = make(map[int]func(map[string]tabs.TabRecord))
	}
	id := r.nextSubID
	r.nextSubID++
	r.subscribers[id] = fn

	if r.pubsub == nil {
		ctx, cancel := context.WithCancel(context.Background())
		r.cancel = cancel
		r.pubsub = r.client.Subscribe(ctx, r.channel)
		go r.listen(ctx, r.pubsub)
	}

	return func() {
		r.subLock.Lock()
		defer r.subLock.Unlock()
		delete(r.subscribers, id)
	}
}

// Close stops the pub/sub listener. The handle remains usable for reads and
// writes afterwards.
func (r *Repo) Close() error {
	r.subLock.Lock()
	defer r.subLock.Unlock()

	if r.pubsub == nil {
		return nil
	}
	r.cancel()
	err := r.pubsub.Close()
	r.pubsub = nil
	return err
}

func (r *Repo) listen(ctx context.Context, pubsub *redis.PubSub) {
	for msg := range pubsub.Channel() {
		var change changeMessage
		if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
			r.logger.Err(err).Msg("malformed tab change message")
			continue
		}
		if change.Origin == r.origin {
			continue
		}

		records, err := r.ReadAll(ctx)
		if err != nil {
			r.logger.Err(err).Msg("failed to re-read tab records after change")
			continue
		}
		r.publish(records)
	}
}

func (r *Repo) publish(records map[string]tabs.TabRecord) {
	r.subLock.Lock()
	subscribers := make([]func(map[string]tabs.TabRecord), 0, len(r.subscribers))
	for _, fn := range r.subscribers {
		subscribers = append(subscribers, fn)
	}
	r.subLock.Unlock()

	for _, fn := range subscribers {
		fn(records)
	}
}
