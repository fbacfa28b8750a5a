package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smallnest/researchchat/store"
)

// Store implements store.Store on Redis.
//
// Keys, all under the configured prefix:
//
//	session:<id>             JSON session record
//	session:<id>:messages    list of JSON messages
//	session:<id>:documents   hash of document id to JSON document
//	session:<id>:docorder    list of document ids in upload order
//	sessions                 sorted set of session ids by update time
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // key prefix, default "researchchat:"
	TTL      time.Duration // expiry of a session's keys after its last write, 0 keeps them
}

// New creates a Redis store.
func New(opts Options) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "researchchat:"
	}
	return &Store{client: client, prefix: prefix, ttl: opts.TTL, now: time.Now}
}

func (s *Store) sessionKey(id string) string   { return s.prefix + "session:" + id }
func (s *Store) messagesKey(id string) string  { return s.sessionKey(id) + ":messages" }
func (s *Store) documentsKey(id string) string { return s.sessionKey(id) + ":documents" }
func (s *Store) docOrderKey(id string) string  { return s.sessionKey(id) + ":docorder" }
func (s *Store) indexKey() string              { return s.prefix + "sessions" }

func (s *Store) keys(id string) []string {
	return []string{s.sessionKey(id), s.messagesKey(id), s.documentsKey(id), s.docOrderKey(id)}
}

func score(t time.Time) float64 { return float64(t.UnixNano()) }

// Close closes the client.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) load(ctx context.Context, c redis.Cmdable, id string) (*store.Session, error) {
	data, err := c.Get(ctx, s.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session from redis: %w", err)
	}
	var sess store.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

// write stores sess and refreshes its index entry and expiry inside pipe.
func (s *Store) write(ctx context.Context, pipe redis.Pipeliner, sess *store.Session) error {
	sess.DocumentCount = 0
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	pipe.Set(ctx, s.sessionKey(sess.ID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: score(sess.UpdatedAt), Member: sess.ID})
	if s.ttl > 0 {
		for _, k := range s.keys(sess.ID)[1:] {
			pipe.Expire(ctx, k, s.ttl)
		}
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, title string) (*store.Session, error) {
	sess := store.NewSession(title, s.now())
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return s.write(ctx, pipe, sess)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*store.Session, error) {
	sess, err := s.load(ctx, s.client, id)
	if err != nil {
		return nil, err
	}
	n, err := s.client.HLen(ctx, s.documentsKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	sess.DocumentCount = int(n)
	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context) ([]*store.Session, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	out := make([]*store.Session, 0, len(ids))
	var expired []any
	for _, id := range ids {
		sess, err := s.GetSession(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			expired = append(expired, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if len(expired) > 0 {
		s.client.ZRem(ctx, s.indexKey(), expired...)
	}
	return out, nil
}

func (s *Store) UpdateSessionTitle(ctx context.Context, id, title string) error {
	return s.update(ctx, id, func(sess *store.Session, _ redis.Pipeliner) error {
		sess.Title = title
		sess.UpdatedAt = s.now().UTC()
		return nil
	})
}

// update runs fn on the current session record under WATCH and writes the
// result back in the same transaction.
func (s *Store) update(ctx context.Context, id string, fn func(*store.Session, redis.Pipeliner) error) error {
	key := s.sessionKey(id)
	txf := func(tx *redis.Tx) error {
		sess, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if err := fn(sess, pipe); err != nil {
				return err
			}
			return s.write(ctx, pipe, sess)
		})
		return err
	}
	for range 10 {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("session %s: too much contention", id)
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, s.keys(id)...).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	removed, err := s.client.ZRem(ctx, s.indexKey(), id).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n == 0 && removed == 0 {
		return fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) SaveMessage(ctx context.Context, m *store.Message) error {
	store.PrepareMessage(m, s.now())
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return s.update(ctx, m.SessionID, func(sess *store.Session, pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.messagesKey(m.SessionID), data)
		sess.Touch(m)
		return nil
	})
}

func (s *Store) LoadMessages(ctx context.Context, sessionID string) ([]*store.Message, error) {
	if _, err := s.load(ctx, s.client, sessionID); err != nil {
		return nil, err
	}
	items, err := s.client.LRange(ctx, s.messagesKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load messages from redis: %w", err)
	}
	out := make([]*store.Message, 0, len(items))
	for _, item := range items {
		var m store.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		out = append(out, &m)
	}
	return out, nil
}

func (s *Store) SaveDocument(ctx context.Context, d *store.Document) error {
	store.PrepareDocument(d, s.now())
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	return s.update(ctx, d.SessionID, func(sess *store.Session, pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.documentsKey(d.SessionID), d.ID, data)
		pipe.RPush(ctx, s.docOrderKey(d.SessionID), d.ID)
		return nil
	})
}

func (s *Store) ListDocuments(ctx context.Context, sessionID string) ([]*store.Document, error) {
	if _, err := s.load(ctx, s.client, sessionID); err != nil {
		return nil, err
	}
	ids, err := s.client.LRange(ctx, s.docOrderKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	if len(ids) == 0 {
		return []*store.Document{}, nil
	}
	values, err := s.client.HMGet(ctx, s.documentsKey(sessionID), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch documents: %w", err)
	}
	out := make([]*store.Document, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var d store.Document
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document: %w", err)
		}
		out = append(out, &d)
	}
	return out, nil
}

func (s *Store) DeleteDocument(ctx context.Context, sessionID, id string) error {
	pipe := s.client.TxPipeline()
	del := pipe.HDel(ctx, s.documentsKey(sessionID), id)
	pipe.LRem(ctx, s.docOrderKey(sessionID), 0, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("document %s: %w", id, store.ErrNotFound)
	}
	return nil
}
