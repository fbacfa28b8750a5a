package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/researchchat/store"
	"github.com/smallnest/researchchat/store/storetest"
)

func open(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := New(Options{Addr: mr.Addr()})
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, _ := open(t)
		return s
	})
}

func TestStore_KeyLayout(t *testing.T) {
	ctx := context.Background()
	s, mr := open(t)

	sess, err := s.CreateSession(ctx, "anahtarlar")
	require.NoError(t, err)
	require.NoError(t, s.SaveMessage(ctx, &store.Message{SessionID: sess.ID, Role: store.RoleUser, Content: "a"}))

	assert.True(t, mr.Exists("researchchat:session:"+sess.ID))
	assert.True(t, mr.Exists("researchchat:session:"+sess.ID+":messages"))
	members, err := mr.ZMembers("researchchat:sessions")
	require.NoError(t, err)
	assert.Equal(t, []string{sess.ID}, members)
}

func TestStore_TTLExpiresSessions(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	s := New(Options{Addr: mr.Addr(), Prefix: "t:", TTL: time.Minute})
	defer s.Close()

	sess, err := s.CreateSession(ctx, "geçici")
	require.NoError(t, err)
	require.NoError(t, s.SaveMessage(ctx, &store.Message{SessionID: sess.ID, Role: store.RoleUser, Content: "a"}))
	assert.Equal(t, time.Minute, mr.TTL("t:session:"+sess.ID+":messages"))

	mr.FastForward(2 * time.Minute)

	_, err = s.GetSession(ctx, sess.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	list, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	members, _ := mr.ZMembers("t:sessions")
	assert.Empty(t, members)
}

func TestStore_ConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	s, _ := open(t)
	sess, err := s.CreateSession(ctx, "eşzamanlı")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.SaveMessage(ctx, &store.Message{SessionID: sess.ID, Role: store.RoleAI, Content: "x"}))
		}()
	}
	wg.Wait()

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.MessageCount)
	msgs, err := s.LoadMessages(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 5)
}
