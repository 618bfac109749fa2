package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"chathub-backend/internal/database"
	"chathub-backend/internal/fileHandlers"
	"chathub-backend/internal/jwt"
	"chathub-backend/internal/models"
	"chathub-backend/internal/snowflake"
	"chathub-backend/internal/store"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var baseTime = time.UnixMilli(1_700_000_000_000).UTC()

// steppingClock advances one millisecond per reading so every id gets its
// own creation instant.
type steppingClock struct {
	mutex sync.Mutex
	now   time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type recordingBroadcaster struct {
	mutex  sync.Mutex
	events []string
}

func (b *recordingBroadcaster) record(format string, args ...any) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.events = append(b.events, fmt.Sprintf(format, args...))
}

func (b *recordingBroadcaster) Events() []string {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return append([]string(nil), b.events...)
}

func (b *recordingBroadcaster) MessageCreated(channelID int64, msg *models.Message) {
	b.record("message:new %d %d", channelID, msg.ID)
}

func (b *recordingBroadcaster) MessageUpdated(channelID int64, msg *models.Message) {
	b.record("message:update %d %d", channelID, msg.ID)
}

func (b *recordingBroadcaster) MessageDeleted(channelID int64, messageID int64) {
	b.record("message:delete %d %d", channelID, messageID)
}

func (b *recordingBroadcaster) ChannelUpdated(ch *models.Channel) {
	b.record("channel:update %d", ch.ID)
}

func (b *recordingBroadcaster) ChannelDeleted(channelID int64, serverID int64) {
	b.record("channel:delete %d %d", channelID, serverID)
}

func (b *recordingBroadcaster) ServerUpdated(srv *models.Server, channelIDs []int64) {
	b.record("server:update %d %v", srv.ID, channelIDs)
}

func (b *recordingBroadcaster) ServerDeleted(serverID int64, channelIDs []int64) {
	b.record("server:delete %d %v", serverID, channelIDs)
}

type testEnv struct {
	store    *store.Store
	ids      *snowflake.Generator
	issuer   *jwt.Issuer
	bus      *recordingBroadcaster
	blobs    *fileHandlers.LocalStore
	auth     *AuthService
	servers  *ServerService
	channels *ChannelService
	messages *MessageService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := &steppingClock{now: baseTime}
	return newTestEnvWithClock(t, clock.Now)
}

// newTestEnvWithClock builds the services on an id generator reading now.
func newTestEnvWithClock(t *testing.T, now func() time.Time) *testEnv {
	t.Helper()
	sugar := zap.NewNop().Sugar()

	db, err := database.OpenSQLite(":memory:", sugar)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, goose.DialectSQLite3, sugar))

	ids, err := snowflake.New(1)
	require.NoError(t, err)
	ids.WithClock(now)

	blobs, err := fileHandlers.NewLocalStore(t.TempDir(), "/uploads")
	require.NoError(t, err)

	st := store.New(db)
	issuer := jwt.NewIssuer("access-secret", "refresh-secret", time.Minute, time.Hour)
	bus := &recordingBroadcaster{}

	return &testEnv{
		store:    st,
		ids:      ids,
		issuer:   issuer,
		bus:      bus,
		blobs:    blobs,
		auth:     NewAuthService(st, issuer, ids, sugar),
		servers:  NewServerService(st, ids, bus, sugar),
		channels: NewChannelService(st, ids, bus, sugar),
		messages: NewMessageService(st, ids, blobs, bus, sugar),
	}
}

func (e *testEnv) user(t *testing.T, name string) int64 {
	t.Helper()
	id, err := e.ids.Generate()
	require.NoError(t, err)

	require.NoError(t, e.store.CreateUser(context.Background(), &models.User{
		ID:           id,
		Email:        name + "@example.com",
		Username:     name,
		PasswordHash: []byte("unused"),
		Status:       models.StatusOffline,
		CreatedAt:    baseTime,
	}))
	return id
}

// server creates a server owned by ownerID and returns it with its text channel.
func (e *testEnv) server(t *testing.T, ownerID int64) (*models.ServerDetail, int64) {
	t.Helper()
	detail, err := e.servers.Create(context.Background(), ownerID, CreateServerInput{Name: "Test"})
	require.NoError(t, err)
	return detail, detail.Channels[0].ID
}

func (e *testEnv) join(t *testing.T, userID int64, serverID int64) {
	t.Helper()
	_, err := e.servers.Join(context.Background(), userID, serverID)
	require.NoError(t, err)
}

func (e *testEnv) post(t *testing.T, userID int64, channelID int64, content string) *models.Message {
	t.Helper()
	msg, err := e.messages.Create(context.Background(), userID, channelID, content, nil)
	require.NoError(t, err)
	return msg
}
