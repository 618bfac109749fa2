package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"chathub-backend/internal/jwt"
	"chathub-backend/internal/models"
	"chathub-backend/internal/store"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	*statusRecorder

	mutex    sync.Mutex
	channels map[int64]*models.Channel
	members  map[[2]int64]*models.ServerMember
	messages map[int64]*models.Message
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		statusRecorder: newStatusRecorder(),
		channels:       make(map[int64]*models.Channel),
		members:        make(map[[2]int64]*models.ServerMember),
		messages:       make(map[int64]*models.Message),
	}
}

func (f *fakeStore) addChannel(id int64, serverID int64) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.channels[id] = &models.Channel{ID: id, ServerID: serverID, Name: "general", Type: models.ChannelText}
}

func (f *fakeStore) addMember(serverID int64, userID int64) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.members[[2]int64{serverID, userID}] = &models.ServerMember{ServerID: serverID, UserID: userID, Role: models.RoleMember}
}

func (f *fakeStore) addMessage(msg *models.Message) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.messages[msg.ID] = msg
}

func (f *fakeStore) FindChannelByID(_ context.Context, id int64) (*models.Channel, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if ch, ok := f.channels[id]; ok {
		return ch, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) FindMember(_ context.Context, serverID int64, userID int64) (*models.ServerMember, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if m, ok := f.members[[2]int64{serverID, userID}]; ok {
		return m, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) FindMessageByID(_ context.Context, id int64) (*models.Message, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if msg, ok := f.messages[id]; ok {
		return msg, nil
	}
	return nil, store.ErrNotFound
}

type testHub struct {
	*Hub
	store  *fakeStore
	issuer *jwt.Issuer
	url    string
}

func newTestHub(t *testing.T, opts Options) *testHub {
	t.Helper()

	fs := newFakeStore()
	issuer := newTestIssuer()
	h := New(zap.NewNop().Sugar(), fs, issuer, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.Run(ctx)
		close(done)
	}()

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})

	return &testHub{Hub: h, store: fs, issuer: issuer, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func (th *testHub) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(th.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// login dials and authenticates, returning once the server confirmed it.
func (th *testHub) login(t *testing.T, userID int64, username string) *websocket.Conn {
	t.Helper()
	conn := th.dial(t)
	send(t, conn, EventAuthenticate, accessToken(t, th.issuer, userID, username))

	env := expectEvent(t, conn, EventAuthenticated)
	require.JSONEq(t, `{"userId":"`+jsonID(userID)+`"}`, string(env.Data))
	return conn
}

func (th *testHub) waitSubscribers(t *testing.T, channelID int64, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(th.Rooms().SubscribersOf(channelID)) == n
	}, time.Second, 5*time.Millisecond)
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Envelope{Event: event, Data: raw}))
}

func readEnvelope(t *testing.T, conn *websocket.Conn) (Envelope, error) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var env Envelope
	err := conn.ReadJSON(&env)
	return env, err
}

// expectEvent returns the next event, skipping presence broadcasts unless
// they are what is expected.
func expectEvent(t *testing.T, conn *websocket.Conn, event string) Envelope {
	t.Helper()
	for {
		env, err := readEnvelope(t, conn)
		require.NoError(t, err)

		if env.Event == event {
			return env
		}
		if env.Event == EventUserOnline || env.Event == EventUserOffline {
			continue
		}
		t.Fatalf("expected %s, got %s: %s", event, env.Event, env.Data)
	}
}

func expectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	for {
		if _, err := readEnvelope(t, conn); err != nil {
			require.False(t, websocket.IsUnexpectedCloseError(err, websocket.ClosePolicyViolation, websocket.CloseAbnormalClosure))
			return
		}
	}
}

func TestAuthenticationFailureClosesConnection(t *testing.T) {
	th := newTestHub(t, Options{})
	conn := th.dial(t)

	send(t, conn, EventAuthenticate, "not-a-token")

	env := expectEvent(t, conn, EventError)
	require.JSONEq(t, `{"message":"Authentication failed"}`, string(env.Data))
	expectClosed(t, conn)

	require.Eventually(t, func() bool { return th.ConnectionCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestUnauthenticatedConnectionTimesOut(t *testing.T) {
	th := newTestHub(t, Options{AuthTimeout: 50 * time.Millisecond})
	conn := th.dial(t)

	env := expectEvent(t, conn, EventError)
	require.JSONEq(t, `{"message":"Authentication timeout"}`, string(env.Data))
	expectClosed(t, conn)
}

func TestEventsRequireAuthentication(t *testing.T) {
	th := newTestHub(t, Options{})
	th.store.addChannel(10, 1)
	conn := th.dial(t)

	send(t, conn, EventChannelJoin, "10")

	env := expectEvent(t, conn, EventError)
	require.JSONEq(t, `{"message":"Not authenticated"}`, string(env.Data))
	require.Empty(t, th.Rooms().SubscribersOf(10))
}

func TestJoinRequiresMembership(t *testing.T) {
	th := newTestHub(t, Options{})
	th.store.addChannel(10, 1)
	conn := th.login(t, 3, "carol")

	send(t, conn, EventChannelJoin, map[string]string{"channelId": "10"})
	env := expectEvent(t, conn, EventError)
	require.JSONEq(t, `{"message":"Channel not found"}`, string(env.Data))

	send(t, conn, EventChannelJoin, 999)
	env = expectEvent(t, conn, EventError)
	require.JSONEq(t, `{"message":"Channel not found"}`, string(env.Data))

	require.Empty(t, th.Rooms().SubscribersOf(10))
}

func TestRoomIsolation(t *testing.T) {
	th := newTestHub(t, Options{})
	th.store.addChannel(10, 1)
	th.store.addChannel(20, 1)
	th.store.addMember(1, 1)
	th.store.addMember(1, 2)

	alice := th.login(t, 1, "alice")
	bob := th.login(t, 2, "bob")

	send(t, alice, EventChannelJoin, "10")
	send(t, bob, EventChannelJoin, "20")
	th.waitSubscribers(t, 10, 1)
	th.waitSubscribers(t, 20, 1)

	th.Dispatcher().MessageCreated(20, &models.Message{ID: 200, ChannelID: 20, Content: "for B"})
	th.Dispatcher().MessageCreated(10, &models.Message{ID: 100, ChannelID: 10, Content: "for A"})

	var got models.Message
	env := expectEvent(t, alice, EventMessageNew)
	require.NoError(t, json.Unmarshal(env.Data, &got))
	require.Equal(t, int64(100), got.ID)

	env = expectEvent(t, bob, EventMessageNew)
	require.NoError(t, json.Unmarshal(env.Data, &got))
	require.Equal(t, int64(200), got.ID)
}

func TestTypingIsRelayedToOthersOnly(t *testing.T) {
	th := newTestHub(t, Options{})
	th.store.addChannel(10, 1)
	th.store.addMember(1, 1)
	th.store.addMember(1, 2)

	alice := th.login(t, 1, "alice")
	bob := th.login(t, 2, "bob")
	send(t, alice, EventChannelJoin, "10")
	send(t, bob, EventChannelJoin, "10")
	th.waitSubscribers(t, 10, 2)

	// payload identity is ignored in favour of the authenticated one
	send(t, alice, EventTypingStart, map[string]string{"channelId": "10", "userId": "2", "username": "mallory"})

	env := expectEvent(t, bob, EventTypingStart)
	require.JSONEq(t, `{"channelId":"10","userId":"1","username":"alice"}`, string(env.Data))

	send(t, alice, EventTypingStop, map[string]string{"channelId": "10"})
	env = expectEvent(t, bob, EventTypingStop)
	require.JSONEq(t, `{"channelId":"10","userId":"1"}`, string(env.Data))

	// alice's next event is the message, not her own typing
	th.Dispatcher().MessageCreated(10, &models.Message{ID: 100, ChannelID: 10})
	expectEvent(t, alice, EventMessageNew)
}

func TestMessageRelayUsesStoredCopy(t *testing.T) {
	th := newTestHub(t, Options{})
	th.store.addChannel(10, 1)
	th.store.addMember(1, 1)
	th.store.addMember(1, 2)
	th.store.addMessage(&models.Message{ID: 100, ChannelID: 10, AuthorID: 1, Content: "stored"})

	alice := th.login(t, 1, "alice")
	bob := th.login(t, 2, "bob")
	send(t, alice, EventChannelJoin, "10")
	send(t, bob, EventChannelJoin, "10")
	th.waitSubscribers(t, 10, 2)

	send(t, alice, EventMessageNew, map[string]any{
		"channelId": "10",
		"message":   map[string]string{"id": "100", "content": "forged"},
	})

	var got models.Message
	env := expectEvent(t, bob, EventMessageNew)
	require.NoError(t, json.Unmarshal(env.Data, &got))
	require.Equal(t, "stored", got.Content)

	send(t, alice, EventMessageDelete, map[string]string{"channelId": "10", "messageId": "100"})
	env = expectEvent(t, alice, EventError)
	require.JSONEq(t, `{"message":"Message still exists"}`, string(env.Data))

	send(t, alice, EventMessageNew, map[string]any{"channelId": "10", "message": map[string]string{"id": "404"}})
	env = expectEvent(t, alice, EventError)
	require.JSONEq(t, `{"message":"Message not found"}`, string(env.Data))
}

func TestPresenceFollowsLastConnection(t *testing.T) {
	th := newTestHub(t, Options{})

	alice := th.login(t, 1, "alice")
	bob1 := th.login(t, 2, "bob")

	env := expectEvent(t, alice, EventUserOnline)
	require.JSONEq(t, `{"userId":"2","username":"bob"}`, string(env.Data))

	bob2 := th.login(t, 2, "bob")
	require.True(t, th.Sessions().IsOnline(2))

	require.NoError(t, bob1.Close())
	require.NoError(t, bob2.Close())

	env = expectEvent(t, alice, EventUserOffline)
	require.JSONEq(t, `{"userId":"2","username":"bob"}`, string(env.Data))

	require.Eventually(t, func() bool {
		return th.store.status(2) == models.StatusOffline
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, models.StatusOnline, th.store.status(1))
}
