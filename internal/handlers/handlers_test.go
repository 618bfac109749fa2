package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"

	"chathub-backend/internal/config"
	"chathub-backend/internal/database"
	"chathub-backend/internal/fileHandlers"
	"chathub-backend/internal/hub"
	"chathub-backend/internal/jwt"
	"chathub-backend/internal/keyValue"
	"chathub-backend/internal/models"
	"chathub-backend/internal/ratelimit"
	"chathub-backend/internal/services"
	"chathub-backend/internal/snowflake"
	"chathub-backend/internal/store"

	"github.com/gorilla/websocket"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

type testServer struct {
	*httptest.Server
	store *store.Store
}

func newTestServer(t *testing.T, rateLimit int) *testServer {
	t.Helper()
	sugar := zap.NewNop().Sugar()

	db, err := database.OpenSQLite(":memory:", sugar)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, goose.DialectSQLite3, sugar))

	cfg := &config.Config{MaxUploadSize: 1 << 20, MaxUploadFiles: 2}
	st := store.New(db)
	cache := keyValue.NewMemory(sugar)
	issuer := jwt.NewIssuer("access-secret", "refresh-secret", time.Minute, time.Hour)

	ids, err := snowflake.New(1)
	require.NoError(t, err)

	blobs, err := fileHandlers.NewLocalStore(t.TempDir(), "/uploads")
	require.NoError(t, err)

	limiter, err := ratelimit.NewFixedWindowLimiter(cache, sugar, rateLimit, time.Minute)
	require.NoError(t, err)

	h := hub.New(sugar, st, issuer, hub.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.Run(ctx)
		close(done)
	}()

	router := NewRouter(Deps{
		Config:    cfg,
		Sugar:     sugar,
		Issuer:    issuer,
		Users:     st,
		Cache:     cache,
		Limiter:   limiter,
		Auth:      services.NewAuthService(st, issuer, ids, sugar),
		Servers:   services.NewServerService(st, ids, h.Dispatcher(), sugar),
		Channels:  services.NewChannelService(st, ids, h.Dispatcher(), sugar),
		Messages:  services.NewMessageService(st, ids, blobs, h.Dispatcher(), sugar),
		WebSocket: h.HandleWebSocket,
		UploadDir: blobs.Dir(),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})

	return &testServer{Server: srv, store: st}
}

func (s *testServer) do(t *testing.T, method string, path string, token string, body any) (int, apiResponse) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	return s.send(t, req, token)
}

func (s *testServer) send(t *testing.T, req *http.Request, token string) (int, apiResponse) {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var out apiResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return res.StatusCode, out
}

func (s *testServer) register(t *testing.T, username string) services.AuthResult {
	t.Helper()
	status, res := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    username + "@example.com",
		"username": username,
		"password": "secret1",
	})
	require.Equal(t, http.StatusCreated, status, res.Error)

	var auth services.AuthResult
	require.NoError(t, json.Unmarshal(res.Data, &auth))
	return auth
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestScenario(t *testing.T) {
	s := newTestServer(t, 1000)

	alice := s.register(t, "alice")
	require.NotEmpty(t, alice.AccessToken)
	require.NotEmpty(t, alice.RefreshToken)
	token := alice.AccessToken

	status, res := s.do(t, http.MethodPost, "/api/servers", token, map[string]string{"name": "Test"})
	require.Equal(t, http.StatusCreated, status, res.Error)
	server := decode[models.ServerDetail](t, res.Data)
	require.Len(t, server.Channels, 2)
	require.Equal(t, models.ChannelText, server.Channels[0].Type)
	require.Equal(t, models.ChannelVoice, server.Channels[1].Type)
	channelPath := "/api/messages/channel/" + jsonID(server.Channels[0].ID)

	// a live connection in the channel sees the REST mutations
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(s.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	writeEvent(t, conn, hub.EventAuthenticate, token)
	require.Equal(t, hub.EventAuthenticated, readEvent(t, conn).Event)
	writeEvent(t, conn, hub.EventChannelJoin, jsonID(server.Channels[0].ID))
	// a round trip through the socket guarantees the join was handled
	writeEvent(t, conn, "ping", nil)
	require.Equal(t, hub.EventError, readEvent(t, conn).Event)

	status, res = s.do(t, http.MethodPost, channelPath, token, map[string]string{"content": "hello"})
	require.Equal(t, http.StatusCreated, status, res.Error)
	message := decode[models.Message](t, res.Data)
	require.Equal(t, "hello", message.Content)
	require.Equal(t, "alice", message.Author.Username)
	require.Nil(t, message.UpdatedAt)

	env := readEvent(t, conn)
	require.Equal(t, hub.EventMessageNew, env.Event)
	require.Equal(t, message.ID, decode[models.Message](t, env.Data).ID)

	status, res = s.do(t, http.MethodGet, channelPath, token, nil)
	require.Equal(t, http.StatusOK, status)
	history := decode[[]models.Message](t, res.Data)
	require.Len(t, history, 1)
	require.Equal(t, message.ID, history[0].ID)

	messagePath := "/api/messages/" + jsonID(message.ID)
	status, res = s.do(t, http.MethodPatch, messagePath, token, map[string]string{"content": "hello there"})
	require.Equal(t, http.StatusOK, status, res.Error)
	edited := decode[models.Message](t, res.Data)
	require.Equal(t, "hello there", edited.Content)
	require.NotNil(t, edited.UpdatedAt)

	env = readEvent(t, conn)
	require.Equal(t, hub.EventMessageUpdate, env.Event)
	require.NotNil(t, decode[models.Message](t, env.Data).UpdatedAt)

	status, res = s.do(t, http.MethodDelete, messagePath, token, nil)
	require.Equal(t, http.StatusOK, status, res.Error)

	env = readEvent(t, conn)
	require.Equal(t, hub.EventMessageDelete, env.Event)
	require.JSONEq(t, `{"channelId":"`+jsonID(server.Channels[0].ID)+`","messageId":"`+jsonID(message.ID)+`"}`, string(env.Data))

	status, res = s.do(t, http.MethodGet, channelPath, token, nil)
	require.Equal(t, http.StatusOK, status)
	require.Empty(t, decode[[]models.Message](t, res.Data))
}

func TestAuthEndpoints(t *testing.T) {
	s := newTestServer(t, 1000)
	alice := s.register(t, "alice")

	status, res := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "alice@example.com", "username": "other", "password": "secret1",
	})
	require.Equal(t, http.StatusConflict, status)
	require.False(t, res.Success)
	require.Equal(t, "Email already in use", res.Error)

	status, res = s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": "x@example.com"})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "Email, username, and password are required", res.Error)

	status, res = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@example.com", "password": "nope123"})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Invalid credentials", res.Error)

	status, res = s.do(t, http.MethodGet, "/api/auth/me", alice.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	me := decode[models.User](t, res.Data)
	require.Equal(t, "alice", me.Username)

	status, res = s.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": alice.RefreshToken})
	require.Equal(t, http.StatusOK, status, res.Error)
	refreshed := decode[map[string]string](t, res.Data)
	require.NotEmpty(t, refreshed["accessToken"])

	status, _ = s.do(t, http.MethodPost, "/api/auth/logout", alice.AccessToken, map[string]string{"refreshToken": alice.RefreshToken})
	require.Equal(t, http.StatusOK, status)

	status, res = s.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": alice.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "Invalid refresh token", res.Error)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, 1000)

	status, res := s.do(t, http.MethodGet, "/api/servers", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "No token provided", res.Error)

	status, _ = s.do(t, http.MethodGet, "/api/servers", "garbage", nil)
	require.Equal(t, http.StatusUnauthorized, status)

	// a valid token for a user that no longer exists
	issuer := jwt.NewIssuer("access-secret", "refresh-secret", time.Minute, time.Hour)
	ghost, err := issuer.AccessToken(99, "ghost")
	require.NoError(t, err)
	status, res = s.do(t, http.MethodGet, "/api/servers", ghost, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "User not found", res.Error)
}

func TestNonMemberCannotReadChannel(t *testing.T) {
	s := newTestServer(t, 1000)
	alice := s.register(t, "alice")
	mallory := s.register(t, "mallory")

	_, res := s.do(t, http.MethodPost, "/api/servers", alice.AccessToken, map[string]string{"name": "Private"})
	server := decode[models.ServerDetail](t, res.Data)
	channelPath := "/api/messages/channel/" + jsonID(server.Channels[0].ID)

	status, res := s.do(t, http.MethodGet, channelPath, mallory.AccessToken, nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "Channel not found", res.Error)

	status, _ = s.do(t, http.MethodPost, channelPath, mallory.AccessToken, map[string]string{"content": "hi"})
	require.Equal(t, http.StatusNotFound, status)

	status, res = s.do(t, http.MethodGet, "/api/servers/"+jsonID(server.ID), mallory.AccessToken, nil)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "Not a member of this server", res.Error)

	status, _ = s.do(t, http.MethodPost, "/api/servers/"+jsonID(server.ID)+"/join", mallory.AccessToken, nil)
	require.Equal(t, http.StatusCreated, status)

	status, _ = s.do(t, http.MethodGet, channelPath, mallory.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)

	status, res = s.do(t, http.MethodGet, channelPath+"?limit=abc", mallory.AccessToken, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "limit must be a number", res.Error)
}

func TestMultipartAttachment(t *testing.T) {
	s := newTestServer(t, 1000)
	alice := s.register(t, "alice")
	_, res := s.do(t, http.MethodPost, "/api/servers", alice.AccessToken, map[string]string{"name": "Files"})
	server := decode[models.ServerDetail](t, res.Data)
	channelPath := "/api/messages/channel/" + jsonID(server.Channels[0].ID)

	newForm := func(files map[string]string) *http.Request {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		require.NoError(t, mw.WriteField("content", "see attached"))
		for name, contentType := range files {
			header := make(textproto.MIMEHeader)
			header.Set("Content-Disposition", `form-data; name="files"; filename="`+name+`"`)
			header.Set("Content-Type", contentType)
			part, err := mw.CreatePart(header)
			require.NoError(t, err)
			_, err = part.Write([]byte("contents of " + name))
			require.NoError(t, err)
		}
		require.NoError(t, mw.Close())

		req, err := http.NewRequest(http.MethodPost, s.URL+channelPath, &body)
		require.NoError(t, err)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req
	}

	status, res := s.send(t, newForm(map[string]string{"notes.txt": "text/plain"}), alice.AccessToken)
	require.Equal(t, http.StatusCreated, status, res.Error)
	message := decode[models.Message](t, res.Data)
	require.Len(t, message.Attachments, 1)
	require.Equal(t, models.AttachmentText, message.Attachments[0].Type)

	fileRes, err := http.Get(s.URL + message.Attachments[0].URL)
	require.NoError(t, err)
	defer fileRes.Body.Close()
	require.Equal(t, http.StatusOK, fileRes.StatusCode)
	content, err := io.ReadAll(fileRes.Body)
	require.NoError(t, err)
	require.Equal(t, "contents of notes.txt", string(content))

	status, res = s.send(t, newForm(map[string]string{"tool.exe": "application/x-msdownload"}), alice.AccessToken)
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, res.Error, "File type not allowed")

	status, res = s.send(t, newForm(map[string]string{"a.txt": "text/plain", "b.txt": "text/plain", "c.txt": "text/plain"}), alice.AccessToken)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "At most 2 files can be attached", res.Error)
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, 1000)

	status, res := s.do(t, http.MethodGet, "/api/nothing", "", nil)
	require.Equal(t, http.StatusNotFound, status)
	require.False(t, res.Success)
	require.Equal(t, "Route GET /api/nothing not found", res.Error)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, 1000)

	res, err := http.Get(s.URL + "/health")
	require.NoError(t, err)
	defer res.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
	_, err = time.Parse(time.RFC3339, body["timestamp"])
	require.NoError(t, err)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, 2)

	for i := 0; i < 2; i++ {
		status, _ := s.do(t, http.MethodGet, "/api/servers", "", nil)
		require.Equal(t, http.StatusUnauthorized, status)
	}

	status, res := s.do(t, http.MethodGet, "/api/servers", "", nil)
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, "Too many requests, please try again later", res.Error)
}

func jsonID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func writeEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"event": event, "data": data}))
}

// readEvent returns the next non-presence event.
func readEvent(t *testing.T, conn *websocket.Conn) hub.Envelope {
	t.Helper()
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var env hub.Envelope
		require.NoError(t, conn.ReadJSON(&env))
		if env.Event != hub.EventUserOnline && env.Event != hub.EventUserOffline {
			return env
		}
	}
}
