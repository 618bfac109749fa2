package hub

import (
	"encoding/json"
	"strconv"
	"strings"
)

// inbound
const (
	EventAuthenticate = "authenticate"
	EventChannelJoin  = "channel:join"
	EventChannelLeave = "channel:leave"
)

// both directions
const (
	EventMessageNew    = "message:new"
	EventMessageUpdate = "message:update"
	EventMessageDelete = "message:delete"
	EventTypingStart   = "typing:start"
	EventTypingStop    = "typing:stop"
)

// outbound
const (
	EventAuthenticated = "authenticated"
	EventError         = "error"
	EventUserOnline    = "user:online"
	EventUserOffline   = "user:offline"
	EventChannelUpdate = "channel:update"
	EventChannelDelete = "channel:delete"
	EventServerUpdate  = "server:update"
	EventServerDelete  = "server:delete"
)

// Envelope is one websocket text frame: a named event and its payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type AuthenticatedPayload struct {
	UserID int64 `json:"userId,string"`
}

type PresencePayload struct {
	UserID   int64  `json:"userId,string"`
	Username string `json:"username"`
}

type MessageDeletedPayload struct {
	ChannelID int64 `json:"channelId,string"`
	MessageID int64 `json:"messageId,string"`
}

type TypingPayload struct {
	ChannelID int64  `json:"channelId,string"`
	UserID    int64  `json:"userId,string"`
	Username  string `json:"username,omitempty"`
}

type ChannelDeletedPayload struct {
	ChannelID int64 `json:"channelId,string"`
	ServerID  int64 `json:"serverId,string"`
}

type ServerDeletedPayload struct {
	ServerID int64 `json:"serverId,string"`
}

// ID accepts a snowflake sent either as a JSON string or a JSON number.
type ID int64

func (id *ID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*id = ID(n)
	return nil
}

// inbound payloads

type channelRef struct {
	ChannelID ID `json:"channelId"`
}

type messageRelay struct {
	ChannelID ID `json:"channelId"`
	Message   struct {
		ID ID `json:"id"`
	} `json:"message"`
}

type deleteRelay struct {
	ChannelID ID `json:"channelId"`
	MessageID ID `json:"messageId"`
}

// parseChannelRef accepts a bare id ("123" or 123) or {"channelId": ...}.
func parseChannelRef(data json.RawMessage) (int64, error) {
	var id ID
	if err := json.Unmarshal(data, &id); err == nil {
		return int64(id), nil
	}

	var ref channelRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return 0, err
	}
	return int64(ref.ChannelID), nil
}

// parseToken accepts a bare string or {"token": "..."}.
func parseToken(data json.RawMessage) string {
	var token string
	if err := json.Unmarshal(data, &token); err == nil {
		return token
	}

	var wrapped struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil {
		return wrapped.Token
	}
	return ""
}
