// Package access holds the permission predicates. They only look at records
// already loaded by the caller, so they never touch the network or storage.
// A nil membership means the user is not a member of the server.
package access

import (
	"chathub-backend/internal/models"
)

func isMember(userID int64, serverID int64, m *models.ServerMember) bool {
	return m != nil && m.UserID == userID && m.ServerID == serverID
}

func CanReadChannel(userID int64, ch *models.Channel, m *models.ServerMember) bool {
	return ch != nil && isMember(userID, ch.ServerID, m)
}

func CanWriteChannel(userID int64, ch *models.Channel, m *models.ServerMember) bool {
	return CanReadChannel(userID, ch, m)
}

// CanManageChannel covers creating, updating and deleting channels of the server.
func CanManageChannel(userID int64, serverID int64, m *models.ServerMember) bool {
	return isMember(userID, serverID, m) && m.Role.IsManager()
}

func CanEditMessage(userID int64, msg *models.Message) bool {
	return msg != nil && msg.AuthorID == userID
}

// CanDeleteMessage allows the author, or an owner/admin of the server the
// message's channel belongs to. m must be the deleter's membership in that server.
func CanDeleteMessage(userID int64, msg *models.Message, m *models.ServerMember) bool {
	if msg == nil {
		return false
	}
	if msg.AuthorID == userID {
		return true
	}
	return m != nil && m.UserID == userID && m.Role.IsManager()
}

func CanManageServer(userID int64, srv *models.Server) bool {
	return srv != nil && srv.OwnerID == userID
}
