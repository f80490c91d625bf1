package chat

import (
	"errors"
	"time"

	"go-messenger/internal/user"
)

// ErrNotFound is the recoverable lookup failure: the handler that hits it
// aborts without broadcasting and the session stays open.
var ErrNotFound = errors.New("not found")

// Connection is a friend link (or pending friend request) between two users.
// Distinct from the transport-level websocket connection.
type Connection struct {
	ID       int
	Sender   user.User
	Receiver user.User
	Accepted bool
	Created  time.Time
	Updated  time.Time
}

// Other returns the party of the connection that is not the viewer.
func (c *Connection) Other(viewer *user.User) user.User {
	if c.Sender.ID == viewer.ID {
		return c.Receiver
	}
	return c.Sender
}

type Message struct {
	ID           int
	ConnectionID int
	UserID       int
	Text         string
	Created      time.Time
}

// Friend is an accepted connection annotated with its latest message, used to
// build the friend list. Latest* are nil when no message has been sent yet.
type Friend struct {
	Connection
	LatestText    *string
	LatestCreated *time.Time
}

// LastActive is the friend-list sort key: the latest message time, falling
// back to the connection's updated time for fresh connections.
func (f *Friend) LastActive() time.Time {
	if f.LatestCreated != nil {
		return *f.LatestCreated
	}
	return f.Updated
}
