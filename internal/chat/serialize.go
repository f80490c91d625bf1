package chat

import (
	"strings"
	"time"

	"github.com/samber/lo"

	"go-messenger/internal/user"
)

// Wire records sent to clients. Rendering is viewer-relative: the same entity
// is rendered once per recipient, never shared across differing viewers.

type userRecord struct {
	Username  string  `json:"username"`
	Name      string  `json:"name"`
	Thumbnail *string `json:"thumbnail"`
}

type messageRecord struct {
	ID      int       `json:"id"`
	IsMe    bool      `json:"is_me"`
	Text    string    `json:"text"`
	Created time.Time `json:"created"`
}

type friendRecord struct {
	ID      int        `json:"id"`
	Friend  userRecord `json:"friend"`
	Preview string     `json:"preview"`
	Updated time.Time  `json:"updated"`
}

type requestRecord struct {
	ID       int        `json:"id"`
	Sender   userRecord `json:"sender"`
	Receiver userRecord `json:"receiver"`
	Created  time.Time  `json:"created"`
}

type searchRecord struct {
	userRecord
	PendingThem bool `json:"pending_them"`
	PendingMe   bool `json:"pending_me"`
	Connected   bool `json:"connected"`
}

type conversationRecord struct {
	Messages []messageRecord `json:"messages"`
	Friend   userRecord      `json:"friend"`
}

func renderUser(u user.User) userRecord {
	rec := userRecord{
		Username: u.Username,
		Name:     strings.TrimSpace(u.FirstName + " " + u.LastName),
	}
	if u.Thumbnail != "" {
		rec.Thumbnail = &u.Thumbnail
	}
	return rec
}

func renderMessage(m Message, viewer *user.User) messageRecord {
	return messageRecord{
		ID:      m.ID,
		IsMe:    m.UserID == viewer.ID,
		Text:    m.Text,
		Created: m.Created,
	}
}

func renderMessages(msgs []Message, viewer *user.User) []messageRecord {
	return lo.Map(msgs, func(m Message, _ int) messageRecord {
		return renderMessage(m, viewer)
	})
}

const newConnectionPreview = "New connection"

func renderFriend(f Friend, viewer *user.User) friendRecord {
	preview := newConnectionPreview
	if f.LatestText != nil {
		preview = *f.LatestText
	}
	return friendRecord{
		ID:      f.ID,
		Friend:  renderUser(f.Other(viewer)),
		Preview: preview,
		Updated: f.Updated,
	}
}

// renderNewFriend renders a just-accepted connection, which cannot have
// messages yet.
func renderNewFriend(c *Connection, viewer *user.User) friendRecord {
	return renderFriend(Friend{Connection: *c}, viewer)
}

func renderRequest(c *Connection) requestRecord {
	return requestRecord{
		ID:       c.ID,
		Sender:   renderUser(c.Sender),
		Receiver: renderUser(c.Receiver),
		Created:  c.Created,
	}
}

func renderSearchResult(res user.SearchResult) searchRecord {
	return searchRecord{
		userRecord:  renderUser(res.User),
		PendingThem: res.PendingThem,
		PendingMe:   res.PendingMe,
		Connected:   res.Connected,
	}
}
