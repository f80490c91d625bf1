package chat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/samber/lo"

	"go-messenger/internal/user"
)

// Inbound payload shapes, one per source tag. The source field itself rides in
// the same frame and is decoded separately by Dispatch.

type messageListPayload struct {
	ConnectionID int `json:"connectionId" validate:"required"`
	Page         int `json:"page" validate:"gte=0"`
}

type messageSendPayload struct {
	ConnectionID int    `json:"connectionId" validate:"required"`
	Message      string `json:"message" validate:"required"`
}

type usernamePayload struct {
	Username string `json:"username" validate:"required"`
}

type searchPayload struct {
	Query string `json:"query"`
}

type thumbnailPayload struct {
	Base64   string `json:"base64" validate:"required"`
	Filename string `json:"filename" validate:"required"`
}

// handleFriendList answers with the viewer's accepted connections, most
// recently active first: latest message time, falling back to the
// connection's updated time when no message exists.
func (d *Dispatcher) handleFriendList(ctx context.Context, viewer *user.User, _ json.RawMessage) ([]Broadcast, error) {
	friends, err := d.store.ListFriends(ctx, viewer.ID)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(friends, func(i, j int) bool {
		return friends[i].LastActive().After(friends[j].LastActive())
	})

	data := lo.Map(friends, func(f Friend, _ int) friendRecord {
		return renderFriend(f, viewer)
	})
	return []Broadcast{{Group: viewer.Username, Source: "friend.list", Data: data}}, nil
}

func (d *Dispatcher) handleMessageList(ctx context.Context, viewer *user.User, raw json.RawMessage) ([]Broadcast, error) {
	var p messageListPayload
	if err := d.decode(raw, &p); err != nil {
		return nil, err
	}

	connection, err := d.store.GetConnection(ctx, p.ConnectionID)
	if err != nil {
		return nil, err
	}
	messages, err := d.store.ListMessages(ctx, connection.ID, p.Page)
	if err != nil {
		return nil, err
	}

	data := conversationRecord{
		Messages: renderMessages(messages, viewer),
		Friend:   renderUser(connection.Other(viewer)),
	}
	return []Broadcast{{Group: viewer.Username, Source: "message.list", Data: data}}, nil
}

// handleMessageSend persists the message and notifies both parties, each
// render taken from that recipient's own point of view.
func (d *Dispatcher) handleMessageSend(ctx context.Context, viewer *user.User, raw json.RawMessage) ([]Broadcast, error) {
	var p messageSendPayload
	if err := d.decode(raw, &p); err != nil {
		return nil, err
	}

	connection, err := d.store.GetConnection(ctx, p.ConnectionID)
	if err != nil {
		return nil, err
	}
	message, err := d.store.CreateMessage(ctx, connection.ID, viewer.ID, p.Message)
	if err != nil {
		return nil, err
	}

	recipient := connection.Other(viewer)
	type sendRecord struct {
		Message messageRecord `json:"message"`
		Friend  userRecord    `json:"friend"`
	}
	return []Broadcast{
		{
			Group:  viewer.Username,
			Source: "message.send",
			Data:   sendRecord{Message: renderMessage(*message, viewer), Friend: renderUser(recipient)},
		},
		{
			Group:  recipient.Username,
			Source: "message.send",
			Data:   sendRecord{Message: renderMessage(*message, &recipient), Friend: renderUser(*viewer)},
		},
	}, nil
}

// handleRequestAccept flips the pending connection to accepted and emits four
// broadcasts in order: sender-accept, receiver-accept, sender-newfriend,
// receiver-newfriend.
func (d *Dispatcher) handleRequestAccept(ctx context.Context, viewer *user.User, raw json.RawMessage) ([]Broadcast, error) {
	var p usernamePayload
	if err := d.decode(raw, &p); err != nil {
		return nil, err
	}

	connection, err := d.store.AcceptConnection(ctx, p.Username, viewer.ID)
	if err != nil {
		return nil, err
	}

	request := renderRequest(connection)
	return []Broadcast{
		{Group: connection.Sender.Username, Source: "request.accept", Data: request},
		{Group: connection.Receiver.Username, Source: "request.accept", Data: request},
		{Group: connection.Sender.Username, Source: "friend.new", Data: renderNewFriend(connection, &connection.Sender)},
		{Group: connection.Receiver.Username, Source: "friend.new", Data: renderNewFriend(connection, &connection.Receiver)},
	}, nil
}

func (d *Dispatcher) handleRequestConnect(ctx context.Context, viewer *user.User, raw json.RawMessage) ([]Broadcast, error) {
	var p usernamePayload
	if err := d.decode(raw, &p); err != nil {
		return nil, err
	}

	receiver, err := d.users.GetUserByUsername(ctx, p.Username)
	if err != nil {
		return nil, err
	}

	connection, err := d.store.EnsureConnection(ctx, viewer.ID, receiver.ID)
	if err != nil {
		return nil, err
	}

	request := renderRequest(connection)
	return []Broadcast{
		{Group: connection.Sender.Username, Source: "request.connect", Data: request},
		{Group: connection.Receiver.Username, Source: "request.connect", Data: request},
	}, nil
}

func (d *Dispatcher) handleRequestList(ctx context.Context, viewer *user.User, _ json.RawMessage) ([]Broadcast, error) {
	connections, err := d.store.ListPendingRequests(ctx, viewer.ID)
	if err != nil {
		return nil, err
	}

	data := lo.Map(connections, func(c *Connection, _ int) requestRecord {
		return renderRequest(c)
	})
	return []Broadcast{{Group: viewer.Username, Source: "request.list", Data: data}}, nil
}

func (d *Dispatcher) handleSearch(ctx context.Context, viewer *user.User, raw json.RawMessage) ([]Broadcast, error) {
	var p searchPayload
	if err := d.decode(raw, &p); err != nil {
		return nil, err
	}

	results, err := d.users.SearchUsers(ctx, viewer.ID, p.Query)
	if err != nil {
		return nil, err
	}

	data := lo.Map(results, func(res user.SearchResult, _ int) searchRecord {
		return renderSearchResult(res)
	})
	return []Broadcast{{Group: viewer.Username, Source: "search", Data: data}}, nil
}

// handleThumbnail decodes the uploaded image, stores it and broadcasts the
// updated identity back to the uploader.
func (d *Dispatcher) handleThumbnail(ctx context.Context, viewer *user.User, raw json.RawMessage) ([]Broadcast, error) {
	var p thumbnailPayload
	if err := d.decode(raw, &p); err != nil {
		return nil, err
	}

	image, err := base64.StdEncoding.DecodeString(p.Base64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadPayload, err)
	}

	path, err := d.media.SaveThumbnail(viewer.Username, p.Filename, image)
	if err != nil {
		return nil, err
	}
	updated, err := d.users.SetThumbnail(ctx, viewer.ID, path)
	if err != nil {
		return nil, err
	}

	return []Broadcast{{Group: viewer.Username, Source: "thumbnail", Data: renderUser(*updated)}}, nil
}
