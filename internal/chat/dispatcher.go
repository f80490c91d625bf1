package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/go-playground/validator/v10"

	"go-messenger/internal/user"
)

// Store is the data-access capability the command handlers run against.
// Implemented by Repository; tests substitute an in-memory fake.
type Store interface {
	GetConnection(ctx context.Context, id int) (*Connection, error)
	EnsureConnection(ctx context.Context, senderID, receiverID int) (*Connection, error)
	AcceptConnection(ctx context.Context, senderUsername string, receiverID int) (*Connection, error)
	CreateMessage(ctx context.Context, connectionID, userID int, text string) (*Message, error)
	ListMessages(ctx context.Context, connectionID, page int) ([]Message, error)
	ListFriends(ctx context.Context, userID int) ([]Friend, error)
	ListPendingRequests(ctx context.Context, receiverID int) ([]*Connection, error)
}

// Directory is the user-lookup capability.
type Directory interface {
	GetUserByUsername(ctx context.Context, username string) (*user.User, error)
	SearchUsers(ctx context.Context, viewerID int, query string) ([]user.SearchResult, error)
	SetThumbnail(ctx context.Context, userID int, path string) (*user.User, error)
}

// Media stores uploaded thumbnail bytes and returns the public path.
type Media interface {
	SaveThumbnail(username, filename string, data []byte) (string, error)
}

// errBadPayload marks a malformed or invalid payload: a protocol error,
// dropped without closing the session.
var errBadPayload = errors.New("bad payload")

type handlerFunc func(ctx context.Context, viewer *user.User, raw json.RawMessage) ([]Broadcast, error)

// Dispatcher routes inbound frames by their source tag and turns the resulting
// broadcasts into envelopes on the group registry.
type Dispatcher struct {
	store    Store
	users    Directory
	media    Media
	registry GroupRegistry
	validate *validator.Validate
	handlers map[string]handlerFunc
}

func NewDispatcher(store Store, users Directory, media Media, registry GroupRegistry) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		users:    users,
		media:    media,
		registry: registry,
		validate: validator.New(),
	}
	d.handlers = map[string]handlerFunc{
		"friend.list":     d.handleFriendList,
		"message.list":    d.handleMessageList,
		"message.send":    d.handleMessageSend,
		"request.accept":  d.handleRequestAccept,
		"request.connect": d.handleRequestConnect,
		"request.list":    d.handleRequestList,
		"search":          d.handleSearch,
		"thumbnail":       d.handleThumbnail,
	}
	return d
}

// Dispatch runs one inbound frame to completion. Malformed frames, unknown
// sources and not-found lookups are logged and swallowed; any other error is
// fatal to the session and is returned to the read loop.
func (d *Dispatcher) Dispatch(ctx context.Context, viewer *user.User, frame []byte) error {
	var tag struct {
		Source string `json:"source"`
	}
	if err := json.Unmarshal(frame, &tag); err != nil {
		log.Printf("dispatch: unparseable frame from %s: %v", viewer.Username, err)
		return nil
	}

	handler, ok := d.handlers[tag.Source]
	if !ok {
		log.Printf("dispatch: unknown source %q from %s", tag.Source, viewer.Username)
		return nil
	}

	broadcasts, err := handler(ctx, viewer, frame)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, user.ErrNotFound) {
			log.Printf("dispatch: %s from %s: %v", tag.Source, viewer.Username, err)
			return nil
		}
		if errors.Is(err, errBadPayload) {
			log.Printf("dispatch: %s from %s: %v", tag.Source, viewer.Username, err)
			return nil
		}
		return fmt.Errorf("%s: %w", tag.Source, err)
	}

	for _, b := range broadcasts {
		if err := d.sendToGroup(ctx, b.Group, b.Source, b.Data); err != nil {
			log.Printf("dispatch: send %s to %s: %v", b.Source, b.Group, err)
		}
	}
	return nil
}

// sendToGroup wraps data in the canonical envelope and hands it to the
// registry's fire-and-forget send.
func (d *Dispatcher) sendToGroup(ctx context.Context, group, source string, data any) error {
	env, err := NewEnvelope(source, data)
	if err != nil {
		return err
	}
	return d.registry.SendToName(ctx, group, env)
}

// decode unmarshals and validates a per-source payload shape. Failures are
// protocol errors, not fatal ones.
func (d *Dispatcher) decode(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", errBadPayload, err)
	}
	if err := d.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", errBadPayload, err)
	}
	return nil
}
