package chat

import (
	"context"
	"sync"
	"time"

	"go-messenger/internal/user"
)

// In-memory doubles for the registry, store, directory and media
// capabilities. They keep handler tests synchronous: SendToName records the
// envelope and fans it out to joined members immediately.

type sentEnvelope struct {
	Group string
	Env   Envelope
}

type memRegistry struct {
	members *groupSet

	mu   sync.Mutex
	sent []sentEnvelope
}

func newMemRegistry() *memRegistry {
	return &memRegistry{members: newGroupSet()}
}

func (r *memRegistry) Join(name string, m Member) error {
	r.members.add(name, m)
	return nil
}

func (r *memRegistry) Leave(name string, m Member) {
	r.members.remove(name, m)
}

func (r *memRegistry) SendToName(_ context.Context, name string, env Envelope) error {
	r.mu.Lock()
	r.sent = append(r.sent, sentEnvelope{Group: name, Env: env})
	r.mu.Unlock()
	r.members.fanOut(name, env)
	return nil
}

func (r *memRegistry) sentTo(name string) []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var envs []Envelope
	for _, s := range r.sent {
		if s.Group == name {
			envs = append(envs, s.Env)
		}
	}
	return envs
}

// collector is a Member that records delivered envelopes.
type collector struct {
	mu   sync.Mutex
	envs []Envelope
}

func (c *collector) Deliver(env Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.envs = append(c.envs, env)
}

func (c *collector) delivered() []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Envelope(nil), c.envs...)
}

type memStore struct {
	mu          sync.Mutex
	users       []user.User
	connections map[int]*Connection
	messages    map[int][]Message // keyed by connection id
	nextConnID  int
	nextMsgID   int
	now         time.Time
	failWith    error // when set, every call fails with it
}

func newMemStore() *memStore {
	return &memStore{
		connections: make(map[int]*Connection),
		messages:    make(map[int][]Message),
		nextConnID:  1,
		nextMsgID:   1,
		now:         time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// tick advances the fake clock so created/updated stamps are distinct.
func (s *memStore) tick() time.Time {
	s.now = s.now.Add(time.Minute)
	return s.now
}

func (s *memStore) addConnection(sender, receiver user.User, accepted bool, updated time.Time) *Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &Connection{
		ID:       s.nextConnID,
		Sender:   sender,
		Receiver: receiver,
		Accepted: accepted,
		Created:  updated,
		Updated:  updated,
	}
	s.nextConnID++
	s.connections[c.ID] = c
	return c
}

func (s *memStore) addMessage(connectionID, userID int, text string, created time.Time) Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := Message{
		ID:           s.nextMsgID,
		ConnectionID: connectionID,
		UserID:       userID,
		Text:         text,
		Created:      created,
	}
	s.nextMsgID++
	s.messages[connectionID] = append(s.messages[connectionID], m)
	return m
}

func (s *memStore) GetConnection(_ context.Context, id int) (*Connection, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) EnsureConnection(_ context.Context, senderID, receiverID int) (*Connection, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.connections {
		if c.Sender.ID == senderID && c.Receiver.ID == receiverID {
			cp := *c
			return &cp, nil
		}
	}
	sender, okS := s.userByID(senderID)
	receiver, okR := s.userByID(receiverID)
	if !okS || !okR {
		return nil, ErrNotFound
	}
	now := s.tick()
	c := &Connection{
		ID:       s.nextConnID,
		Sender:   sender,
		Receiver: receiver,
		Created:  now,
		Updated:  now,
	}
	s.nextConnID++
	s.connections[c.ID] = c
	cp := *c
	return &cp, nil
}

func (s *memStore) userByID(id int) (user.User, bool) {
	for _, u := range s.users {
		if u.ID == id {
			return u, true
		}
	}
	return user.User{}, false
}

func (s *memStore) AcceptConnection(_ context.Context, senderUsername string, receiverID int) (*Connection, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.connections {
		if c.Sender.Username == senderUsername && c.Receiver.ID == receiverID {
			c.Accepted = true
			c.Updated = s.tick()
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) CreateMessage(_ context.Context, connectionID, userID int, text string) (*Message, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	m := s.addMessage(connectionID, userID, text, s.tick())
	return &m, nil
}

func (s *memStore) ListMessages(_ context.Context, connectionID, page int) ([]Message, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := append([]Message(nil), s.messages[connectionID]...)
	// newest first
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	start := page * messagePageSize
	if start >= len(msgs) {
		return nil, nil
	}
	end := start + messagePageSize
	if end > len(msgs) {
		end = len(msgs)
	}
	return msgs[start:end], nil
}

func (s *memStore) ListFriends(_ context.Context, userID int) ([]Friend, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var friends []Friend
	for _, c := range s.connections {
		if !c.Accepted || (c.Sender.ID != userID && c.Receiver.ID != userID) {
			continue
		}
		f := Friend{Connection: *c}
		if msgs := s.messages[c.ID]; len(msgs) > 0 {
			latest := msgs[len(msgs)-1]
			f.LatestText = &latest.Text
			f.LatestCreated = &latest.Created
		}
		friends = append(friends, f)
	}
	return friends, nil
}

func (s *memStore) ListPendingRequests(_ context.Context, receiverID int) ([]*Connection, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []*Connection
	for _, c := range s.connections {
		if c.Receiver.ID == receiverID && !c.Accepted {
			cp := *c
			pending = append(pending, &cp)
		}
	}
	return pending, nil
}

type memDirectory struct {
	mu      sync.Mutex
	users   map[string]user.User
	results []user.SearchResult
}

func newMemDirectory() *memDirectory {
	return &memDirectory{users: make(map[string]user.User)}
}

func (d *memDirectory) put(u user.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.Username] = u
}

func (d *memDirectory) GetUserByUsername(_ context.Context, username string) (*user.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[username]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

func (d *memDirectory) SearchUsers(_ context.Context, _ int, _ string) ([]user.SearchResult, error) {
	return d.results, nil
}

func (d *memDirectory) SetThumbnail(_ context.Context, userID int, path string) (*user.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for name, u := range d.users {
		if u.ID == userID {
			u.Thumbnail = path
			d.users[name] = u
			return &u, nil
		}
	}
	return nil, user.ErrNotFound
}

type savedThumb struct {
	Username string
	Filename string
	Data     []byte
}

type memMedia struct {
	mu    sync.Mutex
	saved []savedThumb
}

func (m *memMedia) SaveThumbnail(username, filename string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, savedThumb{Username: username, Filename: filename, Data: data})
	return "/media/thumbnails/" + username + "/" + filename, nil
}

// testEnv bundles a dispatcher with all its fakes.
type testEnv struct {
	store    *memStore
	users    *memDirectory
	media    *memMedia
	registry *memRegistry
	disp     *Dispatcher
}

func newTestEnv() *testEnv {
	store := newMemStore()
	users := newMemDirectory()
	m := &memMedia{}
	registry := newMemRegistry()
	return &testEnv{
		store:    store,
		users:    users,
		media:    m,
		registry: registry,
		disp:     NewDispatcher(store, users, m, registry),
	}
}

// seedUser registers a user with both the store and the directory.
func (e *testEnv) seedUser(id int, username, first, last string) user.User {
	u := user.User{ID: id, Username: username, FirstName: first, LastName: last}
	e.users.put(u)
	e.store.mu.Lock()
	e.store.users = append(e.store.users, u)
	e.store.mu.Unlock()
	return u
}
