package chat

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Member is a live connection handle that can receive envelopes. Deliver must
// not block: it is called while the registry holds its member lock.
type Member interface {
	Deliver(Envelope)
}

// GroupRegistry maps an addressable name (the username) to the set of live
// sessions joined under it. Send is fire-and-forget: with zero members joined
// the envelope is simply dropped.
type GroupRegistry interface {
	Join(name string, m Member) error
	Leave(name string, m Member)
	SendToName(ctx context.Context, name string, env Envelope) error
}

// groupSet is the concurrent member bookkeeping shared by registry
// implementations. Fan-out runs under the read lock, so once Leave returns no
// further Deliver can reach the removed member.
type groupSet struct {
	mu     sync.RWMutex
	groups map[string]map[Member]struct{}
}

func newGroupSet() *groupSet {
	return &groupSet{groups: make(map[string]map[Member]struct{})}
}

// add returns true when m is the first member of the group.
func (g *groupSet) add(name string, m Member) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	members, ok := g.groups[name]
	if !ok {
		members = make(map[Member]struct{})
		g.groups[name] = members
	}
	members[m] = struct{}{}
	return len(members) == 1
}

// remove returns true when m was the last member of the group. Removing a
// member that never joined is a no-op.
func (g *groupSet) remove(name string, m Member) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	members, ok := g.groups[name]
	if !ok {
		return false
	}
	if _, joined := members[m]; !joined {
		return false
	}
	delete(members, m)
	if len(members) == 0 {
		delete(g.groups, name)
		return true
	}
	return false
}

func (g *groupSet) count(name string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.groups[name])
}

// fanOut delivers env to every current member of the group.
func (g *groupSet) fanOut(name string, env Envelope) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for m := range g.groups[name] {
		m.Deliver(env)
	}
}

// RedisRegistry implements GroupRegistry on a Redis pub/sub channel per
// username, so a broadcast reaches the sessions of every server instance.
// Local members are tracked per name; the first Join for a name subscribes the
// channel, the last Leave tears the subscription down.
type RedisRegistry struct {
	rdb     *redis.Client
	members *groupSet

	mu   sync.Mutex
	subs map[string]io.Closer
	// subscribe opens the broker subscription for a name. A field so tests
	// can exercise the join/leave lifecycle without a broker.
	subscribe func(name string) io.Closer
}

func NewRedisRegistry(rdb *redis.Client) *RedisRegistry {
	r := &RedisRegistry{
		rdb:     rdb,
		members: newGroupSet(),
		subs:    make(map[string]io.Closer),
	}
	r.subscribe = func(name string) io.Closer {
		pubsub := r.rdb.Subscribe(context.Background(), channelFor(name))
		go r.listen(name, pubsub)
		return pubsub
	}
	return r
}

func channelFor(name string) string {
	return "chat:user:" + name
}

// Join upholds the invariant that a name with members always has a live
// subscription: it subscribes whenever none exists, not only for the first
// member, since a concurrent last-leave may be tearing the old one down.
func (r *RedisRegistry) Join(name string, m Member) error {
	r.members.add(name, m)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[name]; !ok {
		r.subs[name] = r.subscribe(name)
	}
	return nil
}

func (r *RedisRegistry) Leave(name string, m Member) {
	if last := r.members.remove(name, m); !last {
		return
	}
	r.dropSubscription(name)
}

// dropSubscription closes the subscription for a name unless a session
// joined between the membership update and this point, in which case the
// subscription must survive for it.
func (r *RedisRegistry) dropSubscription(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members.count(name) > 0 {
		return
	}
	if sub, ok := r.subs[name]; ok {
		sub.Close()
		delete(r.subs, name)
	}
}

func (r *RedisRegistry) SendToName(ctx context.Context, name string, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, channelFor(name), payload).Err()
}

// listen pipes envelopes from the Redis channel to the local members of the
// group. It exits when Leave closes the subscription.
func (r *RedisRegistry) listen(name string, pubsub *redis.PubSub) {
	for msg := range pubsub.Channel() {
		var env Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			log.Printf("registry: bad payload on %s: %v", channelFor(name), err)
			continue
		}
		r.members.fanOut(name, env)
	}
}
