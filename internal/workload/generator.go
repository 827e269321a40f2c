package workload

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/torosent/kvscope/internal/metrics"
	"github.com/torosent/kvscope/internal/runner"
	"github.com/torosent/kvscope/internal/store"
)

// Mix is the share of each operation within its kind.
type Mix struct {
	UserReadShare     float64 // remaining reads hit products
	SessionWriteShare float64 // remaining writes create users
}

// DefaultMix reads users 60% of the time and splits writes evenly.
var DefaultMix = Mix{UserReadShare: 0.6, SessionWriteShare: 0.5}

// Generator produces operations against a seeded catalog.
type Generator struct {
	Store    store.Store
	Users    int
	Products int
	Mix      Mix
	Clock    func() time.Time
}

var _ runner.Source = (*Generator)(nil)

// NewGenerator returns a generator with the default catalog size and mix.
func NewGenerator(st store.Store) *Generator {
	return &Generator{
		Store:    st,
		Users:    DefaultUsers,
		Products: DefaultProducts,
		Mix:      DefaultMix,
	}
}

func (g *Generator) now() string {
	clock := g.Clock
	if clock == nil {
		clock = time.Now
	}
	return clock().UTC().Format(time.RFC3339)
}

// Next draws one operation of the requested kind.
func (g *Generator) Next(rng *rand.Rand, kind metrics.OpKind) runner.Operation {
	if kind == metrics.OpRead {
		if rng.Float64() < g.Mix.UserReadShare {
			return g.ReadUser(UserID(1 + rng.Intn(max(g.Users, 1))))
		}
		return g.ReadProduct(ProductID(1 + rng.Intn(max(g.Products, 1))))
	}
	if rng.Float64() < g.Mix.SessionWriteShare {
		return g.CreateSession(g.NewSession(rng, UserID(1+rng.Intn(max(g.Users, 1)))))
	}
	return g.CreateUser(g.NewUser(rng))
}

// NewSession builds a session for userID with a random id, token and address.
func (g *Generator) NewSession(rng *rand.Rand, userID string) Session {
	return Session{
		ID:        SessionID(rng.Uint32()),
		UserID:    userID,
		Token:     fmt.Sprintf("tok_%016x", rng.Uint64()),
		IP:        fmt.Sprintf("10.0.%d.%d", rng.Intn(256), 1+rng.Intn(254)),
		CreatedAt: g.now(),
		TTLSecs:   SessionTTLSecs,
	}
}

// NewUser builds a benchmark user whose id lies above the seeded range.
func (g *Generator) NewUser(rng *rand.Rand) User {
	n := createdUserMin + rng.Intn(createdUserMax-createdUserMin+1)
	return User{
		ID:        UserID(n),
		Name:      "Bench User",
		Email:     fmt.Sprintf("bench%d@test.com", n),
		Role:      "viewer",
		Prefs:     Prefs{Theme: "dark", Lang: "en"},
		CreatedAt: g.now(),
	}
}

// ReadUser looks up one user hash and decodes it.
func (g *Generator) ReadUser(id string) runner.Operation {
	return &hashRead{
		st:       g.Store,
		key:      UserKey(id),
		endpoint: EndpointGetUser,
		decode: func(key string, f map[string]string) (any, error) {
			return DecodeUser(key, f)
		},
	}
}

// ReadProduct looks up one product hash and decodes it.
func (g *Generator) ReadProduct(id string) runner.Operation {
	return &hashRead{
		st:       g.Store,
		key:      ProductKey(id),
		endpoint: EndpointGetProduct,
		decode: func(key string, f map[string]string) (any, error) {
			return DecodeProduct(key, f)
		},
	}
}

// ReadSession fetches one session document.
func (g *Generator) ReadSession(id string) runner.Operation {
	return &sessionRead{st: g.Store, key: SessionKey(id)}
}

// CreateUser writes u as a hash.
func (g *Generator) CreateUser(u User) runner.Operation {
	return &userWrite{st: g.Store, user: u, fields: u.Fields()}
}

// CreateSession stores s as JSON with the session TTL.
func (g *Generator) CreateSession(s Session) runner.Operation {
	if s.TTLSecs <= 0 {
		s.TTLSecs = SessionTTLSecs
	}
	return &sessionWrite{st: g.Store, session: s, payload: s.Encode()}
}

type hashRead struct {
	st       store.Store
	key      string
	endpoint string
	decode   func(key string, fields map[string]string) (any, error)
}

func (o *hashRead) Kind() metrics.OpKind { return metrics.OpRead }
func (o *hashRead) Endpoint() string     { return o.endpoint }

func (o *hashRead) Call(ctx context.Context) (runner.Finish, error) {
	fields, err := o.st.HGetAll(ctx, o.key)
	if err != nil {
		return nil, err
	}
	return func() (any, error) { return o.decode(o.key, fields) }, nil
}

type sessionRead struct {
	st  store.Store
	key string
}

func (o *sessionRead) Kind() metrics.OpKind { return metrics.OpRead }
func (o *sessionRead) Endpoint() string     { return EndpointGetSession }

func (o *sessionRead) Call(ctx context.Context) (runner.Finish, error) {
	raw, err := o.st.Get(ctx, o.key)
	if err != nil {
		return nil, err
	}
	return func() (any, error) { return DecodeSession(o.key, raw) }, nil
}

type userWrite struct {
	st     store.Store
	user   User
	fields map[string]string
}

func (o *userWrite) Kind() metrics.OpKind { return metrics.OpWrite }
func (o *userWrite) Endpoint() string     { return EndpointCreateUser }

func (o *userWrite) Call(ctx context.Context) (runner.Finish, error) {
	if err := o.st.HSet(ctx, UserKey(o.user.ID), o.fields); err != nil {
		return nil, err
	}
	return o.acknowledge, nil
}

// acknowledge renders the reply body a client would send back.
func (o *userWrite) acknowledge() (any, error) {
	if _, err := json.Marshal(o.user); err != nil {
		return nil, err
	}
	return o.user, nil
}

type sessionWrite struct {
	st      store.Store
	session Session
	payload string
}

func (o *sessionWrite) Kind() metrics.OpKind { return metrics.OpWrite }
func (o *sessionWrite) Endpoint() string     { return EndpointCreateSession }

func (o *sessionWrite) Call(ctx context.Context) (runner.Finish, error) {
	ttl := time.Duration(o.session.TTLSecs) * time.Second
	if err := o.st.Set(ctx, SessionKey(o.session.ID), o.payload, ttl); err != nil {
		return nil, err
	}
	return o.acknowledge, nil
}

func (o *sessionWrite) acknowledge() (any, error) {
	if _, err := json.Marshal(o.session); err != nil {
		return nil, err
	}
	return o.session, nil
}
