package workload

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/torosent/kvscope/internal/store"
)

// Prefs is the JSON document stored in a user's prefs field.
type Prefs struct {
	Theme         string `json:"theme"`
	Lang          string `json:"lang"`
	Notifications bool   `json:"notifications"`
}

func (p Prefs) encode() string {
	return fmt.Sprintf(`{"theme":%q,"lang":%q,"notifications":%t}`, p.Theme, p.Lang, p.Notifications)
}

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Prefs     Prefs  `json:"prefs"`
	CreatedAt string `json:"created_at"`
}

// Fields returns the hash layout of u.
func (u User) Fields() map[string]string {
	return map[string]string{
		"id":         u.ID,
		"name":       u.Name,
		"email":      u.Email,
		"role":       u.Role,
		"prefs":      u.Prefs.encode(),
		"created_at": u.CreatedAt,
	}
}

type Product struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	PriceCents  int64  `json:"price"`
	Stock       int    `json:"stock"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

func (p Product) Fields() map[string]string {
	return map[string]string{
		"id":          p.ID,
		"title":       p.Title,
		"price":       strconv.FormatInt(p.PriceCents, 10),
		"stock":       strconv.Itoa(p.Stock),
		"category":    p.Category,
		"description": p.Description,
	}
}

type Session struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Token     string `json:"token"`
	IP        string `json:"ip"`
	CreatedAt string `json:"created_at"`
	TTLSecs   int    `json:"ttl_secs"`
}

// Encode returns the stored JSON form of s.
func (s Session) Encode() string {
	b, _ := json.Marshal(s)
	return string(b)
}

func missing(op, key string) error {
	return &store.Error{Op: op, Key: key, Kind: store.KindNotFound}
}

// MalformedError reports a stored record that could not be decoded.
type MalformedError struct {
	Key   string
	Field string
	Err   error
}

func (e *MalformedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("workload: %s: field %q: %v", e.Key, e.Field, e.Err)
	}
	return fmt.Sprintf("workload: %s: field %q is malformed", e.Key, e.Field)
}

func (e *MalformedError) Unwrap() error      { return e.Err }
func (e *MalformedError) ErrorLabel() string { return "Malformed record" }

// DecodeUser converts an HGETALL reply. An empty hash means the user does not exist.
func DecodeUser(key string, fields map[string]string) (User, error) {
	if len(fields) == 0 {
		return User{}, missing("HGETALL", key)
	}
	u := User{
		ID:        fields["id"],
		Name:      fields["name"],
		Email:     fields["email"],
		Role:      fields["role"],
		CreatedAt: fields["created_at"],
	}
	if raw, ok := fields["prefs"]; ok && raw != "" {
		if !gjson.Valid(raw) {
			return User{}, &MalformedError{Key: key, Field: "prefs"}
		}
		doc := gjson.Parse(raw)
		u.Prefs = Prefs{
			Theme:         doc.Get("theme").String(),
			Lang:          doc.Get("lang").String(),
			Notifications: doc.Get("notifications").Bool(),
		}
	}
	return u, nil
}

// DecodeProduct converts an HGETALL reply. Price and stock must be integers.
func DecodeProduct(key string, fields map[string]string) (Product, error) {
	if len(fields) == 0 {
		return Product{}, missing("HGETALL", key)
	}
	p := Product{
		ID:          fields["id"],
		Title:       fields["title"],
		Category:    fields["category"],
		Description: fields["description"],
	}
	price, err := strconv.ParseInt(fields["price"], 10, 64)
	if err != nil {
		return Product{}, &MalformedError{Key: key, Field: "price", Err: err}
	}
	stock, err := strconv.Atoi(fields["stock"])
	if err != nil {
		return Product{}, &MalformedError{Key: key, Field: "stock", Err: err}
	}
	p.PriceCents = price
	p.Stock = stock
	return p, nil
}

// DecodeSession parses the stored JSON of a session.
func DecodeSession(key, raw string) (Session, error) {
	if !gjson.Valid(raw) {
		return Session{}, &MalformedError{Key: key, Field: "value"}
	}
	doc := gjson.Parse(raw)
	id := doc.Get("id")
	if !id.Exists() {
		return Session{}, &MalformedError{Key: key, Field: "id"}
	}
	return Session{
		ID:        id.String(),
		UserID:    doc.Get("user_id").String(),
		Token:     doc.Get("token").String(),
		IP:        doc.Get("ip").String(),
		CreatedAt: doc.Get("created_at").String(),
		TTLSecs:   int(doc.Get("ttl_secs").Int()),
	}, nil
}
