package keypool

import "time"

// KeyRecord is one managed credential plus its rotation flags.
type KeyRecord struct {
	Name                string     `json:"name"`
	Value               string     `json:"value"`
	Active              bool       `json:"active"`
	Current             bool       `json:"current"`
	Exhausted           bool       `json:"exhausted"`
	LastUsed            *time.Time `json:"lastUsed"`
	LastMarkedExhausted *time.Time `json:"lastMarkedExhausted"`

	// Metadata attached at creation, never read by rotation.
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
}

// RecordOption sets optional metadata on a new record.
type RecordOption func(*KeyRecord)

// WithEmail attaches an account email to the record.
func WithEmail(email string) RecordOption {
	return func(r *KeyRecord) { r.Email = email }
}

// WithPassword attaches an account password to the record.
func WithPassword(password string) RecordOption {
	return func(r *KeyRecord) { r.Password = password }
}

// NewKeyRecord builds a record in its creation state: active, not exhausted, never used.
// Whether it becomes current is decided by Pool.Add.
func NewKeyRecord(name, value string, opts ...RecordOption) KeyRecord {
	r := KeyRecord{
		Name:   name,
		Value:  value,
		Active: true,
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

func stamp(t time.Time) *time.Time {
	t = t.UTC()
	return &t
}
