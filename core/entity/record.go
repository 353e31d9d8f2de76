package entity

import (
	"bytes"
	"time"

	"github.com/goccy/go-json"
)

// Record is one row of a content table: an ordered mapping of attribute name to typed value.
// It keeps the entity it came from, so its values can be re-cast and re-validated.
type Record struct {
	entity *Entity
	keys   []string
	values map[string]any
}

func newRecord(e *Entity) *Record {
	return &Record{entity: e, values: map[string]any{}}
}

// Entity returns the entity the record is bound to
func (r *Record) Entity() *Entity {
	return r.entity
}

// Get returns the value of key
func (r *Record) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Set sets key to v, appending key if it is new
func (r *Record) Set(key string, v any) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

// Replace puts key in place of old, keeping the position of old
func (r *Record) Replace(old, key string, v any) {
	if _, ok := r.values[old]; !ok {
		r.Set(key, v)
		return
	}
	delete(r.values, old)
	for i, k := range r.keys {
		if k == old {
			r.keys[i] = key
		}
	}
	r.values[key] = v
}

// Delete removes key
func (r *Record) Delete(key string) {
	if _, ok := r.values[key]; !ok {
		return
	}
	delete(r.values, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the attribute names in order
func (r *Record) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Map returns the attributes as a plain map
func (r *Record) Map() map[string]any {
	m := make(map[string]any, len(r.values))
	for k, v := range r.values {
		m[k] = v
	}
	return m
}

// ID returns the identifier of the record
func (r *Record) ID() string {
	s, _ := r.values["id"].(string)
	return s
}

// OwnerID returns the owner reference, empty if the record has no owner
func (r *Record) OwnerID() string {
	s, _ := r.values["user_id"].(string)
	return s
}

// PublishedAt returns the publish timestamp, nil for drafts
func (r *Record) PublishedAt() *time.Time {
	if t, ok := r.values["published_at"].(time.Time); ok {
		return &t
	}
	return nil
}

// MarshalJSON encodes the attributes as an object in key order
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
