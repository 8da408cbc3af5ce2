// package models defines the data model for the offline song cache
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
)

// Collection names a storage partition in the local cache.
type Collection string

const (
	Songs      Collection = "songs"
	Repertoire Collection = "repertoire"
	Setlists   Collection = "setlists"
	Settings   Collection = "settings"
)

// Settings keys written by the sync core.
const (
	LastSongsSyncKey = "lastSongsSync"
	UserSettingsKey  = "userSettings"
)

// Collections returns every known collection in a stable order.
func Collections() []Collection {
	return []Collection{Songs, Repertoire, Setlists, Settings}
}

// Valid reports whether c is one of the four known collections.
func (c Collection) Valid() bool {
	switch c {
	case Songs, Repertoire, Setlists, Settings:
		return true
	default:
		return false
	}
}

// KeyField returns the record field that uniquely identifies a record within c.
func (c Collection) KeyField() string {
	switch c {
	case Repertoire:
		return "songId"
	case Settings:
		return "key"
	default:
		return "id"
	}
}

func (c Collection) String() string { return string(c) }

// ParseCollection converts a name into a [Collection], rejecting unknown names.
func ParseCollection(name string) (Collection, error) {
	c := Collection(name)
	if !c.Valid() {
		return "", fmt.Errorf("unknown collection %q", name)
	}
	return c, nil
}

// Record is a single domain object stored in a collection.
type Record map[string]any

// Key returns the collection's key field. Only non-empty strings are keys.
//
// Numbers are rejected rather than formatted, so 1 and "1" can never share a row.
func (r Record) Key(c Collection) (string, bool) {
	key, ok := r[c.KeyField()].(string)
	return key, ok && key != ""
}

// HasKeyField reports whether the key field is present with a non-nil value, whatever its type.
func (r Record) HasKeyField(c Collection) bool {
	v, ok := r[c.KeyField()]
	return ok && v != nil
}

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return maps.Clone(r)
}

// Payload holds either a single record or an ordered list of records.
//
// Its JSON form is the bare record object or the record array, so a payload decoded from a blob keeps the shape it was saved with.
type Payload struct {
	Records []Record
	Single  bool
}

// One wraps a single record.
func One(r Record) Payload {
	return Payload{Records: []Record{r}, Single: true}
}

// Many wraps an ordered list of records.
func Many(rs []Record) Payload {
	if rs == nil {
		rs = []Record{}
	}
	return Payload{Records: rs}
}

// Len returns the number of records in the payload.
func (p Payload) Len() int { return len(p.Records) }

// Record returns the single record of a [One] payload, or nil.
func (p Payload) Record() Record {
	if !p.Single || len(p.Records) == 0 {
		return nil
	}
	return p.Records[0]
}

// MarshalJSON encodes the payload as an object or an array.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.Single {
		return json.Marshal(p.Record())
	}
	if p.Records == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p.Records)
}

// UnmarshalJSON decodes an object into a single payload and an array into a list.
func (p *Payload) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty payload")
	}

	switch trimmed[0] {
	case '[':
		var rs []Record
		if err := json.Unmarshal(trimmed, &rs); err != nil {
			return fmt.Errorf("failed to decode record list: %w", err)
		}
		*p = Many(rs)
	case '{':
		var r Record
		if err := json.Unmarshal(trimmed, &r); err != nil {
			return fmt.Errorf("failed to decode record: %w", err)
		}
		*p = One(r)
	default:
		return fmt.Errorf("payload must be an object or an array")
	}

	return nil
}

// Document is a remote document as returned by the document store.
type Document struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

// Record copies the document data and injects its identifier under keyField.
func (d Document) Record(keyField string) Record {
	r := make(Record, len(d.Data)+1)
	maps.Copy(r, d.Data)
	r[keyField] = d.ID
	return r
}

// RecordsFrom maps documents into records of collection c.
func RecordsFrom(c Collection, docs []Document) []Record {
	records := make([]Record, 0, len(docs))
	for _, doc := range docs {
		records = append(records, doc.Record(c.KeyField()))
	}
	return records
}

// UserSettings holds the device preferences mirrored into the settings collection.
type UserSettings struct {
	Theme    string `json:"theme"`
	FontSize string `json:"fontSize"`
}

// SettingsRecord builds a settings record with the given key and value.
func SettingsRecord(key string, value any) Record {
	return Record{"key": key, "value": value}
}

// Record returns the settings record stored under [UserSettingsKey].
func (s UserSettings) Record() Record {
	return SettingsRecord(UserSettingsKey, map[string]any{
		"theme":    s.Theme,
		"fontSize": s.FontSize,
	})
}
