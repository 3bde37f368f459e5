package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Physical columns of every collection table.
const (
	ColKey                  = "key"
	ColTxID                 = "tx_id"
	ColDocJSON              = "doc_json"
	ColExistKeys            = "exist_keys"
	ColArraySize            = "array_size"
	ColArrayContains        = "array_contains"
	ColArrayEquals          = "array_equals"
	ColSubDocEquals         = "sub_doc_equals"
	ColQueryBoolValues      = "query_bool_values"
	ColQueryDblValues       = "query_dbl_values"
	ColQueryTextValues      = "query_text_values"
	ColQueryTimestampValues = "query_timestamp_values"
	ColQueryNullValues      = "query_null_values"
)

// IDField is the document id path.
const IDField = "_id"

var collectionColumns = []Column{
	{Name: ColKey, Type: MustParseType("tuple<tinyint, text>")},
	{Name: ColTxID, Type: Native(TypeTimeUUID)},
	{Name: ColDocJSON, Type: Native(TypeText)},
	{Name: ColExistKeys, Type: MustParseType("set<text>")},
	{Name: ColArraySize, Type: MustParseType("map<text, int>")},
	{Name: ColArrayContains, Type: MustParseType("set<text>")},
	{Name: ColArrayEquals, Type: MustParseType("map<text, text>")},
	{Name: ColSubDocEquals, Type: MustParseType("map<text, text>")},
	{Name: ColQueryBoolValues, Type: MustParseType("map<text, tinyint>")},
	{Name: ColQueryDblValues, Type: MustParseType("map<text, decimal>")},
	{Name: ColQueryTextValues, Type: MustParseType("map<text, text>")},
	{Name: ColQueryTimestampValues, Type: MustParseType("map<text, timestamp>")},
	{Name: ColQueryNullValues, Type: MustParseType("set<text>")},
}

// CollectionColumns returns the physical column layout of a collection table.
func CollectionColumns() []Column {
	out := make([]Column, len(collectionColumns))
	copy(out, collectionColumns)
	return out
}

// CollectionIndexes returns the SAI indexes created for a collection.
// Every generic column except key, tx_id and doc_json is indexed.
func CollectionIndexes(name string) []Index {
	var idx []Index
	for _, c := range collectionColumns[3:] {
		target := TargetFull
		switch c.Type.Kind {
		case TypeSet:
			target = TargetValues
		case TypeMap:
			target = TargetEntries
		}
		idx = append(idx, Index{Name: name + "_" + c.Name, Column: c.Name, Target: target})
	}
	return idx
}

// IDType names the generator used for documents inserted without an _id.
type IDType string

const (
	IDTypeUUID   IDType = "uuid"
	IDTypeUUIDv7 IDType = "uuidv7"
)

// Indexing limits which document paths are indexed. Allow and Deny are
// mutually exclusive; "*" in either list means every path.
type Indexing struct {
	Allow []string
	Deny  []string
}

// CollectionSettings are the per collection options stored alongside the table.
type CollectionSettings struct {
	Indexing  Indexing
	DefaultID IDType

	// ValidatorSource is the JSON schema document, empty when unset.
	ValidatorSource string
	validator       *gojsonschema.Schema
}

// NewCollectionSettings validates indexing rules and compiles the
// optional JSON schema validator.
func NewCollectionSettings(indexing Indexing, defaultID IDType, validator string) (*CollectionSettings, error) {
	if len(indexing.Allow) > 0 && len(indexing.Deny) > 0 {
		return nil, fmt.Errorf("indexing: allow and deny cannot both be set")
	}
	switch defaultID {
	case "":
		defaultID = IDTypeUUIDv7
	case IDTypeUUID, IDTypeUUIDv7:
	default:
		return nil, fmt.Errorf("unsupported defaultId %q", defaultID)
	}

	s := &CollectionSettings{Indexing: indexing, DefaultID: defaultID}
	if strings.TrimSpace(validator) != "" {
		if !json.Valid([]byte(validator)) {
			return nil, fmt.Errorf("validator: not valid JSON")
		}
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(validator))
		if err != nil {
			return nil, fmt.Errorf("validator: %w", err)
		}
		s.ValidatorSource = validator
		s.validator = compiled
	}
	return s, nil
}

// Validator returns the compiled JSON schema, or nil if none is configured.
func (s *CollectionSettings) Validator() *gojsonschema.Schema {
	if s == nil {
		return nil
	}
	return s.validator
}

// IsIndexed reports whether filters on path can be served by the generic
// index columns. _id is always indexed. A rule on "a" covers "a.b".
func (s *CollectionSettings) IsIndexed(path string) bool {
	if s == nil || path == IDField {
		return true
	}
	if len(s.Indexing.Allow) > 0 {
		return matchesAny(s.Indexing.Allow, path)
	}
	if len(s.Indexing.Deny) > 0 {
		return !matchesAny(s.Indexing.Deny, path)
	}
	return true
}

func matchesAny(rules []string, path string) bool {
	for _, r := range rules {
		if r == "*" || r == path || strings.HasPrefix(path, r+".") {
			return true
		}
	}
	return false
}

// NewCollection builds the schema object of a collection: a fixed
// physical table keyed by the document id.
func NewCollection(keyspace, name string, settings *CollectionSettings) *Object {
	if settings == nil {
		settings = &CollectionSettings{DefaultID: IDTypeUUIDv7}
	}
	return &Object{
		Kind:       KindCollection,
		Keyspace:   keyspace,
		Name:       name,
		Columns:    CollectionColumns(),
		PrimaryKey: PrimaryKey{Partition: []string{ColKey}},
		Indexes:    CollectionIndexes(name),
		Collection: settings,
	}
}

// collectionComment is the JSON stored in the comment of a collection table.
type collectionComment struct {
	Collection struct {
		Name          string `json:"name"`
		SchemaVersion int    `json:"schema_version"`
		Options       struct {
			Indexing *struct {
				Allow []string `json:"allow,omitempty"`
				Deny  []string `json:"deny,omitempty"`
			} `json:"indexing,omitempty"`
			DefaultID struct {
				Type IDType `json:"type"`
			} `json:"defaultId"`
			Validator json.RawMessage `json:"validator,omitempty"`
		} `json:"options"`
	} `json:"collection"`
}

const commentSchemaVersion = 1

// Comment renders the settings as the table comment of collection name.
func (s *CollectionSettings) Comment(name string) (string, error) {
	var c collectionComment
	c.Collection.Name = name
	c.Collection.SchemaVersion = commentSchemaVersion
	if s != nil {
		if len(s.Indexing.Allow) > 0 || len(s.Indexing.Deny) > 0 {
			c.Collection.Options.Indexing = &struct {
				Allow []string `json:"allow,omitempty"`
				Deny  []string `json:"deny,omitempty"`
			}{Allow: s.Indexing.Allow, Deny: s.Indexing.Deny}
		}
		c.Collection.Options.DefaultID.Type = s.DefaultID
		if s.ValidatorSource != "" {
			c.Collection.Options.Validator = json.RawMessage(s.ValidatorSource)
		}
	}
	if c.Collection.Options.DefaultID.Type == "" {
		c.Collection.Options.DefaultID.Type = IDTypeUUIDv7
	}
	out, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("collection comment: %w", err)
	}
	return string(out), nil
}

// ParseCollectionComment reads settings back from a table comment. The
// second result is false for comments that do not describe a collection,
// which is how plain tables are told apart from collections.
func ParseCollectionComment(comment string) (*CollectionSettings, bool, error) {
	if !strings.HasPrefix(strings.TrimSpace(comment), "{") {
		return nil, false, nil
	}
	var c collectionComment
	if err := json.Unmarshal([]byte(comment), &c); err != nil || c.Collection.Name == "" {
		return nil, false, nil
	}

	var indexing Indexing
	if ix := c.Collection.Options.Indexing; ix != nil {
		indexing = Indexing{Allow: ix.Allow, Deny: ix.Deny}
	}
	settings, err := NewCollectionSettings(indexing, c.Collection.Options.DefaultID.Type, string(c.Collection.Options.Validator))
	if err != nil {
		return nil, true, fmt.Errorf("collection %s: %w", c.Collection.Name, err)
	}
	return settings, true, nil
}
