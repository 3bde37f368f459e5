package shred

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/inf.v0"

	"github.com/roach88/cqlbridge/internal/apierr"
	"github.com/roach88/cqlbridge/internal/ir"
	"github.com/roach88/cqlbridge/internal/schema"
)

// MaxDepth is the deepest nesting of arrays and objects accepted in a document.
const MaxDepth = 16

// Row is the physical form of one document.
type Row struct {
	ID      ir.Value
	Key     Key
	TxID    gocql.UUID
	DocJSON string

	ExistKeys            []string
	ArraySize            map[string]int32
	ArrayContains        []string
	ArrayEquals          map[string]string
	SubDocEquals         map[string]string
	QueryBoolValues      map[string]int8
	QueryDblValues       map[string]*inf.Dec
	QueryTextValues      map[string]string
	QueryTimestampValues map[string]time.Time
	QueryNullValues      []string
}

// Columns returns the column names and bind values in physical column order.
func (r *Row) Columns() ([]string, []any) {
	names := []string{
		schema.ColKey,
		schema.ColTxID,
		schema.ColDocJSON,
		schema.ColExistKeys,
		schema.ColArraySize,
		schema.ColArrayContains,
		schema.ColArrayEquals,
		schema.ColSubDocEquals,
		schema.ColQueryBoolValues,
		schema.ColQueryDblValues,
		schema.ColQueryTextValues,
		schema.ColQueryTimestampValues,
		schema.ColQueryNullValues,
	}
	values := []any{
		r.Key.Tuple(),
		r.TxID,
		r.DocJSON,
		r.ExistKeys,
		r.ArraySize,
		r.ArrayContains,
		r.ArrayEquals,
		r.SubDocEquals,
		r.QueryBoolValues,
		r.QueryDblValues,
		r.QueryTextValues,
		r.QueryTimestampValues,
		r.QueryNullValues,
	}
	return names, values
}

// Shredder turns documents into rows for one collection.
type Shredder struct {
	obj     *schema.Object
	newID   func() (ir.Value, error)
	newTxID func() gocql.UUID
}

// Option configures a Shredder.
type Option func(*Shredder)

// WithIDGenerator replaces the generator used for documents without _id.
func WithIDGenerator(gen func() (ir.Value, error)) Option {
	return func(s *Shredder) {
		s.newID = gen
	}
}

// WithTxIDGenerator replaces the tx_id generator.
func WithTxIDGenerator(gen func() gocql.UUID) Option {
	return func(s *Shredder) {
		s.newTxID = gen
	}
}

// New creates a Shredder for a collection.
func New(obj *schema.Object, opts ...Option) (*Shredder, error) {
	if obj == nil || obj.Kind != schema.KindCollection {
		return nil, apierr.Internal("shredding requires a collection, got %v", obj)
	}
	s := &Shredder{
		obj:     obj,
		newID:   idGenerator(obj.Collection),
		newTxID: gocql.TimeUUID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func idGenerator(settings *schema.CollectionSettings) func() (ir.Value, error) {
	v4 := settings != nil && settings.DefaultID == schema.IDTypeUUID
	return func() (ir.Value, error) {
		var (
			id  uuid.UUID
			err error
		)
		if v4 {
			id, err = uuid.NewRandom()
		} else {
			id, err = uuid.NewV7()
		}
		if err != nil {
			return nil, fmt.Errorf("generate document id: %w", err)
		}
		return ir.String(id.String()), nil
	}
}

// Shred validates doc and builds its row. A document without _id gets
// one from the collection's id generator; the returned row carries the
// document as stored.
func (s *Shredder) Shred(doc ir.Object) (*Row, ir.Object, error) {
	doc = doc.Clone()
	if doc == nil {
		doc = ir.Object{}
	}
	if _, ok := doc[schema.IDField]; !ok {
		id, err := s.newID()
		if err != nil {
			return nil, nil, apierr.Internal("%v", err)
		}
		doc[schema.IDField] = id
	}

	key, err := NewKey(doc[schema.IDField])
	if err != nil {
		return nil, nil, apierr.New(apierr.CodeInvalidDocument, "%v", err).With("path", schema.IDField)
	}
	if err := checkStructure(doc, "", 1); err != nil {
		return nil, nil, err
	}
	if err := s.validate(doc); err != nil {
		return nil, nil, err
	}

	data, err := ir.MarshalCanonical(doc)
	if err != nil {
		return nil, nil, apierr.New(apierr.CodeInvalidDocument, "%v", err)
	}

	row := &Row{
		ID:                   doc[schema.IDField],
		Key:                  key,
		TxID:                 s.newTxID(),
		DocJSON:              string(data),
		ArraySize:            map[string]int32{},
		ArrayEquals:          map[string]string{},
		SubDocEquals:         map[string]string{},
		QueryBoolValues:      map[string]int8{},
		QueryDblValues:       map[string]*inf.Dec{},
		QueryTextValues:      map[string]string{},
		QueryTimestampValues: map[string]time.Time{},
	}
	w := &walker{row: row, settings: s.obj.Collection}
	for _, k := range doc.SortedKeys() {
		if err := w.value(k, doc[k]); err != nil {
			return nil, nil, err
		}
	}
	row.ExistKeys = slices.Compact(slices.Sorted(slices.Values(row.ExistKeys)))
	row.ArrayContains = slices.Compact(slices.Sorted(slices.Values(row.ArrayContains)))
	slices.Sort(row.QueryNullValues)
	return row, doc, nil
}

// checkStructure enforces the depth limit and field name rules.
func checkStructure(v ir.Value, path string, depth int) error {
	if depth > MaxDepth {
		return apierr.New(apierr.CodeInvalidDocument, "document nesting exceeds %d levels at %q", MaxDepth, path).
			With("path", path)
	}
	switch val := v.(type) {
	case ir.Object:
		for k, child := range val {
			if k == "" || strings.HasPrefix(k, "$") || strings.Contains(k, ".") {
				return apierr.New(apierr.CodeInvalidDocument, "invalid field name %q", k).With("path", join(path, k))
			}
			if err := checkStructure(child, join(path, k), depth+1); err != nil {
				return err
			}
		}
	case ir.Array:
		for _, child := range val {
			if err := checkStructure(child, path, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Shredder) validate(doc ir.Object) error {
	validator := s.obj.Collection.Validator()
	if validator == nil {
		return nil
	}
	result, err := validator.Validate(gojsonschema.NewGoLoader(ir.ToNative(doc)))
	if err != nil {
		return apierr.Internal("validate document: %v", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, len(result.Errors()))
	for i, e := range result.Errors() {
		msgs[i] = e.String()
	}
	return apierr.New(apierr.CodeDocumentSchemaViolation, "document does not match the collection schema: %s",
		strings.Join(msgs, "; ")).With("collection", s.obj.Name)
}

// walker fills the index columns for indexed paths.
type walker struct {
	row      *Row
	settings *schema.CollectionSettings
}

func (w *walker) value(path string, v ir.Value) error {
	if !w.settings.IsIndexed(path) {
		return nil
	}
	norm := ir.NormalizePath(path)
	r := w.row
	r.ExistKeys = append(r.ExistKeys, norm)
	if err := w.contains(path, v); err != nil {
		return err
	}

	switch val := v.(type) {
	case ir.Null:
		r.QueryNullValues = append(r.QueryNullValues, norm)
	case ir.String:
		r.QueryTextValues[norm] = ir.NormalizePath(string(val))
	case ir.Number:
		d, ok := new(inf.Dec).SetString(val.String())
		if !ok {
			return apierr.New(apierr.CodeInvalidDocument, "invalid number %s at %q", val, path).With("path", path)
		}
		r.QueryDblValues[norm] = d
	case ir.Bool:
		var b int8
		if val {
			b = 1
		}
		r.QueryBoolValues[norm] = b
	case ir.Date:
		r.QueryTimestampValues[norm] = val.Time()
	case ir.Array:
		h, err := ir.Hash(val)
		if err != nil {
			return err
		}
		r.ArraySize[norm] = int32(len(val))
		r.ArrayEquals[norm] = h
		for _, elem := range val {
			if err := w.contains(path, elem); err != nil {
				return err
			}
			if sub, ok := elem.(ir.Object); ok {
				if err := w.element(path, sub); err != nil {
					return err
				}
			}
		}
	case ir.Object:
		h, err := ir.Hash(val)
		if err != nil {
			return err
		}
		r.SubDocEquals[norm] = h
		return w.object(path, val)
	}
	return nil
}

func (w *walker) object(path string, obj ir.Object) error {
	for _, k := range obj.SortedKeys() {
		if err := w.value(join(path, k), obj[k]); err != nil {
			return err
		}
	}
	return nil
}

// element indexes the fields of an object held in an array. Several
// elements can share a path, so only exist_keys and array_contains are
// filled: typed value columns hold one value per path.
func (w *walker) element(path string, obj ir.Object) error {
	for _, k := range obj.SortedKeys() {
		p := join(path, k)
		if !w.settings.IsIndexed(p) {
			continue
		}
		w.row.ExistKeys = append(w.row.ExistKeys, ir.NormalizePath(p))
		if err := w.contains(p, obj[k]); err != nil {
			return err
		}
		if sub, ok := obj[k].(ir.Object); ok {
			if err := w.element(p, sub); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *walker) contains(path string, v ir.Value) error {
	h, err := ir.PathHash(path, v)
	if err != nil {
		return apierr.New(apierr.CodeInvalidDocument, "%v", err).With("path", path)
	}
	w.row.ArrayContains = append(w.row.ArrayContains, h)
	return nil
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
