package schema

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// LoadError reports a problem in a catalog definition, with the CUE
// source position when one is available.
type LoadError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFoundError is returned when a catalog has no object with the given name.
type NotFoundError struct {
	Keyspace string
	Name     string
}

func (e *NotFoundError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("keyspace %q not found", e.Keyspace)
	}
	return fmt.Sprintf("table or collection %q not found in keyspace %q", e.Name, e.Keyspace)
}

// Catalog is an in-memory set of schema objects loaded from CUE.
//
// Definitions look like:
//
//	keyspaces: shop: {
//		tables: orders: {
//			columns: {customer: "text", placed_at: "timestamp", total: "decimal"}
//			primaryKey: {partitionBy: ["customer"], partitionSort: {placed_at: "desc"}}
//			indexes: {orders_total_idx: {column: "total"}}
//		}
//		collections: users: {
//			indexing: {deny: ["notes"]}
//			validator: {type: "object", required: ["email"]}
//		}
//	}
type Catalog struct {
	keyspaces []string
	objects   map[string]map[string]*Object
}

// LoadCatalog loads a catalog from a .cue file or a directory of CUE files.
func LoadCatalog(path string) (*Catalog, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	ctx := cuecontext.New()
	var value cue.Value
	if info.IsDir() {
		instances := load.Instances([]string{"."}, &load.Config{Dir: path})
		if len(instances) == 0 {
			return nil, fmt.Errorf("catalog: no CUE instances in %s", path)
		}
		if instances[0].Err != nil {
			return nil, fmt.Errorf("catalog: loading %s: %w", path, instances[0].Err)
		}
		value = ctx.BuildInstance(instances[0])
	} else {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		value = ctx.CompileBytes(src, cue.Filename(filepath.Base(path)))
	}
	return compileCatalog(value)
}

// CompileCatalog compiles a catalog from CUE source text.
func CompileCatalog(src string) (*Catalog, error) {
	return compileCatalog(cuecontext.New().CompileString(src, cue.Filename("catalog.cue")))
}

func compileCatalog(v cue.Value) (*Catalog, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	cat := &Catalog{objects: make(map[string]map[string]*Object)}

	ksVal := v.LookupPath(cue.ParsePath("keyspaces"))
	if !ksVal.Exists() {
		return nil, &LoadError{Field: "keyspaces", Message: "keyspaces is required", Pos: v.Pos()}
	}
	iter, err := ksVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		ks := iter.Label()
		cat.keyspaces = append(cat.keyspaces, ks)
		cat.objects[ks] = make(map[string]*Object)

		if err := cat.compileTables(ks, iter.Value()); err != nil {
			return nil, err
		}
		if err := cat.compileCollections(ks, iter.Value()); err != nil {
			return nil, err
		}
	}
	return cat, nil
}

func (c *Catalog) compileTables(ks string, v cue.Value) error {
	tablesVal := v.LookupPath(cue.ParsePath("tables"))
	if !tablesVal.Exists() {
		return nil
	}
	iter, err := tablesVal.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		obj, err := compileTable(ks, iter.Label(), iter.Value())
		if err != nil {
			return err
		}
		c.objects[ks][obj.Name] = obj
	}
	return nil
}

func compileTable(ks, name string, v cue.Value) (*Object, error) {
	obj := &Object{Kind: KindTable, Keyspace: ks, Name: name}

	colsVal := v.LookupPath(cue.ParsePath("columns"))
	if !colsVal.Exists() {
		return nil, &LoadError{Field: "columns", Message: fmt.Sprintf("table %s.%s has no columns", ks, name), Pos: v.Pos()}
	}
	iter, err := colsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		typeStr, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		dt, err := ParseType(typeStr)
		if err != nil {
			return nil, &LoadError{Field: "columns." + iter.Label(), Message: err.Error(), Pos: iter.Value().Pos()}
		}
		obj.Columns = append(obj.Columns, Column{Name: iter.Label(), Type: dt})
	}

	pkVal := v.LookupPath(cue.ParsePath("primaryKey"))
	if !pkVal.Exists() {
		return nil, &LoadError{Field: "primaryKey", Message: fmt.Sprintf("table %s.%s has no primary key", ks, name), Pos: v.Pos()}
	}
	obj.PrimaryKey, err = compilePrimaryKey(pkVal)
	if err != nil {
		return nil, err
	}

	idxVal := v.LookupPath(cue.ParsePath("indexes"))
	if idxVal.Exists() {
		obj.Indexes, err = compileIndexes(idxVal)
		if err != nil {
			return nil, err
		}
	}

	if err := obj.Validate(); err != nil {
		return nil, &LoadError{Field: "tables." + name, Message: err.Error(), Pos: v.Pos()}
	}
	return obj, nil
}

// compilePrimaryKey accepts either a single column name or
// {partitionBy: [...], partitionSort: {col: "asc"|"desc"}}.
func compilePrimaryKey(v cue.Value) (PrimaryKey, error) {
	if col, err := v.String(); err == nil {
		return PrimaryKey{Partition: []string{col}}, nil
	}

	var pk PrimaryKey
	if err := v.LookupPath(cue.ParsePath("partitionBy")).Decode(&pk.Partition); err != nil {
		return pk, &LoadError{Field: "primaryKey.partitionBy", Message: "must be a list of column names", Pos: v.Pos()}
	}

	sortVal := v.LookupPath(cue.ParsePath("partitionSort"))
	if !sortVal.Exists() {
		return pk, nil
	}
	iter, err := sortVal.Fields()
	if err != nil {
		return pk, formatCUEError(err)
	}
	for iter.Next() {
		dir, err := iter.Value().String()
		if err != nil {
			return pk, formatCUEError(err)
		}
		switch dir {
		case "asc", "desc":
		default:
			return pk, &LoadError{Field: "primaryKey.partitionSort." + iter.Label(), Message: fmt.Sprintf("sort must be asc or desc, got %q", dir), Pos: iter.Value().Pos()}
		}
		pk.Clustering = append(pk.Clustering, ClusteringColumn{Column: iter.Label(), Descending: dir == "desc"})
	}
	return pk, nil
}

func compileIndexes(v cue.Value) ([]Index, error) {
	var indexes []Index
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		idx := Index{Name: iter.Label(), Target: TargetValues}
		iv := iter.Value()

		col, err := iv.LookupPath(cue.ParsePath("column")).String()
		if err != nil {
			return nil, &LoadError{Field: "indexes." + idx.Name + ".column", Message: "column is required", Pos: iv.Pos()}
		}
		idx.Column = col

		if t := iv.LookupPath(cue.ParsePath("target")); t.Exists() {
			target, err := t.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			idx.Target = IndexTarget(target)
		}
		if o := iv.LookupPath(cue.ParsePath("options")); o.Exists() {
			if err := o.Decode(&idx.Options); err != nil {
				return nil, formatCUEError(err)
			}
		}
		indexes = append(indexes, idx)
	}
	return indexes, nil
}

func (c *Catalog) compileCollections(ks string, v cue.Value) error {
	collVal := v.LookupPath(cue.ParsePath("collections"))
	if !collVal.Exists() {
		return nil
	}
	iter, err := collVal.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Label()
		cv := iter.Value()

		var indexing Indexing
		if iv := cv.LookupPath(cue.ParsePath("indexing")); iv.Exists() {
			_ = iv.LookupPath(cue.ParsePath("allow")).Decode(&indexing.Allow)
			_ = iv.LookupPath(cue.ParsePath("deny")).Decode(&indexing.Deny)
		}

		var defaultID string
		if dv := cv.LookupPath(cue.ParsePath("defaultId")); dv.Exists() {
			if defaultID, err = dv.String(); err != nil {
				return formatCUEError(err)
			}
		}

		var validator string
		if vv := cv.LookupPath(cue.ParsePath("validator")); vv.Exists() {
			raw, err := vv.MarshalJSON()
			if err != nil {
				return formatCUEError(err)
			}
			validator = string(raw)
		}

		settings, err := NewCollectionSettings(indexing, IDType(defaultID), validator)
		if err != nil {
			return &LoadError{Field: "collections." + name, Message: err.Error(), Pos: cv.Pos()}
		}
		c.objects[ks][name] = NewCollection(ks, name, settings)
	}
	return nil
}

// Keyspaces returns keyspace names in declaration order.
func (c *Catalog) Keyspaces() []string {
	return append([]string(nil), c.keyspaces...)
}

// Names returns the table and collection names of a keyspace, sorted.
func (c *Catalog) Names(keyspace string) []string {
	var names []string
	for name := range c.objects[keyspace] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load resolves a target. An empty name selects the keyspace itself and
// an empty keyspace selects the database root.
func (c *Catalog) Load(_ context.Context, keyspace, name string) (*Object, error) {
	if keyspace == "" {
		return NewDatabase(), nil
	}
	objs, ok := c.objects[keyspace]
	if !ok {
		return nil, &NotFoundError{Keyspace: keyspace}
	}
	if name == "" {
		return NewKeyspace(keyspace), nil
	}
	obj, ok := objs[name]
	if !ok {
		return nil, &NotFoundError{Keyspace: keyspace, Name: name}
	}
	return obj, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &LoadError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
