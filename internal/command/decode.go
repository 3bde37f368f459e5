package command

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cqlbridge/internal/apierr"
	"github.com/roach88/cqlbridge/internal/ir"
	"github.com/roach88/cqlbridge/internal/schema"
)

var filterOperators = map[string]bool{
	"$eq": true, "$ne": true, "$gt": true, "$gte": true, "$lt": true, "$lte": true,
	"$in": true, "$nin": true, "$exists": true, "$all": true, "$size": true,
}

var updateOperators = map[string]bool{
	"$set": true, "$unset": true, "$inc": true, "$push": true,
}

// Decode parses a command document. JSON and YAML are both accepted:
//
//	{"find": {"filter": {"age": {"$gt": 30}}, "sort": {"name": 1}, "options": {"limit": 10}}}
//
// Decoding walks yaml.v3 nodes so the declaration order of filter,
// sort and update clauses is preserved.
func Decode(data []byte) (*Command, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apierr.New(apierr.CodeInvalidCommand, "command is not valid JSON or YAML: %v", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return nil, apierr.New(apierr.CodeInvalidCommand, "empty command document")
	}
	return DecodeNode(doc.Content[0])
}

// DecodeNode parses a command from a mapping node with exactly one key.
func DecodeNode(root *yaml.Node) (*Command, error) {
	if root.Kind != yaml.MappingNode || len(root.Content) != 2 {
		return nil, apierr.New(apierr.CodeInvalidCommand, "command document must have exactly one top level key")
	}

	cmd := &Command{Name: Name(root.Content[0].Value)}
	body := root.Content[1]
	if isNull(body) {
		return cmd, nil
	}
	if body.Kind != yaml.MappingNode {
		return nil, apierr.New(apierr.CodeInvalidCommand, "%s: command body must be an object", cmd.Name)
	}

	for i := 0; i < len(body.Content); i += 2 {
		key, val := body.Content[i].Value, body.Content[i+1]
		var err error
		switch key {
		case "filter":
			cmd.Filter, err = decodeClause(val, And)
		case "sort":
			cmd.Sort, err = decodeSort(val)
		case "projection":
			cmd.Projection, err = decodeProjection(val)
		case "update":
			cmd.Update, err = decodeUpdate(val)
		case "document":
			var doc ir.Object
			if doc, err = decodeObject(val); err == nil {
				cmd.Documents = []ir.Object{doc}
			}
		case "documents":
			cmd.Documents, err = decodeDocuments(val)
		case "options":
			err = decodeOptions(cmd, val)
		case "name":
			cmd.Target = val.Value
		case "definition":
			err = decodeDefinition(cmd, val)
		case "operation":
			cmd.Alter, err = decodeAlter(val)
		default:
			err = fmt.Errorf("unknown field %q", key)
		}
		if err != nil {
			if _, ok := apierr.As(err); ok {
				return nil, err
			}
			return nil, apierr.New(apierr.CodeInvalidCommand, "%s.%s: %v", cmd.Name, key, err)
		}
	}
	return cmd, nil
}

// decodeClause builds a clause node. Top level keys are either paths or
// the logical operators $and / $or.
func decodeClause(n *yaml.Node, join Join) (*Clause, error) {
	if n.Kind != yaml.MappingNode {
		return nil, filterError("filter clause must be an object")
	}
	c := &Clause{Join: join}

	for i := 0; i < len(n.Content); i += 2 {
		key, val := n.Content[i].Value, n.Content[i+1]
		switch {
		case key == "$and" || key == "$or":
			child, err := decodeLogical(key, val)
			if err != nil {
				return nil, err
			}
			c.Children = append(c.Children, child)
		case strings.HasPrefix(key, "$"):
			return nil, filterError("unsupported logical operator %q", key)
		default:
			conds, err := decodeConditions(key, val)
			if err != nil {
				return nil, err
			}
			c.Conditions = append(c.Conditions, conds...)
		}
	}
	return c, nil
}

// decodeLogical decodes the array operand of $and / $or. Members of an
// $and are merged into one node; members of an $or keep their own node
// unless they hold a single condition.
func decodeLogical(op string, n *yaml.Node) (*Clause, error) {
	if n.Kind != yaml.SequenceNode || len(n.Content) == 0 {
		return nil, filterError("%s requires a non-empty array", op)
	}
	join := And
	if op == "$or" {
		join = Or
	}

	node := &Clause{Join: join}
	for _, member := range n.Content {
		m, err := decodeClause(member, And)
		if err != nil {
			return nil, err
		}
		if join == And || (len(m.Conditions) <= 1 && len(m.Children) == 0) {
			node.Conditions = append(node.Conditions, m.Conditions...)
			node.Children = append(node.Children, m.Children...)
			continue
		}
		node.Children = append(node.Children, m)
	}
	return node, nil
}

func decodeConditions(path string, n *yaml.Node) ([]Condition, error) {
	if n.Kind != yaml.MappingNode || len(n.Content) == 0 || !strings.HasPrefix(n.Content[0].Value, "$") {
		v, err := nodeValue(n)
		if err != nil {
			return nil, filterError("%s: %v", path, err)
		}
		return []Condition{{Path: path, Op: "$eq", Value: v}}, nil
	}

	if _, isDate := singleKey(n, "$date"); isDate {
		v, err := nodeValue(n)
		if err != nil {
			return nil, filterError("%s: %v", path, err)
		}
		return []Condition{{Path: path, Op: "$eq", Value: v}}, nil
	}

	var conds []Condition
	for i := 0; i < len(n.Content); i += 2 {
		op := n.Content[i].Value
		if !filterOperators[op] {
			return nil, filterError("%s: unsupported filter operator %q", path, op)
		}
		v, err := nodeValue(n.Content[i+1])
		if err != nil {
			return nil, filterError("%s.%s: %v", path, op, err)
		}
		conds = append(conds, Condition{Path: path, Op: op, Value: v})
	}
	return conds, nil
}

func decodeSort(n *yaml.Node) ([]SortTerm, error) {
	if n.Kind != yaml.MappingNode {
		return nil, apierr.New(apierr.CodeInvalidSortClause, "sort clause must be an object")
	}
	terms := make([]SortTerm, 0, len(n.Content)/2)
	for i := 0; i < len(n.Content); i += 2 {
		path, dir := n.Content[i].Value, n.Content[i+1].Value
		switch dir {
		case "1":
			terms = append(terms, SortTerm{Path: path})
		case "-1":
			terms = append(terms, SortTerm{Path: path, Descending: true})
		default:
			return nil, apierr.New(apierr.CodeInvalidSortClause, "sort direction for %q must be 1 or -1, got %q", path, dir).
				With("path", path)
		}
	}
	return terms, nil
}

func decodeProjection(n *yaml.Node) (*Projection, error) {
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("projection must be an object")
	}
	p := &Projection{}
	for i := 0; i < len(n.Content); i += 2 {
		path := n.Content[i].Value
		var include bool
		switch n.Content[i+1].Value {
		case "1", "true":
			include = true
		case "0", "false":
		default:
			return nil, fmt.Errorf("projection for %q must be 0/1 or a boolean", path)
		}
		if include {
			p.Include = append(p.Include, path)
		} else {
			p.Exclude = append(p.Exclude, path)
		}
	}
	if len(p.Include) > 0 && len(p.Exclude) > 0 {
		return nil, fmt.Errorf("projection cannot mix inclusion and exclusion")
	}
	return p, nil
}

func decodeUpdate(n *yaml.Node) ([]UpdateOp, error) {
	if n.Kind != yaml.MappingNode {
		return nil, apierr.New(apierr.CodeInvalidUpdate, "update clause must be an object")
	}
	var ops []UpdateOp
	for i := 0; i < len(n.Content); i += 2 {
		op, args := n.Content[i].Value, n.Content[i+1]
		if !updateOperators[op] {
			return nil, apierr.New(apierr.CodeUnsupportedUpdateOperator, "unsupported update operator %q", op).
				With("operator", op)
		}
		if args.Kind != yaml.MappingNode || len(args.Content) == 0 {
			return nil, apierr.New(apierr.CodeInvalidUpdate, "%s requires a non-empty object", op)
		}
		for j := 0; j < len(args.Content); j += 2 {
			v, err := nodeValue(args.Content[j+1])
			if err != nil {
				return nil, apierr.New(apierr.CodeInvalidUpdate, "%s.%s: %v", op, args.Content[j].Value, err)
			}
			ops = append(ops, UpdateOp{Operator: op, Path: args.Content[j].Value, Value: v})
		}
	}
	return ops, nil
}

func decodeDocuments(n *yaml.Node) ([]ir.Object, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("documents must be an array")
	}
	docs := make([]ir.Object, 0, len(n.Content))
	for i, d := range n.Content {
		doc, err := decodeObject(d)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func decodeObject(n *yaml.Node) (ir.Object, error) {
	v, err := nodeValue(n)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return nil, fmt.Errorf("expected an object, got %s", ir.KindOf(v))
	}
	return obj, nil
}

// decodeOptions reads the shared option flags plus the DDL specific
// payloads that the Data API places under "options".
func decodeOptions(cmd *Command, n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("options must be an object")
	}
	if err := n.Decode(&cmd.Options); err != nil {
		return err
	}

	switch cmd.Name {
	case CreateCollection:
		def := &CollectionDefinition{}
		if v, ok := lookup(n, "indexing"); ok {
			if a, ok := lookup(v, "allow"); ok {
				if err := a.Decode(&def.Indexing.Allow); err != nil {
					return fmt.Errorf("indexing.allow: %w", err)
				}
			}
			if d, ok := lookup(v, "deny"); ok {
				if err := d.Decode(&def.Indexing.Deny); err != nil {
					return fmt.Errorf("indexing.deny: %w", err)
				}
			}
		}
		if v, ok := lookup(n, "defaultId"); ok {
			if t, ok := lookup(v, "type"); ok {
				def.DefaultID = schema.IDType(t.Value)
			}
		}
		if v, ok := lookup(n, "validator"); ok {
			val, err := nodeValue(v)
			if err != nil {
				return fmt.Errorf("validator: %w", err)
			}
			def.Validator = string(ir.MustMarshalCanonical(val))
		}
		cmd.Collection = def
	case CreateKeyspace:
		def := &KeyspaceDefinition{Replication: map[string]string{"class": "SimpleStrategy", "replication_factor": "1"}}
		if v, ok := lookup(n, "replication"); ok {
			repl := map[string]string{}
			if err := v.Decode(&repl); err != nil {
				return fmt.Errorf("replication: %w", err)
			}
			def.Replication = repl
		}
		cmd.Keyspace = def
	}
	return nil
}

func decodeDefinition(cmd *Command, n *yaml.Node) error {
	switch cmd.Name {
	case CreateTable:
		def, err := decodeTableDefinition(n)
		if err != nil {
			return err
		}
		cmd.Table = def
	case CreateIndex:
		def := &IndexDefinition{Target: schema.TargetValues}
		col, ok := lookup(n, "column")
		if !ok {
			return fmt.Errorf("column is required")
		}
		// {"column": {"attrs": "$keys"}} selects the keys of a map column.
		if col.Kind == yaml.MappingNode && len(col.Content) == 2 {
			def.Column = col.Content[0].Value
			switch col.Content[1].Value {
			case "$keys":
				def.Target = schema.TargetKeys
			case "$values":
				def.Target = schema.TargetValues
			default:
				return fmt.Errorf("map index target must be $keys or $values")
			}
		} else {
			def.Column = col.Value
		}
		if o, ok := lookup(n, "options"); ok {
			def.Options = map[string]string{}
			if err := o.Decode(&def.Options); err != nil {
				return fmt.Errorf("options: %w", err)
			}
		}
		cmd.Index = def
	default:
		return fmt.Errorf("definition is not accepted by %s", cmd.Name)
	}
	return nil
}

func decodeTableDefinition(n *yaml.Node) (*TableDefinition, error) {
	def := &TableDefinition{}

	cols, ok := lookup(n, "columns")
	if !ok {
		return nil, fmt.Errorf("columns is required")
	}
	var err error
	if def.Columns, err = decodeColumns(cols); err != nil {
		return nil, err
	}

	pk, ok := lookup(n, "primaryKey")
	if !ok {
		return nil, fmt.Errorf("primaryKey is required")
	}
	if pk.Kind == yaml.ScalarNode {
		def.PrimaryKey.Partition = []string{pk.Value}
		return def, nil
	}
	if p, ok := lookup(pk, "partitionBy"); ok {
		if err := p.Decode(&def.PrimaryKey.Partition); err != nil {
			return nil, fmt.Errorf("partitionBy: %w", err)
		}
	}
	if s, ok := lookup(pk, "partitionSort"); ok {
		for i := 0; i < len(s.Content); i += 2 {
			dir := s.Content[i+1].Value
			if dir != "1" && dir != "-1" {
				return nil, fmt.Errorf("partitionSort.%s must be 1 or -1", s.Content[i].Value)
			}
			def.PrimaryKey.Clustering = append(def.PrimaryKey.Clustering, schema.ClusteringColumn{
				Column:     s.Content[i].Value,
				Descending: dir == "-1",
			})
		}
	}
	return def, nil
}

// decodeColumns accepts "text" or {"type": "map", "keyType": "text", "valueType": "int"}.
func decodeColumns(n *yaml.Node) ([]ColumnDefinition, error) {
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("columns must be an object")
	}
	var cols []ColumnDefinition
	for i := 0; i < len(n.Content); i += 2 {
		name, def := n.Content[i].Value, n.Content[i+1]
		typeStr := def.Value
		if def.Kind == yaml.MappingNode {
			var desc struct {
				Type      string `yaml:"type"`
				KeyType   string `yaml:"keyType"`
				ValueType string `yaml:"valueType"`
				Dimension int    `yaml:"dimension"`
			}
			if err := def.Decode(&desc); err != nil {
				return nil, fmt.Errorf("column %s: %w", name, err)
			}
			switch desc.Type {
			case "map":
				typeStr = fmt.Sprintf("map<%s, %s>", desc.KeyType, desc.ValueType)
			case "list", "set":
				typeStr = fmt.Sprintf("%s<%s>", desc.Type, desc.ValueType)
			case "vector":
				typeStr = "vector<float, " + strconv.Itoa(desc.Dimension) + ">"
			default:
				typeStr = desc.Type
			}
		}
		dt, err := schema.ParseType(typeStr)
		if err != nil {
			return nil, apierr.New(apierr.CodeInvalidSchemaDefinition, "column %s: %v", name, err).With("column", name)
		}
		cols = append(cols, ColumnDefinition{Name: name, Type: dt})
	}
	return cols, nil
}

func decodeAlter(n *yaml.Node) (*AlterTableDefinition, error) {
	alter := &AlterTableDefinition{}
	if add, ok := lookup(n, "add"); ok {
		cols, ok := lookup(add, "columns")
		if !ok {
			return nil, fmt.Errorf("add.columns is required")
		}
		var err error
		if alter.Add, err = decodeColumns(cols); err != nil {
			return nil, err
		}
	}
	if drop, ok := lookup(n, "drop"); ok {
		cols, ok := lookup(drop, "columns")
		if !ok {
			return nil, fmt.Errorf("drop.columns is required")
		}
		if err := cols.Decode(&alter.Drop); err != nil {
			return nil, fmt.Errorf("drop.columns: %w", err)
		}
	}
	if (len(alter.Add) == 0) == (len(alter.Drop) == 0) {
		return nil, fmt.Errorf("operation must have exactly one of add or drop")
	}
	return alter, nil
}

// nodeValue converts a YAML node into an ir value. Numbers keep their
// literal text so decimals are not rounded through float64.
func nodeValue(n *yaml.Node) (ir.Value, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!null":
			return ir.Null{}, nil
		case "!!bool":
			var b bool
			if err := n.Decode(&b); err != nil {
				return nil, err
			}
			return ir.Bool(b), nil
		case "!!int", "!!float":
			if num, err := ir.ParseNumber(n.Value); err == nil {
				return num, nil
			}
			var raw any
			if err := n.Decode(&raw); err != nil {
				return nil, err
			}
			return ir.FromNative(raw)
		default:
			return ir.String(n.Value), nil
		}
	case yaml.SequenceNode:
		arr := make(ir.Array, len(n.Content))
		for i, c := range n.Content {
			v, err := nodeValue(c)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = v
		}
		return arr, nil
	case yaml.MappingNode:
		if d, ok := singleKey(n, "$date"); ok {
			num, err := ir.ParseNumber(d.Value)
			if err != nil {
				return nil, fmt.Errorf("$date: %w", err)
			}
			millis, err := num.Int64()
			if err != nil {
				return nil, fmt.Errorf("$date: %w", err)
			}
			return ir.Date(millis), nil
		}
		obj := make(ir.Object, len(n.Content)/2)
		for i := 0; i < len(n.Content); i += 2 {
			v, err := nodeValue(n.Content[i+1])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", n.Content[i].Value, err)
			}
			obj[n.Content[i].Value] = v
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported YAML node")
	}
}

func lookup(n *yaml.Node, key string) (*yaml.Node, bool) {
	if n.Kind != yaml.MappingNode {
		return nil, false
	}
	for i := 0; i < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1], true
		}
	}
	return nil, false
}

func singleKey(n *yaml.Node, key string) (*yaml.Node, bool) {
	if n.Kind == yaml.MappingNode && len(n.Content) == 2 && n.Content[0].Value == key {
		return n.Content[1], true
	}
	return nil, false
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}

func filterError(format string, args ...any) error {
	return apierr.New(apierr.CodeInvalidFilterExpression, format, args...)
}
