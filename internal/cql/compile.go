package cql

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/cqlbridge/internal/driver"
	"github.com/roach88/cqlbridge/internal/filter"
	"github.com/roach88/cqlbridge/internal/schema"
)

// Compile converts a query into a statement.
func Compile(q Query) (driver.Statement, error) {
	if q == nil {
		return driver.Statement{}, fmt.Errorf("cannot compile nil query")
	}

	switch query := q.(type) {
	case Select:
		return compileSelect(query)
	case Insert:
		return compileInsert(query)
	case Update:
		return compileUpdate(query)
	case Delete:
		return compileDelete(query)
	case Truncate:
		return compileTruncate(query)
	case CreateTable:
		return compileCreateTable(query)
	case DropTable:
		return compileDropTable(query)
	case AlterTable:
		return compileAlterTable(query)
	case CreateIndex:
		return compileCreateIndex(query)
	case DropIndex:
		return compileDropIndex(query)
	case CreateKeyspace:
		return compileCreateKeyspace(query)
	case DropKeyspace:
		return compileDropKeyspace(query)
	case ListKeyspaces:
		return driver.Statement{
			CQL:        "SELECT keyspace_name, replication FROM system_schema.keyspaces",
			Idempotent: true,
		}, nil
	case ListTables:
		return driver.Statement{
			CQL:        "SELECT table_name, comment FROM system_schema.tables WHERE keyspace_name = ?",
			Values:     []any{query.Keyspace},
			Idempotent: true,
		}, nil
	case ListIndexes:
		return driver.Statement{
			CQL:        "SELECT index_name, kind, options FROM system_schema.indexes WHERE keyspace_name = ? AND table_name = ?",
			Values:     []any{query.Keyspace, query.Table},
			Idempotent: true,
		}, nil
	default:
		return driver.Statement{}, fmt.Errorf("unsupported query type: %T", q)
	}
}

// MustCompile is like Compile but panics on error. Use only in tests.
func MustCompile(q Query) driver.Statement {
	stmt, err := Compile(q)
	if err != nil {
		panic(err)
	}
	return stmt
}

func table(obj *schema.Object) (string, error) {
	if obj == nil || (obj.Kind != schema.KindTable && obj.Kind != schema.KindCollection) {
		return "", fmt.Errorf("statement needs a table or collection, got %v", obj)
	}
	return qualified(obj.Keyspace, obj.Name), nil
}

func qualified(keyspace, name string) string {
	return schema.Quote(keyspace) + "." + schema.Quote(name)
}

func compileSelect(q Select) (driver.Statement, error) {
	from, err := table(q.Object)
	if err != nil {
		return driver.Statement{}, err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	switch {
	case q.Count:
		b.WriteString("COUNT(*)")
	case len(q.Columns) == 0:
		b.WriteString("*")
	default:
		b.WriteString(quoteAll(q.Columns))
	}
	b.WriteString(" FROM ")
	b.WriteString(from)

	where, values, err := compileWhere(q.Object, q.Where)
	if err != nil {
		return driver.Statement{}, err
	}
	b.WriteString(where)

	if len(q.OrderBy) > 0 {
		terms := make([]string, len(q.OrderBy))
		for i, o := range q.OrderBy {
			terms[i] = schema.Quote(o.Column) + direction(o.Descending)
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(terms, ", "))
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(q.Limit))
	}
	if q.AllowFiltering {
		b.WriteString(" ALLOW FILTERING")
	}

	return driver.Statement{
		CQL:        b.String(),
		Values:     values,
		PageSize:   q.PageSize,
		PageState:  q.PageState,
		Idempotent: true,
	}, nil
}

func compileInsert(q Insert) (driver.Statement, error) {
	into, err := table(q.Object)
	if err != nil {
		return driver.Statement{}, err
	}
	if len(q.Values) == 0 {
		return driver.Statement{}, fmt.Errorf("insert into %s without values", into)
	}

	cols := make([]string, len(q.Values))
	values := make([]any, len(q.Values))
	for i, a := range q.Values {
		cols[i] = schema.Quote(a.Column)
		values[i] = a.Value
	}

	cql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		into,
		strings.Join(cols, ", "),
		markers(len(values)))
	if q.IfNotExists {
		cql += " IF NOT EXISTS"
	}
	return driver.Statement{CQL: cql, Values: values, Idempotent: !q.IfNotExists}, nil
}

func compileUpdate(q Update) (driver.Statement, error) {
	tbl, err := table(q.Object)
	if err != nil {
		return driver.Statement{}, err
	}
	if len(q.Set) == 0 {
		return driver.Statement{}, fmt.Errorf("update of %s without assignments", tbl)
	}
	if q.Where.IsEmpty() {
		return driver.Statement{}, fmt.Errorf("update of %s without where clause", tbl)
	}

	sets := make([]string, len(q.Set))
	var values []any
	for i, a := range q.Set {
		sets[i] = schema.Quote(a.Column) + " = ?"
		values = append(values, a.Value)
	}

	where, whereValues, err := compileWhere(q.Object, q.Where)
	if err != nil {
		return driver.Statement{}, err
	}
	values = append(values, whereValues...)

	cql := fmt.Sprintf("UPDATE %s SET %s%s", tbl, strings.Join(sets, ", "), where)
	cond, condValues := conditions(q.IfExists, q.If)
	cql += cond
	values = append(values, condValues...)

	return driver.Statement{CQL: cql, Values: values, Idempotent: cond == ""}, nil
}

func compileDelete(q Delete) (driver.Statement, error) {
	from, err := table(q.Object)
	if err != nil {
		return driver.Statement{}, err
	}
	if q.Where.IsEmpty() {
		return driver.Statement{}, fmt.Errorf("delete from %s without where clause, use TRUNCATE", from)
	}

	where, values, err := compileWhere(q.Object, q.Where)
	if err != nil {
		return driver.Statement{}, err
	}

	cql := "DELETE FROM " + from + where
	cond, condValues := conditions(q.IfExists, q.If)
	cql += cond
	values = append(values, condValues...)

	return driver.Statement{CQL: cql, Values: values, Idempotent: cond == ""}, nil
}

func compileTruncate(q Truncate) (driver.Statement, error) {
	tbl, err := table(q.Object)
	if err != nil {
		return driver.Statement{}, err
	}
	return driver.Statement{CQL: "TRUNCATE TABLE " + tbl, Idempotent: true}, nil
}

// conditions renders the lightweight transaction suffix.
func conditions(ifExists bool, ifs []Assignment) (string, []any) {
	if ifExists {
		return " IF EXISTS", nil
	}
	if len(ifs) == 0 {
		return "", nil
	}
	parts := make([]string, len(ifs))
	values := make([]any, len(ifs))
	for i, a := range ifs {
		parts[i] = schema.Quote(a.Column) + " = ?"
		values[i] = a.Value
	}
	return " IF " + strings.Join(parts, " AND "), values
}

// compileWhere renders the expression as a WHERE clause, or "" when the
// expression is empty. Predicates are emitted in traversal order.
func compileWhere(obj *schema.Object, e *filter.Expression) (string, []any, error) {
	if e.IsEmpty() {
		return "", nil, nil
	}
	text, values, err := compileNode(obj, e)
	if err != nil {
		return "", nil, err
	}
	return " WHERE " + text, values, nil
}

func compileNode(obj *schema.Object, e *filter.Expression) (string, []any, error) {
	var parts []string
	var values []any

	for _, f := range e.Filters {
		group, err := f.Predicates(obj)
		if err != nil {
			return "", nil, err
		}
		text, groupValues := compileGroup(group)
		if len(group.Predicates) > 1 && group.Join != e.Join && terms(e) > 1 {
			text = "(" + text + ")"
		}
		parts = append(parts, text)
		values = append(values, groupValues...)
	}

	for _, c := range e.Children {
		if c.IsEmpty() {
			continue
		}
		text, childValues, err := compileNode(obj, c)
		if err != nil {
			return "", nil, err
		}
		if c.Join != e.Join && terms(c) > 1 && terms(e) > 1 {
			text = "(" + text + ")"
		}
		parts = append(parts, text)
		values = append(values, childValues...)
	}

	return strings.Join(parts, " "+string(e.Join)+" "), values, nil
}

// terms counts the direct operands of a node.
func terms(e *filter.Expression) int {
	n := len(e.Filters)
	for _, c := range e.Children {
		if !c.IsEmpty() {
			n++
		}
	}
	return n
}

func compileGroup(g filter.PredicateGroup) (string, []any) {
	parts := make([]string, len(g.Predicates))
	var values []any
	for i, p := range g.Predicates {
		col := schema.Quote(p.Column)
		if p.MapKey != nil {
			parts[i] = fmt.Sprintf("%s[?] %s ?", col, p.Op)
			values = append(values, p.MapKey, p.Value)
			continue
		}
		parts[i] = fmt.Sprintf("%s %s ?", col, p.Op)
		values = append(values, p.Value)
	}
	return strings.Join(parts, " "+string(g.Join)+" "), values
}

func compileCreateTable(q CreateTable) (driver.Statement, error) {
	if len(q.Columns) == 0 || len(q.PrimaryKey.Partition) == 0 {
		return driver.Statement{}, fmt.Errorf("create table %s needs columns and a partition key", q.Name)
	}

	defs := make([]string, 0, len(q.Columns)+1)
	for _, c := range q.Columns {
		def := schema.Quote(c.Name) + " " + c.Type.String()
		if c.Static {
			def += " STATIC"
		}
		defs = append(defs, def)
	}
	defs = append(defs, "PRIMARY KEY ("+primaryKey(q.PrimaryKey)+")")

	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	if q.IfNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(qualified(q.Keyspace, q.Name))
	b.WriteString(" (")
	b.WriteString(strings.Join(defs, ", "))
	b.WriteString(")")

	var with []string
	if slices.ContainsFunc(q.PrimaryKey.Clustering, func(c schema.ClusteringColumn) bool { return c.Descending }) {
		order := make([]string, len(q.PrimaryKey.Clustering))
		for i, c := range q.PrimaryKey.Clustering {
			order[i] = schema.Quote(c.Column) + direction(c.Descending)
		}
		with = append(with, "CLUSTERING ORDER BY ("+strings.Join(order, ", ")+")")
	}
	if q.Comment != "" {
		with = append(with, "comment = "+quoteString(q.Comment))
	}
	if len(with) > 0 {
		b.WriteString(" WITH ")
		b.WriteString(strings.Join(with, " AND "))
	}

	return driver.Statement{CQL: b.String(), Idempotent: q.IfNotExists}, nil
}

func primaryKey(pk schema.PrimaryKey) string {
	var partition string
	if len(pk.Partition) == 1 {
		partition = schema.Quote(pk.Partition[0])
	} else {
		partition = "(" + quoteAll(pk.Partition) + ")"
	}
	parts := []string{partition}
	for _, c := range pk.Clustering {
		parts = append(parts, schema.Quote(c.Column))
	}
	return strings.Join(parts, ", ")
}

func compileDropTable(q DropTable) (driver.Statement, error) {
	cql := "DROP TABLE "
	if q.IfExists {
		cql += "IF EXISTS "
	}
	return driver.Statement{CQL: cql + qualified(q.Keyspace, q.Name), Idempotent: q.IfExists}, nil
}

func compileAlterTable(q AlterTable) (driver.Statement, error) {
	tbl := qualified(q.Keyspace, q.Name)
	switch {
	case len(q.Add) > 0 && len(q.Drop) > 0:
		return driver.Statement{}, fmt.Errorf("alter table %s cannot add and drop in one statement", tbl)
	case len(q.Add) > 0:
		defs := make([]string, len(q.Add))
		for i, c := range q.Add {
			defs[i] = schema.Quote(c.Name) + " " + c.Type.String()
		}
		return driver.Statement{CQL: fmt.Sprintf("ALTER TABLE %s ADD (%s)", tbl, strings.Join(defs, ", "))}, nil
	case len(q.Drop) > 0:
		return driver.Statement{CQL: fmt.Sprintf("ALTER TABLE %s DROP (%s)", tbl, quoteAll(q.Drop))}, nil
	default:
		return driver.Statement{}, fmt.Errorf("alter table %s without changes", tbl)
	}
}

func compileCreateIndex(q CreateIndex) (driver.Statement, error) {
	if q.Index.Name == "" || q.Index.Column == "" {
		return driver.Statement{}, fmt.Errorf("create index on %s needs a name and a column", q.Table)
	}

	target := schema.Quote(q.Index.Column)
	if q.Index.Target != "" {
		target = string(q.Index.Target) + "(" + target + ")"
	}

	var b strings.Builder
	b.WriteString("CREATE CUSTOM INDEX ")
	if q.IfNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	fmt.Fprintf(&b, "%s ON %s (%s) USING 'StorageAttachedIndex'",
		schema.Quote(q.Index.Name), qualified(q.Keyspace, q.Table), target)
	if len(q.Index.Options) > 0 {
		b.WriteString(" WITH OPTIONS = ")
		b.WriteString(stringMap(q.Index.Options, ""))
	}

	return driver.Statement{CQL: b.String(), Idempotent: q.IfNotExists}, nil
}

func compileDropIndex(q DropIndex) (driver.Statement, error) {
	cql := "DROP INDEX "
	if q.IfExists {
		cql += "IF EXISTS "
	}
	return driver.Statement{CQL: cql + qualified(q.Keyspace, q.Name), Idempotent: q.IfExists}, nil
}

func compileCreateKeyspace(q CreateKeyspace) (driver.Statement, error) {
	if _, ok := q.Replication["class"]; !ok {
		return driver.Statement{}, fmt.Errorf("create keyspace %s: replication needs a class", q.Name)
	}

	cql := "CREATE KEYSPACE "
	if q.IfNotExists {
		cql += "IF NOT EXISTS "
	}
	cql += schema.Quote(q.Name) + " WITH replication = " + stringMap(q.Replication, "class")
	return driver.Statement{CQL: cql, Idempotent: q.IfNotExists}, nil
}

func compileDropKeyspace(q DropKeyspace) (driver.Statement, error) {
	cql := "DROP KEYSPACE "
	if q.IfExists {
		cql += "IF EXISTS "
	}
	return driver.Statement{CQL: cql + schema.Quote(q.Name), Idempotent: q.IfExists}, nil
}

// stringMap renders a CQL map literal with sorted keys; first, if set,
// is emitted before the others.
func stringMap(m map[string]string, first string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		if k != first {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	if _, ok := m[first]; ok && first != "" {
		keys = append([]string{first}, keys...)
	}

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = quoteString(k) + ": " + quoteString(m[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteAll(idents []string) string {
	quoted := make([]string, len(idents))
	for i, id := range idents {
		quoted[i] = schema.Quote(id)
	}
	return strings.Join(quoted, ", ")
}

func markers(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func direction(desc bool) string {
	if desc {
		return " DESC"
	}
	return " ASC"
}
