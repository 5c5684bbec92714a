package relational

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/adapter"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/filter"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/schema"
	sql "github.com/krew-solutions/ascetic-dal-go/asceticdal/specification/infrastructure"
)

const rootAlias = "t"

func ident(parts ...string) string {
	return pgx.Identifier(parts).Sanitize()
}

// statement accumulates SQL text with its positional parameters.
type statement struct {
	sql    strings.Builder
	params []any
}

func (st *statement) write(parts ...string) *statement {
	for _, p := range parts {
		st.sql.WriteString(p)
	}
	return st
}

func (st *statement) bind(value any) string {
	st.params = append(st.params, value)
	return fmt.Sprintf("$%d", len(st.params))
}

func (st *statement) String() string {
	return st.sql.String()
}

// queryBuilder renders statements over one entity aliased as "t".
type queryBuilder struct {
	registry *schema.Registry
}

func (b queryBuilder) target(name string) (*schema.Entity, error) {
	entity, found := b.registry.Lookup(name)
	if !found {
		return nil, errors.Errorf("unknown entity %q", name)
	}
	return entity, nil
}

// where renders the join directives as semi-joins followed by the filter.
// Join parameters are bound first.
func (b queryBuilder) where(st *statement, entity *schema.Entity, q filter.CompiledQuery) error {
	var conds []string
	for i, j := range q.Joins {
		cond, err := b.joinCondition(st, entity, j, fmt.Sprintf("j%d", i))
		if err != nil {
			return err
		}
		conds = append(conds, cond)
	}
	if q.Filter != nil {
		cond, params, err := sql.Compile(q.Filter, sql.PlaceholderIndex(len(st.params)), sql.WithTableAlias(rootAlias))
		if err != nil {
			return errors.Wrap(err, "compile filter")
		}
		st.params = append(st.params, params...)
		if len(conds) > 0 {
			cond = "(" + cond + ")"
		}
		conds = append(conds, cond)
	}
	if len(conds) > 0 {
		st.write(" WHERE ", strings.Join(conds, " AND "))
	}
	return nil
}

// joinCondition renders a belongs-to join on the foreign key and a child join
// as EXISTS over the child table. A join without ids only checks that a
// related row exists.
func (b queryBuilder) joinCondition(st *statement, entity *schema.Entity, j filter.JoinDirective, joinAlias string) (string, error) {
	if j.Association.IsParent() {
		fk := ident(rootAlias, j.Association.ForeignKeyColumn)
		switch {
		case len(j.IDs) == 0 && j.Negated:
			return fk + " IS NULL", nil
		case len(j.IDs) == 0:
			return fk + " IS NOT NULL", nil
		case j.Negated:
			return "(" + fk + " IS NULL OR " + fk + " <> ALL(" + st.bind(filter.Homogeneous(j.IDs)) + "))", nil
		}
		return fk + " = ANY(" + st.bind(filter.Homogeneous(j.IDs)) + ")", nil
	}
	target, err := b.target(j.TargetEntity)
	if err != nil {
		return "", err
	}
	cond := fmt.Sprintf(
		"EXISTS (SELECT 1 FROM %s AS %s WHERE %s = %s",
		ident(target.Source()), ident(joinAlias),
		ident(joinAlias, j.Association.ForeignKeyColumn), ident(rootAlias, entity.PK()),
	)
	if len(j.IDs) > 0 {
		cond += fmt.Sprintf(" AND %s = ANY(%s)", ident(joinAlias, target.PK()), st.bind(filter.Homogeneous(j.IDs)))
	}
	cond += ")"
	if j.Negated {
		return "NOT " + cond, nil
	}
	return cond, nil
}

func (b queryBuilder) Select(entity *schema.Entity, q filter.CompiledQuery, page adapter.Page, order []schema.OrderSpec) (*statement, error) {
	st := &statement{}
	st.write("SELECT ", ident(rootAlias), ".* FROM ", ident(entity.Source()), " AS ", ident(rootAlias))
	if err := b.where(st, entity, q); err != nil {
		return nil, err
	}
	if len(order) > 0 {
		parts := make([]string, len(order))
		for i, o := range order {
			parts[i] = ident(rootAlias, o.Field) + " " + strings.ToUpper(string(o.Direction))
		}
		st.write(" ORDER BY ", strings.Join(parts, ", "))
	}
	if page.Size > 0 {
		st.write(" LIMIT ", st.bind(page.Size))
	}
	if page.Offset > 0 {
		st.write(" OFFSET ", st.bind(page.Offset))
	}
	return st, nil
}

func (b queryBuilder) Count(entity *schema.Entity, q filter.CompiledQuery) (*statement, error) {
	st := &statement{}
	st.write("SELECT COUNT(*) FROM ", ident(entity.Source()), " AS ", ident(rootAlias))
	if err := b.where(st, entity, q); err != nil {
		return nil, err
	}
	return st, nil
}

func (b queryBuilder) Delete(entity *schema.Entity, q filter.CompiledQuery) (*statement, error) {
	st := &statement{}
	st.write("DELETE FROM ", ident(entity.Source()), " AS ", ident(rootAlias))
	if err := b.where(st, entity, q); err != nil {
		return nil, err
	}
	return st, nil
}

func (b queryBuilder) Insert(entity *schema.Entity, values schema.Record) *statement {
	st := &statement{}
	st.write("INSERT INTO ", ident(entity.Source()))
	keys := sortedKeys(values)
	if len(keys) == 0 {
		return st.write(" DEFAULT VALUES RETURNING *")
	}
	columns := make([]string, len(keys))
	placeholders := make([]string, len(keys))
	for i, k := range keys {
		columns[i] = ident(k)
		placeholders[i] = st.bind(values[k])
	}
	st.write(" (", strings.Join(columns, ", "), ") VALUES (", strings.Join(placeholders, ", "), ") RETURNING *")
	return st
}

// Update falls back to a plain select when there is nothing to set, so the
// caller still learns whether the row exists.
func (b queryBuilder) Update(entity *schema.Entity, id any, values schema.Record) *statement {
	st := &statement{}
	keys := sortedKeys(values)
	if len(keys) == 0 {
		st.write("SELECT * FROM ", ident(entity.Source()), " WHERE ", ident(entity.PK()), " = ", st.bind(id))
		return st
	}
	sets := make([]string, len(keys))
	for i, k := range keys {
		sets[i] = ident(k) + " = " + st.bind(values[k])
	}
	st.write("UPDATE ", ident(entity.Source()), " SET ", strings.Join(sets, ", "))
	st.write(" WHERE ", ident(entity.PK()), " = ", st.bind(id), " RETURNING *")
	return st
}

func (b queryBuilder) FetchByKeys(target *schema.Entity, column string, keys []any, limit int) *statement {
	st := &statement{}
	st.write("SELECT * FROM ", ident(target.Source()), " WHERE ", ident(column), " = ANY(", st.bind(filter.Homogeneous(keys)), ")")
	st.write(" ORDER BY ", ident(target.PK()))
	if limit > 0 {
		st.write(" LIMIT ", st.bind(limit))
	}
	return st
}

// ResyncSequence advances the serial sequence of the primary key past the
// highest stored id. Tables without a serial sequence are left alone.
func (b queryBuilder) ResyncSequence(entity *schema.Entity) *statement {
	st := &statement{}
	table := st.bind(ident(entity.Source()))
	column := st.bind(entity.PK())
	st.write(fmt.Sprintf(
		"SELECT setval(pg_get_serial_sequence(%s, %s), GREATEST((SELECT MAX(%s) FROM %s), 1))",
		table, column, ident(entity.PK()), ident(entity.Source()),
	))
	return st
}

func sortedKeys(values schema.Record) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BuildSelect renders the statement Select would run, for tooling.
func BuildSelect(
	registry *schema.Registry, entity *schema.Entity, q filter.CompiledQuery, page adapter.Page, order []schema.OrderSpec,
) (string, []any, error) {
	st, err := queryBuilder{registry: registry}.Select(entity, q, page, entity.SanitizeOrder(order))
	if err != nil {
		return "", nil, err
	}
	return st.String(), st.params, nil
}
