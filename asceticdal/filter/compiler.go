package filter

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/alias"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/dalerr"
	"github.com/krew-solutions/ascetic-dal-go/asceticdal/schema"
	s "github.com/krew-solutions/ascetic-dal-go/asceticdal/specification/domain"
)

const (
	CodeInvalidConnector = "INVALID_CONNECTOR"
	CodeUnknownEntity    = "UNKNOWN_ENTITY"
)

type CompilerOption func(*Compiler)

func WithTypeRegistry(types *TypeRegistry) CompilerOption {
	return func(c *Compiler) {
		c.types = types
	}
}

func WithSingularizer(singularize alias.Singularizer) CompilerOption {
	return func(c *Compiler) {
		c.singularize = singularize
	}
}

func WithLogger(logger zerolog.Logger) CompilerOption {
	return func(c *Compiler) {
		c.logger = logger
	}
}

// Compiler holds no per-call state; one instance serves concurrent callers.
type Compiler struct {
	types       *TypeRegistry
	singularize alias.Singularizer
	logger      zerolog.Logger
}

func NewCompiler(opts ...CompilerOption) *Compiler {
	c := &Compiler{
		types:       NewTypeRegistry(),
		singularize: alias.Singularize,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Compiler) Types() *TypeRegistry {
	return c.types
}

// Compile folds predicates from the left: ((p0 c0 p1) c1 p2) ...
//
// Connector i joins predicate i+1 to everything before it. Missing
// connectors truncate the predicate list, extra ones are ignored.
// Predicates whose value does not parse, whose operator the type lacks, or
// whose field the entity does not know are dropped. Relation predicates on a
// declared association become join directives instead of conditions.
// entity may be nil, which disables field checks and joins.
func (c *Compiler) Compile(entity *schema.Entity, predicates []Predicate, connectors []Connector) (CompiledQuery, error) {
	if len(predicates) == 0 {
		return CompiledQuery{}, dalerr.EmptyFilter()
	}
	if len(connectors) < len(predicates)-1 {
		predicates = predicates[:len(connectors)+1]
	}
	for i := 0; i < len(predicates)-1; i++ {
		if _, err := normalizeConnector(connectors[i]); err != nil {
			return CompiledQuery{}, err
		}
	}

	var query CompiledQuery
	for i, p := range predicates {
		join, column, err := c.relation(entity, p)
		if err != nil {
			c.drop(p, err)
			continue
		}
		if join != nil {
			query.Joins = append(query.Joins, *join)
			continue
		}
		if entity != nil && !entity.HasColumn(column) {
			c.drop(p, errors.New("unknown field"))
			continue
		}
		node, err := c.types.Encode(p.Field.Type, p.Parameter, p.Value, column)
		if err != nil {
			if errors.Is(err, ErrUnparseable) || errors.Is(err, ErrUnsupported) {
				c.drop(p, err)
				continue
			}
			return CompiledQuery{}, err
		}
		if query.Filter == nil {
			query.Filter = node
			continue
		}
		conn, _ := normalizeConnector(connectors[i-1])
		if conn == Or {
			query.Filter = s.Or(query.Filter, node)
		} else {
			query.Filter = s.And(query.Filter, node)
		}
	}
	if query.IsEmpty() {
		return CompiledQuery{}, dalerr.EmptyFilter()
	}
	return query, nil
}

// BuildCustomQuery compiles predicates against a named entity of registry.
func (c *Compiler) BuildCustomQuery(
	predicates []Predicate, connectors []Connector, registry *schema.Registry, targetEntity string,
) (CompiledQuery, error) {
	entity, found := registry.Lookup(targetEntity)
	if !found {
		return CompiledQuery{}, dalerr.Validation(CodeUnknownEntity, "unknown entity %q", targetEntity)
	}
	return c.Compile(entity, predicates, connectors)
}

// relation resolves a relation predicate on a declared association. Equality
// and membership become join directives. The remaining operators on a
// belongs-to association filter its foreign key column in place; on a child
// association they become negated or existence joins. Any other predicate
// keeps its own field as column.
func (c *Compiler) relation(entity *schema.Entity, p Predicate) (*JoinDirective, string, error) {
	if p.Field.Type != schema.Relation {
		return nil, p.Field.Name, nil
	}
	assoc, ok := alias.Resolve(entity, p.Field.Name, c.singularize)
	if !ok {
		return nil, p.Field.Name, nil
	}
	join := &JoinDirective{
		TargetEntity: assoc.TargetEntity,
		AliasName:    assoc.AliasName,
		Association:  assoc,
	}
	switch p.Parameter {
	case OpEqual, OpIn:
	case OpDifferent, OpNotIn:
		if assoc.IsParent() {
			return nil, assoc.ForeignKeyColumn, nil
		}
		join.Negated = true
	case OpIsNull, OpIsNotNull:
		if assoc.IsParent() {
			return nil, assoc.ForeignKeyColumn, nil
		}
		join.Negated = p.Parameter == OpIsNull
		return join, "", nil
	default:
		return nil, "", errors.Wrapf(ErrUnsupported, "association %s %s", assoc.AliasName, p.Parameter)
	}
	ids, err := parseIDs(p.Value)
	if err != nil {
		return nil, "", err
	}
	if p.Parameter == OpEqual || p.Parameter == OpDifferent {
		if len(ids) != 1 {
			return nil, "", ErrUnparseable
		}
	}
	join.IDs = ids
	return join, "", nil
}

func (c *Compiler) drop(p Predicate, reason error) {
	c.logger.Debug().
		Str("field", p.Field.Name).
		Str("operator", string(p.Parameter)).
		Err(reason).
		Msg("predicate dropped")
}

func normalizeConnector(conn Connector) (Connector, error) {
	switch Connector(strings.ToLower(strings.TrimSpace(string(conn)))) {
	case And:
		return And, nil
	case Or:
		return Or, nil
	}
	return "", dalerr.Validation(CodeInvalidConnector, "unknown connector %q", conn)
}
