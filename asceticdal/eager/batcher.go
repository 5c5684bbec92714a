// Package eager attaches related rows to a page of root rows with one query
// per association, whatever the number of root rows.
package eager

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/schema"
)

// KeyFetcher loads up to limit rows of target whose column holds one of keys.
// A limit below one means no limit.
type KeyFetcher interface {
	FetchByKeys(ctx context.Context, target *schema.Entity, column string, keys []any, limit int) ([]schema.Record, error)
}

type Batcher struct {
	registry *schema.Registry
	fetcher  KeyFetcher
}

func NewBatcher(registry *schema.Registry, fetcher KeyFetcher) *Batcher {
	return &Batcher{registry: registry, fetcher: fetcher}
}

// batch is the single query collected for one association.
type batch struct {
	association schema.AssociationDescriptor
	target      *schema.Entity
	column      string
	keys        []any
}

// Load attaches every declared association of entity to rows: a list for
// has-many, a record or nil otherwise. The limit caps the rows fetched per
// association across the whole page, so with a tight limit some parents get
// fewer children than they have.
func (b *Batcher) Load(ctx context.Context, entity *schema.Entity, rows []schema.Record, limit int) ([]schema.Record, error) {
	result := make([]schema.Record, len(rows))
	for i, row := range rows {
		result[i] = make(schema.Record, len(row)+len(entity.Associations))
		for k, v := range row {
			result[i][k] = v
		}
	}
	for _, assoc := range entity.Associations {
		q, err := b.collect(entity, assoc, result)
		if err != nil {
			return nil, err
		}
		if err := b.evaluate(ctx, q, entity, result, limit); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (b *Batcher) collect(entity *schema.Entity, assoc schema.AssociationDescriptor, rows []schema.Record) (batch, error) {
	target, found := b.registry.Entity(assoc.TargetEntity)
	if !found {
		return batch{}, errors.Errorf("unknown target entity %q of %s.%s", assoc.TargetEntity, entity.Name, assoc.AliasName)
	}
	q := batch{association: assoc, target: target}
	source := entity.PK()
	q.column = assoc.ForeignKeyColumn
	if assoc.IsParent() {
		source = assoc.ForeignKeyColumn
		q.column = target.PK()
	}
	seen := map[string]bool{}
	for _, row := range rows {
		v := row[source]
		if v == nil {
			continue
		}
		k := Key(v)
		if !seen[k] {
			seen[k] = true
			q.keys = append(q.keys, v)
		}
	}
	return q, nil
}

func (b *Batcher) evaluate(ctx context.Context, q batch, entity *schema.Entity, rows []schema.Record, limit int) error {
	var related []schema.Record
	if len(q.keys) > 0 {
		var err error
		related, err = b.fetcher.FetchByKeys(ctx, q.target, q.column, q.keys, limit)
		if err != nil {
			return errors.Wrapf(err, "eager load %s.%s", entity.Name, q.association.AliasName)
		}
	}
	groups := map[string][]schema.Record{}
	for _, r := range related {
		if v := r[q.column]; v != nil {
			k := Key(v)
			groups[k] = append(groups[k], r)
		}
	}
	source := entity.PK()
	if q.association.IsParent() {
		source = q.association.ForeignKeyColumn
	}
	for _, row := range rows {
		var matches []schema.Record
		if v := row[source]; v != nil {
			matches = groups[Key(v)]
		}
		switch q.association.Kind {
		case schema.HasMany:
			if matches == nil {
				matches = []schema.Record{}
			}
			row[q.association.AliasName] = matches
		default:
			if len(matches) > 0 {
				row[q.association.AliasName] = matches[0]
			} else {
				row[q.association.AliasName] = nil
			}
		}
	}
	return nil
}

// Key normalizes an identifier so that values decoded as different numeric
// types compare equal.
func Key(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case []byte:
		return string(n)
	case int:
		return strconv.FormatInt(int64(n), 10)
	case int8:
		return strconv.FormatInt(int64(n), 10)
	case int16:
		return strconv.FormatInt(int64(n), 10)
	case int32:
		return strconv.FormatInt(int64(n), 10)
	case int64:
		return strconv.FormatInt(n, 10)
	case uint:
		return strconv.FormatUint(uint64(n), 10)
	case uint8:
		return strconv.FormatUint(uint64(n), 10)
	case uint16:
		return strconv.FormatUint(uint64(n), 10)
	case uint32:
		return strconv.FormatUint(uint64(n), 10)
	case uint64:
		return strconv.FormatUint(n, 10)
	case float32:
		return floatKey(float64(n))
	case float64:
		return floatKey(n)
	case fmt.Stringer:
		return n.String()
	}
	return fmt.Sprint(v)
}

func floatKey(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
