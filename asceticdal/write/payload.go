package write

import (
	"sort"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/schema"
)

type keyedAssociation struct {
	schema.AssociationDescriptor
	key string
}

func sortByDeclaration(entity *schema.Entity, list []keyedAssociation) {
	position := map[string]int{}
	for i, a := range entity.Associations {
		position[a.AliasName] = i
	}
	sort.SliceStable(list, func(i, j int) bool {
		return position[list[i].AliasName] < position[list[j].AliasName]
	})
}

func parentPayload(payload schema.Record, assoc keyedAssociation) schema.Record {
	r, _ := asRecord(payload[assoc.key])
	return r
}

// childPayloads returns copies of the nested children. single reports a
// has-one association given as one object.
func childPayloads(payload schema.Record, assoc keyedAssociation) (items []schema.Record, single bool) {
	v := payload[assoc.key]
	if r, ok := asRecord(v); ok {
		return []schema.Record{r}, assoc.Kind == schema.HasOne
	}
	list, _ := asRecords(v)
	return list, false
}

func isNested(v any) bool {
	if _, ok := asRecord(v); ok {
		return true
	}
	_, ok := asRecords(v)
	return ok
}

func asRecord(v any) (schema.Record, bool) {
	var src map[string]any
	switch m := v.(type) {
	case schema.Record:
		src = m
	case map[string]any:
		src = m
	default:
		return nil, false
	}
	r := make(schema.Record, len(src))
	for k, v := range src {
		r[k] = v
	}
	return r, true
}

func asRecords(v any) ([]schema.Record, bool) {
	switch list := v.(type) {
	case []schema.Record:
		result := make([]schema.Record, 0, len(list))
		for _, item := range list {
			r, _ := asRecord(item)
			result = append(result, r)
		}
		return result, true
	case []map[string]any:
		result := make([]schema.Record, 0, len(list))
		for _, item := range list {
			r, _ := asRecord(item)
			result = append(result, r)
		}
		return result, true
	case []any:
		result := make([]schema.Record, 0, len(list))
		for _, item := range list {
			r, ok := asRecord(item)
			if !ok {
				return nil, false
			}
			result = append(result, r)
		}
		return result, true
	}
	return nil, false
}
