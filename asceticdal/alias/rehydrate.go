package alias

import (
	"strings"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/schema"
)

// Rehydrate folds alias-prefixed keys of a fetched row into nested relation
// fields. A whole-alias key is assigned to the relation field as is, a
// flattened "alias.column" key is merged into the relation object. Rows
// without alias keys come back unchanged, so the operation is idempotent.
func Rehydrate(entity *schema.Entity, row schema.Record) schema.Record {
	if !hasAliasKeys(row) {
		return row
	}
	result := make(schema.Record, len(row))
	for k, v := range row {
		if !strings.HasPrefix(k, Marker) {
			result[k] = v
		}
	}
	nested := map[string]schema.Record{}
	for k, v := range row {
		if !strings.HasPrefix(k, Marker) {
			continue
		}
		aliasPart, column := splitColumn(k)
		a, ok := Decode(aliasPart)
		if !ok {
			result[k] = v
			continue
		}
		name := relationName(entity, a)
		if column == "" {
			result[name] = v
			continue
		}
		obj, found := nested[name]
		if !found {
			obj = schema.Record{}
			nested[name] = obj
		}
		obj[column] = v
	}
	for name, obj := range nested {
		if allNil(obj) {
			result[name] = nil
			continue
		}
		if existing, ok := result[name].(schema.Record); ok {
			merged := make(schema.Record, len(existing)+len(obj))
			for k, v := range existing {
				merged[k] = v
			}
			for k, v := range obj {
				merged[k] = v
			}
			result[name] = merged
			continue
		}
		result[name] = obj
	}
	return result
}

func RehydrateAll(entity *schema.Entity, rows []schema.Record) []schema.Record {
	for i, row := range rows {
		rows[i] = Rehydrate(entity, row)
	}
	return rows
}

func relationName(entity *schema.Entity, a Association) string {
	if d, ok := find(entity, a, Singularize); ok {
		return d.AliasName
	}
	return a.RelatedModel
}

func hasAliasKeys(row schema.Record) bool {
	for k := range row {
		if strings.HasPrefix(k, Marker) {
			return true
		}
	}
	return false
}

func allNil(r schema.Record) bool {
	for _, v := range r {
		if v != nil {
			return false
		}
	}
	return true
}
