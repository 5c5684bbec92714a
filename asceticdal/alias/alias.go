// Package alias resolves association metadata from field names and folds
// alias-prefixed columns of fetched rows back into nested relations.
package alias

import (
	"fmt"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/schema"
)

// Marker delimits the parts of a legacy alias string:
// ALIAS<foreignKey>ALIAS<relatedModel>ALIAS.
const Marker = "ALIAS"

type Association struct {
	ForeignKey   string
	RelatedModel string
}

func Of(d schema.AssociationDescriptor) Association {
	return Association{ForeignKey: d.ForeignKeyColumn, RelatedModel: d.TargetEntity}
}

func (a Association) Validate() error {
	if a.ForeignKey == "" || a.RelatedModel == "" {
		return fmt.Errorf("alias: empty part in %+v", a)
	}
	if strings.Contains(a.ForeignKey, Marker) || strings.Contains(a.RelatedModel, Marker) {
		return fmt.Errorf("alias: %+v contains the %s marker", a, Marker)
	}
	return nil
}

func Encode(a Association) (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}
	return Marker + a.ForeignKey + Marker + a.RelatedModel + Marker, nil
}

// Decode fails soft: ok is false for anything that is not an alias string.
func Decode(s string) (a Association, ok bool) {
	if !strings.HasPrefix(s, Marker) || !strings.HasSuffix(s, Marker) {
		return Association{}, false
	}
	parts := make([]string, 0, 2)
	for _, p := range strings.Split(s, Marker) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) != 2 {
		return Association{}, false
	}
	return Association{ForeignKey: parts[0], RelatedModel: parts[1]}, true
}

// ColumnAlias labels a column of a flattened one-to-one association.
func ColumnAlias(a Association, column string) string {
	return Marker + a.ForeignKey + Marker + a.RelatedModel + Marker + "." + column
}

// splitColumn separates "ALIAS..ALIAS.column" into its alias and column.
func splitColumn(key string) (aliasPart, column string) {
	i := strings.LastIndex(key, Marker)
	if i < 0 {
		return key, ""
	}
	rest := key[i+len(Marker):]
	if strings.HasPrefix(rest, ".") {
		return key[:i+len(Marker)], rest[1:]
	}
	return key, ""
}

type Singularizer func(string) string

// Singularize strips one trailing s or S.
func Singularize(name string) string {
	if strings.HasSuffix(name, "s") || strings.HasSuffix(name, "S") {
		return name[:len(name)-1]
	}
	return name
}

// InflectionSingularizer handles irregular English plurals.
func InflectionSingularizer(name string) string {
	return inflection.Singular(name)
}

func sameName(singularize Singularizer, a, b string) bool {
	return strings.EqualFold(singularize(a), singularize(b))
}

// Resolve finds the association a field name refers to. The name may be an
// association alias, possibly pluralized, or a legacy alias string.
func Resolve(entity *schema.Entity, field string, singularize Singularizer) (schema.AssociationDescriptor, bool) {
	if entity == nil {
		return schema.AssociationDescriptor{}, false
	}
	if singularize == nil {
		singularize = Singularize
	}
	if a, ok := Decode(field); ok {
		return find(entity, a, singularize)
	}
	for _, d := range entity.Associations {
		if sameName(singularize, field, d.AliasName) {
			return d, true
		}
	}
	return schema.AssociationDescriptor{}, false
}

func find(entity *schema.Entity, a Association, singularize Singularizer) (schema.AssociationDescriptor, bool) {
	if entity == nil {
		return schema.AssociationDescriptor{}, false
	}
	for _, d := range entity.Associations {
		if d.ForeignKeyColumn == a.ForeignKey &&
			(sameName(singularize, a.RelatedModel, d.TargetEntity) || sameName(singularize, a.RelatedModel, d.AliasName)) {
			return d, true
		}
	}
	return schema.AssociationDescriptor{}, false
}
