package schema

import "strings"

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

const DefaultOrderColumn = "createdAt"

type OrderSpec struct {
	Field     string    `json:"field"`
	Direction Direction `json:"direction"`
}

// SanitizeOrder drops order specs naming unknown columns. When nothing is
// left the entity falls back to createdAt DESC, if it has that column.
func (e *Entity) SanitizeOrder(specs []OrderSpec) []OrderSpec {
	result := make([]OrderSpec, 0, len(specs))
	for _, spec := range specs {
		if !e.HasColumn(spec.Field) {
			continue
		}
		dir := Asc
		if strings.EqualFold(string(spec.Direction), string(Desc)) {
			dir = Desc
		}
		result = append(result, OrderSpec{Field: spec.Field, Direction: dir})
	}
	if len(result) == 0 && e.HasColumn(DefaultOrderColumn) {
		result = append(result, OrderSpec{Field: DefaultOrderColumn, Direction: Desc})
	}
	return result
}
