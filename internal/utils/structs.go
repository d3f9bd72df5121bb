package utils

import (
	"reflect"
	"slices"
)

// ColumnTag is the struct tag holding a field's column name.
const ColumnTag = "db"

// columns walks the exported, db-tagged fields of a struct or struct pointer.
// Fields tagged "-" are derived values and are skipped.
func columns(input any, fn func(column string, value reflect.Value)) {
	v := reflect.ValueOf(input)
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		panic("input must be a pointer to a struct or a struct")
	}

	t := v.Type()
	for i := range t.NumField() {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		column := field.Tag.Get(ColumnTag)
		if column == "" || column == "-" {
			continue
		}

		fn(column, v.Field(i))
	}
}

// StructTagValues returns the column names of a db-tagged struct in field
// order, for use as a select list.
func StructTagValues(input any) []string {
	var result []string
	columns(input, func(column string, _ reflect.Value) {
		result = append(result, column)
	})
	return result
}

// StructToMap maps column name to field value for squirrel SetMap. Columns
// named in exclude are left out, which keeps updates away from immutable
// columns such as id, created_at and the fulfilled counter.
func StructToMap(input any, exclude ...string) map[string]any {
	result := make(map[string]any)
	columns(input, func(column string, value reflect.Value) {
		if slices.Contains(exclude, column) {
			return
		}
		result[column] = value.Interface()
	})
	return result
}
