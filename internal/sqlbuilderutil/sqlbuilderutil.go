// Package sqlbuilderutil derives sqlbuilder tables from model structs, so
// column names follow the struct's sql and json tags.
package sqlbuilderutil

import (
	"fmt"
	"strings"

	"fknsrs.biz/p/reflectutil"
	"fknsrs.biz/p/sqlbuilder"

	"fknsrs.biz/p/vidscribe/internal/stringutil"
)

type Table struct {
	*sqlbuilder.Table
	nameMap map[string]string
}

// C resolves a field name, json name or column name to its column. Names it
// doesn't know are passed through to the underlying table.
func (t *Table) C(name string) *sqlbuilder.BasicColumn {
	if columnName, ok := t.nameMap[name]; ok {
		name = columnName
	}

	return t.Table.C(name)
}

// Lookup is C for names that come from outside, such as query strings. It
// only resolves names that belong to the model.
func (t *Table) Lookup(name string) (*sqlbuilder.BasicColumn, bool) {
	columnName, ok := t.nameMap[name]
	if !ok {
		columnName, ok = t.nameMap[strings.ToLower(name)]
	}
	if !ok {
		return nil, false
	}

	return t.Table.C(columnName), true
}

func MakeTable(v interface{}) (*Table, error) {
	s, err := reflectutil.GetDescription(v)
	if err != nil {
		return nil, fmt.Errorf("sqlbuilderutil.MakeTable: could not get struct description: %w", err)
	}

	var tableName string
	var columnNames []string

	nameMap := make(map[string]string)

	for _, f := range s.Fields().WithoutTagValue("sql", "-") {
		sqlTag := f.Tag("sql")

		columnName := stringutil.PascalToSnake(f.Name())
		if sqlTag != nil && sqlTag.Value() != "" {
			columnName = sqlTag.Value()
		}

		columnNames = append(columnNames, columnName)

		nameMap[columnName] = columnName
		nameMap[f.Name()] = columnName
		nameMap[strings.ToLower(f.Name())] = columnName
		if jsonTag := f.Tag("json"); jsonTag != nil && jsonTag.Value() != "" && jsonTag.Value() != "-" {
			nameMap[jsonTag.Value()] = columnName
		}

		if sqlTag != nil {
			if p := sqlTag.Parameter("table"); p != nil {
				tableName = p.Value()
			}
		}
	}

	if tableName == "" {
		tableName = stringutil.PascalToSnake(s.Name())
	}

	return &Table{
		Table:   sqlbuilder.NewTable(tableName, columnNames...),
		nameMap: nameMap,
	}, nil
}

func MustMakeTable(v interface{}) *Table {
	t, err := MakeTable(v)
	if err != nil {
		panic(err)
	}
	return t
}
