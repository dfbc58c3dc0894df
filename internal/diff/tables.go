package diff

import "strings"

// Table is a CREATE TABLE statement reduced to its name and column names.
type Table struct {
	Name    string
	Columns []string
}

// Tables lists the tables ddl creates, in script order. Names are returned
// as written with identifier quotes removed.
func Tables(ddl string) []Table {
	var tables []Table
	for _, text := range Normalize(ddl) {
		stmt, err := parseStatement(text)
		if err != nil || stmt.Create == nil || !strings.EqualFold(stmt.Create.Kind, "TABLE") {
			continue
		}
		t := Table{Name: stmt.Create.Name.String()}
		for _, el := range stmt.Create.Elements {
			if el.Column != nil {
				t.Columns = append(t.Columns, el.Column.String())
			}
		}
		tables = append(tables, t)
	}
	return tables
}
