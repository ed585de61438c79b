package pgtx

import "database/sql"

// Rows is a fully materialized query result
type Rows struct {
	Columns []string
	Values  [][]any
}

// Len returns the number of rows
func (r *Rows) Len() int {
	return len(r.Values)
}

// Map returns row i keyed by column name
func (r *Rows) Map(i int) map[string]any {
	row := make(map[string]any, len(r.Columns))
	for j, col := range r.Columns {
		row[col] = r.Values[i][j]
	}
	return row
}

// Scalar returns the first column of the first row
func (r *Rows) Scalar() (any, error) {
	if len(r.Values) == 0 || len(r.Values[0]) == 0 {
		return nil, &Error{
			Code:    CodeNotFound,
			Message: "query returned no rows",
			Op:      "Rows.Scalar",
		}
	}
	return r.Values[0][0], nil
}

// collectRows reads every row and closes rows
func collectRows(rows *sql.Rows) (*Rows, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &Rows{Columns: cols, Values: make([][]any, 0)}
	for rows.Next() {
		values := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		result.Values = append(result.Values, values)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
