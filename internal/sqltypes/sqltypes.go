package sqltypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONStringSlice is stored as a JSON array in a text column. Nil and empty
// slices are both stored as "[]".
type JSONStringSlice []string

func (s JSONStringSlice) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}

	d, err := json.Marshal([]string(s))
	if err != nil {
		return nil, fmt.Errorf("sqltypes.JSONStringSlice.Value: %w", err)
	}

	return string(d), nil
}

func (s *JSONStringSlice) Scan(src interface{}) error {
	switch src := src.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		if err := json.Unmarshal(src, s); err != nil {
			return fmt.Errorf("sqltypes.JSONStringSlice.Scan: could not decode input (%T) as JSON: %w", src, err)
		}
		return nil
	case string:
		if err := json.Unmarshal([]byte(src), s); err != nil {
			return fmt.Errorf("sqltypes.JSONStringSlice.Scan: could not decode input (%T) as JSON: %w", src, err)
		}
		return nil
	default:
		return fmt.Errorf("sqltypes.JSONStringSlice.Scan: could not scan input type of %T", src)
	}
}
