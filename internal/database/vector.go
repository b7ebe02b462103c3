package database

import "encoding/json"

// Embeddings are stored as JSON arrays in TEXT columns. SQLite has no native
// vector type and the corpus is small enough that similarity runs in memory.

func encodeVector(v []float64) (*string, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

func decodeVector(s *string) ([]float64, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	var v []float64
	if err := json.Unmarshal([]byte(*s), &v); err != nil {
		return nil, err
	}
	return v, nil
}
