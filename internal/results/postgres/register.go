package postgres

import "synthgen/internal/results"

func init() {
	// registers the postgres backend factory
	results.Register("postgres", New)
}
