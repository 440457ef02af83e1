// Package all registers every built-in results backend.
package all

import (
	_ "synthgen/internal/results/mssql"
	_ "synthgen/internal/results/postgres"
	_ "synthgen/internal/results/sqlite"
)
