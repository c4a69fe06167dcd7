package drivers

import (
	// Registers the "pgx" driver for PostgreSQL snapshots.
	_ "github.com/jackc/pgx/v5/stdlib"
)
