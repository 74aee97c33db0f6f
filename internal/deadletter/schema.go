package deadletter

import "embed"

// sqlSchemas is the embedded migration file set.
//
//go:embed migrations/*.sql
var sqlSchemas embed.FS
