// Package migrations embeds the booking-service schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// LockID keys the advisory lock held while migrating.
const LockID int64 = 7_301_001
