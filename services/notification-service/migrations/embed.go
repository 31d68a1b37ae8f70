// Package migrations embeds the notification-service schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

const LockID int64 = 7_301_002
