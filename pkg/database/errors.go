package database

import "errors"

// ErrNoMigrations is returned by Start when auto_migrate is enabled but the
// system was built without a migration source.
var ErrNoMigrations = errors.New("auto_migrate enabled without migrations")
