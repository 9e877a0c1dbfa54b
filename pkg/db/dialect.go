package db

import "gorm.io/gorm"

// IsPostgres reports whether the handle talks to Postgres; some statements
// (advisory locks, array operators) have no sqlite equivalent.
func IsPostgres(tx *gorm.DB) bool {
	if tx == nil || tx.Dialector == nil {
		return false
	}
	return tx.Dialector.Name() == DriverPostgres
}
