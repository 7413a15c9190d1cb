package repository

import "database/sql"

// Repositories accept an optional *sql.Tx so engine operations can run inside
// a single transaction; a nil tx falls back to the pooled connection.

func exec(tx *sql.Tx, db *sql.DB, query string, args ...interface{}) (sql.Result, error) {
	if tx != nil {
		return tx.Exec(query, args...)
	}
	return db.Exec(query, args...)
}

func queryRow(tx *sql.Tx, db *sql.DB, query string, args ...interface{}) *sql.Row {
	if tx != nil {
		return tx.QueryRow(query, args...)
	}
	return db.QueryRow(query, args...)
}

func queryRows(tx *sql.Tx, db *sql.DB, query string, args ...interface{}) (*sql.Rows, error) {
	if tx != nil {
		return tx.Query(query, args...)
	}
	return db.Query(query, args...)
}
