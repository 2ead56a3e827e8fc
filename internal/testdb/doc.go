// Package testdb provides utilities specifically for database testing.
//
// Tests connect to the database named by SCRIBE_TEST_DB_URL (or DATABASE_URL)
// when one is set, and otherwise start a disposable PostgreSQL container.
// Either way the schema is migrated before the connection is returned, and
// WithTx gives each test a transaction that is rolled back afterwards.
package testdb
