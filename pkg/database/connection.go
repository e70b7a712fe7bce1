package database

import (
	"flag"
	"os"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/gocraft/dbr/v2"
	"github.com/pkg/errors"
)

// MySQLConnection opens a database connection using a DSN taken
// from the environment
// NOTE: when called during `go test`, the test database DSN is used
func MySQLConnection() (*dbr.Connection, error) {
	// checking whether it's called during `go test`
	testMode := flag.Lookup("test.v") != nil

	dsn := os.Getenv("KEEP_DATABASE")
	if testMode {
		dsn = os.Getenv("KEEP_TEST_DATABASE")
	}

	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("database DSN is empty")
	}

	conn, err := dbr.Open("mysql", dsn, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	return conn, nil
}

// MySQLForTesting returns a connection to the test database
// with all module tables truncated
func MySQLForTesting() (conn *dbr.Connection, err error) {
	if flag.Lookup("test.v") == nil {
		return nil, errors.New("MySQLForTesting can only be called during testing")
	}

	conn, err = dbr.Open("mysql", os.Getenv("KEEP_TEST_DATABASE"), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to test database")
	}

	tx, err := conn.NewSession(nil).Begin()
	if err != nil {
		return nil, err
	}
	defer tx.RollbackUnlessCommitted()

	// temporarily disabling foreign key checks to enable truncate
	if _, err = tx.Exec("SET foreign_key_checks = 0"); err != nil {
		return nil, err
	}

	tables := []string{
		"user",
		"group",
		"group_users",
		"resource",
		"security_rule",
	}

	for _, tableName := range tables {
		if _, err = tx.Exec("TRUNCATE TABLE `" + tableName + "`"); err != nil {
			return nil, errors.Wrapf(err, "failed to truncate table: %s", tableName)
		}
	}

	if _, err = tx.Exec("SET foreign_key_checks = 1"); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit truncation")
	}

	return conn, nil
}
