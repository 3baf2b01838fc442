// Package mysql registers the "mysql" storage backend.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	"csvimport/internal/config"
	"csvimport/internal/storage"
)

// maxPlaceholders is the server-side limit on bind parameters per statement.
const maxPlaceholders = 65535

// Duplicate-entry error numbers.
const (
	erDupEntry        = 1062
	erDupEntryWithKey = 1586
)

// Dialect is the MySQL statement dialect.
var Dialect = storage.Dialect{
	Name:        "mysql",
	Placeholder: storage.QuestionMark,
	TruncateSQL: storage.TruncateTable,
	MaxParams:   maxPlaceholders,
	IsDuplicate: isDuplicate,
}

// newConnector is a test hook.
var newConnector = mysql.NewConnector

func init() {
	storage.Register("mysql", Open)
}

// DSNConfig maps a Connection to a driver config. Dates are returned as
// time.Time and text is exchanged as utf8mb4.
func DSNConfig(conn config.Connection) *mysql.Config {
	c := mysql.NewConfig()
	c.User = conn.User
	c.Passwd = conn.Password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(conn.Host, strconv.Itoa(conn.Port))
	c.DBName = conn.Database
	c.ParseTime = true
	c.Loc = time.UTC
	// The collation is negotiated in the handshake. Params would be sent
	// as SET statements on every connection.
	c.Collation = "utf8mb4_general_ci"
	return c
}

// Open connects and verifies the session with a ping.
func Open(ctx context.Context, conn config.Connection) (storage.Store, error) {
	connector, err := newConnector(DSNConfig(conn))
	if err != nil {
		return nil, fmt.Errorf("mysql: connector: %w", err)
	}
	db := sql.OpenDB(connector)
	store := storage.NewSQLStore(db, Dialect)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql: ping %s: %w", conn, err)
	}
	return store, nil
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	return me.Number == erDupEntry || me.Number == erDupEntryWithKey
}
