package sink

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/fobrob/fobrob/packet"
)

const (
	createCodes = `CREATE TABLE IF NOT EXISTS codes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		time TEXT NOT NULL,
		code TEXT NOT NULL,
		command TEXT NOT NULL,
		rolling_code INTEGER NOT NULL
	)`
	insertCode  = `INSERT INTO codes (time, code, command, rolling_code) VALUES (?, ?, ?, ?)`
	selectCodes = `SELECT time, code, command, rolling_code FROM codes ORDER BY id DESC LIMIT ?`
)

// SQLite records every message in the codes table of a database file.
type SQLite struct {
	db     *sql.DB
	insert *sql.Stmt
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}

	if _, err := db.Exec(createCodes); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating codes table")
	}

	insert, err := db.Prepare(insertCode)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "preparing insert")
	}

	return &SQLite{db: db, insert: insert}, nil
}

func (s *SQLite) Write(msg packet.LogMessage) error {
	_, err := s.insert.Exec(msg.Time.UTC().Format(time.RFC3339Nano), msg.Code, msg.Command, msg.RollingCode)
	return errors.Wrap(err, "inserting code")
}

// Recent returns up to n messages, newest first. The returned messages
// are interpreted with layout.
func (s *SQLite) Recent(n int, layout packet.Layout) ([]packet.LogMessage, error) {
	rows, err := s.db.Query(selectCodes, n)
	if err != nil {
		return nil, errors.Wrap(err, "querying codes")
	}
	defer rows.Close()

	var msgs []packet.LogMessage
	for rows.Next() {
		var (
			ts, code, command string
			rolling           uint32
		)
		if err := rows.Scan(&ts, &code, &command, &rolling); err != nil {
			return nil, errors.Wrap(err, "scanning code")
		}

		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing time %q", ts)
		}
		p, err := packet.Dehexify(code)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing code %q", code)
		}

		msgs = append(msgs, packet.NewLogMessage(t, packet.NewMessage(p, layout)))
	}

	return msgs, errors.Wrap(rows.Err(), "reading codes")
}

func (s *SQLite) Close() error {
	s.insert.Close()
	return errors.Wrap(s.db.Close(), "closing database")
}
