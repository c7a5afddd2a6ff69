// Copyright (c) 2025 Siggi.io
//
// This file is part of CredentialServer.
//
// CredentialServer is free software licensed under the
// GNU Affero General Public License v3.0 (AGPL-3.0).
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Package sql persists user aggregates in PostgreSQL. Saves are
// diff-based: only credentials, variables, and sessions that changed
// since the last save touch the database, all inside one transaction.
package sql

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/Siggiio/CredentialServer/pkg/credential"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Backend stores users across three tables: usercredentials keyed by
// credential id, userdata keyed by user id and variable name, and
// usercredentialsessions keyed by user id, mechanism, and direction.
type Backend struct {
	db *sql.DB
}

// New opens the database and brings the schema up to date.
func New(ctx context.Context, dsn string) (*Backend, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: connecting to database: %w", err)
	}
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: configuring migrations: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migrating schema: %w", err)
	}
	return &Backend{db: db}, nil
}

// ReadUser loads one user's variables, credentials, and sessions. A
// user with no rows is an empty user. Expired credentials and sessions
// are loaded too; the next save deletes their rows.
func (b *Backend) ReadUser(ctx context.Context, id uuid.UUID) (*credential.User, error) {
	user := credential.NewUser(id)
	userID := id.String()

	rows, err := b.db.QueryContext(ctx,
		`SELECT variable, value FROM userdata WHERE userid = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("storage: reading variables for %s: %w", userID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("storage: reading variables for %s: %w", userID, err)
		}
		user.LoadVariable(name, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: reading variables for %s: %w", userID, err)
	}

	credRows, err := b.db.QueryContext(ctx,
		`SELECT credentialid, type, name, usecount, lastuse, expires, data
		 FROM usercredentials WHERE userid = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("storage: reading credentials for %s: %w", userID, err)
	}
	defer credRows.Close()
	for credRows.Next() {
		var (
			rawID, typ, name, data     string
			useCount, lastUse, expires int64
		)
		if err := credRows.Scan(&rawID, &typ, &name, &useCount, &lastUse, &expires, &data); err != nil {
			return nil, fmt.Errorf("storage: reading credentials for %s: %w", userID, err)
		}
		credentialID, err := uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("storage: credential id %q: %w", rawID, err)
		}
		user.AddCredential(credential.Restore(credentialID, typ, name, useCount, lastUse, expires, data))
	}
	if err := credRows.Err(); err != nil {
		return nil, fmt.Errorf("storage: reading credentials for %s: %w", userID, err)
	}

	sessionRows, err := b.db.QueryContext(ctx,
		`SELECT type, registration, time, expires, data
		 FROM usercredentialsessions WHERE userid = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("storage: reading sessions for %s: %w", userID, err)
	}
	defer sessionRows.Close()
	for sessionRows.Next() {
		var (
			typ, data        string
			registration     bool
			created, expires int64
		)
		if err := sessionRows.Scan(&typ, &registration, &created, &expires, &data); err != nil {
			return nil, fmt.Errorf("storage: reading sessions for %s: %w", userID, err)
		}
		user.RestoreSession(typ, registration, created, expires, data)
	}
	if err := sessionRows.Err(); err != nil {
		return nil, fmt.Errorf("storage: reading sessions for %s: %w", userID, err)
	}
	return user, nil
}

// SaveUser writes the user's pending changes in one transaction.
func (b *Backend) SaveUser(ctx context.Context, user *credential.User) error {
	if !user.Dirty() {
		return nil
	}
	userID := user.ID().String()
	now := time.Now().UnixMilli()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: saving user %s: %w", userID, err)
	}
	defer tx.Rollback()

	for _, c := range user.AllCredentials() {
		switch {
		case c.Deleted() || c.Expired(now):
			_, err = tx.ExecContext(ctx,
				`DELETE FROM usercredentials WHERE credentialid = $1`, c.ID().String())
		case c.Dirty():
			_, err = tx.ExecContext(ctx,
				`INSERT INTO usercredentials
				   (credentialid, userid, type, name, usecount, lastuse, expires, data)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				 ON CONFLICT (credentialid) DO UPDATE SET
				   name = EXCLUDED.name,
				   usecount = EXCLUDED.usecount,
				   lastuse = EXCLUDED.lastuse,
				   expires = EXCLUDED.expires,
				   data = EXCLUDED.data`,
				c.ID().String(), userID, c.Type(), c.Name(),
				c.UseCount(), c.LastUse(), c.Expires(), c.Data())
		}
		if err != nil {
			return fmt.Errorf("storage: saving credentials for %s: %w", userID, err)
		}
	}

	variables := user.Variables()
	for _, name := range user.ChangedVariables() {
		if value, ok := variables[name]; ok {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO userdata (userid, variable, value)
				 VALUES ($1, $2, $3)
				 ON CONFLICT (userid, variable) DO UPDATE SET value = EXCLUDED.value`,
				userID, name, value)
		} else {
			_, err = tx.ExecContext(ctx,
				`DELETE FROM userdata WHERE userid = $1 AND variable = $2`, userID, name)
		}
		if err != nil {
			return fmt.Errorf("storage: saving variables for %s: %w", userID, err)
		}
	}

	for _, key := range user.RemovedSessions() {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM usercredentialsessions
			 WHERE userid = $1 AND type = $2 AND registration = $3`,
			userID, key.Type, key.Registration); err != nil {
			return fmt.Errorf("storage: saving sessions for %s: %w", userID, err)
		}
	}
	for _, s := range user.AllSessions() {
		if s.Expired(now) {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM usercredentialsessions
				 WHERE userid = $1 AND type = $2 AND registration = $3`,
				userID, s.Type(), s.Registration()); err != nil {
				return fmt.Errorf("storage: saving sessions for %s: %w", userID, err)
			}
			continue
		}
		if !s.Dirty() {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO usercredentialsessions (userid, type, registration, time, expires, data)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (userid, type, registration) DO UPDATE SET
			   time = EXCLUDED.time,
			   expires = EXCLUDED.expires,
			   data = EXCLUDED.data`,
			userID, s.Type(), s.Registration(), s.Created(), s.Expires(), s.Data()); err != nil {
			return fmt.Errorf("storage: saving sessions for %s: %w", userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: saving user %s: %w", userID, err)
	}
	user.ClearDirty()
	return nil
}

func (b *Backend) Close() error {
	return b.db.Close()
}
