// Package registry keeps a sqlite ledger of accelerator registrations.
//
// One row per identity records who holds it and whether the region behind
// it was released or deliberately leaked after a failed unregister.  Leaked
// rows outlive the process: the accelerator may still write into that
// memory, so the identity stays blocked until an operator forgets it.
package registry

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/sugawarayuuta/sonnet"

	"cohort/debug"
)

var (
	// ErrIdentityInUse reports a Claim on an identity that already has a row.
	ErrIdentityInUse = errors.New("registry: identity in use")
	// ErrNotFound reports an identity without a row.
	ErrNotFound = errors.New("registry: identity not found")
)

// State of a ledger row.
type State string

const (
	StateActive State = "active"
	StateLeaked State = "leaked"
)

// Descriptor is the JSON document stored with each registration.
type Descriptor struct {
	Identity    uint8  `json:"identity"`
	PID         int    `json:"pid"`
	Accelerator string `json:"accelerator"`
	ElemSize    uint32 `json:"elem_size"`
	Capacity    uint32 `json:"capacity"`
	Backoff     uint64 `json:"backoff"`
	RegionBytes int    `json:"region_bytes"`
	Sender      string `json:"sender"`
	Receiver    string `json:"receiver"`
	Aux         string `json:"aux"`
}

// Entry is one ledger row.
type Entry struct {
	Descriptor
	State        State     `json:"state"`
	Detail       string    `json:"detail,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// InUseError names the process holding a contested identity.
type InUseError struct {
	Identity uint8
	PID      int
	State    State
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("registry: identity %d held by pid %d (%s)", e.Identity, e.PID, e.State)
}

func (e *InUseError) Unwrap() error { return ErrIdentityInUse }

const schema = `
CREATE TABLE IF NOT EXISTS registrations (
	identity      INTEGER PRIMARY KEY,
	pid           INTEGER NOT NULL,
	state         TEXT    NOT NULL,
	descriptor    TEXT    NOT NULL,
	detail        TEXT    NOT NULL DEFAULT '',
	registered_at INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
)`

// Registry is safe for concurrent use.
type Registry struct {
	db    *sql.DB
	alive func(pid int) bool
	now   func() time.Time
}

// Open creates or opens the ledger at path.
func Open(path string) (*Registry, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("registry: schema: %w", err)
	}
	return &Registry{db: db, alive: processAlive, now: time.Now}, nil
}

func (r *Registry) Close() error { return r.db.Close() }

// Claim records d as active.  It fails with an *InUseError when the identity
// already has a row, active or leaked.
func (r *Registry) Claim(d Descriptor) error {
	if d.PID == 0 {
		d.PID = os.Getpid()
	}
	doc, err := sonnet.Marshal(d)
	if err != nil {
		return err
	}
	ts := r.now().UnixNano()
	_, err = r.db.Exec(
		`INSERT INTO registrations (identity, pid, state, descriptor, registered_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.Identity, d.PID, StateActive, string(doc), ts, ts)
	if err == nil {
		debug.DropMessage("REGISTRY", fmt.Sprintf("claimed identity %d for pid %d", d.Identity, d.PID))
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		holder, gerr := r.Get(d.Identity)
		if gerr != nil {
			return fmt.Errorf("%w: identity %d", ErrIdentityInUse, d.Identity)
		}
		return &InUseError{Identity: d.Identity, PID: holder.PID, State: holder.State}
	}
	return fmt.Errorf("registry: claim %d: %w", d.Identity, err)
}

// Release deletes an active row.  Leaked rows are left alone.
func (r *Registry) Release(identity uint8) error {
	res, err := r.db.Exec(`DELETE FROM registrations WHERE identity = ? AND state = ?`, identity, StateActive)
	if err != nil {
		return fmt.Errorf("registry: release %d: %w", identity, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, identity)
	}
	return nil
}

// MarkLeaked flags the identity's region as leaked with the failure cause.
func (r *Registry) MarkLeaked(identity uint8, cause string) error {
	res, err := r.db.Exec(
		`UPDATE registrations SET state = ?, detail = ?, updated_at = ? WHERE identity = ?`,
		StateLeaked, cause, r.now().UnixNano(), identity)
	if err != nil {
		return fmt.Errorf("registry: mark leaked %d: %w", identity, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, identity)
	}
	debug.DropMessage("REGISTRY", fmt.Sprintf("identity %d leaked: %s", identity, cause))
	return nil
}

// Get returns the row for identity.
func (r *Registry) Get(identity uint8) (Entry, error) {
	row := r.db.QueryRow(
		`SELECT state, descriptor, detail, registered_at, updated_at FROM registrations WHERE identity = ?`,
		identity)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %d", ErrNotFound, identity)
	}
	return e, err
}

// List returns every row ordered by identity.
func (r *Registry) List() ([]Entry, error) {
	rows, err := r.db.Query(
		`SELECT state, descriptor, detail, registered_at, updated_at FROM registrations ORDER BY identity`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes active rows whose process is gone and returns their
// identities.  Leaked rows are never pruned.
func (r *Registry) Prune() ([]uint8, error) {
	entries, err := r.List()
	if err != nil {
		return nil, err
	}
	var pruned []uint8
	for _, e := range entries {
		if e.State != StateActive || r.alive(e.PID) {
			continue
		}
		if _, err := r.db.Exec(
			`DELETE FROM registrations WHERE identity = ? AND pid = ? AND state = ?`,
			e.Identity, e.PID, StateActive); err != nil {
			return pruned, fmt.Errorf("registry: prune %d: %w", e.Identity, err)
		}
		pruned = append(pruned, e.Identity)
	}
	return pruned, nil
}

// Forget deletes a row in any state.
func (r *Registry) Forget(identity uint8) error {
	res, err := r.db.Exec(`DELETE FROM registrations WHERE identity = ?`, identity)
	if err != nil {
		return fmt.Errorf("registry: forget %d: %w", identity, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, identity)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e        Entry
		doc      string
		reg, upd int64
	)
	if err := s.Scan(&e.State, &doc, &e.Detail, &reg, &upd); err != nil {
		return Entry{}, err
	}
	if err := sonnet.Unmarshal([]byte(doc), &e.Descriptor); err != nil {
		return Entry{}, fmt.Errorf("registry: descriptor: %w", err)
	}
	e.RegisteredAt = time.Unix(0, reg)
	e.UpdatedAt = time.Unix(0, upd)
	return e, nil
}
