package store

import (
	"context"
	"fmt"

	"github.com/triplecore/triplecore/internal/connstate"
	"github.com/triplecore/triplecore/pkg/rdf"
)

// Conn is a per-caller handle enforcing the connection lifecycle of
// §4.8: closed → idle → active → preparing → committed/rolled-back →
// idle. A connection holds at most one active transaction; Read outside
// a transaction opens and closes an implicit auto-commit dataset.
type Conn struct {
	store *Store
	sm    *connstate.Machine

	partition *Source
	level     IsolationLevel
	tx        *Sink
}

// NewConn opens a connection against the given partition, defaulting to
// the store's configured isolation level when level is the zero value.
func NewConn(store *Store, partition *Source, level IsolationLevel) (*Conn, error) {
	sm := connstate.New()
	if err := sm.Fire(connstate.EventOpen); err != nil {
		return nil, newErr("conn.open", InvalidState, err)
	}
	if level == 0 {
		level = store.cfg.defaultIsolation()
	}
	return &Conn{store: store, sm: sm, partition: partition, level: level}, nil
}

func (c *Conn) fire(ev connstate.Event) error {
	if err := c.sm.Fire(ev); err != nil {
		return newErr("conn", InvalidState, err)
	}
	return nil
}

// Begin starts a transaction at level (or the connection's default
// level if level is the zero value).
func (c *Conn) Begin(level IsolationLevel) error {
	c.sm.Reset()
	if err := c.fire(connstate.EventBegin); err != nil {
		return err
	}
	if level == 0 {
		level = c.level
	}
	sink, err := c.partition.Sink(level)
	if err != nil {
		return err
	}
	c.tx = sink
	return nil
}

// Read performs a pattern scan. Outside an active transaction this
// opens and closes an implicit auto-commit dataset at the connection's
// default isolation level. Inside one, it reads through the active
// transaction's sink instead, so the sink's own staged adds and
// removes are visible per §5's writer-monotonicity guarantee, while
// every other connection's uncommitted writes remain invisible.
func (c *Conn) Read(pattern Pattern) ([]Quad, error) {
	if c.sm.State() == connstate.Active {
		return c.tx.Read(pattern)
	}
	ds, err := c.partition.Dataset(c.level)
	if err != nil {
		return nil, err
	}
	defer ds.Close()
	return ds.Scan(pattern)
}

// Add stages an addition against the connection's active transaction.
func (c *Conn) Add(subject, predicate, object, context rdf.Term) error {
	if c.sm.State() != connstate.Active {
		return newErr("conn.add", InvalidState, fmt.Errorf("no active transaction"))
	}
	return c.tx.Add(subject, predicate, object, context)
}

// Remove stages a removal against the connection's active transaction.
func (c *Conn) Remove(subject, predicate, object, context rdf.Term) error {
	if c.sm.State() != connstate.Active {
		return newErr("conn.remove", InvalidState, fmt.Errorf("no active transaction"))
	}
	return c.tx.Remove(subject, predicate, object, context)
}

// Prepare validates the active transaction, per §4.8's prepare event.
func (c *Conn) Prepare(context.Context) error {
	if err := c.fire(connstate.EventPrepare); err != nil {
		return err
	}
	return c.tx.Prepare()
}

// Commit flushes the prepared transaction and returns the connection to
// idle on the next Begin or explicit Reset.
func (c *Conn) Commit() error {
	if err := c.fire(connstate.EventCommit); err != nil {
		return err
	}
	if err := c.tx.Flush(); err != nil {
		return err
	}
	return c.tx.Close()
}

// Rollback discards the active (or preparing) transaction's staged
// buffer.
func (c *Conn) Rollback() error {
	if err := c.fire(connstate.EventRollback); err != nil {
		return err
	}
	if c.tx == nil {
		return nil
	}
	return c.tx.Close()
}

// Close ends the connection, rolling back any in-flight transaction.
func (c *Conn) Close() error {
	if c.sm.State() == connstate.Active || c.sm.State() == connstate.Preparing {
		_ = c.tx.Close()
	}
	return c.fire(connstate.EventClose)
}
