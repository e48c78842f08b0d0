// Package pgstore implements the hyperbatch store interfaces over
// PostgreSQL and installs the tables and functions they read.
//
// A Store answers the bulk queries a Projector issues for one batch: edge
// fetches in both directions, the entity fetch, association resolution per
// join target and the watcher lookup. Every query binds the batch IDs as a
// single array argument, so the number of round trips is independent of the
// batch size.
//
//	if err := pgstore.Migrate(ctx, db); err != nil {
//	    return err
//	}
//	store := pgstore.New(db)
//
// Store accepts *sql.DB, *sql.Tx or *sql.Conn. The driver must support
// array arguments through lib/pq's pq.Array, which both lib/pq and
// pgx/v5/stdlib do.
package pgstore
