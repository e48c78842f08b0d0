// Command hyperbatch renders work packages into hypermedia documents and
// manages the PostgreSQL objects the renderer reads from.
//
// Usage:
//
//	hyperbatch [flags] <command>
//
// Commands that touch the database (render, migrate, status, doctor) need database
// settings from --db, hyperbatch.yaml or HYPERBATCH_DATABASE_URL. validate
// only reads the permission model.
package main

func main() {
	Execute()
}
