// Package harness runs command scenarios against a scripted database.
//
// A scenario declares the schema, scripts what the database answers and
// lists the commands to run. Every command goes through the real resolver
// and executor; only the client is scripted, so the trace shows exactly
// which statements the engine issued and how each item ended.
//
// # Scenario Format
//
//	name: table_insert_partial
//	description: "What this scenario validates"
//	catalog: |
//	  keyspaces: town: tables: people: {
//	    columns: {city: "text", name: "text"}
//	    primaryKey: {partitionBy: ["city"], partitionSort: {name: "asc"}}
//	  }
//	client:
//	  - match: INSERT
//	    op: write
//	    values_contain: bob
//	    responses:
//	      - error: WRITE_TIMEOUT
//	        message: timed out
//	steps:
//	  - target: town.people
//	    command: {insertMany: {documents: [{city: oslo, name: ada}]}}
//	    expect:
//	      errors: [DATABASE_WRITE_TIMEOUT]
//	      status: {insertedIds: [["oslo", "ada"]]}
//	assertions:
//	  - type: statement_contains
//	    fragment: 'INSERT INTO "town"."people"'
//
// Targets are written as "" (the database), "ks" (a keyspace) or
// "ks.name" (a table or collection declared in the catalog).
//
// # Assertion Types
//
//   - statement_contains: some statement contains the fragment
//   - statement_order: fragments appear in statements in the given order
//   - statement_count: exactly count statements contain the fragment
//
// # Deterministic Testing
//
// Document ids come from a sequence ("doc-1", "doc-2"...), transaction ids
// from testutil.TxIDs, retries do not sleep and unordered groups run on a
// single worker, so traces are stable and can be compared to golden files.
package harness
