// Package journal keeps a SQLite record of executed requests and the
// terminal state of each of their tasks.
//
// A Journal is a task.Observer: attach it to an executor and every task
// that completes, fails or is skipped is written as one row. Requests are
// registered with Begin so history listings can name the command.
//
// Rows are ordered by an autoincrement seq. Writes are idempotent on
// (group_id, position), so observing the same task twice keeps the first
// record.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - a single open connection, SQLite has one writer
package journal
