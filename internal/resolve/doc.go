// Package resolve turns a command aimed at a schema object into a runnable
// Operation: a task group plus the function that shapes its accumulated
// result into a response.
//
// Resolution is synchronous and never touches the network. Everything that
// can be rejected up front (unknown columns, illegal operators, full scans
// on writes, malformed updates, oversized batches) is returned by Resolve
// as an *apierr.Error. Per document failures in a batch are captured on
// their tasks instead, so the rest of the batch still runs.
//
// Dispatch is by target kind:
//
//	collection  find findOne insertOne insertMany updateOne updateMany
//	            deleteOne deleteMany countDocuments estimatedDocumentCount
//	table       find findOne insertOne insertMany updateOne deleteOne
//	            deleteMany alterTable createIndex listIndexes
//	keyspace    createTable dropTable dropIndex listTables
//	            createCollection deleteCollection findCollections
//	database    createKeyspace dropKeyspace findKeyspaces
package resolve
