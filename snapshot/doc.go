// Package snapshot checkpoints a session: the resting book levels, the
// trade ledger and the journal sequence they reflect. Restoring a session
// loads the checkpoint and replays only journal records after its
// sequence.
package snapshot
