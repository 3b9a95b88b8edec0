// Package simplefeed provides the feed pagination and engagement engine of a
// social-content backend: posts and reels, a cursor-paginated
// reverse-chronological feed per kind, like toggles, comments, caption edits
// and owner-only deletion.
//
// It exposes a single Service interface. Persistence is pluggable through
// Repository (memory, Postgres and MongoDB implementations live under repo/)
// and binary media through MediaGateway (memory, filesystem and S3
// implementations live under media/).
//
// Concurrency
//
// Every engagement mutation is delegated to an atomic Repository primitive
// (ToggleLike, AppendComment, RemoveComment, UpdateCaption). The service never
// reads a record, mutates it in memory and writes it back, so concurrent
// requests against the same record cannot drop each other's changes.
package simplefeed
