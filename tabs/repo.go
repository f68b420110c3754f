package tabs

import "context"

// Repo is one context's handle on the shared tab store. Every open tab (or
// test) holds its own handle; all handles read and write the same backing
// medium.
//
// The store has no partial-update primitive: mutations are full-map
// read-modify-write, so two handles writing concurrently resolve as
// last-writer-wins at map granularity. Callers only ever mutate their own
// tab's entry, which keeps the lost-update window harmless (the losing tab
// re-asserts its entry on its next write).
type Repo interface {
	// ReadAll returns the current tab map. A missing or corrupt blob reads
	// as an empty map, never an error; the store self-heals on the next
	// successful WriteAll.
	ReadAll(ctx context.Context) (map[string]TabRecord, error)

	// WriteAll replaces the persisted map wholesale.
	WriteAll(ctx context.Context, records map[string]TabRecord) error

	// ActiveToken returns the process-wide "current token" used by the
	// generic API client. It is whatever token was last written, regardless
	// of which tab wrote it.
	ActiveToken(ctx context.Context) (string, error)

	// SetActiveToken replaces the current token. An empty token clears it.
	SetActiveToken(ctx context.Context, token string) error

	// Subscribe registers fn to be called with the new tab map whenever the
	// backing medium is changed through a different handle. The handle's own
	// writes never trigger its subscribers. Returns a cancel function.
	Subscribe(fn func(map[string]TabRecord)) (cancel func())
}
