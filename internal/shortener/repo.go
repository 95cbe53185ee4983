package shortener

import "context"

// MappingRepository persists URL mappings.
//
// CreateOrGet returns an existing mapping for initialURL unchanged, whatever its
// state, with created=false. Otherwise it asks the shortening provider for a
// short URL and stores a new active mapping. Reads return inactive mappings
// too; deciding what to do with them is the caller's job.
type MappingRepository interface {
	CreateOrGet(ctx context.Context, initialURL string) (m Mapping, created bool, err error)
	GetByID(ctx context.Context, id int64) (Mapping, error)
	GetByShortURL(ctx context.Context, shortURL string) (Mapping, error)
	SoftDelete(ctx context.Context, id int64) (Mapping, error)
}

// UsageRepository appends usage events and reports on them. It does not check
// that urlID refers to an existing or active mapping.
type UsageRepository interface {
	RecordUsage(ctx context.Context, urlID int64, clientHost string, clientPort int) (UsageEvent, error)
	Status(ctx context.Context, urlID int64, fullInfo bool, page Pagination) (UsageStatus, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
