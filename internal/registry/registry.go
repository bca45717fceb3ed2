// Package registry tracks which worker identities are currently live within
// a named group, backed by the shared Redis store every worker and the
// coordinator can reach.
package registry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultLeaseTTL is how long a registration stays live without renewal.
// Workers renew well inside this window; an ungracefully killed worker
// disappears from membership within one TTL instead of lingering forever.
const DefaultLeaseTTL = 30 * time.Second

// UnavailableError reports that the registry store could not be reached.
// Callers must treat it as "lookup failed", never as "zero members".
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("registry %s: store unavailable: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Registry is the shared (group -> set of worker ids) membership store.
// Workers only add and remove their own id; the coordinator only reads.
type Registry struct {
	rdb      *redis.Client
	leaseTTL time.Duration
}

// New creates a registry on rdb. A non-positive leaseTTL selects
// DefaultLeaseTTL.
func New(rdb *redis.Client, leaseTTL time.Duration) *Registry {
	if leaseTTL <= 0 {
		leaseTTL = DefaultLeaseTTL
	}
	return &Registry{rdb: rdb, leaseTTL: leaseTTL}
}

// LeaseTTL returns the configured lease duration.
func (r *Registry) LeaseTTL() time.Duration { return r.leaseTTL }

func groupKey(group string) string { return "fio:workers:" + group }

func leaseKey(group, id string) string { return "fio:lease:" + group + ":" + id }

// Register adds id to the group's membership set and opens its lease.
// Registering an already-registered id is a no-op apart from refreshing
// the lease.
func (r *Registry) Register(ctx context.Context, group, id string) error {
	pipe := r.rdb.TxPipeline()
	pipe.SAdd(ctx, groupKey(group), id)
	pipe.Set(ctx, leaseKey(group, id), time.Now().UTC().Format(time.RFC3339), r.leaseTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return &UnavailableError{Op: "register", Err: err}
	}
	return nil
}

// Renew extends the lease for id. Workers call this from their heartbeat.
func (r *Registry) Renew(ctx context.Context, group, id string) error {
	err := r.rdb.Set(ctx, leaseKey(group, id), time.Now().UTC().Format(time.RFC3339), r.leaseTTL).Err()
	if err != nil {
		return &UnavailableError{Op: "renew", Err: err}
	}
	return nil
}

// Unregister removes id from the group. Removing an id that is not a
// member is a no-op, not an error. It must be attempted on every shutdown
// path; the lease covers the paths where it never runs.
func (r *Registry) Unregister(ctx context.Context, group, id string) error {
	pipe := r.rdb.TxPipeline()
	pipe.SRem(ctx, groupKey(group), id)
	pipe.Del(ctx, leaseKey(group, id))
	if _, err := pipe.Exec(ctx); err != nil {
		return &UnavailableError{Op: "unregister", Err: err}
	}
	return nil
}

// Workers returns the group's live membership snapshot in sorted order, so
// dispatch ordering is reproducible. Ids whose lease has expired are
// dropped from the snapshot and pruned from the set. A group nobody has
// registered in yields an empty slice and no error.
func (r *Registry) Workers(ctx context.Context, group string) ([]string, error) {
	ids, err := r.rdb.SMembers(ctx, groupKey(group)).Result()
	if err != nil {
		return nil, &UnavailableError{Op: "list", Err: err}
	}
	sort.Strings(ids)

	live := make([]string, 0, len(ids))
	var stale []any
	for _, id := range ids {
		n, err := r.rdb.Exists(ctx, leaseKey(group, id)).Result()
		if err != nil {
			return nil, &UnavailableError{Op: "list", Err: err}
		}
		if n > 0 {
			live = append(live, id)
		} else {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		// Best effort; the next snapshot prunes whatever this one missed.
		r.rdb.SRem(ctx, groupKey(group), stale...)
	}
	return live, nil
}
