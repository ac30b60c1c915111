package storage

import (
	"context"
	"sort"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

const defaultBranch = "default"

// UserStorage holds per-tenant state: code branches, memory, segments, and
// the CPU bucket.
type UserStorage struct {
	Client *redis.Client
}

func NewUserStorage(client *redis.Client) UserStorage {
	return UserStorage{Client: client}
}

func (r *UserStorage) ActiveUsers(ctx context.Context) ([]string, error) {
	users, err := r.Client.SMembers(ctx, activeUsersKey()).Result()
	if err != nil {
		return nil, eris.Wrap(err, "failed to read active users")
	}
	sort.Strings(users)
	return users, nil
}

func (r *UserStorage) AddActiveUser(ctx context.Context, tenant string) error {
	err := r.Client.SAdd(ctx, activeUsersKey(), tenant).Err()
	return eris.Wrapf(err, "failed to activate user %q", tenant)
}

type branchMeta struct {
	ActiveWorld bool `json:"activeWorld"`
}

// SetCode stores a code branch for the tenant. activeWorld marks the branch
// the runtime should prefer over the default branch.
func (r *UserStorage) SetCode(
	ctx context.Context, tenant, branch string, modules map[string]string, activeWorld bool,
) error {
	meta, err := json.Marshal(branchMeta{ActiveWorld: activeWorld})
	if err != nil {
		return eris.Wrap(err, "failed to marshal branch meta")
	}
	pipe := r.Client.TxPipeline()
	pipe.HSet(ctx, userBranchesKey(tenant), branch, meta)
	pipe.Del(ctx, userCodeKey(tenant, branch))
	if len(modules) > 0 {
		flat := make([]any, 0, len(modules)*2)
		for name, source := range modules {
			flat = append(flat, name, source)
		}
		pipe.HSet(ctx, userCodeKey(tenant, branch), flat...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return eris.Wrapf(err, "failed to store code branch %q for %q", branch, tenant)
	}
	return nil
}

// ActiveModules resolves the tenant's active code branch: the branch flagged
// active-for-world wins, otherwise the default branch. Returns the module
// map and the branch name.
func (r *UserStorage) ActiveModules(ctx context.Context, tenant string) (map[string]string, string, error) {
	branches, err := r.Client.HGetAll(ctx, userBranchesKey(tenant)).Result()
	if err != nil {
		return nil, "", eris.Wrapf(err, "failed to read branches for %q", tenant)
	}
	branch := defaultBranch
	names := make([]string, 0, len(branches))
	for name := range branches {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		var meta branchMeta
		if err := json.Unmarshal([]byte(branches[name]), &meta); err != nil {
			continue
		}
		if meta.ActiveWorld {
			branch = name
			break
		}
	}
	modules, err := r.Client.HGetAll(ctx, userCodeKey(tenant, branch)).Result()
	if err != nil {
		return nil, "", eris.Wrapf(err, "failed to read code branch %q for %q", branch, tenant)
	}
	return modules, branch, nil
}

func (r *UserStorage) GetMemory(ctx context.Context, tenant string) (string, error) {
	memory, err := r.Client.Get(ctx, userMemoryKey(tenant)).Result()
	if eris.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "failed to read memory for %q", tenant)
	}
	return memory, nil
}

func (r *UserStorage) SetMemory(ctx context.Context, tenant, memory string) error {
	err := r.Client.Set(ctx, userMemoryKey(tenant), memory, 0).Err()
	return eris.Wrapf(err, "failed to write memory for %q", tenant)
}

func (r *UserStorage) GetMemorySegments(ctx context.Context, tenant string) (map[string]string, error) {
	segments, err := r.Client.HGetAll(ctx, userSegmentsKey(tenant)).Result()
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read memory segments for %q", tenant)
	}
	return segments, nil
}

func (r *UserStorage) SetMemorySegments(ctx context.Context, tenant string, segments map[string]string) error {
	if len(segments) == 0 {
		return nil
	}
	flat := make([]any, 0, len(segments)*2)
	for id, data := range segments {
		flat = append(flat, id, data)
	}
	err := r.Client.HSet(ctx, userSegmentsKey(tenant), flat...).Err()
	return eris.Wrapf(err, "failed to write memory segments for %q", tenant)
}

func (r *UserStorage) GetInterShardSegment(ctx context.Context, tenant string) (string, error) {
	segment, err := r.Client.Get(ctx, userInterShardKey(tenant)).Result()
	if eris.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "failed to read inter-shard segment for %q", tenant)
	}
	return segment, nil
}

func (r *UserStorage) SetInterShardSegment(ctx context.Context, tenant, segment string) error {
	err := r.Client.Set(ctx, userInterShardKey(tenant), segment, 0).Err()
	return eris.Wrapf(err, "failed to write inter-shard segment for %q", tenant)
}

func (r *UserStorage) GetCPUBucket(ctx context.Context, tenant string) (float64, error) {
	raw, err := r.Client.Get(ctx, userCPUBucketKey(tenant)).Result()
	if eris.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "failed to read cpu bucket for %q", tenant)
	}
	bucket, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "corrupt cpu bucket for %q", tenant)
	}
	return bucket, nil
}

func (r *UserStorage) SetCPUBucket(ctx context.Context, tenant string, bucket float64) error {
	err := r.Client.Set(ctx, userCPUBucketKey(tenant), strconv.FormatFloat(bucket, 'f', -1, 64), 0).Err()
	return eris.Wrapf(err, "failed to write cpu bucket for %q", tenant)
}

// GetCPULimit returns the tenant's configured per-tick CPU limit in
// milliseconds, or zero when unset. Callers fall back to the system default
// for non-positive values.
func (r *UserStorage) GetCPULimit(ctx context.Context, tenant string) (float64, error) {
	raw, err := r.Client.Get(ctx, userCPULimitKey(tenant)).Result()
	if eris.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "failed to read cpu limit for %q", tenant)
	}
	limit, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "corrupt cpu limit for %q", tenant)
	}
	return limit, nil
}

func (r *UserStorage) SetCPULimit(ctx context.Context, tenant string, limit float64) error {
	err := r.Client.Set(ctx, userCPULimitKey(tenant), strconv.FormatFloat(limit, 'f', -1, 64), 0).Err()
	return eris.Wrapf(err, "failed to write cpu limit for %q", tenant)
}
