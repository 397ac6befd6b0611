package snapshots

import (
	"github.com/rs/zerolog"

	"github.com/arpan-banerjee/fno-dashboard/internal/domain"
)

// CacheCleanupJob removes expired keys from the in-memory snapshot cache.
// Schedule hourly; expired keys are also skipped on read, so the job just
// keeps the map from accumulating dead instruments.
type CacheCleanupJob struct {
	cache *Cache[[]domain.RawStrike]
	log   zerolog.Logger
}

// NewCacheCleanupJob creates the in-memory cache sweep job.
func NewCacheCleanupJob(cache *Cache[[]domain.RawStrike], log zerolog.Logger) *CacheCleanupJob {
	return &CacheCleanupJob{
		cache: cache,
		log:   log.With().Str("job", "snapshot_cache_cleanup").Logger(),
	}
}

// Run sweeps expired cache keys.
func (j *CacheCleanupJob) Run() error {
	deleted := j.cache.DeleteExpired()
	if deleted > 0 {
		j.log.Info().Int("deleted", deleted).Msg("Removed expired snapshot cache keys")
	}
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CacheCleanupJob) Name() string {
	return "snapshot_cache_cleanup"
}

// ArchivePruneJob deletes expired rows from the snapshot archive.
// Schedule daily.
type ArchivePruneJob struct {
	archive *Archive
	log     zerolog.Logger
}

// NewArchivePruneJob creates the archive prune job.
func NewArchivePruneJob(archive *Archive, log zerolog.Logger) *ArchivePruneJob {
	return &ArchivePruneJob{
		archive: archive,
		log:     log.With().Str("job", "snapshot_archive_prune").Logger(),
	}
}

// Run deletes expired archive rows.
func (j *ArchivePruneJob) Run() error {
	deleted, err := j.archive.DeleteExpired()
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to prune snapshot archive")
		return err
	}
	if deleted > 0 {
		j.log.Info().Int64("deleted", deleted).Msg("Pruned expired archive snapshots")
	}
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *ArchivePruneJob) Name() string {
	return "snapshot_archive_prune"
}
