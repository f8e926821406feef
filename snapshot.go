package gqlcache

import (
	"github.com/andreyvit/gqlcache/descriptor"
	"github.com/andreyvit/gqlcache/snapshot"
)

// Extract returns every entity of the cache as flat records.
func (c *Cache) Extract(optimistic bool) snapshot.Records {
	return snapshot.Extract(c.effectiveReadLayers(optimistic))
}

// ExtractOperations returns confirmed operation results. Entities kept
// after their operations were evicted are not included.
func (c *Cache) ExtractOperations() []snapshot.OperationSnapshot {
	return snapshot.ExtractOperations(c.base, c.isOrphanOperation)
}

// RestoreOperations writes snapshots back in a single transaction.
// Snapshots whose document resolve does not know are skipped and reported
// in the returned error, after the rest are written.
func (c *Cache) RestoreOperations(snaps []snapshot.OperationSnapshot, resolve func(name string) *descriptor.Document) error {
	restored, restoreErr := snapshot.RestoreOperations(snaps, resolve)
	err := c.Batch(BatchOptions{}, func(tx *Tx) error {
		for _, r := range restored {
			if err := tx.Write(r.Operation, r.Data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return restoreErr
}
