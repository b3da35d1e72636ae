// Package pagination splits catalog search results into fixed-size groups.
//
// The catalog search endpoint returns every matching object ID in a single
// response, which can run into tens of thousands of IDs. Detail records are
// fetched one request per ID, so the IDs are partitioned into groups that are
// fetched and displayed together, one group at a time.
//
// Example usage:
//
//	groups := pagination.Partition(summary.ObjectIDs, pagination.DefaultMaxGroupSize)
//	first, _ := groups.Group(1)
//
// Partitioning:
//   - Groups are 1-indexed
//   - Every ID appears in exactly one group, in its original order
//   - All groups except possibly the last hold exactly maxGroupSize IDs
//   - An empty ID list yields zero groups
package pagination
