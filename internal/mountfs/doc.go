// Package mountfs prepares container mount points: it creates missing
// directories and hands their contents over to the workload identity.
//
// Expected mounts (defaults):
//
//	/data     persistent state (database, keys)
//	/cache    disposable cache
//	/reports  generated report artifacts
package mountfs
