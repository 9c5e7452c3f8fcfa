package usermgr

// Package usermgr reads the container's user and group databases.
//
// The launcher only needs read access:
//   /etc/passwd  -> home directory, primary group
//   /etc/group   -> supplementary group membership
//
// Both files may be absent in minimal images; lookups then fall back to
// the numeric identity alone.
