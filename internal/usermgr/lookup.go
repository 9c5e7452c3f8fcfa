package usermgr

import (
	"fmt"
)

const (
	DefaultPasswdPath = "/etc/passwd"
	DefaultGroupPath  = "/etc/group"
)

// Identity is the resolved target of a privilege drop.
type Identity struct {
	Name string
	UID  int
	GID  int
	// Groups are the supplementary gids, GID first.
	Groups []int
	// Home is empty when the user has no passwd entry.
	Home string
	// Entry is the passwd entry matched by name, if any.
	Entry *PasswdEntry
}

type Resolver struct {
	PasswdPath string
	GroupPath  string
}

func NewDefault() *Resolver {
	return &Resolver{PasswdPath: DefaultPasswdPath, GroupPath: DefaultGroupPath}
}

// Resolve builds the Identity for name running as uid:gid. The numeric ids
// always win over the databases; passwd and group only contribute the home
// directory and supplementary groups.
func (r *Resolver) Resolve(name string, uid, gid int) (Identity, error) {
	id := Identity{Name: name, UID: uid, GID: gid, Groups: []int{gid}}

	pw, err := LoadPasswd(r.PasswdPath)
	if err != nil {
		return id, fmt.Errorf("reading %s: %w", r.PasswdPath, err)
	}
	e := pw.Find(name)
	if e == nil {
		e = pw.FindByUID(uid)
	}
	if e != nil {
		id.Home = e.Home
		if e.Name == name {
			id.Entry = e
		}
	}

	gr, err := LoadGroup(r.GroupPath)
	if err != nil {
		return id, fmt.Errorf("reading %s: %w", r.GroupPath, err)
	}
	member := name
	if e != nil {
		member = e.Name
	}
	for _, g := range gr.MemberOf(member) {
		if !containsInt(id.Groups, g) {
			id.Groups = append(id.Groups, g)
		}
	}
	return id, nil
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
