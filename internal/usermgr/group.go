package usermgr

import (
	"bytes"
	"errors"
	"os"
	"sort"
	"strings"
)

type GroupFile struct {
	pf parsedFile[GroupEntry]
}

// LoadGroup parses a group(5) file. A missing file yields an empty database.
func LoadGroup(path string) (*GroupFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &GroupFile{}, nil
		}
		return nil, err
	}
	return ParseGroup(b)
}

func ParseGroup(b []byte) (*GroupFile, error) {
	lines, err := readLines(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}

	var pf parsedFile[GroupEntry]
	for _, line := range lines {
		trim := strings.TrimSpace(line)
		if trim == "" || strings.HasPrefix(trim, "#") {
			pf.lines = append(pf.lines, rawLine[GroupEntry]{raw: line})
			continue
		}
		parts := parseColonLine(line)
		if len(parts) < 4 {
			pf.lines = append(pf.lines, rawLine[GroupEntry]{raw: line})
			continue
		}
		gid, err := atoi(parts[2], "group.gid")
		if err != nil {
			return nil, err
		}
		members := []string{}
		if parts[3] != "" {
			members = strings.Split(parts[3], ",")
		}
		e := GroupEntry{Name: parts[0], Passwd: parts[1], GID: gid, Members: members}
		pf.lines = append(pf.lines, rawLine[GroupEntry]{entry: &e})
	}
	return &GroupFile{pf: pf}, nil
}

func (f *GroupFile) Find(name string) *GroupEntry {
	for _, e := range f.pf.entries() {
		if e.Name == name {
			return e
		}
	}
	return nil
}

func (f *GroupFile) FindByGID(gid int) *GroupEntry {
	for _, e := range f.pf.entries() {
		if e.GID == gid {
			return e
		}
	}
	return nil
}

func (f *GroupFile) List() []GroupEntry {
	out := make([]GroupEntry, 0)
	for _, e := range f.pf.entries() {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GID < out[j].GID })
	return out
}

// MemberOf returns the gids of all groups that list user as a member, in file order.
func (f *GroupFile) MemberOf(user string) []int {
	var gids []int
	for _, g := range f.pf.entries() {
		for _, m := range g.Members {
			if m == user {
				gids = append(gids, g.GID)
				break
			}
		}
	}
	return gids
}
