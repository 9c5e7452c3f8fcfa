// Package journal keeps an append-only YAML record of launcher runs, one
// daily file per UTC day, for post-mortem inspection of container starts.
package journal

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultRetentionDays = 14

// Ownership outcomes.
const (
	ChownOK       = "ok"
	ChownFailed   = "failed"
	ChownDisabled = "disabled"
)

type Record struct {
	Timestamp   time.Time `yaml:"timestamp"`
	Variant     string    `yaml:"variant"`
	Directories []string  `yaml:"directories,flow"`
	Chown       string    `yaml:"chown"`
	ChownErrors []string  `yaml:"chown_errors,omitempty"`
	User        string    `yaml:"user"`
	UID         int       `yaml:"uid"`
	GID         int       `yaml:"gid"`
	Groups      []int     `yaml:"groups,flow"`
	Path        string    `yaml:"path"`
	Command     []string  `yaml:"command,flow"`
}

type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: filepath.Clean(dir)}
}

func (s *Store) Dir() string { return s.dir }

// Append writes rec as a new YAML document to the file for its day and
// returns that file's path.
func (s *Store) Append(rec Record) (string, error) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	} else {
		rec.Timestamp = rec.Timestamp.UTC()
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", err
	}
	b, err := yaml.Marshal(rec)
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, rec.Timestamp.Format("2006-01-02")+".yaml")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if _, err := w.WriteString("---\n"); err != nil {
		return "", err
	}
	if _, err := w.Write(b); err != nil {
		return "", err
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	return path, f.Close()
}

// Load returns every record at or after since, oldest first.
func (s *Store) Load(since time.Time) ([]Record, error) {
	files, err := s.listDailyFiles()
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, name := range files {
		f, err := os.Open(filepath.Join(s.dir, name))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		d := yaml.NewDecoder(f)
		for {
			var rec Record
			if err := d.Decode(&rec); err != nil {
				_ = f.Close()
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, err
			}
			if since.IsZero() || !rec.Timestamp.Before(since) {
				out = append(out, rec)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Prune removes daily files older than retentionDays and reports how many
// were removed.
func (s *Store) Prune(now time.Time, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	files, err := s.listDailyFiles()
	if err != nil {
		return 0, err
	}
	cutoff := now.UTC().Truncate(24*time.Hour).AddDate(0, 0, -retentionDays)
	removed := 0
	for _, name := range files {
		day, err := time.Parse("2006-01-02", strings.TrimSuffix(name, filepath.Ext(name)))
		if err != nil || !day.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func isDailyFileName(name string) bool {
	lower := strings.ToLower(name)
	if !strings.HasSuffix(lower, ".yaml") && !strings.HasSuffix(lower, ".yml") {
		return false
	}
	base := name[:len(name)-len(filepath.Ext(name))]
	if len(base) != len("2006-01-02") {
		return false
	}
	_, err := time.Parse("2006-01-02", base)
	return err == nil
}

func (s *Store) listDailyFiles() ([]string, error) {
	ents, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	files := make([]string, 0, len(ents))
	for _, ent := range ents {
		if ent.IsDir() {
			continue
		}
		if isDailyFileName(ent.Name()) {
			files = append(files, ent.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}
