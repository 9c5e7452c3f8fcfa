// Package launcher implements the container bootstrap sequence: resolve
// the target identity, prepare the mount points, then replace the process
// with the workload running as that identity.
//
// The sequence is strictly linear:
//
//	Initializing -> PreparingFilesystem -> HandedOff
//
// and any fatal error moves it to Failed. Nothing is retried.
package launcher

import (
	"time"

	"github.com/monbot/entrypoint/internal/config"
	"github.com/monbot/entrypoint/internal/handoff"
	"github.com/monbot/entrypoint/internal/journal"
	"github.com/monbot/entrypoint/internal/logger"
	"github.com/monbot/entrypoint/internal/mountfs"
	"github.com/monbot/entrypoint/internal/usermgr"
)

type State int

const (
	Initializing State = iota
	PreparingFilesystem
	HandedOff
	Failed
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case PreparingFilesystem:
		return "preparing-filesystem"
	case HandedOff:
		return "handed-off"
	case Failed:
		return "failed"
	}
	return "unknown"
}

type Launcher struct {
	cfg     config.Config
	environ []string

	// Users resolves home directory and supplementary groups.
	Users *usermgr.Resolver
	// Runner performs the privilege drop and exec.
	Runner *handoff.Runner
	// Chown re-owns a directory tree.
	Chown func(root string, uid, gid int) (mountfs.ChownResult, error)
	// Now stamps journal records.
	Now func() time.Time

	state State
}

// New returns a launcher for cfg. environ is passed to the workload.
func New(cfg config.Config, environ []string) *Launcher {
	return &Launcher{
		cfg:     cfg,
		environ: environ,
		Users:   usermgr.NewDefault(),
		Runner:  handoff.New(),
		Chown:   mountfs.Chownr,
		Now:     time.Now,
		state:   Initializing,
	}
}

func (l *Launcher) State() State { return l.state }

func (l *Launcher) Config() config.Config { return l.cfg }

// Plan describes what the launcher is about to do.
type Plan struct {
	Variant     config.Variant `yaml:"variant"`
	Directories []string       `yaml:"directories"`
	Chown       bool           `yaml:"chown"`
	User        string         `yaml:"user"`
	UID         int            `yaml:"uid"`
	GID         int            `yaml:"gid"`
	Groups      []int          `yaml:"groups,flow"`
	Home        string         `yaml:"home,omitempty"`
	Overlay     string         `yaml:"overlay,omitempty"`
}

// Resolve computes the identity and the plan. Only a ConfigError is
// returned; problems reading the user databases are logged and the bare
// numeric identity is used.
func (l *Launcher) Resolve() (Plan, usermgr.Identity, error) {
	uid, gid, err := l.cfg.NumericIdentity()
	if err != nil {
		return Plan{}, usermgr.Identity{}, &ConfigError{Err: err}
	}
	if !usermgr.ValidUsername(l.cfg.User) {
		logger.Warn("APP_USER %q is not a valid user name; using numeric identity %d:%d", l.cfg.User, uid, gid)
	}

	id, err := l.Users.Resolve(l.cfg.User, uid, gid)
	if err != nil {
		logger.Warn("user database lookup failed (%v); using numeric identity %d:%d", err, uid, gid)
		id = usermgr.Identity{Name: l.cfg.User, UID: uid, GID: gid, Groups: []int{gid}}
	}
	if id.Entry != nil && id.Entry.UID != uid {
		logger.Warn("user %s has uid %d in %s but APP_UID is %d; using %d", id.Name, id.Entry.UID, l.Users.PasswdPath, uid, uid)
	}

	plan := Plan{
		Variant:     l.cfg.Variant,
		Directories: l.cfg.Directories(),
		Chown:       l.cfg.ChownEnabled(),
		User:        id.Name,
		UID:         id.UID,
		GID:         id.GID,
		Groups:      id.Groups,
		Home:        id.Home,
		Overlay:     l.cfg.OverlayPath,
	}
	return plan, id, nil
}

// Report is the outcome of filesystem preparation.
type Report struct {
	Created   []string
	Existing  []string
	Chowned   []mountfs.ChownResult
	Ownership []*OwnershipError
	// Chown is one of the journal.Chown* outcomes.
	Chown string
}

// Prepare creates every planned directory, then re-owns them when the plan
// asks for it. A FilesystemError aborts before any ownership change;
// ownership failures are collected in the report and logged.
func (l *Launcher) Prepare(plan Plan) (Report, error) {
	l.state = PreparingFilesystem
	var rep Report

	for _, dir := range plan.Directories {
		existed := mountfs.Exists(dir)
		if err := mountfs.EnsureDir(dir); err != nil {
			l.state = Failed
			return rep, &FilesystemError{Path: dir, Err: err}
		}
		if existed {
			rep.Existing = append(rep.Existing, dir)
		} else {
			rep.Created = append(rep.Created, dir)
			logger.Info("created %s", dir)
		}
	}

	if !plan.Chown {
		rep.Chown = journal.ChownDisabled
		logger.Info("ownership fixup disabled")
		return rep, nil
	}

	rep.Chown = journal.ChownOK
	for _, dir := range plan.Directories {
		res, err := l.Chown(dir, plan.UID, plan.GID)
		rep.Chowned = append(rep.Chowned, res)
		if err != nil {
			oe := &OwnershipError{Path: dir, Err: err}
			rep.Ownership = append(rep.Ownership, oe)
			rep.Chown = journal.ChownFailed
			if mountfs.IsReadOnly(err) {
				logger.Warn("%v (read-only volume, continuing)", oe)
			} else {
				logger.Warn("%v (continuing)", oe)
			}
			continue
		}
		logger.Info("owned %s by %d:%d (%d changed, %d already owned)", dir, plan.UID, plan.GID, res.Changed, res.Skipped)
	}
	return rep, nil
}

// Launch runs the full sequence for argv. With the default Runner it only
// returns on failure.
func (l *Launcher) Launch(argv []string) error {
	l.state = Initializing
	plan, id, err := l.Resolve()
	if err != nil {
		l.state = Failed
		return err
	}

	rep, err := l.Prepare(plan)
	if err != nil {
		return err
	}

	cmd, err := handoff.Prepare(argv, l.environ, id)
	if err != nil {
		l.state = Failed
		name := ""
		if len(argv) > 0 {
			name = argv[0]
		}
		return &ExecError{Command: name, Err: err}
	}

	if l.cfg.JournalDir != "" {
		l.record(plan, rep, cmd)
	}

	logger.Info("handing off to %s as %d:%d", cmd.Path, id.UID, id.GID)
	if err := l.Runner.Run(cmd, id); err != nil {
		l.state = Failed
		return &ExecError{Command: cmd.Path, Err: err}
	}
	l.state = HandedOff
	return nil
}

// record appends a journal entry. Failures are logged only.
func (l *Launcher) record(plan Plan, rep Report, cmd handoff.Command) {
	store := journal.NewStore(l.cfg.JournalDir)
	rec := journal.Record{
		Timestamp:   l.Now(),
		Variant:     string(plan.Variant),
		Directories: plan.Directories,
		Chown:       rep.Chown,
		User:        plan.User,
		UID:         plan.UID,
		GID:         plan.GID,
		Groups:      plan.Groups,
		Path:        cmd.Path,
		Command:     cmd.Args,
	}
	for _, oe := range rep.Ownership {
		rec.ChownErrors = append(rec.ChownErrors, oe.Error())
	}
	if _, err := store.Append(rec); err != nil {
		logger.Warn("journal: %v", err)
		return
	}
	if n, err := store.Prune(l.Now(), journal.DefaultRetentionDays); err != nil {
		logger.Warn("journal prune: %v", err)
	} else if n > 0 {
		logger.Info("journal: pruned %d old files", n)
	}
	if plan.Chown {
		if _, err := l.Chown(store.Dir(), plan.UID, plan.GID); err != nil {
			logger.Warn("journal: %v", err)
		}
	}
}
