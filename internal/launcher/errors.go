package launcher

import "fmt"

// ConfigError reports settings that cannot be used. It is fatal and occurs
// before any filesystem change.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return "configuration: " + e.Err.Error() }
func (e *ConfigError) Unwrap() error { return e.Err }

// FilesystemError reports a directory that could not be created. It is fatal.
type FilesystemError struct {
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("preparing %s: %v", e.Path, e.Err)
}
func (e *FilesystemError) Unwrap() error { return e.Err }

// OwnershipError reports a failed recursive chown. It is logged and ignored.
type OwnershipError struct {
	Path string
	Err  error
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("changing ownership of %s: %v", e.Path, e.Err)
}
func (e *OwnershipError) Unwrap() error { return e.Err }

// ExecError reports a command that could not be started as the target
// identity. It is fatal.
type ExecError struct {
	Command string
	Err     error
}

func (e *ExecError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("exec: %v", e.Err)
	}
	return fmt.Sprintf("exec %s: %v", e.Command, e.Err)
}
func (e *ExecError) Unwrap() error { return e.Err }
