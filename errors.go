package apogee

import (
	"errors"
)

// Orchestration core errors
var (
	// Registration errors. These are fatal at bootstrap.
	ErrSubsystemNil       = errors.New("subsystem is nil")
	ErrSubsystemNameEmpty = errors.New("subsystem name is empty")
	ErrDuplicateSubsystem = errors.New("subsystem already registered")
	ErrSelfDependency     = errors.New("subsystem cannot depend on itself")

	// State transition errors. Returned as typed errors, never swallowed:
	// they indicate a logic error in the caller.
	ErrSubsystemNotFound      = errors.New("subsystem not found")
	ErrAlreadyRunning         = errors.New("subsystem already running")
	ErrAlreadyStopped         = errors.New("subsystem not running")
	ErrStartInProgress        = errors.New("subsystem start in progress")
	ErrStopInProgress         = errors.New("subsystem stop in progress")
	ErrSubsystemFailed        = errors.New("subsystem in error state, manual reset required")
	ErrNotInErrorState        = errors.New("subsystem not in error state")
	ErrDependencyNotRunning   = errors.New("dependency not running")
	ErrDependentsStillRunning = errors.New("subsystem still required by running dependents")

	// Launch and landing errors
	ErrInitFailed      = errors.New("subsystem initialization failed")
	ErrLaunchStalled   = errors.New("launch stalled, dependency cycle suspected")
	ErrShutdownTimeout = errors.New("subsystem workers did not exit before timeout")

	// Readiness errors shared by subsystem config checks
	ErrSubsystemDisabled = errors.New("subsystem disabled by configuration")
	ErrPortOutOfRange    = errors.New("port outside valid range 1-65535")

	// Configuration loading errors
	ErrConfigNil               = errors.New("config is nil")
	ErrConfigNotStructPointer  = errors.New("config must be a non-nil pointer to a struct")
	ErrUnsupportedConfigFormat = errors.New("unsupported config file format")

	// Observer errors
	ErrObserverNil = errors.New("observer is nil")
)
