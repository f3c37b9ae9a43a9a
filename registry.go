package apogee

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// DefaultJoinTimeout bounds how long a stop waits for a subsystem's worker
// goroutines to exit before the condition is reported as a resource-leak risk.
const DefaultJoinTimeout = 10 * time.Second

// subsystemRecord is the registry's bookkeeping for one registered subsystem.
// The state field is mutated exclusively through Registry transition
// operations, never by subsystem code.
type subsystemRecord struct {
	id             int
	name           string
	subsystem      Subsystem
	state          SubsystemState
	stateChangedAt time.Time
	dependencies   []string

	// Lifecycle context for the current run. Cancelling it is the cooperative
	// shutdown signal observed by the subsystem's worker loops.
	ctx    context.Context
	cancel context.CancelFunc

	// Completion channel captured from Completer after a successful Init;
	// nil when the subsystem has nothing to join.
	done <-chan struct{}
}

func (rec *subsystemRecord) setState(state SubsystemState) {
	if rec.state != state {
		rec.state = state
		rec.stateChangedAt = time.Now()
	}
}

// Registry is the central, thread-safe store of subsystem records and the
// dependency graph between them. It owns all state transitions and enforces
// that a running subsystem's dependencies are themselves running.
//
// A Registry is constructed explicitly and passed by handle to the
// orchestrators; there is no package-level instance. All mutating operations
// hold the registry's single mutex for their bookkeeping, but init and
// shutdown callbacks are invoked outside the lock so a slow subsystem cannot
// wedge concurrent status queries.
type Registry struct {
	mu      sync.Mutex
	records []*subsystemRecord
	byName  map[string]int
	landing bool

	logger      Logger
	baseCtx     context.Context
	joinTimeout time.Duration
}

// RegistryOption configures a Registry at construction time.
type RegistryOption func(*Registry)

// WithJoinTimeout sets the bounded wait applied when joining a subsystem's
// worker goroutines during stop.
func WithJoinTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.joinTimeout = d
		}
	}
}

// WithBaseContext sets the parent context from which each subsystem's
// lifecycle context is derived. Defaults to context.Background().
func WithBaseContext(ctx context.Context) RegistryOption {
	return func(r *Registry) {
		if ctx != nil {
			r.baseCtx = ctx
		}
	}
}

// NewRegistry creates an empty subsystem registry.
func NewRegistry(logger Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		byName:      make(map[string]int),
		logger:      logger,
		baseCtx:     context.Background(),
		joinTimeout: DefaultJoinTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a subsystem to the registry in Inactive state and returns its
// id. Dependencies are read once from the optional DependencyAware interface
// and fixed for the subsystem's lifetime. Registration is append-only; a
// duplicate name is rejected and leaves the original record untouched.
func (r *Registry) Register(sub Subsystem) (int, error) {
	if sub == nil {
		return 0, ErrSubsystemNil
	}
	name := sub.Name()
	if name == "" {
		return 0, ErrSubsystemNameEmpty
	}

	var deps []string
	if da, ok := sub.(DependencyAware); ok {
		for _, dep := range da.Dependencies() {
			if dep == name {
				return 0, fmt.Errorf("%w: %s", ErrSelfDependency, name)
			}
			if dep != "" && !slices.Contains(deps, dep) {
				deps = append(deps, dep)
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateSubsystem, name)
	}

	id := len(r.records)
	r.records = append(r.records, &subsystemRecord{
		id:             id,
		name:           name,
		subsystem:      sub,
		state:          StateInactive,
		stateChangedAt: time.Now(),
		dependencies:   deps,
	})
	r.byName[name] = id

	r.logger.Debug("Registered subsystem", "subsystem", name, "id", id, "dependencies", deps)
	return id, nil
}

// Start drives a subsystem through Inactive -> Starting -> Running. It
// re-validates dependencies under the registry lock immediately before
// invoking the init callback, closing the race between readiness evaluation
// and execution. The init callback itself runs outside the lock. On init
// failure the subsystem is recorded as Error and excluded from further start
// attempts until manually Reset.
func (r *Registry) Start(id int) error {
	r.mu.Lock()
	rec, err := r.recordLocked(id)
	if err != nil {
		r.mu.Unlock()
		return err
	}

	switch rec.state {
	case StateRunning, StateStarting:
		r.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrAlreadyRunning, rec.name, rec.state)
	case StateStopping:
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrStopInProgress, rec.name)
	case StateError:
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSubsystemFailed, rec.name)
	}

	if missing := r.missingDependenciesLocked(rec); len(missing) > 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s is missing: %s", ErrDependencyNotRunning, rec.name, strings.Join(missing, ", "))
	}

	ctx, cancel := context.WithCancel(r.baseCtx)
	rec.ctx = ctx
	rec.cancel = cancel
	rec.done = nil
	rec.setState(StateStarting)
	sub := rec.subsystem
	name := rec.name
	r.mu.Unlock()

	r.logger.Info("Starting subsystem", "subsystem", name)
	initErr := sub.Init(ctx)

	r.mu.Lock()
	if initErr != nil {
		rec.setState(StateError)
		cancel()
		rec.cancel = nil
		r.mu.Unlock()
		r.logger.Error("Subsystem failed to start", "subsystem", name, "error", initErr)
		return fmt.Errorf("%w: %s: %v", ErrInitFailed, name, initErr)
	}
	if c, ok := sub.(Completer); ok {
		rec.done = c.Done()
	}
	rec.setState(StateRunning)
	r.mu.Unlock()

	r.logger.Info("Subsystem running", "subsystem", name)
	return nil
}

// Stop drives a subsystem through Running -> Stopping -> Inactive. It refuses
// to stop a subsystem that other Running or Starting subsystems still list as
// a dependency. The shutdown callback runs outside the lock; worker completion
// is then awaited with a bounded timeout. On timeout the subsystem is
// force-marked Inactive and ErrShutdownTimeout is returned so the caller can
// report the resource-leak risk instead of hanging.
func (r *Registry) Stop(id int) error {
	r.mu.Lock()
	rec, err := r.recordLocked(id)
	if err != nil {
		r.mu.Unlock()
		return err
	}

	switch rec.state {
	case StateInactive, StateStopping, StateError:
		r.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrAlreadyStopped, rec.name, rec.state)
	case StateStarting:
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrStartInProgress, rec.name)
	}

	if dependents := r.activeDependentsLocked(rec.name, rec.id); len(dependents) > 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s required by: %s", ErrDependentsStillRunning, rec.name, strings.Join(dependents, ", "))
	}

	rec.setState(StateStopping)
	sub := rec.subsystem
	name := rec.name
	cancel := rec.cancel
	done := rec.done
	timeout := r.joinTimeout
	r.mu.Unlock()

	r.logger.Info("Stopping subsystem", "subsystem", name)

	// Cooperative shutdown signal first, then the shutdown callback.
	if cancel != nil {
		cancel()
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	shutdownErr := sub.Shutdown(shutdownCtx)
	shutdownCancel()

	var joinErr error
	if done != nil {
		select {
		case <-done:
		case <-time.After(timeout):
			joinErr = fmt.Errorf("%w: %s after %s", ErrShutdownTimeout, name, timeout)
		}
	}

	r.mu.Lock()
	rec.setState(StateInactive)
	rec.ctx = nil
	rec.cancel = nil
	rec.done = nil
	r.mu.Unlock()

	if joinErr != nil {
		return joinErr
	}
	if shutdownErr != nil {
		return fmt.Errorf("shutdown callback for %s: %w", name, shutdownErr)
	}
	r.logger.Info("Subsystem stopped", "subsystem", name)
	return nil
}

// Reset returns a subsystem from Error to Inactive so that a later launch may
// attempt it again. This is the only way out of the Error state; there is no
// automatic retry.
func (r *Registry) Reset(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.recordLocked(id)
	if err != nil {
		return err
	}
	if rec.state != StateError {
		return fmt.Errorf("%w: %s is %s", ErrNotInErrorState, rec.name, rec.state)
	}
	rec.setState(StateInactive)
	rec.ctx = nil
	rec.cancel = nil
	rec.done = nil
	return nil
}

// GetState returns a snapshot of the subsystem's current state. The value may
// be stale by the time the caller acts on it; callers that need transactional
// guarantees must go through Start/Stop, which re-validate under the lock.
func (r *Registry) GetState(id int) (SubsystemState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.recordLocked(id)
	if err != nil {
		return StateInactive, err
	}
	return rec.state, nil
}

// ID resolves a subsystem name to its registry id.
func (r *Registry) ID(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrSubsystemNotFound, name)
	}
	return id, nil
}

// IsRunning reports whether the named subsystem is currently Running.
func (r *Registry) IsRunning(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byName[name]
	if !ok {
		return false
	}
	return r.records[id].state == StateRunning
}

// ListRunning returns the names of all Running subsystems in registration
// order.
func (r *Registry) ListRunning() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var running []string
	for _, rec := range r.records {
		if rec.state == StateRunning {
			running = append(running, rec.name)
		}
	}
	return running
}

// Names returns all registered subsystem names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, len(r.records))
	for i, rec := range r.records {
		names[i] = rec.name
	}
	return names
}

// Count returns the number of registered subsystems.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// recordLocked returns the record for id; the caller must hold r.mu.
func (r *Registry) recordLocked(id int) (*subsystemRecord, error) {
	if id < 0 || id >= len(r.records) {
		return nil, fmt.Errorf("%w: id %d", ErrSubsystemNotFound, id)
	}
	return r.records[id], nil
}

// missingDependenciesLocked returns the dependencies of rec that are not
// Running; the caller must hold r.mu.
func (r *Registry) missingDependenciesLocked(rec *subsystemRecord) []string {
	var missing []string
	for _, dep := range rec.dependencies {
		depID, ok := r.byName[dep]
		if !ok || r.records[depID].state != StateRunning {
			missing = append(missing, dep)
		}
	}
	return missing
}

// activeDependentsLocked returns the names of Running or Starting subsystems
// that list name as a dependency; the caller must hold r.mu.
func (r *Registry) activeDependentsLocked(name string, excludeID int) []string {
	var dependents []string
	for _, other := range r.records {
		if other.id == excludeID {
			continue
		}
		if other.state != StateRunning && other.state != StateStarting {
			continue
		}
		if slices.Contains(other.dependencies, name) {
			dependents = append(dependents, other.name)
		}
	}
	return dependents
}

// missingDependencies is the snapshot form of missingDependenciesLocked used
// by the orchestrators between passes.
func (r *Registry) missingDependencies(id int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.recordLocked(id)
	if err != nil {
		return nil
	}
	return r.missingDependenciesLocked(rec)
}

// dependenciesRunning reports whether every declared dependency of id is
// Running.
func (r *Registry) dependenciesRunning(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.recordLocked(id)
	if err != nil {
		return false
	}
	return len(r.missingDependenciesLocked(rec)) == 0
}

// hasActiveDependents reports whether any Running or Starting subsystem still
// depends on id.
func (r *Registry) hasActiveDependents(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.recordLocked(id)
	if err != nil {
		return false
	}
	return len(r.activeDependentsLocked(rec.name, rec.id)) > 0
}

// nameOf returns the name for id, or the empty string when id is invalid.
func (r *Registry) nameOf(id int) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id < 0 || id >= len(r.records) {
		return ""
	}
	return r.records[id].name
}

// subsystemInfo returns the subsystem value and its dependency list for the
// readiness evaluator.
func (r *Registry) subsystemInfo(id int) (Subsystem, []string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.recordLocked(id)
	if err != nil {
		return nil, nil, err
	}
	return rec.subsystem, slices.Clone(rec.dependencies), nil
}

// inactiveIDs returns the ids of all Inactive subsystems in registration
// order; this seeds the launch worklist.
func (r *Registry) inactiveIDs() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []int
	for _, rec := range r.records {
		if rec.state == StateInactive {
			ids = append(ids, rec.id)
		}
	}
	return ids
}

// runningIDsReversed returns the ids of all Running subsystems in reverse
// registration order; this seeds each landing pass.
func (r *Registry) runningIDsReversed() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []int
	for i := len(r.records) - 1; i >= 0; i-- {
		if r.records[i].state == StateRunning {
			ids = append(ids, r.records[i].id)
		}
	}
	return ids
}

// allInactive reports whether every registered subsystem is Inactive.
func (r *Registry) allInactive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.records {
		if rec.state != StateInactive {
			return false
		}
	}
	return true
}

// beginLanding marks the process as landing and signals every subsystem's
// cooperative shutdown flag by cancelling its lifecycle context. Idempotent.
func (r *Registry) beginLanding() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.landing = true
	for _, rec := range r.records {
		if rec.cancel != nil {
			rec.cancel()
		}
	}
}

// landingActive reports whether landing has begun; the readiness evaluator
// refuses to approve launches once it has.
func (r *Registry) landingActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.landing
}

// shutdownRequested reports whether the subsystem's own shutdown signal has
// fired, i.e. its lifecycle context has been cancelled.
func (r *Registry) shutdownRequested(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.recordLocked(id)
	if err != nil || rec.ctx == nil {
		return false
	}
	return rec.ctx.Err() != nil
}

// stateOf returns the state of the named subsystem, or StateInactive and
// false when it is not registered.
func (r *Registry) stateOf(name string) (SubsystemState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byName[name]
	if !ok {
		return StateInactive, false
	}
	return r.records[id].state, true
}

// forceInactive marks a subsystem Inactive without running its shutdown
// callback. This is the landing orchestrator's last resort for an
// unresponsive subsystem and is reported by the caller as a resource-leak
// risk.
func (r *Registry) forceInactive(id int) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.recordLocked(id)
	if err != nil {
		return ""
	}
	if rec.cancel != nil {
		rec.cancel()
	}
	rec.setState(StateInactive)
	rec.ctx = nil
	rec.cancel = nil
	rec.done = nil
	return rec.name
}
