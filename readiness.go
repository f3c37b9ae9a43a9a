package apogee

import (
	"context"
	"fmt"
	"strings"
)

// CheckCategory identifies one of the fixed readiness check categories. The
// evaluator always runs them in the order declared here.
type CheckCategory string

const (
	CategoryProcessState  CheckCategory = "process-state"
	CategoryConfiguration CheckCategory = "configuration"
	CategoryResources     CheckCategory = "resources"
	CategorySubsystem     CheckCategory = "subsystem"
	CategoryDependencies  CheckCategory = "dependencies"
)

// FindingStatus is the verdict attached to a single readiness finding.
type FindingStatus int

const (
	// FindingGo means the check passed.
	FindingGo FindingStatus = iota
	// FindingNoGo means the check failed; the remaining categories are
	// skipped and the subsystem is not ready.
	FindingNoGo
	// FindingSkipped means an earlier category already failed, so this one
	// was not evaluated.
	FindingSkipped
)

func (s FindingStatus) String() string {
	switch s {
	case FindingGo:
		return "Go"
	case FindingNoGo:
		return "No-Go"
	case FindingSkipped:
		return "Skip"
	default:
		return "Unknown"
	}
}

// Finding is one labeled readiness check result. Transient marks a No-Go
// that can clear without operator intervention, such as a dependency that is
// merely not Running yet; the launcher retries those on later passes and
// treats every other refusal as final.
type Finding struct {
	Category  CheckCategory
	Status    FindingStatus
	Message   string
	Transient bool
}

// String renders the finding in launch-checklist form, e.g.
// "Go: configuration valid" or "No-Go: dependency network not Running".
func (f Finding) String() string {
	return fmt.Sprintf("%s: %s", f.Status, f.Message)
}

// ReadinessReport is the full multi-factor readiness verdict for one
// subsystem. Every category always appears exactly once in Findings, in
// evaluation order, so reports are directly comparable across subsystems and
// passes.
type ReadinessReport struct {
	Subsystem string
	Ready     bool
	Findings  []Finding
}

// Decision returns the overall verdict line for the report.
func (rr ReadinessReport) Decision() string {
	if rr.Ready {
		return fmt.Sprintf("Decide: Go For Launch of %s", rr.Subsystem)
	}
	return fmt.Sprintf("Decide: No-Go For Launch of %s", rr.Subsystem)
}

// Evaluator performs the multi-factor readiness assessment that gates every
// subsystem start. It holds no per-subsystem state; a single evaluator serves
// the whole registry.
type Evaluator struct {
	registry *Registry
	logger   Logger
}

// NewEvaluator creates a readiness evaluator bound to a registry.
func NewEvaluator(registry *Registry, logger Logger) *Evaluator {
	return &Evaluator{registry: registry, logger: logger}
}

// Evaluate runs the five readiness categories against the subsystem with the
// given id. Categories run in fixed order and stop at the first No-Go; the
// remaining categories are reported as skipped rather than omitted. A report
// is always returned, even alongside a lookup error.
func (e *Evaluator) Evaluate(ctx context.Context, id int) ReadinessReport {
	name := e.registry.nameOf(id)
	report := ReadinessReport{Subsystem: name}

	sub, deps, err := e.registry.subsystemInfo(id)
	if err != nil {
		report.Findings = append(report.Findings, Finding{
			Category: CategoryProcessState,
			Status:   FindingNoGo,
			Message:  fmt.Sprintf("subsystem lookup failed: %v", err),
		})
		report.Findings = skipRemaining(report.Findings)
		return report
	}

	checks := []struct {
		category CheckCategory
		run      func() (string, bool, error)
	}{
		{CategoryProcessState, func() (string, bool, error) { return final(e.checkProcessState(id, name)) }},
		{CategoryConfiguration, func() (string, bool, error) { return final(checkConfiguration(sub)) }},
		{CategoryResources, func() (string, bool, error) { return final(checkResources(ctx, sub)) }},
		{CategorySubsystem, func() (string, bool, error) { return final(checkSubsystem(ctx, sub)) }},
		{CategoryDependencies, func() (string, bool, error) { return e.checkDependencies(deps) }},
	}

	failed := false
	for _, check := range checks {
		if failed {
			report.Findings = append(report.Findings, Finding{
				Category: check.category,
				Status:   FindingSkipped,
				Message:  string(check.category) + " not evaluated",
			})
			continue
		}
		msg, transient, checkErr := check.run()
		if checkErr != nil {
			failed = true
			report.Findings = append(report.Findings, Finding{
				Category:  check.category,
				Status:    FindingNoGo,
				Message:   checkErr.Error(),
				Transient: transient,
			})
			continue
		}
		report.Findings = append(report.Findings, Finding{
			Category: check.category,
			Status:   FindingGo,
			Message:  msg,
		})
	}

	report.Ready = !failed
	for _, f := range report.Findings {
		e.logger.Debug("Readiness finding", "subsystem", name, "category", string(f.Category), "verdict", f.Status.String(), "detail", f.Message)
	}
	e.logger.Info(report.Decision(), "subsystem", name, "ready", report.Ready)
	return report
}

// checkProcessState verifies that neither the process nor the subsystem is
// already shutting down and that the subsystem is in a startable state.
func (e *Evaluator) checkProcessState(id int, name string) (string, error) {
	if e.registry.landingActive() {
		return "", fmt.Errorf("landing in progress, no new launches")
	}
	if e.registry.shutdownRequested(id) {
		return "", fmt.Errorf("shutdown already requested for %s", name)
	}
	state, err := e.registry.GetState(id)
	if err != nil {
		return "", err
	}
	switch state {
	case StateInactive:
		return "process and subsystem state nominal", nil
	case StateError:
		return "", fmt.Errorf("%s is in Error state and needs a reset", name)
	default:
		return "", fmt.Errorf("%s is %s, not Inactive", name, state)
	}
}

func checkConfiguration(sub Subsystem) (string, error) {
	cc, ok := sub.(ConfigChecker)
	if !ok {
		return "no configuration check declared", nil
	}
	if err := cc.CheckConfig(); err != nil {
		return "", fmt.Errorf("configuration invalid: %w", err)
	}
	return "configuration valid", nil
}

func checkResources(ctx context.Context, sub Subsystem) (string, error) {
	rc, ok := sub.(ResourceChecker)
	if !ok {
		return "no resource check declared", nil
	}
	if err := rc.CheckResources(ctx); err != nil {
		return "", fmt.Errorf("resources unavailable: %w", err)
	}
	return "resources available", nil
}

func checkSubsystem(ctx context.Context, sub Subsystem) (string, error) {
	rc, ok := sub.(ReadinessChecker)
	if !ok {
		return "no subsystem check declared", nil
	}
	if err := rc.CheckReadiness(ctx); err != nil {
		return "", fmt.Errorf("subsystem check failed: %w", err)
	}
	return "subsystem check passed", nil
}

// checkDependencies verifies that every declared dependency is registered and
// Running. An Error-state dependency is called out explicitly since it will
// not recover without operator intervention. The transient result is true only
// when every unmet dependency is merely not Running yet; a failed or
// unregistered dependency makes the refusal final.
func (e *Evaluator) checkDependencies(deps []string) (string, bool, error) {
	if len(deps) == 0 {
		return "no dependencies declared", false, nil
	}
	var notRunning []string
	transient := true
	for _, dep := range deps {
		state, ok := e.registry.stateOf(dep)
		if !ok {
			notRunning = append(notRunning, dep+" (not registered)")
			transient = false
			continue
		}
		if state == StateError {
			notRunning = append(notRunning, dep+" (failed)")
			transient = false
			continue
		}
		if state != StateRunning {
			notRunning = append(notRunning, dep)
		}
	}
	if len(notRunning) > 0 {
		return "", transient, fmt.Errorf("dependencies not Running: %s", strings.Join(notRunning, ", "))
	}
	return fmt.Sprintf("all %d dependencies Running", len(deps)), false, nil
}

// final adapts a check with no retriable outcomes to the evaluation loop.
func final(msg string, err error) (string, bool, error) {
	return msg, false, err
}

// skipRemaining pads a findings slice so every category appears exactly once.
func skipRemaining(findings []Finding) []Finding {
	all := []CheckCategory{
		CategoryProcessState,
		CategoryConfiguration,
		CategoryResources,
		CategorySubsystem,
		CategoryDependencies,
	}
	for _, category := range all[len(findings):] {
		findings = append(findings, Finding{
			Category: category,
			Status:   FindingSkipped,
			Message:  string(category) + " not evaluated",
		})
	}
	return findings
}
