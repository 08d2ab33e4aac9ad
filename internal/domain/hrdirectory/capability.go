// Package hrdirectory is the second, illustrative domain.Capability (spec
// §9): a minimal lookup-only capability over a fixed employee directory,
// proving the registry dispatches on domain.Capability's interface rather
// than a type switch over the chatflow domain. It is never registered
// alongside the chatflow capability in cmd/chatagent and no graph node
// references it directly — it is exercised only by this package's own
// tests.
package hrdirectory

import (
	"context"
	"strings"

	"github.com/flowcraft/chatagent/internal/domain"
)

// Employee is one canned directory record.
type Employee struct {
	Name       string
	Title      string
	Department string
}

// directory is the fixed, in-memory employee list Discover searches. A
// real HR-system capability would back this with an API client; this
// illustrative one has nothing to call.
var directory = []Employee{
	{Name: "Asha Rao", Title: "Engineering Manager", Department: "Platform"},
	{Name: "Diego Fernandez", Title: "Recruiter", Department: "People"},
	{Name: "Mei Lin", Title: "Staff Engineer", Department: "Platform"},
	{Name: "Sam Okafor", Title: "HR Business Partner", Department: "People"},
}

// Capability implements domain.Capability as a lookup-only directory
// search: Discover is the only method that does real work, the rest
// return no-ops per spec §9's explicit framing of this capability as a
// shape-proving illustration, not a second production domain.
type Capability struct{}

// New constructs the HR directory Capability. It takes no dependencies:
// the directory is fixed and there is nothing else to wire.
func New() *Capability { return &Capability{} }

func (c *Capability) Name() string { return "hrdirectory" }

// Discover searches the canned directory for records whose name,
// department, or title contains requirement (case-insensitive substring match),
// returning up to three matches as facts. An empty or non-matching
// requirement returns the first three records, so a caller always sees
// some directory signal.
func (c *Capability) Discover(_ context.Context, requirement string) (domain.DiscoverResult, error) {
	needle := strings.ToLower(strings.TrimSpace(requirement))

	matches := make([]Employee, 0, 3)
	for _, e := range directory {
		if needle == "" {
			matches = append(matches, e)
		} else if strings.Contains(strings.ToLower(e.Name), needle) ||
			strings.Contains(strings.ToLower(e.Department), needle) ||
			strings.Contains(strings.ToLower(e.Title), needle) {
			matches = append(matches, e)
		}
		if len(matches) == 3 {
			break
		}
	}
	if len(matches) == 0 {
		matches = append(matches, directory[:min(3, len(directory))]...)
	}

	records := make([]map[string]any, 0, len(matches))
	for _, e := range matches {
		records = append(records, map[string]any{
			"name": e.Name, "title": e.Title, "department": e.Department,
		})
	}
	return domain.DiscoverResult{Facts: map[string]any{
		"employee_records": records,
		"directory_size":   len(directory),
	}}, nil
}

// CompileOps is a no-op: the HR directory capability never writes
// anything, so there is nothing for a plan to compile into.
func (c *Capability) CompileOps(_ context.Context, _ string, _ map[string]any) (domain.CompiledOps, error) {
	return domain.CompiledOps{}, nil
}

// Validate always reports success: an empty op list is trivially valid.
func (c *Capability) Validate(_ context.Context, _ any) (domain.ValidateResult, error) {
	return domain.ValidateResult{OK: true}, nil
}

// GenerateTests returns no cases: there is no applied change to test.
func (c *Capability) GenerateTests(_ context.Context, _ string) ([]domain.GeneratedTest, error) {
	return nil, nil
}

// Evaluate always reports "done": with no tests generated there is
// nothing to iterate on.
func (c *Capability) Evaluate(_ context.Context, _ []domain.TestOutcome) (domain.EvalResult, error) {
	return domain.EvalResult{Verdict: "done", DiffSummary: "hr directory capability performs no writes"}, nil
}

var _ domain.Capability = (*Capability)(nil)
