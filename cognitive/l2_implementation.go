package cognitive

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/2lab-ai/hal9go/core"
)

// ImplementationUnit is the L2 unit: it turns a task description into a
// concrete artefact by template expansion with learned parameter
// substitution. Results from a specific template target L1; results from
// the default fallback template target L3.
type ImplementationUnit struct {
	*baseUnit

	templateMu sync.RWMutex
	templates  map[string]string
}

// NewImplementationUnit creates an L2 unit with an optional template set.
// Template bodies may reference {{param}} placeholders resolved from the
// unit's learned parameters and the input context.
func NewImplementationUnit(cfg Config, templates map[string]string) *ImplementationUnit {
	cfg.Layer = core.LayerImplementation
	u := &ImplementationUnit{
		baseUnit:  newBaseUnit(cfg),
		templates: make(map[string]string),
	}
	for name, body := range templates {
		u.templates[name] = body
	}
	if len(u.templates) == 0 {
		u.templates["default"] = "artefact for: {{task}}"
	}
	u.ready()
	return u
}

// AddTemplate installs a named template.
func (u *ImplementationUnit) AddTemplate(name, body string) {
	u.templateMu.Lock()
	defer u.templateMu.Unlock()
	u.templates[name] = body
}

// Process selects the best-matching template and substitutes parameters.
// Confidence reflects how specific the chosen template was; the default
// fallback template produces low confidence (0.3) and targets the
// operational layer above.
func (u *ImplementationUnit) Process(input Input) (Output, error) {
	if err := u.beginProcess(); err != nil {
		return Output{}, err
	}
	started := time.Now()

	name, body := u.selectTemplate(input.Content)
	artefact := u.substitute(body, input)

	confidence := 0.8
	targets := []core.CognitiveLayer{core.LayerReflexive}
	if name == "default" {
		confidence = 0.3
		targets = []core.CognitiveLayer{core.LayerOperational}
	}

	out := Output{
		Content:      artefact,
		Confidence:   confidence,
		Metadata:     map[string]interface{}{"template": name},
		TargetLayers: targets,
	}

	err := u.checkDeadline(started)
	for _, g := range u.endProcess(started, false, err != nil) {
		u.applyGradient(g)
	}
	if err != nil {
		return Output{}, err
	}
	return out, nil
}

// selectTemplate picks the template whose name appears in the task text,
// falling back to "default". Candidates are scanned in sorted order so
// selection is deterministic.
func (u *ImplementationUnit) selectTemplate(task string) (string, string) {
	u.templateMu.RLock()
	defer u.templateMu.RUnlock()

	lowered := strings.ToLower(task)
	names := make([]string, 0, len(u.templates))
	for name := range u.templates {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if name != "default" && strings.Contains(lowered, name) {
			return name, u.templates[name]
		}
	}
	return "default", u.templates["default"]
}

// substitute expands {{param}} placeholders from learned parameters, the
// input context, and the task text itself (as {{task}}).
func (u *ImplementationUnit) substitute(body string, input Input) string {
	result := strings.ReplaceAll(body, "{{task}}", input.Content)

	u.mu.Lock()
	for name, value := range u.params {
		placeholder := "{{" + name + "}}"
		if strings.Contains(result, placeholder) {
			result = strings.ReplaceAll(result, placeholder, fmt.Sprintf("%g", value))
		}
	}
	u.mu.Unlock()

	for key, value := range input.Context {
		placeholder := "{{" + key + "}}"
		if strings.Contains(result, placeholder) {
			result = strings.ReplaceAll(result, placeholder, fmt.Sprintf("%v", value))
		}
	}
	return result
}

// Introspect reports the base snapshot plus template inventory.
func (u *ImplementationUnit) Introspect() StateSnapshot {
	u.templateMu.RLock()
	count := len(u.templates)
	u.templateMu.RUnlock()
	return u.snapshot(map[string]interface{}{"template_count": count})
}

// Reset restores the default template set and base parameters.
func (u *ImplementationUnit) Reset() error {
	u.templateMu.Lock()
	u.templates = map[string]string{"default": "artefact for: {{task}}"}
	u.templateMu.Unlock()
	u.resetBase()
	return nil
}
