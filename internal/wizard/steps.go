// Package wizard implements the persisted state machine that drives a list
// through the import pipeline steps.
package wizard

// Step names in pipeline order. The same sequence backs both navigation and
// the stage dispatch table, so adding a step cannot desynchronize the two.
const (
	StepSource   = "source"
	StepParse    = "parse"
	StepEnrich   = "enrich"
	StepValidate = "validate"
	StepReview   = "review"
	StepImport   = "import"
	StepComplete = "complete"
)

// Steps is the fixed ordered step sequence.
var Steps = []string{
	StepSource,
	StepParse,
	StepEnrich,
	StepValidate,
	StepReview,
	StepImport,
	StepComplete,
}

// stepIndex maps step names to their position in Steps.
var stepIndex = func() map[string]int {
	m := make(map[string]int, len(Steps))
	for i, name := range Steps {
		m[name] = i
	}
	return m
}()

// KnownStep reports whether name is a valid step name.
func KnownStep(name string) bool {
	_, ok := stepIndex[name]
	return ok
}
