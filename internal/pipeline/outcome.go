package pipeline

// Outcome is the three-way result of a pipeline step. Skipped and Succeeded
// both allow the run to continue; Failed halts it. There is no
// partial-success variant.
type Outcome int

const (
	Succeeded Outcome = iota
	Failed
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}
