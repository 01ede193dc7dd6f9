package partition

import (
	"log/slog"

	"github.com/tidewater/conveyor/pkg/models"
)

// Queue names for the three latency classes.
const (
	QueueIO      = "workflow_io"
	QueueCPU     = "workflow_cpu"
	QueueDefault = "workflow_default"
)

// Step is a workflow action tagged with its queue assignment and cost
// classification for downstream execution and observability.
type Step struct {
	Action         *models.WorkflowAction
	Index          int // Position in the tagged step list
	Queue          string
	Classification Classification
	DependsOn      []int // Unresolved dependency indices into the step list
}

// ExecutionPlan splits steps into an independently-dispatchable parallel
// group and an ordered sequential list of dependent steps. A sequential step
// may not start until all of its listed dependencies have completed.
type ExecutionPlan struct {
	Parallel   []*Step
	Sequential []*Step
}

// Partitioner groups steps into execution queues.
type Partitioner struct {
	classifier *Classifier
	logger     *slog.Logger
}

func NewPartitioner(classifier *Classifier, logger *slog.Logger) *Partitioner {
	return &Partitioner{
		classifier: classifier,
		logger:     logger.With("module", "partitioner"),
	}
}

// Partition assigns every step to exactly one queue keyed by queue name.
func (p *Partitioner) Partition(actions []*models.WorkflowAction) map[string][]*Step {
	partitions := map[string][]*Step{
		QueueIO:      {},
		QueueCPU:     {},
		QueueDefault: {},
	}

	for _, step := range p.Tag(actions) {
		partitions[step.Queue] = append(partitions[step.Queue], step)
	}

	p.logger.Debug("Partitioned workflow steps",
		"total", len(actions),
		"io", len(partitions[QueueIO]),
		"cpu", len(partitions[QueueCPU]),
		"default", len(partitions[QueueDefault]))

	return partitions
}

// Plan builds the parallel/sequential execution plan from declared
// dependencies. No cycle detection is performed here; a dependency cycle is a
// configuration error caught at workflow validation time.
func (p *Partitioner) Plan(actions []*models.WorkflowAction) *ExecutionPlan {
	plan := &ExecutionPlan{}

	for _, step := range p.Tag(actions) {
		if len(step.DependsOn) == 0 {
			plan.Parallel = append(plan.Parallel, step)
		} else {
			plan.Sequential = append(plan.Sequential, step)
		}
	}

	return plan
}

// Tag classifies each action and stamps it with its queue assignment,
// preserving input order.
func (p *Partitioner) Tag(actions []*models.WorkflowAction) []*Step {
	steps := make([]*Step, 0, len(actions))

	for i, action := range actions {
		classification := p.classifier.Classify(action)

		steps = append(steps, &Step{
			Action:         action,
			Index:          i,
			Queue:          queueFor(classification),
			Classification: classification,
			DependsOn:      action.DependsOn,
		})
	}

	return steps
}

// DominantQueue picks the queue serving the most steps, used to route a
// whole-workflow task as one unit. Ties fall back to the default queue.
func DominantQueue(steps []*Step) string {
	var io, cpu, def int

	for _, step := range steps {
		switch step.Queue {
		case QueueIO:
			io++
		case QueueCPU:
			cpu++
		default:
			def++
		}
	}

	switch {
	case io > cpu && io > def:
		return QueueIO
	case cpu > io && cpu > def:
		return QueueCPU
	default:
		return QueueDefault
	}
}

func queueFor(classification Classification) string {
	switch classification {
	case IOBound:
		return QueueIO
	case CPUBound:
		return QueueCPU
	default:
		return QueueDefault
	}
}
