package types

import "time"

// TaskStatus is the lifecycle state of a root task.
type TaskStatus string

const (
	TaskSubmitted   TaskStatus = "submitted"
	TaskDecomposing TaskStatus = "decomposing"
	TaskDecomposed  TaskStatus = "decomposed"
	TaskQueued      TaskStatus = "queued"
	TaskProcessing  TaskStatus = "processing"
	TaskCompleted   TaskStatus = "completed"
	TaskFailed      TaskStatus = "failed"
	TaskCancelled   TaskStatus = "cancelled"
)

// DecompositionStrategy selects the prompt shape used to ask the LLM
// primitive for a subtask DAG.
type DecompositionStrategy string

const (
	StrategyHierarchical  DecompositionStrategy = "hierarchical"
	StrategySequential    DecompositionStrategy = "sequential"
	StrategyParallel      DecompositionStrategy = "parallel"
	StrategyDivideConquer DecompositionStrategy = "divide_conquer"
)

// DelegationStrategy selects the Registry scoring policy used when
// assigning agents to subtasks.
type DelegationStrategy string

const (
	DelegateCapabilityMatch       DelegationStrategy = "capability_match"
	DelegateDomainExpert          DelegationStrategy = "domain_expert"
	DelegateLoadBalanced          DelegationStrategy = "load_balanced"
	DelegateCostOptimized         DelegationStrategy = "cost_optimized"
	DelegatePerformanceOptimized  DelegationStrategy = "performance_optimized"
)

// DistributionMode selects how the Orchestrator hands subtasks off for
// execution.
type DistributionMode string

const (
	ModeLocal       DistributionMode = "local"
	ModeDistributed DistributionMode = "distributed"
	ModeHybrid      DistributionMode = "hybrid"
)

// Task is the root unit of work submitted to the system.
type Task struct {
	ID          string                 `json:"id"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
	SubmittedAt time.Time              `json:"submitted_at"`
	Priority    int                    `json:"priority"` // 1-5, higher = sooner

	DecompositionStrategy DecompositionStrategy `json:"decomposition_strategy"`
	DelegationStrategy    DelegationStrategy     `json:"delegation_strategy"`
	DistributionMode      DistributionMode       `json:"distribution_mode"`

	Status      TaskStatus `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Result map[string]interface{} `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// ComplexityLevel is a coarse estimate of subtask effort.
type ComplexityLevel string

const (
	ComplexityLow    ComplexityLevel = "low"
	ComplexityMedium ComplexityLevel = "medium"
	ComplexityHigh   ComplexityLevel = "high"
)

// ComplexityScore maps a complexity level to the total-complexity
// points used to sum a decomposition's total complexity.
var ComplexityScore = map[ComplexityLevel]int{
	ComplexityLow:    1,
	ComplexityMedium: 3,
	ComplexityHigh:   10,
}

// ComplexityCost maps a complexity level to its estimated cost, used
// by the delegation planner's cost estimate.
var ComplexityCost = map[ComplexityLevel]float64{
	ComplexityLow:    0.001,
	ComplexityMedium: 0.005,
	ComplexityHigh:   0.02,
}

// ComplexityDurationMS maps a complexity level to its estimated
// duration in milliseconds, used by the delegation planner's duration
// estimate.
var ComplexityDurationMS = map[ComplexityLevel]int{
	ComplexityLow:    1000,
	ComplexityMedium: 5000,
	ComplexityHigh:   15000,
}

// SubtaskStatus is the lifecycle state of a subtask within a
// decomposition.
type SubtaskStatus string

const (
	SubtaskPending    SubtaskStatus = "pending"
	SubtaskAssigned   SubtaskStatus = "assigned"
	SubtaskInProgress SubtaskStatus = "in_progress"
	SubtaskCompleted  SubtaskStatus = "completed"
	SubtaskFailed     SubtaskStatus = "failed"
)

// Subtask is one node of a task decomposition's DAG.
type Subtask struct {
	ID                   string          `json:"id"`
	Description          string          `json:"description"`
	RequiredCapabilities []string        `json:"required_capabilities"`
	EstimatedComplexity  ComplexityLevel `json:"estimated_complexity"`
	Dependencies         []string        `json:"dependencies"`

	AssignedAgentID string        `json:"assigned_agent_id,omitempty"`
	Status          SubtaskStatus `json:"status"`
	Result          map[string]interface{} `json:"result,omitempty"`
	Error           string        `json:"error,omitempty"`
	ExecutionTimeMS int64         `json:"execution_time_ms,omitempty"`
}

// TaskDecomposition bundles a task's DAG plus the metrics computed
// over it.
type TaskDecomposition struct {
	TaskID             string                 `json:"task_id"`
	OriginalDescription string                `json:"original_description"`
	Strategy           DecompositionStrategy  `json:"strategy"`
	Subtasks           []*Subtask             `json:"subtasks"`
	TotalComplexity    int                    `json:"total_complexity"`
	MaxParallelism     int                    `json:"max_parallelism"`
	CriticalPath       []string               `json:"critical_path"`
}

// DelegationPlan assigns agents to subtasks and estimates cost and
// duration for the whole decomposition.
type DelegationPlan struct {
	TaskID             string             `json:"task_id"`
	Strategy           DelegationStrategy `json:"strategy"`
	Assignments        map[string]string  `json:"assignments"` // subtask ID -> agent ID
	EstimatedCost      float64            `json:"estimated_cost"`
	EstimatedDurationMS int64             `json:"estimated_duration_ms"`
	LoadDistribution   map[string]int     `json:"load_distribution"` // agent ID -> subtask count
}

// SubtaskOutcome captures what happened when a subtask finished
// executing, as reported by the DAG executor.
type SubtaskOutcome struct {
	SubtaskID       string
	Success         bool
	AgentID         string
	Result          map[string]interface{}
	Error           string
	ExecutionTimeMS int64
}

// AggregatedResult is the compiled outcome of a task's execution.
type AggregatedResult struct {
	SubtasksTotal      int                               `json:"subtasks_total"`
	SubtasksSuccessful int                               `json:"subtasks_successful"`
	SubtasksFailed     int                               `json:"subtasks_failed"`
	SuccessRate        float64                           `json:"success_rate"`
	FailedSubtasks     []string                          `json:"failed_subtasks"`
	ResultsBySubtask   map[string]map[string]interface{} `json:"results_by_subtask"`
	CombinedResults    []interface{}                      `json:"combined_results,omitempty"`
}
