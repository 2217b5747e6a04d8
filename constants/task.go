package constants

// Task selects a prompt template and an output contract.
type Task string

const (
	TaskMetadata       Task = "METADATA"
	TaskKnowledgeGraph Task = "KNOWLEDGE_GRAPH"
	TaskTable          Task = "TABLE"
)

var allTasks = []Task{
	TaskMetadata,
	TaskKnowledgeGraph,
	TaskTable,
}

// AllTasks returns the tasks run for every document, in a stable order.
func AllTasks() []Task {
	out := make([]Task, len(allTasks))
	copy(out, allTasks)
	return out
}

func (t Task) String() string { return string(t) }

// Valid reports whether t is one of the known tasks.
func (t Task) Valid() bool {
	for _, k := range allTasks {
		if t == k {
			return true
		}
	}
	return false
}
