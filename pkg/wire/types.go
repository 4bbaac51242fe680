package wire

// Payload structs shared between the client runtime and backend handlers.
// Only the shapes the runtime itself and its callers exchange live here;
// feature payloads belong to the packages that own them.

// TaskSubscription is the payload of task.subscribe / task.unsubscribe
// control requests.
type TaskSubscription struct {
	TaskID string `json:"taskId"`
}

// Orchestration actions exercised by the demo client and tests. The backend
// owns the full action catalogue; these are the ones used in this repo.
const (
	ActionTaskCreate  = "task.create"
	ActionTaskList    = "task.list"
	ActionAgentCancel = "agent.cancel"
)

// TaskCreateRequest asks the backend to create a task.
type TaskCreateRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// TaskCreateResponse acknowledges a created task.
type TaskCreateResponse struct {
	ID string `json:"id"`
}

// TaskSummary is one row of a task.list response.
type TaskSummary struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// TaskListResponse is the payload of a task.list response.
type TaskListResponse struct {
	Tasks []TaskSummary `json:"tasks"`
}
