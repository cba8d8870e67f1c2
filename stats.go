package presto

// StatementStats reports the coordinator's view of query progress for
// the current page: scheduling state, split counts, and resource
// consumption. Field layout grounded on Trino's StatementStats wire
// format, since the teacher's own query_results.go references a
// StatementStats type it never defines.
type StatementStats struct {
	State                string      `json:"state"`
	Queued               bool        `json:"queued"`
	Scheduled            bool        `json:"scheduled"`
	ProgressPercentage   float32     `json:"progressPercentage"`
	RunningPercentage    float32     `json:"runningPercentage"`
	Nodes                int         `json:"nodes"`
	TotalSplits          int         `json:"totalSplits"`
	QueuedSplits         int         `json:"queuedSplits"`
	RunningSplits        int         `json:"runningSplits"`
	CompletedSplits      int         `json:"completedSplits"`
	CPUTimeMillis        int64       `json:"cpuTimeMillis"`
	WallTimeMillis       int64       `json:"wallTimeMillis"`
	QueuedTimeMillis     int64       `json:"queuedTimeMillis"`
	ElapsedTimeMillis    int64       `json:"elapsedTimeMillis"`
	ProcessedRows        int64       `json:"processedRows"`
	ProcessedBytes       int64       `json:"processedBytes"`
	PhysicalInputBytes   int64       `json:"physicalInputBytes"`
	PhysicalWrittenBytes int64       `json:"physicalWrittenBytes"`
	PeakMemoryBytes      int64       `json:"peakMemoryBytes"`
	SpilledBytes         int64       `json:"spilledBytes"`
	RootStage            *StageStats `json:"rootStage,omitempty"`
}

// StageStats reports progress for one stage of the distributed query
// plan, recursively including its sub-stages.
type StageStats struct {
	StageID            string       `json:"stageId"`
	State              string       `json:"state"`
	Done               bool         `json:"done"`
	Nodes              int          `json:"nodes"`
	TotalSplits        int          `json:"totalSplits"`
	QueuedSplits       int          `json:"queuedSplits"`
	RunningSplits      int          `json:"runningSplits"`
	CompletedSplits    int          `json:"completedSplits"`
	CPUTimeMillis      int64        `json:"cpuTimeMillis"`
	WallTimeMillis     int64        `json:"wallTimeMillis"`
	ProcessedRows      int64        `json:"processedRows"`
	ProcessedBytes     int64        `json:"processedBytes"`
	PhysicalInputBytes int64        `json:"physicalInputBytes"`
	FailedTasks        int          `json:"failedTasks"`
	CoordinatorOnly    bool         `json:"coordinatorOnly"`
	SubStages          []StageStats `json:"subStages,omitempty"`
}
