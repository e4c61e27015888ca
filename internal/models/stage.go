package models

import "time"

// Stage numbers recorded for every intake file.
const (
	StageProcessingStarts = 1
	StageClassified       = 2
	StageExtracted        = 3
	StageDuplicateCheck   = 4
	StageAgentProcessing  = 5
	StageCompleted        = 6
	StageFailed           = 7
)

// StageNames maps stage numbers to their display names.
var StageNames = map[int]string{
	StageProcessingStarts: "Processing Starts",
	StageClassified:       "Identified Receipt Type",
	StageExtracted:        "Content Extraction",
	StageDuplicateCheck:   "Duplicate Check",
	StageAgentProcessing:  "Agent Processing",
	StageCompleted:        "Completed",
	StageFailed:           "Failed",
}

// StageEvent is one recorded step for an intake file.
type StageEvent struct {
	Stage   int                    `json:"stage"`
	Name    string                 `json:"stageName"`
	Details map[string]interface{} `json:"details,omitempty"`
	At      time.Time              `json:"at"`
}

// FileStatus is the stage history of an intake file.
type FileStatus struct {
	FileID     string       `json:"fileId"`
	EmployeeID string       `json:"employeeId"`
	Stage      int          `json:"stage"`
	Events     []StageEvent `json:"events"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}
