// Package mps provides an HTTP client for the cloud media-processing service
// that runs smart-erase (watermark, logo and subtitle removal) on stored videos.
package mps

// Smart-erase definitions preset by the service.
const (
	// DefinitionSubtitleRemoval erases burned-in subtitles.
	DefinitionSubtitleRemoval = 101
	// DefinitionWatermarkRemoval erases watermarks and logos.
	DefinitionWatermarkRemoval = 201
)

// Task statuses reported by the service. Sub-results use FINISH and FAIL as well.
const (
	StatusWaiting    = "WAITING"
	StatusProcessing = "PROCESSING"
	StatusSuccess    = "SUCCESS"
	StatusFinish     = "FINISH"
	StatusFailed     = "FAILED"
)

// ProcessMediaInput describes one smart-erase job.
type ProcessMediaInput struct {
	InputBucket  string // Bucket holding the source object
	InputRegion  string // Region of the source bucket
	InputObject  string // Object key of the source video
	OutputBucket string // Bucket receiving the result
	OutputRegion string // Region of the output bucket
	OutputDir    string // Key prefix for the result, e.g. "/erased/"
	Definition   int    // Smart-erase preset
}

// processMediaRequest is the request body of the ProcessMedia action.
type processMediaRequest struct {
	InputInfo      inputInfo      `json:"InputInfo"`
	OutputStorage  outputStorage  `json:"OutputStorage"`
	OutputDir      string         `json:"OutputDir,omitempty"`
	SmartEraseTask smartEraseTask `json:"SmartEraseTask"`
}

type inputInfo struct {
	Type         string       `json:"Type"`
	CosInputInfo cosReference `json:"CosInputInfo"`
}

type outputStorage struct {
	Type             string       `json:"Type"`
	CosOutputStorage cosReference `json:"CosOutputStorage"`
}

type cosReference struct {
	Bucket string `json:"Bucket"`
	Region string `json:"Region"`
	Object string `json:"Object,omitempty"`
}

type smartEraseTask struct {
	Definition int `json:"Definition"`
}

// describeRequest is the request body of the DescribeTaskDetail action.
type describeRequest struct {
	TaskID string `json:"TaskId"`
}

// apiError is the error object embedded in every response envelope.
type apiError struct {
	Code    string `json:"Code"`
	Message string `json:"Message"`
}

type processMediaResponse struct {
	Response struct {
		TaskID    string    `json:"TaskId"`
		RequestID string    `json:"RequestId"`
		Error     *apiError `json:"Error,omitempty"`
	} `json:"Response"`
}

type describeResponse struct {
	Response struct {
		TaskDetail
		RequestID string    `json:"RequestId"`
		Error     *apiError `json:"Error,omitempty"`
	} `json:"Response"`
}

// TaskDetail is the task description as returned by DescribeTaskDetail.
// Depending on the task type, status and results sit at the top level,
// under Task or under WorkflowTask.
type TaskDetail struct {
	TaskType              string               `json:"TaskType,omitempty"`
	Status                string               `json:"Status,omitempty"`
	Progress              *int                 `json:"Progress,omitempty"`
	ErrCode               int                  `json:"ErrCode,omitempty"`
	Message               string               `json:"Message,omitempty"`
	Task                  *TaskInfo            `json:"Task,omitempty"`
	WorkflowTask          *TaskInfo            `json:"WorkflowTask,omitempty"`
	MediaProcessResultSet []MediaProcessResult `json:"MediaProcessResultSet,omitempty"`
	SmartEraseTask        *SmartEraseResult    `json:"SmartEraseTask,omitempty"`
	SmartEraseTaskResult  *SmartEraseResult    `json:"SmartEraseTaskResult,omitempty"`
}

// TaskInfo is a nested task description.
type TaskInfo struct {
	TaskID                string               `json:"TaskId,omitempty"`
	Status                string               `json:"Status,omitempty"`
	Progress              *int                 `json:"Progress,omitempty"`
	ErrCode               int                  `json:"ErrCode,omitempty"`
	Message               string               `json:"Message,omitempty"`
	MediaProcessResultSet []MediaProcessResult `json:"MediaProcessResultSet,omitempty"`
	SmartEraseTask        *SmartEraseResult    `json:"SmartEraseTask,omitempty"`
	SmartEraseTaskResult  *SmartEraseResult    `json:"SmartEraseTaskResult,omitempty"`
}

// MediaProcessResult is one sub-task result.
type MediaProcessResult struct {
	Type           string            `json:"Type,omitempty"`
	Status         string            `json:"Status,omitempty"`
	StatusString   string            `json:"StatusString,omitempty"`
	SmartEraseTask *SmartEraseResult `json:"SmartEraseTask,omitempty"`
	Output         *OutputFile       `json:"Output,omitempty"`
}

// SmartEraseResult is the result block of a smart-erase sub-task.
type SmartEraseResult struct {
	Status    string      `json:"Status,omitempty"`
	ErrCode   int         `json:"ErrCode,omitempty"`
	Message   string      `json:"Message,omitempty"`
	Progress  *int        `json:"Progress,omitempty"`
	Output    *OutputFile `json:"Output,omitempty"`
	OutputURL string      `json:"OutputUrl,omitempty"`
}

// OutputFile locates a produced file. Only one of the fields is usually set.
type OutputFile struct {
	URL        string `json:"Url,omitempty"`
	Path       string `json:"Path,omitempty"`
	OutputPath string `json:"OutputPath,omitempty"`
}

// Location returns the first non-empty location of the file.
func (o *OutputFile) Location() string {
	if o == nil {
		return ""
	}
	switch {
	case o.URL != "":
		return o.URL
	case o.Path != "":
		return o.Path
	default:
		return o.OutputPath
	}
}
