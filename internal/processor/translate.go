package processor

import (
	"strings"

	"github.com/maauso/clearmedia-api/internal/imgproc"
	"github.com/maauso/clearmedia-api/internal/mps"
)

// TranslateMPS maps a media-processing task description onto an Observation.
// Status and progress are read from Task, then WorkflowTask, then the top
// level. A SUCCESS or FINISH on either the main status or the first sub-result
// counts as success; FAILED is a failure; anything else is still processing.
func TranslateMPS(d mps.TaskDetail) Observation {
	info := d.Task
	if info == nil {
		info = d.WorkflowTask
	}

	status := d.Status
	progress := d.Progress
	var errMsg string
	if d.ErrCode != 0 {
		errMsg = d.Message
	}
	if info != nil {
		if info.Status != "" {
			status = info.Status
		}
		if info.Progress != nil {
			progress = info.Progress
		}
		if info.ErrCode != 0 && info.Message != "" {
			errMsg = info.Message
		}
	}

	results := mpsResults(d, info)
	var firstStatus string
	if len(results) > 0 {
		firstStatus = results[0].Status
		if firstStatus == "" {
			firstStatus = results[0].StatusString
		}
	}

	obs := Observation{VendorStatus: status}
	switch {
	case isMPSSuccess(status) || isMPSSuccess(firstStatus):
		obs.Phase = PhaseSucceeded
		obs.Progress = intPtr(100)
		obs.OutputRef = mpsOutput(d, info, results)
	case strings.EqualFold(status, mps.StatusFailed):
		obs.Phase = PhaseFailed
		obs.Detail = errMsg
		if obs.Detail == "" {
			obs.Detail = "media processing task failed"
		}
	default:
		obs.Phase = PhaseProcessing
		obs.Progress = progress
	}
	return obs
}

func isMPSSuccess(s string) bool {
	return strings.EqualFold(s, mps.StatusSuccess) || strings.EqualFold(s, mps.StatusFinish)
}

// mpsResults flattens every result set the description may carry.
func mpsResults(d mps.TaskDetail, info *mps.TaskInfo) []mps.MediaProcessResult {
	var out []mps.MediaProcessResult
	if info != nil {
		out = append(out, info.MediaProcessResultSet...)
	}
	out = append(out, d.MediaProcessResultSet...)
	if d.WorkflowTask != nil && d.WorkflowTask != info {
		out = append(out, d.WorkflowTask.MediaProcessResultSet...)
	}
	return out
}

// mpsOutput picks the produced file, preferring smart-erase outputs of the
// result sets and falling back to the standalone smart-erase result blocks.
func mpsOutput(d mps.TaskDetail, info *mps.TaskInfo, results []mps.MediaProcessResult) string {
	for _, item := range results {
		if se := item.SmartEraseTask; se != nil {
			if loc := se.Output.Location(); loc != "" {
				return loc
			}
			if se.OutputURL != "" {
				return se.OutputURL
			}
		}
		if loc := item.Output.Location(); loc != "" {
			return loc
		}
	}

	candidates := []*mps.SmartEraseResult{d.SmartEraseTask, d.SmartEraseTaskResult}
	if info != nil {
		candidates = append([]*mps.SmartEraseResult{info.SmartEraseTask, info.SmartEraseTaskResult}, candidates...)
	}
	if d.WorkflowTask != nil {
		candidates = append(candidates, d.WorkflowTask.SmartEraseTask, d.WorkflowTask.SmartEraseTaskResult)
	}
	for _, se := range candidates {
		if se == nil {
			continue
		}
		if loc := se.Output.Location(); loc != "" {
			return loc
		}
		if se.OutputURL != "" {
			return se.OutputURL
		}
	}
	return ""
}

// TranslateQueue maps a task queue status onto an Observation.
func TranslateQueue(st imgproc.TaskStatus) Observation {
	obs := Observation{VendorStatus: string(st.Status)}

	switch imgproc.Status(strings.ToUpper(string(st.Status))) {
	case imgproc.StatusCompleted, imgproc.StatusComplete:
		obs.Phase = PhaseSucceeded
		obs.Progress = intPtr(100)
		for _, o := range st.Outputs {
			if o.URL != "" {
				obs.OutputRef = o.URL
				break
			}
		}
	case imgproc.StatusFailed, imgproc.StatusError, imgproc.StatusCanceled:
		obs.Phase = PhaseFailed
		obs.Detail = st.Error
		if obs.Detail == "" {
			obs.Detail = "task " + strings.ToLower(string(st.Status))
		}
	default:
		obs.Phase = PhaseProcessing
		obs.Progress = st.Progress
	}
	return obs
}
