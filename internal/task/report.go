package task

import (
	"encoding/json"
	"io"

	"github.com/yairfalse/converge/pkg/group"
)

// Report is the JSON document printed after a run.
type Report struct {
	Changed   bool                    `json:"changed"`
	Failed    bool                    `json:"failed,omitempty"`
	Msg       string                  `json:"msg,omitempty"`
	Action    group.Action            `json:"action,omitempty"`
	Name      string                  `json:"name,omitempty"`
	State     group.State             `json:"state,omitempty"`
	Changes   map[string]group.Change `json:"changes,omitempty"`
	CheckMode bool                    `json:"check_mode,omitempty"`
}

// NewReport renders a reconcile outcome. A non-nil err marks it failed and
// reports only the message with the group it concerns.
func NewReport(result group.Result, err error) Report {
	if err != nil {
		return Report{
			Failed:    true,
			Msg:       err.Error(),
			Name:      result.Name,
			State:     result.State,
			CheckMode: result.DryRun,
		}
	}
	return Report{
		Changed:   result.Changed,
		Action:    result.Action,
		Name:      result.Name,
		State:     result.State,
		Changes:   result.Changes,
		CheckMode: result.DryRun,
	}
}

// ReportFromError renders a failure that happened before reconciling.
func ReportFromError(err error) Report {
	return Report{Failed: true, Msg: err.Error()}
}

// Write encodes the report as indented JSON.
func (r Report) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
