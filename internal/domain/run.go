package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Run is one image-generation request and its lifecycle status.
type Run struct {
	ID         string
	WorkflowID string
	Prompt     string
	Status     RunStatus
	// ParameterBlob is stored and returned verbatim; it is never interpreted.
	ParameterBlob json.RawMessage
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Images        []Image
}

func (r Run) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return Invalid("run_id_required", "run id is required")
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return Invalid("prompt_required", "prompt is required")
	}
	if !r.Status.Valid() {
		return Invalid("invalid_status", "unknown run status")
	}
	if len(r.ParameterBlob) > 0 && !json.Valid(r.ParameterBlob) {
		return Invalid("invalid_parameter_blob", "parameter_blob must be valid JSON")
	}
	for _, img := range r.Images {
		if err := img.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a copy that shares no slices with r.
func (r Run) Clone() Run {
	out := r
	if r.ParameterBlob != nil {
		out.ParameterBlob = append(json.RawMessage(nil), r.ParameterBlob...)
	}
	if r.Images != nil {
		out.Images = append([]Image(nil), r.Images...)
	}
	return out
}
