package pipeline

// Stage identifies one of the three pipeline stages.
type Stage string

const (
	StageRecognize  Stage = "atot"
	StageGenerate   Stage = "ttot"
	StageSynthesize Stage = "tts"
)

// Outcome is the structured result of running one stage. A stage either
// succeeded (Err nil, payload already applied to the session context) or
// failed with a classified error, usually a *remote.Error. Raw transport
// errors never cross this boundary unclassified.
type Outcome struct {
	Stage Stage
	Err   error
}

// OK reports whether the stage succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

func success(stage Stage) Outcome {
	return Outcome{Stage: stage}
}

func failure(stage Stage, err error) Outcome {
	return Outcome{Stage: stage, Err: err}
}

// StageStatus is the JSON view of an Outcome embedded in pipeline results.
type StageStatus struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Status converts the outcome into its wire representation.
func (o Outcome) Status() *StageStatus {
	st := &StageStatus{Success: o.OK()}
	if o.Err != nil {
		st.Error = string(o.Stage) + ": " + o.Err.Error()
	}
	return st
}
