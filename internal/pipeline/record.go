package pipeline

import (
	"slices"
)

// Field names a run record field owned by exactly one stage.
type Field string

const (
	FieldQuestionnaire Field = "questionnaire"
	FieldJobRoles      Field = "job_roles"
	FieldNOCCodes      Field = "noc_codes"
	FieldCRSScore      Field = "crs_score"
	FieldRoadmap       Field = "roadmap"
)

var fields = []Field{FieldQuestionnaire, FieldJobRoles, FieldNOCCodes, FieldCRSScore, FieldRoadmap}

// Record accumulates the artifacts of one pipeline run. It is passed by value
// from stage to stage; each stage returns a copy with its own field written.
type Record struct {
	ID            string   `json:"id" yaml:"id"`
	Questionnaire string   `json:"questionnaire" yaml:"questionnaire"`
	JobRoles      string   `json:"job_roles,omitempty" yaml:"job_roles,omitempty"`
	NOCCodes      []string `json:"noc_codes,omitempty" yaml:"noc_codes,omitempty"`
	CRSScore      string   `json:"crs_score,omitempty" yaml:"crs_score,omitempty"`
	Roadmap       string   `json:"roadmap,omitempty" yaml:"roadmap,omitempty"`
}

// Has reports whether f has been written. An empty but non-nil NOC code list
// counts as written: retrieval may legitimately find nothing.
func (r Record) Has(f Field) bool {
	switch f {
	case FieldQuestionnaire:
		return r.Questionnaire != ""
	case FieldJobRoles:
		return r.JobRoles != ""
	case FieldNOCCodes:
		return r.NOCCodes != nil
	case FieldCRSScore:
		return r.CRSScore != ""
	case FieldRoadmap:
		return r.Roadmap != ""
	default:
		return false
	}
}

// Complete reports whether every field has been written.
func (r Record) Complete() bool {
	for _, f := range fields {
		if !r.Has(f) {
			return false
		}
	}
	return true
}

// changedExcept returns the first field other than f whose value differs
// between r and o, or "" when only f changed.
func (r Record) changedExcept(o Record, f Field) Field {
	checks := []struct {
		field Field
		same  bool
	}{
		{FieldQuestionnaire, r.Questionnaire == o.Questionnaire},
		{FieldJobRoles, r.JobRoles == o.JobRoles},
		{FieldNOCCodes, slices.Equal(r.NOCCodes, o.NOCCodes) && (r.NOCCodes == nil) == (o.NOCCodes == nil)},
		{FieldCRSScore, r.CRSScore == o.CRSScore},
		{FieldRoadmap, r.Roadmap == o.Roadmap},
	}

	for _, c := range checks {
		if c.field != f && !c.same {
			return c.field
		}
	}
	if r.ID != o.ID {
		return "id"
	}
	return ""
}
