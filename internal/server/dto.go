package server

import (
	"github.com/spigell/crs-roadmap/internal/crs"
	"github.com/spigell/crs-roadmap/internal/pipeline"
)

type RunRequest struct {
	Questionnaire string `json:"questionnaire" minLength:"1" doc:"Free-text client questionnaire"`
}

type ApplicantRequest struct {
	Age                         int            `json:"age" doc:"Age in years"`
	EducationLevel              string         `json:"education_level,omitempty" enum:"secondary,one_year,two_year,three_year,two_plus_degrees,masters,phd" doc:"Highest completed education, secondary when omitted"`
	FirstLanguage               map[string]int `json:"first_language,omitempty" doc:"CLB level per ability: speaking, listening, reading, writing"`
	WorkExperienceYears         int            `json:"work_experience_years,omitempty" minimum:"0"`
	CanadianWorkExperienceYears int            `json:"canadian_work_experience_years" minimum:"0"`
	EducationInCanada           bool           `json:"education_in_canada,omitempty"`
	ArrangedEmployment          bool           `json:"arranged_employment,omitempty"`
	ProvincialNomination        bool           `json:"provincial_nomination,omitempty"`
}

type ScoreRequest struct {
	Applicant ApplicantRequest `json:"applicant"`
	Strict    bool             `json:"strict,omitempty" doc:"Reject values outside the point table instead of scoring them as zero"`
}

type ScoreResponse struct {
	Total     int                `json:"total" example:"203"`
	Factors   []crs.FactorPoints `json:"factors"`
	Breakdown string             `json:"breakdown"`
}

type RunResponse struct {
	Record pipeline.Record `json:"record"`
}

func (r ApplicantRequest) toApplicant() crs.Applicant {
	education := crs.EducationSecondary
	if r.EducationLevel != "" {
		education, _ = crs.ParseEducation(r.EducationLevel)
	}

	language := make(map[crs.Skill]int, len(r.FirstLanguage))
	for skill, level := range r.FirstLanguage {
		language[crs.Skill(skill)] = level
	}

	return crs.Applicant{
		Age:                         r.Age,
		Education:                   education,
		FirstLanguage:               language,
		WorkExperienceYears:         r.WorkExperienceYears,
		CanadianWorkExperienceYears: r.CanadianWorkExperienceYears,
		EducationInCanada:           r.EducationInCanada,
		ArrangedEmployment:          r.ArrangedEmployment,
		ProvincialNomination:        r.ProvincialNomination,
	}
}
