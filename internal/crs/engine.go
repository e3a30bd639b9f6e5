package crs

import (
	"errors"
	"fmt"
	"strings"
)

// ErrOutOfDomain is returned in strict mode when a factor has no bucket.
var ErrOutOfDomain = errors.New("value outside of the point table")

const (
	FactorAge                = "age"
	FactorArrangedEmployment = "arranged_employment"
	FactorCanadianEducation  = "education_in_canada"
	FactorCanadianExperience = "canadian_work_experience"
)

// FactorPoints is a single line of a score breakdown.
type FactorPoints struct {
	Factor string `json:"factor"`
	Input  string `json:"input"`
	Points int    `json:"points"`
}

// Breakdown explains how a score was composed.
type Breakdown struct {
	Factors []FactorPoints `json:"factors"`
	Total   int            `json:"total"`
}

// String renders the breakdown as plain text ending with the total.
func (b Breakdown) String() string {
	var sb strings.Builder
	for _, f := range b.Factors {
		fmt.Fprintf(&sb, "%s (%s): %d\n", f.Factor, f.Input, f.Points)
	}
	fmt.Fprintf(&sb, "Total: %d", b.Total)
	return sb.String()
}

// Options tune the engine behaviour.
type Options struct {
	// Strict turns out-of-domain inputs into ErrOutOfDomain instead of
	// silently scoring them as zero.
	Strict bool
}

type Engine struct {
	opts Options
}

func NewEngine(opts Options) *Engine {
	return &Engine{opts: opts}
}

// Score sums the age bucket, the arranged employment and Canadian education
// bonuses, and the Canadian work experience bucket.
func Score(a Applicant) int {
	return compose(a).Total
}

// Explain returns the per-factor points behind Score.
func Explain(a Applicant) Breakdown {
	return compose(a)
}

// Score computes the applicant's score honouring the engine options.
func (e *Engine) Score(a Applicant) (Breakdown, error) {
	if e != nil && e.opts.Strict {
		if _, ok := AgePoints(a.Age); !ok {
			return Breakdown{}, fmt.Errorf("%s %d: %w", FactorAge, a.Age, ErrOutOfDomain)
		}
	}
	return compose(a), nil
}

func compose(a Applicant) Breakdown {
	age, _ := AgePoints(a.Age)

	arranged := 0
	if a.ArrangedEmployment {
		arranged = ArrangedEmploymentPoints
	}

	education := 0
	if a.EducationInCanada {
		education = CanadianEducationPoints
	}

	experience := CanadianExperiencePoints(a.CanadianWorkExperienceYears)

	factors := []FactorPoints{
		{Factor: FactorAge, Input: fmt.Sprint(a.Age), Points: age},
		{Factor: FactorArrangedEmployment, Input: yesNo(a.ArrangedEmployment), Points: arranged},
		{Factor: FactorCanadianEducation, Input: yesNo(a.EducationInCanada), Points: education},
		{Factor: FactorCanadianExperience, Input: fmt.Sprintf("%d years", a.CanadianWorkExperienceYears), Points: experience},
	}

	total := 0
	for _, f := range factors {
		total += f.Points
	}

	return Breakdown{Factors: factors, Total: total}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
