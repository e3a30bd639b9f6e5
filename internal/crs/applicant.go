package crs

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

type Education string

const (
	EducationSecondary      Education = "secondary"
	EducationOneYear        Education = "one_year"
	EducationTwoYear        Education = "two_year"
	EducationThreeYear      Education = "three_year"
	EducationTwoPlusDegrees Education = "two_plus_degrees"
	EducationMasters        Education = "masters"
	EducationPhD            Education = "phd"
)

// EducationOption is an entry of the education menu shown to applicants.
type EducationOption struct {
	Level Education
	Label string
}

// EducationMenu lists the education levels in menu order. Choice "1" is the
// first entry.
var EducationMenu = []EducationOption{
	{EducationSecondary, "Secondary diploma (high school)"},
	{EducationOneYear, "One-year degree/diploma/certificate"},
	{EducationTwoYear, "Two-year program"},
	{EducationThreeYear, "Bachelor's degree or three year program"},
	{EducationTwoPlusDegrees, "Two or more degrees (one being 3+ years)"},
	{EducationMasters, "Master's degree"},
	{EducationPhD, "Doctoral degree (Ph.D.)"},
}

var educationAliases = map[string]Education{
	"high_school":         EducationSecondary,
	"one_year_degree":     EducationOneYear,
	"two_year_degree":     EducationTwoYear,
	"three_year_degree":   EducationThreeYear,
	"bachelor":            EducationThreeYear,
	"bachelors":           EducationThreeYear,
	"two_or_more_degrees": EducationTwoPlusDegrees,
	"master":              EducationMasters,
	"doctorate":           EducationPhD,
}

// EducationFromChoice maps a 1-based menu choice to an education level.
// Anything unrecognised falls back to secondary.
func EducationFromChoice(choice string) Education {
	choice = strings.TrimSpace(choice)
	for i, opt := range EducationMenu {
		if choice == fmt.Sprint(i+1) {
			return opt.Level
		}
	}
	return EducationSecondary
}

// ParseEducation normalises free-form education names ("Master's",
// "two_or_more_degrees", "PhD") to a level. Unknown values fall back to
// secondary and ok is false.
func ParseEducation(s string) (Education, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("'", "", "-", "_", " ", "_", ".", "").Replace(key)

	level := Education(key)
	if _, ok := educationPoints[level]; ok {
		return level, true
	}
	if alias, ok := educationAliases[key]; ok {
		return alias, true
	}
	return EducationSecondary, false
}

type Skill string

const (
	Speaking  Skill = "speaking"
	Listening Skill = "listening"
	Reading   Skill = "reading"
	Writing   Skill = "writing"
)

// Skills lists the language abilities in the order they are collected.
var Skills = []Skill{Speaking, Listening, Reading, Writing}

// Spouse mirrors the principal applicant's factors for an accompanying spouse.
type Spouse struct {
	Education                   Education     `json:"education,omitempty" yaml:"education,omitempty" mapstructure:"education"`
	FirstLanguage               map[Skill]int `json:"first_language,omitempty" yaml:"first_language,omitempty" mapstructure:"first_language"`
	WorkExperienceYears         int           `json:"work_experience_years,omitempty" yaml:"work_experience_years,omitempty" mapstructure:"work_experience_years"`
	CanadianWorkExperienceYears int           `json:"canadian_work_experience_years,omitempty" yaml:"canadian_work_experience_years,omitempty" mapstructure:"canadian_work_experience_years"`
}

// Applicant is the structured input of the scoring engine.
type Applicant struct {
	Age                         int           `json:"age" yaml:"age" mapstructure:"age"`
	Education                   Education     `json:"education_level" yaml:"education_level" mapstructure:"education_level"`
	FirstLanguage               map[Skill]int `json:"first_language" yaml:"first_language" mapstructure:"first_language"`
	WorkExperienceYears         int           `json:"work_experience_years" yaml:"work_experience_years" mapstructure:"work_experience_years"`
	CanadianWorkExperienceYears int           `json:"canadian_work_experience_years" yaml:"canadian_work_experience_years" mapstructure:"canadian_work_experience_years"`
	EducationInCanada           bool          `json:"education_in_canada" yaml:"education_in_canada" mapstructure:"education_in_canada"`
	ArrangedEmployment          bool          `json:"arranged_employment" yaml:"arranged_employment" mapstructure:"arranged_employment"`
	ProvincialNomination        bool          `json:"provincial_nomination" yaml:"provincial_nomination" mapstructure:"provincial_nomination"`
	Spouse                      *Spouse       `json:"spouse,omitempty" yaml:"spouse,omitempty" mapstructure:"spouse"`
}

// DecodeApplicant builds an Applicant from loosely typed data such as a
// model's JSON answer: numbers may arrive as strings and booleans as "yes"/"no".
func DecodeApplicant(raw map[string]any) (*Applicant, error) {
	var applicant Applicant

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &applicant,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			yesNoHook,
			educationHook,
		),
	})
	if err != nil {
		return nil, fmt.Errorf("create applicant decoder: %w", err)
	}

	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode applicant: %w", err)
	}

	return &applicant, nil
}

func yesNoHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Bool {
		return data, nil
	}
	switch strings.ToLower(strings.TrimSpace(data.(string))) {
	case "yes", "y", "true", "1":
		return true, nil
	default:
		return false, nil
	}
}

func educationHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(Education("")) {
		return data, nil
	}
	level, _ := ParseEducation(data.(string))
	return level, nil
}
