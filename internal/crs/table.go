package crs

// Points awarded by the Comprehensive Ranking System for a single principal
// applicant without a spouse. Every mapping is a closed set of buckets; a
// value outside a mapping's domain has no entry.

const (
	ArrangedEmploymentPoints   = 50
	CanadianEducationPoints    = 30
	ProvincialNominationPoints = 600

	// maxExperienceYears is the highest bucket of both experience tables.
	maxExperienceYears = 5
)

var agePoints = map[int]int{
	18: 90, 19: 95,
	20: 100, 21: 100, 22: 100, 23: 100, 24: 100, 25: 100, 26: 100, 27: 100, 28: 100, 29: 100,
	30: 95, 31: 90, 32: 85, 33: 80, 34: 75, 35: 70, 36: 65, 37: 60, 38: 55, 39: 50,
	40: 45, 41: 40, 42: 35, 43: 30, 44: 25, 45: 20, 46: 15, 47: 10, 48: 5, 49: 0,
}

var educationPoints = map[Education]int{
	EducationPhD:            140,
	EducationMasters:        135,
	EducationTwoPlusDegrees: 128,
	EducationThreeYear:      120,
	EducationTwoYear:        98,
	EducationOneYear:        90,
	EducationSecondary:      30,
}

// clbPoints holds points per first official language skill.
var clbPoints = map[int]int{
	4: 6, 5: 6, 6: 9, 7: 17, 8: 23, 9: 31, 10: 34,
}

var experiencePoints = map[int]int{
	1: 40, 2: 53, 3: 64, 4: 72, 5: 80,
}

// AgePoints returns the age bucket. ok is false outside 18-49.
func AgePoints(age int) (int, bool) {
	p, ok := agePoints[age]
	return p, ok
}

// EducationPoints returns points for the highest completed education level.
func EducationPoints(level Education) (int, bool) {
	p, ok := educationPoints[level]
	return p, ok
}

// LanguagePoints returns points for one language skill at the given CLB level.
func LanguagePoints(clb int) (int, bool) {
	p, ok := clbPoints[clb]
	return p, ok
}

// WorkExperiencePoints returns points for completed years of foreign work
// experience. Years above five are capped; zero years is a valid bucket worth
// nothing.
func WorkExperiencePoints(years int) (int, bool) {
	if years == 0 {
		return 0, true
	}
	p, ok := experiencePoints[min(years, maxExperienceYears)]
	return p, ok
}

// CanadianExperiencePoints uses the same buckets as WorkExperiencePoints with
// the input clamped to [0, 5] before lookup, so it is total over all ints.
func CanadianExperiencePoints(years int) int {
	p, _ := WorkExperiencePoints(max(0, min(years, maxExperienceYears)))
	return p
}
