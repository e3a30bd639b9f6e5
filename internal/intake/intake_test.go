package intake

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/crs-roadmap/internal/crs"
)

// scripted replays canned answers and records the questions asked.
type scripted struct {
	answers []string
	choices []int
	asked   []string
}

func (s *scripted) Ask(label string) (string, error) {
	s.asked = append(s.asked, label)
	if len(s.answers) == 0 {
		return "", errors.New("no more answers")
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a, nil
}

func (s *scripted) Choose(label string, _ []string) (int, error) {
	s.asked = append(s.asked, label)
	if len(s.choices) == 0 {
		return 0, errors.New("no more choices")
	}
	c := s.choices[0]
	s.choices = s.choices[1:]
	return c, nil
}

func TestCollect(t *testing.T) {
	p := &scripted{
		answers: []string{"25", "9", "9", " 8 ", "8", "3", "2"},
		choices: []int{5, 1, 0, 1},
	}

	a, err := Collect(p)
	require.NoError(t, err)

	assert.Equal(t, 25, a.Age)
	assert.Equal(t, crs.EducationMasters, a.Education)
	assert.Equal(t, map[crs.Skill]int{crs.Speaking: 9, crs.Listening: 9, crs.Reading: 8, crs.Writing: 8}, a.FirstLanguage)
	assert.Equal(t, 3, a.WorkExperienceYears)
	assert.Equal(t, 2, a.CanadianWorkExperienceYears)
	assert.False(t, a.EducationInCanada)
	assert.True(t, a.ArrangedEmployment)
	assert.False(t, a.ProvincialNomination)
	assert.Equal(t, 203, crs.Score(*a))

	require.Len(t, p.asked, 11)
	assert.Equal(t, "Enter your age", p.asked[0])
	assert.Equal(t, "Select your highest level of education", p.asked[1])
	assert.Equal(t, "Do you have a provincial nomination?", p.asked[10])
}

func TestCollectUnknownEducationFallsBack(t *testing.T) {
	p := &scripted{
		answers: []string{"30", "7", "7", "7", "7", "1", "0"},
		choices: []int{42, 1, 1, 1},
	}

	a, err := Collect(p)
	require.NoError(t, err)
	assert.Equal(t, crs.EducationSecondary, a.Education)
}

func TestCollectRejectsNonNumericAnswers(t *testing.T) {
	tests := map[string][]string{
		"age":                {"twenty"},
		"clb":                {"25", "9", "high"},
		"canadian_years":     {"25", "9", "9", "9", "9", "3", "2.5"},
		"work_years_trailer": {"25", "9", "9", "9", "9", "3y"},
	}

	for name, answers := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Collect(&scripted{answers: answers, choices: []int{0, 1, 1, 1}})
			assert.ErrorIs(t, err, ErrInvalidNumber)
		})
	}
}

func TestCollectPropagatesPromptErrors(t *testing.T) {
	_, err := Collect(&scripted{answers: []string{"25"}})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidNumber)
}
