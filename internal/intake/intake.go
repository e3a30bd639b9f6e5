// Package intake collects an applicant profile interactively in the terminal.
package intake

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"

	"github.com/spigell/crs-roadmap/internal/crs"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

// ErrInvalidNumber is returned when a numeric answer is not an integer.
var ErrInvalidNumber = errors.New("answer is not a whole number")

// Prompter asks questions. Ask returns free text, Choose returns the index of
// the selected item.
type Prompter interface {
	Ask(label string) (string, error)
	Choose(label string, items []string) (int, error)
}

// Terminal is a Prompter backed by promptui.
type Terminal struct{}

func (Terminal) Ask(label string) (string, error) {
	p := promptui.Prompt{
		Label: label,
		Validate: func(input string) error {
			if _, err := parseInt(input); err != nil {
				return err
			}
			return nil
		},
	}
	return p.Run()
}

func (Terminal) Choose(label string, items []string) (int, error) {
	s := promptui.Select{
		Label: label,
		Items: items,
		Size:  len(items),
	}
	idx, _, err := s.Run()
	return idx, err
}

// Collect asks for every scored factor in a fixed order: age, education,
// the four CLB levels, work experience, Canadian work experience and the
// three yes/no bonuses.
func Collect(p Prompter) (*crs.Applicant, error) {
	var a crs.Applicant
	var err error

	if a.Age, err = askInt(p, "Enter your age"); err != nil {
		return nil, err
	}

	labels := make([]string, len(crs.EducationMenu))
	for i, opt := range crs.EducationMenu {
		labels[i] = opt.Label
	}
	idx, err := p.Choose("Select your highest level of education", labels)
	if err != nil {
		return nil, fmt.Errorf("education: %w", err)
	}
	a.Education = crs.EducationFromChoice(strconv.Itoa(idx + 1))

	a.FirstLanguage = make(map[crs.Skill]int, len(crs.Skills))
	for _, skill := range crs.Skills {
		label := fmt.Sprintf("CLB level for %s (4-10)", skill)
		if a.FirstLanguage[skill], err = askInt(p, label); err != nil {
			return nil, err
		}
	}

	if a.WorkExperienceYears, err = askInt(p, "Enter your years of work experience"); err != nil {
		return nil, err
	}
	if a.CanadianWorkExperienceYears, err = askInt(p, "Enter your years of Canadian work experience"); err != nil {
		return nil, err
	}

	if a.EducationInCanada, err = askYesNo(p, "Do you have education from Canada?"); err != nil {
		return nil, err
	}
	if a.ArrangedEmployment, err = askYesNo(p, "Do you have arranged employment in Canada?"); err != nil {
		return nil, err
	}
	if a.ProvincialNomination, err = askYesNo(p, "Do you have a provincial nomination?"); err != nil {
		return nil, err
	}

	return &a, nil
}

func askInt(p Prompter, label string) (int, error) {
	answer, err := p.Ask(label)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", label, err)
	}
	n, err := parseInt(answer)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", label, err)
	}
	return n, nil
}

func askYesNo(p Prompter, label string) (bool, error) {
	idx, err := p.Choose(label, []string{PromptYes, PromptNo})
	if err != nil {
		return false, fmt.Errorf("%s: %w", label, err)
	}
	return idx == 0, nil
}

func parseInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%q: %w", s, ErrInvalidNumber)
	}
	return n, nil
}
