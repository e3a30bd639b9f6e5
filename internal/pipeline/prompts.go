package pipeline

import (
	_ "embed"
	"fmt"
	"strings"
)

var (
	//go:embed prompts/roles.md
	rolesTemplate string
	//go:embed prompts/crs.md
	crsTemplate string
	//go:embed prompts/extract.md
	extractTemplate string
	//go:embed prompts/roadmap.md
	roadmapTemplate string
	//go:embed prompts/applicant.schema.json
	applicantSchema string
)

const (
	placeholderQuestionnaire = "{{QUESTIONNAIRE}}"
	placeholderNOCCodes      = "{{NOC_CODES}}"
	placeholderCRSScore      = "{{CRS_SCORE}}"
)

// buildPrompt fills placeholder/value pairs in a single pass, so text inserted
// for one placeholder is never rewritten by another.
func buildPrompt(template string, pairs ...string) string {
	args := make([]string, len(pairs))
	for i, v := range pairs {
		if i%2 == 1 {
			v = strings.TrimSpace(v)
		}
		args[i] = v
	}
	return strings.NewReplacer(args...).Replace(template)
}

func rolesPrompt(questionnaire string) string {
	return buildPrompt(rolesTemplate, placeholderQuestionnaire, questionnaire)
}

func crsPrompt(questionnaire string) string {
	return buildPrompt(crsTemplate, placeholderQuestionnaire, questionnaire)
}

func extractPrompt(questionnaire string) string {
	return buildPrompt(extractTemplate, placeholderQuestionnaire, questionnaire)
}

func roadmapPrompt(questionnaire string, nocCodes []string, crsScore string) string {
	return buildPrompt(roadmapTemplate,
		placeholderQuestionnaire, questionnaire,
		placeholderNOCCodes, formatNOCCodes(nocCodes),
		placeholderCRSScore, crsScore,
	)
}

func formatNOCCodes(codes []string) string {
	if len(codes) == 0 {
		return "none found"
	}
	var sb strings.Builder
	for i, code := range codes {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%d] %s", i+1, strings.TrimSpace(code))
	}
	return sb.String()
}
