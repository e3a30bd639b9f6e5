package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/crs-roadmap/internal/ai"
	"github.com/spigell/crs-roadmap/internal/crs"
)

const questionnaire = "Age 25. Master's in computer science. 2 years of Canadian work experience. Job offer from a Toronto company."

// recorder keeps the order in which collaborators were called.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// stubGenerator answers by recognising which prompt template it received.
type stubGenerator struct {
	rec       *recorder
	failOn    string
	extracted string
	prompts   map[string]string
	temps     map[string]*float32
}

func newStubGenerator(rec *recorder) *stubGenerator {
	return &stubGenerator{rec: rec, prompts: map[string]string{}, temps: map[string]*float32{}}
}

func promptKind(prompt string) string {
	switch {
	case strings.Contains(prompt, "determine the most relevant job roles"):
		return StageDetermineRoles
	case strings.Contains(prompt, "You are a CRS (Comprehensive Ranking System) calculator"):
		return StageComputeScore
	case strings.Contains(prompt, "Extract the applicant's profile"):
		return "extract"
	case strings.Contains(prompt, "career roadmap"):
		return StageGenerateRoadmap
	default:
		return "unknown"
	}
}

func (g *stubGenerator) GenerateContent(_ context.Context, prompt string, opts ...ai.Option) (string, error) {
	kind := promptKind(prompt)
	g.rec.add(kind)
	g.prompts[kind] = prompt
	g.temps[kind] = ai.Apply(opts...).Temperature

	if kind == g.failOn {
		return "", errors.New("model unavailable")
	}

	switch kind {
	case StageDetermineRoles:
		return "Software Developer (Express Entry), Data Analyst (Ontario PNP)", nil
	case StageComputeScore:
		return "Age: 100\nTotal: 480", nil
	case "extract":
		return g.extracted, nil
	case StageGenerateRoadmap:
		return "1. Take IELTS\n2. Apply via Express Entry", nil
	}
	return "", errors.New("unexpected prompt")
}

func (g *stubGenerator) Model() string { return "stub" }

type stubIndex struct {
	rec     *recorder
	fail    bool
	results []string
	query   string
	k       int
}

func (s *stubIndex) Search(_ context.Context, query string, k int) ([]string, error) {
	s.rec.add(StageRetrieveCodes)
	s.query = query
	s.k = k
	if s.fail {
		return nil, errors.New("index unavailable")
	}
	return s.results, nil
}

func newPipeline(t *testing.T, gen *stubGenerator, idx *stubIndex, mode string) *Pipeline {
	t.Helper()
	stages, err := Stages(Deps{Generator: gen, Index: idx}, Settings{ScoreMode: mode, Temperatures: DefaultTemperatures()})
	require.NoError(t, err)
	return New(stages, zap.NewNop())
}

func TestRunPopulatesRecordInOrder(t *testing.T) {
	rec := &recorder{}
	gen := newStubGenerator(rec)
	idx := &stubIndex{rec: rec, results: []string{"21232 Software developers", "21211 Data scientists"}}

	out, err := newPipeline(t, gen, idx, ScoreModeNarrative).Run(context.Background(), questionnaire)
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.Equal(t, []string{StageDetermineRoles, StageRetrieveCodes, StageComputeScore, StageGenerateRoadmap}, rec.list())

	assert.NotEmpty(t, out.ID)
	assert.Equal(t, questionnaire, out.Questionnaire)
	assert.Equal(t, "Software Developer (Express Entry), Data Analyst (Ontario PNP)", out.JobRoles)
	assert.Equal(t, idx.results, out.NOCCodes)
	assert.Equal(t, "Age: 100\nTotal: 480", out.CRSScore)
	assert.Contains(t, out.Roadmap, "Express Entry")
	assert.True(t, out.Complete())

	assert.Equal(t, out.JobRoles, idx.query)
	assert.Equal(t, DefaultTopK, idx.k)

	roadmapPrompt := gen.prompts[StageGenerateRoadmap]
	assert.Contains(t, roadmapPrompt, questionnaire)
	assert.Contains(t, roadmapPrompt, "[1] 21232 Software developers")
	assert.Contains(t, roadmapPrompt, "[2] 21211 Data scientists")
	assert.Contains(t, roadmapPrompt, "Total: 480")
	assert.Contains(t, gen.prompts[StageDetermineRoles], questionnaire)
	assert.NotContains(t, gen.prompts[StageComputeScore], "{{QUESTIONNAIRE}}")
}

func TestRunAppliesStageTemperatures(t *testing.T) {
	rec := &recorder{}
	gen := newStubGenerator(rec)
	idx := &stubIndex{rec: rec, results: []string{}}

	_, err := newPipeline(t, gen, idx, ScoreModeNarrative).Run(context.Background(), questionnaire)
	require.NoError(t, err)

	assert.Nil(t, gen.temps[StageDetermineRoles])
	require.NotNil(t, gen.temps[StageComputeScore])
	assert.InDelta(t, 0.4, *gen.temps[StageComputeScore], 1e-6)
	require.NotNil(t, gen.temps[StageGenerateRoadmap])
	assert.InDelta(t, 0.6, *gen.temps[StageGenerateRoadmap], 1e-6)
}

func TestRunEmptyRetrievalStillCompletes(t *testing.T) {
	rec := &recorder{}
	gen := newStubGenerator(rec)
	idx := &stubIndex{rec: rec}

	out, err := newPipeline(t, gen, idx, "").Run(context.Background(), questionnaire)
	require.NoError(t, err)
	assert.NotNil(t, out.NOCCodes)
	assert.Empty(t, out.NOCCodes)
	assert.Contains(t, gen.prompts[StageGenerateRoadmap], "none found")
}

func TestFailureStopsLaterStages(t *testing.T) {
	order := []string{StageDetermineRoles, StageRetrieveCodes, StageComputeScore, StageGenerateRoadmap}

	for i, failing := range order {
		t.Run(failing, func(t *testing.T) {
			rec := &recorder{}
			gen := newStubGenerator(rec)
			idx := &stubIndex{rec: rec, results: []string{"21232"}}
			if failing == StageRetrieveCodes {
				idx.fail = true
			} else {
				gen.failOn = failing
			}

			out, err := newPipeline(t, gen, idx, ScoreModeNarrative).Run(context.Background(), questionnaire)
			require.Error(t, err)
			assert.Nil(t, out)

			var stageErr *StageError
			require.True(t, errors.As(err, &stageErr))
			assert.Equal(t, failing, stageErr.Stage)

			assert.Equal(t, order[:i+1], rec.list())
		})
	}
}

func TestRunRejectsEmptyQuestionnaire(t *testing.T) {
	rec := &recorder{}
	p := newPipeline(t, newStubGenerator(rec), &stubIndex{rec: rec}, "")

	_, err := p.Run(context.Background(), "  \n ")
	assert.ErrorIs(t, err, ErrEmptyQuestionnaire)
	assert.Empty(t, rec.list())
}

func TestDeterministicScoreMode(t *testing.T) {
	rec := &recorder{}
	gen := newStubGenerator(rec)
	gen.extracted = "```json\n" + `{"age": 25, "education_level": "masters", "first_language": {"speaking": 9, "listening": 9, "reading": 8, "writing": 8},
"work_experience_years": 3, "canadian_work_experience_years": 2, "education_in_canada": false,
"arranged_employment": true, "provincial_nomination": false}` + "\n```"
	idx := &stubIndex{rec: rec, results: []string{"21232"}}

	out, err := newPipeline(t, gen, idx, ScoreModeDeterministic).Run(context.Background(), questionnaire)
	require.NoError(t, err)

	assert.Equal(t, []string{StageDetermineRoles, StageRetrieveCodes, "extract", StageGenerateRoadmap}, rec.list())
	assert.True(t, strings.HasSuffix(out.CRSScore, "Total: 203"), out.CRSScore)
	require.NotNil(t, gen.temps["extract"])
	assert.Equal(t, float32(0), *gen.temps["extract"])
	assert.Contains(t, gen.prompts[StageGenerateRoadmap], "Total: 203")
}

func TestDeterministicScoreRejectsInvalidExtraction(t *testing.T) {
	tests := map[string]string{
		"not json":        "I cannot help with that.",
		"missing fields":  `{"age": 25}`,
		"wrong type":      `{"age": [25], "education_level": "masters", "canadian_work_experience_years": 1, "education_in_canada": false, "arranged_employment": false}`,
		"undecodable age": `{"age": "twenty", "education_level": "masters", "canadian_work_experience_years": 1, "education_in_canada": false, "arranged_employment": false}`,
	}

	for name, extracted := range tests {
		t.Run(name, func(t *testing.T) {
			rec := &recorder{}
			gen := newStubGenerator(rec)
			gen.extracted = extracted
			idx := &stubIndex{rec: rec, results: []string{"21232"}}

			_, err := newPipeline(t, gen, idx, ScoreModeDeterministic).Run(context.Background(), questionnaire)
			require.Error(t, err)

			var stageErr *StageError
			require.True(t, errors.As(err, &stageErr))
			assert.Equal(t, StageComputeScore, stageErr.Stage)
			assert.NotContains(t, rec.list(), StageGenerateRoadmap)
		})
	}
}

func TestDeterministicScoreStrictEngine(t *testing.T) {
	rec := &recorder{}
	gen := newStubGenerator(rec)
	gen.extracted = `{"age": 55, "education_level": "phd", "canadian_work_experience_years": 0, "education_in_canada": false, "arranged_employment": false}`
	idx := &stubIndex{rec: rec, results: []string{}}

	stages, err := Stages(Deps{Generator: gen, Index: idx, Engine: crs.NewEngine(crs.Options{Strict: true})}, Settings{ScoreMode: ScoreModeDeterministic})
	require.NoError(t, err)

	_, err = New(stages, zap.NewNop()).Run(context.Background(), questionnaire)
	require.Error(t, err)
	assert.ErrorIs(t, err, crs.ErrOutOfDomain)
}

func TestStagesValidation(t *testing.T) {
	rec := &recorder{}

	_, err := Stages(Deps{Index: &stubIndex{rec: rec}}, Settings{})
	assert.Error(t, err)

	_, err = Stages(Deps{Generator: newStubGenerator(rec)}, Settings{})
	assert.Error(t, err)

	_, err = Stages(Deps{Generator: newStubGenerator(rec), Index: &stubIndex{rec: rec}}, Settings{ScoreMode: "vibes"})
	assert.Error(t, err)

	stages, err := Stages(Deps{Generator: newStubGenerator(rec), Index: &stubIndex{rec: rec}}, Settings{TopK: 3})
	require.NoError(t, err)
	names := New(stages, nil).StageNames()
	assert.Equal(t, []string{StageDetermineRoles, StageRetrieveCodes, StageComputeScore, StageGenerateRoadmap}, names)
}

// funcStage lets tests build stages that break the write rules.
type funcStage struct {
	name   string
	reads  []Field
	writes Field
	apply  func(Record) Record
}

func (s funcStage) Name() string   { return s.name }
func (s funcStage) Reads() []Field { return s.reads }
func (s funcStage) Writes() Field  { return s.writes }
func (s funcStage) Apply(_ context.Context, rec Record) (Record, error) {
	return s.apply(rec), nil
}

func TestWriteOnceGuards(t *testing.T) {
	writeRoles := funcStage{name: "roles", reads: []Field{FieldQuestionnaire}, writes: FieldJobRoles, apply: func(r Record) Record {
		r.JobRoles = "Nurse"
		return r
	}}

	tests := []struct {
		name   string
		stages []Stage
		want   error
	}{
		{
			name: "reads before write",
			stages: []Stage{funcStage{name: "codes", reads: []Field{FieldJobRoles}, writes: FieldNOCCodes, apply: func(r Record) Record {
				r.NOCCodes = []string{}
				return r
			}}},
			want: ErrMissingInput,
		},
		{
			name:   "writes twice",
			stages: []Stage{writeRoles, writeRoles},
			want:   ErrFieldWritten,
		},
		{
			name:   "forgets to write",
			stages: []Stage{funcStage{name: "noop", writes: FieldCRSScore, apply: func(r Record) Record { return r }}},
			want:   ErrFieldNotWritten,
		},
		{
			name: "writes a later field",
			stages: []Stage{funcStage{name: "greedy", writes: FieldJobRoles, apply: func(r Record) Record {
				r.JobRoles = "Nurse"
				r.Roadmap = "shortcut"
				return r
			}}},
			want: ErrUnexpectedWrite,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.stages, zap.NewNop()).Run(context.Background(), questionnaire)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRunLogsStages(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	rec := &recorder{}
	stages, err := Stages(Deps{Generator: newStubGenerator(rec), Index: &stubIndex{rec: rec, results: []string{}}}, Settings{})
	require.NoError(t, err)

	p := New(stages, zap.New(core))
	p.newID = func() string { return "run-42" }

	_, err = p.Run(context.Background(), questionnaire)
	require.NoError(t, err)

	completed := observed.FilterMessage("stage completed").All()
	require.Len(t, completed, 4)
	for _, entry := range completed {
		assert.Equal(t, "run-42", entry.ContextMap()["run_id"])
	}
	assert.Equal(t, StageGenerateRoadmap, completed[3].ContextMap()["stage"])
	assert.Equal(t, 1, observed.FilterMessage("pipeline run completed").Len())
}

func TestConcurrentRunsAreIndependent(t *testing.T) {
	stages, err := Stages(Deps{Generator: safeGenerator{}, Index: fixedIndex{"21232"}}, Settings{})
	require.NoError(t, err)
	p := New(stages, zap.NewNop())

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := p.Run(context.Background(), questionnaire)
			if assert.NoError(t, err) {
				ids[i] = out.ID
			}
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate run id %s", id)
		seen[id] = true
	}
}

// safeGenerator is a stateless generator usable from many goroutines.
type safeGenerator struct{}

func (safeGenerator) GenerateContent(_ context.Context, prompt string, _ ...ai.Option) (string, error) {
	return "answer for " + promptKind(prompt), nil
}

func (safeGenerator) Model() string { return "safe" }

type fixedIndex []string

func (f fixedIndex) Search(context.Context, string, int) ([]string, error) { return f, nil }
