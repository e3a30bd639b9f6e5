package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/crs-roadmap/internal/ai"
	"github.com/spigell/crs-roadmap/internal/crs"
	"github.com/spigell/crs-roadmap/internal/metrics"
)

const (
	StageDetermineRoles  = "determine_roles"
	StageRetrieveCodes   = "retrieve_codes"
	StageComputeScore    = "compute_score"
	StageGenerateRoadmap = "generate_roadmap"

	ScoreModeNarrative     = "narrative"
	ScoreModeDeterministic = "deterministic"

	DefaultTopK = 5
)

// Stage is a single step of the pipeline. Apply receives the record by value
// and returns it with the field named by Writes filled in.
type Stage interface {
	Name() string
	Reads() []Field
	Writes() Field
	Apply(ctx context.Context, rec Record) (Record, error)
}

// Searcher finds reference chunks relevant to a query.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]string, error)
}

// Temperatures sets sampling temperatures per generation stage. Negative
// values keep the provider default.
type Temperatures struct {
	Roles   float32 `mapstructure:"roles"`
	Score   float32 `mapstructure:"score"`
	Roadmap float32 `mapstructure:"roadmap"`
}

// DefaultTemperatures leaves role discovery at the provider default and makes
// later stages progressively more creative.
func DefaultTemperatures() Temperatures {
	return Temperatures{Roles: -1, Score: 0.4, Roadmap: 0.6}
}

type determineRoles struct {
	generator   ai.Generator
	temperature float32
}

// NewDetermineRoles asks the generator for job roles that suit the questionnaire.
func NewDetermineRoles(generator ai.Generator, temperature float32) Stage {
	return &determineRoles{generator: generator, temperature: temperature}
}

func (s *determineRoles) Name() string   { return StageDetermineRoles }
func (s *determineRoles) Reads() []Field { return []Field{FieldQuestionnaire} }
func (s *determineRoles) Writes() Field  { return FieldJobRoles }

func (s *determineRoles) Apply(ctx context.Context, rec Record) (Record, error) {
	roles, err := s.generator.GenerateContent(ctx, rolesPrompt(rec.Questionnaire), ai.WithTemperature(s.temperature))
	if err != nil {
		return rec, fmt.Errorf("determine job roles: %w", err)
	}
	rec.JobRoles = strings.TrimSpace(roles)
	return rec, nil
}

type retrieveCodes struct {
	index Searcher
	k     int
}

// NewRetrieveCodes looks up the k NOC descriptions closest to the job roles.
func NewRetrieveCodes(index Searcher, k int) Stage {
	if k <= 0 {
		k = DefaultTopK
	}
	return &retrieveCodes{index: index, k: k}
}

func (s *retrieveCodes) Name() string   { return StageRetrieveCodes }
func (s *retrieveCodes) Reads() []Field { return []Field{FieldJobRoles} }
func (s *retrieveCodes) Writes() Field  { return FieldNOCCodes }

func (s *retrieveCodes) Apply(ctx context.Context, rec Record) (Record, error) {
	codes, err := s.index.Search(ctx, rec.JobRoles, s.k)
	if err != nil {
		return rec, fmt.Errorf("retrieve noc codes: %w", err)
	}
	if codes == nil {
		codes = []string{}
	}
	rec.NOCCodes = codes
	return rec, nil
}

type narrativeScore struct {
	generator   ai.Generator
	temperature float32
}

// NewNarrativeScore asks the generator for a free-text CRS breakdown.
func NewNarrativeScore(generator ai.Generator, temperature float32) Stage {
	return &narrativeScore{generator: generator, temperature: temperature}
}

func (s *narrativeScore) Name() string   { return StageComputeScore }
func (s *narrativeScore) Reads() []Field { return []Field{FieldQuestionnaire} }
func (s *narrativeScore) Writes() Field  { return FieldCRSScore }

func (s *narrativeScore) Apply(ctx context.Context, rec Record) (Record, error) {
	score, err := s.generator.GenerateContent(ctx, crsPrompt(rec.Questionnaire), ai.WithTemperature(s.temperature))
	if err != nil {
		return rec, fmt.Errorf("calculate crs score: %w", err)
	}
	rec.CRSScore = strings.TrimSpace(score)
	return rec, nil
}

type deterministicScore struct {
	generator ai.Generator
	engine    *crs.Engine
	logger    *zap.Logger
}

// NewDeterministicScore extracts a structured applicant from the questionnaire
// with the generator and scores it with the point table.
func NewDeterministicScore(generator ai.Generator, engine *crs.Engine, logger *zap.Logger) Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &deterministicScore{generator: generator, engine: engine, logger: logger}
}

func (s *deterministicScore) Name() string   { return StageComputeScore }
func (s *deterministicScore) Reads() []Field { return []Field{FieldQuestionnaire} }
func (s *deterministicScore) Writes() Field  { return FieldCRSScore }

func (s *deterministicScore) Apply(ctx context.Context, rec Record) (Record, error) {
	// Extraction should be as repeatable as the model allows.
	raw, err := s.generator.GenerateContent(ctx, extractPrompt(rec.Questionnaire), ai.WithTemperature(0))
	if err != nil {
		return rec, fmt.Errorf("extract applicant: %w", err)
	}

	applicant, err := parseApplicant(raw)
	if err != nil {
		return rec, err
	}

	breakdown, err := s.engine.Score(*applicant)
	if err != nil {
		return rec, fmt.Errorf("score applicant: %w", err)
	}

	metrics.ScoresComputed.WithLabelValues("pipeline").Inc()
	s.logger.Debug("deterministic crs score computed",
		zap.String("run_id", rec.ID),
		zap.Int("total", breakdown.Total),
	)

	rec.CRSScore = breakdown.String()
	return rec, nil
}

type generateRoadmap struct {
	generator   ai.Generator
	temperature float32
}

// NewGenerateRoadmap synthesises the roadmap from all prior artifacts.
func NewGenerateRoadmap(generator ai.Generator, temperature float32) Stage {
	return &generateRoadmap{generator: generator, temperature: temperature}
}

func (s *generateRoadmap) Name() string { return StageGenerateRoadmap }
func (s *generateRoadmap) Reads() []Field {
	return []Field{FieldQuestionnaire, FieldNOCCodes, FieldCRSScore}
}
func (s *generateRoadmap) Writes() Field { return FieldRoadmap }

func (s *generateRoadmap) Apply(ctx context.Context, rec Record) (Record, error) {
	prompt := roadmapPrompt(rec.Questionnaire, rec.NOCCodes, rec.CRSScore)
	roadmap, err := s.generator.GenerateContent(ctx, prompt, ai.WithTemperature(s.temperature))
	if err != nil {
		return rec, fmt.Errorf("generate roadmap: %w", err)
	}
	rec.Roadmap = strings.TrimSpace(roadmap)
	return rec, nil
}

// Deps are the collaborators of the standard stage list.
type Deps struct {
	Generator ai.Generator
	Index     Searcher
	Engine    *crs.Engine
	Logger    *zap.Logger
}

// Settings tune the standard stage list.
type Settings struct {
	ScoreMode    string
	TopK         int
	Temperatures Temperatures
}

// Stages returns the four stages in execution order.
func Stages(deps Deps, settings Settings) ([]Stage, error) {
	if deps.Generator == nil {
		return nil, fmt.Errorf("text generator is required")
	}
	if deps.Index == nil {
		return nil, fmt.Errorf("retrieval index is required")
	}

	var score Stage
	switch mode := strings.ToLower(strings.TrimSpace(settings.ScoreMode)); mode {
	case "", ScoreModeNarrative:
		score = NewNarrativeScore(deps.Generator, settings.Temperatures.Score)
	case ScoreModeDeterministic:
		engine := deps.Engine
		if engine == nil {
			engine = crs.NewEngine(crs.Options{})
		}
		score = NewDeterministicScore(deps.Generator, engine, deps.Logger)
	default:
		return nil, fmt.Errorf("unsupported score mode: %s", settings.ScoreMode)
	}

	return []Stage{
		NewDetermineRoles(deps.Generator, settings.Temperatures.Roles),
		NewRetrieveCodes(deps.Index, settings.TopK),
		score,
		NewGenerateRoadmap(deps.Generator, settings.Temperatures.Roadmap),
	}, nil
}
