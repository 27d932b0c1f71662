package debate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocksense/internal/domain/debate"
)

// fakeEmbedder returns fixed vectors keyed by text so similarity is
// deterministic.
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	return f.vectors[text], nil
}

func (f *fakeEmbedder) GenerateBatchEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vectors[t]
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }
func (f *fakeEmbedder) Name() string    { return "fake" }

func TestGradeEvidence_CredibilityFormula(t *testing.T) {
	synth := NewSynthesizer(&mockChat{}, nil, "gpt-4o")

	bull := &debate.BullCase{
		Ticker: "XYZ",
		KeyClaims: []debate.Claim{
			{Statement: "Revenue grew 40 percent", Confidence: 0.9},
		},
	}
	bear := &debate.BearCase{
		Ticker: "XYZ",
		KeyClaims: []debate.Claim{
			{Statement: "Debt is unsustainable", Confidence: 0.8},
		},
	}
	rebuttals := &debate.Rebuttals{
		BearToBull: []debate.Rebuttal{
			{TargetClaim: "Revenue grew 40 percent", CounterArgument: "decelerating", Strength: 0.6},
		},
		// No counter to the bear claim
		BullToBear: []debate.Rebuttal{},
	}

	grades := synth.GradeEvidence(context.Background(), bull, bear, rebuttals)
	require.Len(t, grades, 2)

	bullGrade := grades[0]
	assert.Equal(t, "bull", bullGrade.SourceAgent)
	assert.True(t, bullGrade.HasCounterEvidence)
	assert.InDelta(t, 0.9*(1-0.6*0.5), bullGrade.FinalCredibility, 1e-9)

	bearGrade := grades[1]
	assert.Equal(t, "bear", bearGrade.SourceAgent)
	assert.False(t, bearGrade.HasCounterEvidence)
	assert.InDelta(t, 0.8, bearGrade.FinalCredibility, 1e-9, "unrebutted claim keeps its confidence")
}

func TestGradeEvidence_CredibilityMonotonicInStrength(t *testing.T) {
	synth := NewSynthesizer(&mockChat{}, nil, "gpt-4o")

	prev := 1.1
	for _, strength := range []float64{0.0, 0.25, 0.5, 0.75, 1.0} {
		bull := &debate.BullCase{
			KeyClaims: []debate.Claim{{Statement: "Margins expanded last quarter", Confidence: 0.8}},
		}
		rebuttals := &debate.Rebuttals{
			BearToBull: []debate.Rebuttal{{TargetClaim: "Margins expanded last quarter", Strength: strength}},
		}
		grades := synth.GradeEvidence(context.Background(), bull, &debate.BearCase{}, rebuttals)
		require.Len(t, grades, 1)

		assert.Less(t, grades[0].FinalCredibility, prev, "stronger rebuttal must lower credibility")
		prev = grades[0].FinalCredibility
	}
	// Max strength halves, never erases
	assert.InDelta(t, 0.4, prev, 1e-9)
}

func TestGradeEvidence_EmbeddingMatch(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"Revenue is accelerating":      {1, 0, 0},
		"Sales growth is speeding up":  {0.9, 0.1, 0}, // high cosine with claim
		"The weather is nice":          {0, 0, 1},     // orthogonal
		"Debt load is heavy":           {0, 1, 0},
	}}
	synth := NewSynthesizer(&mockChat{}, embedder, "gpt-4o")

	bull := &debate.BullCase{
		KeyClaims: []debate.Claim{{Statement: "Revenue is accelerating", Confidence: 1.0}},
	}
	rebuttals := &debate.Rebuttals{
		BearToBull: []debate.Rebuttal{
			// Lexically unrelated but semantically close
			{TargetClaim: "Sales growth is speeding up", Strength: 0.8},
			// Orthogonal; must not match
			{TargetClaim: "The weather is nice", Strength: 1.0},
		},
	}

	grades := synth.GradeEvidence(context.Background(), bull, &debate.BearCase{}, rebuttals)
	require.Len(t, grades, 1)
	assert.True(t, grades[0].HasCounterEvidence)
	assert.InDelta(t, 0.8, grades[0].RebuttalStrength, 1e-9, "only the semantic match counts")
}

func TestLexicalMatch(t *testing.T) {
	assert.True(t, lexicalMatch("Revenue grew strongly", "the claim that revenue grew"))
	assert.False(t, lexicalMatch("Margins expanded materially", "debt load is heavy"))
}

func TestArgumentStrengths_EmptySideIsNeutral(t *testing.T) {
	strength := ArgumentStrengths([]debate.EvidenceGrade{
		{SourceAgent: "bull", FinalCredibility: 0.8},
		{SourceAgent: "bull", FinalCredibility: 0.6},
	})
	assert.InDelta(t, 0.7, strength.Bull, 1e-9)
	assert.Equal(t, 0.5, strength.Bear)
}

func TestNormalizeProbabilities(t *testing.T) {
	// Within tolerance: untouched
	p := normalizeProbabilities(0.3, 0.4, 0.33)
	assert.InDelta(t, 0.3, p.Bull, 1e-9)

	// Outside tolerance: rescaled to sum 1
	p = normalizeProbabilities(0.6, 0.6, 0.6)
	assert.InDelta(t, 1.0, p.Bull+p.Base+p.Bear, 1e-9)
	assert.InDelta(t, p.Bull, p.Base, 1e-9)

	// Degenerate: neutral split
	p = normalizeProbabilities(0, 0, 0)
	assert.InDelta(t, 1.0, p.Bull+p.Base+p.Bear, 1e-9)
	assert.Equal(t, debate.RecommendationHold, normalizeRecommendation("Maybe Buy"))
}

func TestSynthesize_Success(t *testing.T) {
	chat := &mockChat{responses: []string{`{
		"bull_probability": 0.5,
		"base_probability": 0.3,
		"bear_probability": 0.2,
		"recommendation": "Buy",
		"conviction": 0.7,
		"decisive_factors": ["growth survived rebuttal"],
		"unresolved_questions": ["margin durability"],
		"reasoning": "Bull evidence held up better."
	}`}}
	synth := NewSynthesizer(chat, nil, "gpt-4o")

	bull := &debate.BullCase{Thesis: "growth story", Confidence: 0.8,
		KeyClaims: []debate.Claim{{Statement: "Revenue grew", Confidence: 0.9}}}
	bear := &debate.BearCase{Thesis: "valuation stretched", Confidence: 0.6,
		KeyClaims: []debate.Claim{{Statement: "PE is extreme", Confidence: 0.7}}}

	verdict := synth.Synthesize(context.Background(), "XYZ", "a1", bull, bear, &debate.Rebuttals{})
	require.NotNil(t, verdict)

	assert.Equal(t, "XYZ", verdict.Ticker)
	assert.Equal(t, "a1", verdict.AnalysisID, "a supplied analysis id is kept")
	assert.Equal(t, debate.RecommendationBuy, verdict.Recommendation)
	assert.InDelta(t, 1.0, verdict.ScenarioProbabilities.Bull+verdict.ScenarioProbabilities.Base+verdict.ScenarioProbabilities.Bear, 0.05)
	assert.Equal(t, "growth story", verdict.DebateSummary.Bull)
	assert.Equal(t, "Bull evidence held up better.", verdict.DebateSummary.Synthesis)
	assert.Len(t, verdict.EvidenceGrades, 2)
}

func TestSynthesize_GeneratesAnalysisID(t *testing.T) {
	chat := &mockChat{responses: []string{`{"recommendation": "Hold"}`}}
	synth := NewSynthesizer(chat, nil, "gpt-4o")

	verdict := synth.Synthesize(context.Background(), "XYZ", "", &debate.BullCase{}, &debate.BearCase{}, nil)
	require.NotNil(t, verdict)
	assert.NotEmpty(t, verdict.AnalysisID, "a verdict without a supplied id mints its own")

	other := synth.Synthesize(context.Background(), "XYZ", "", &debate.BullCase{}, &debate.BearCase{}, nil)
	assert.NotEqual(t, verdict.AnalysisID, other.AnalysisID)

	assert.NotEmpty(t, FallbackVerdict("XYZ").AnalysisID)
}

func TestSynthesize_ModelFailureFallsBack(t *testing.T) {
	chat := &mockChat{responses: []string{"no json at all"}}
	synth := NewSynthesizer(chat, nil, "gpt-4o")

	verdict := synth.Synthesize(context.Background(), "XYZ", "", &debate.BullCase{}, &debate.BearCase{}, nil)
	require.NotNil(t, verdict)

	assert.NotEmpty(t, verdict.AnalysisID)
	assert.Equal(t, debate.RecommendationHold, verdict.Recommendation)
	assert.Equal(t, 0.5, verdict.Conviction)
	assert.InDelta(t, 1.0, verdict.ScenarioProbabilities.Bull+verdict.ScenarioProbabilities.Base+verdict.ScenarioProbabilities.Bear, 0.05)
	assert.Contains(t, verdict.DecisiveFactors, "LLM synthesis failed")
}
