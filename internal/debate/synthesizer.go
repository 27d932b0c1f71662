package debate

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"stocksense/internal/adapters/ai"
	"stocksense/internal/adapters/embeddings"
	"stocksense/internal/analysis"
	"stocksense/internal/domain/debate"
	"stocksense/internal/metrics"
	"stocksense/pkg/logger"
)

// rebuttalMatchThreshold is the minimum cosine similarity for pairing a
// rebuttal with the claim it targets.
const rebuttalMatchThreshold = 0.55

const synthesizerSystemPrompt = `You are a senior portfolio manager judging a structured debate between a bull analyst and a bear analyst. You weigh evidence quality over rhetoric, you assign explicit scenario probabilities, and you always respond with a single JSON object.`

// Synthesizer grades the debate and renders the final verdict.
type Synthesizer struct {
	provider ai.ChatProvider
	embedder embeddings.Provider
	model    string
	log      *logger.Logger
}

// NewSynthesizer creates the debate judge. The embedder is optional;
// without it rebuttal pairing falls back to lexical matching.
func NewSynthesizer(provider ai.ChatProvider, embedder embeddings.Provider, model string) *Synthesizer {
	return &Synthesizer{
		provider: provider,
		embedder: embedder,
		model:    model,
		log:      logger.Get().With("component", "synthesizer"),
	}
}

// GradeEvidence scores every claim by how well it survived the rebuttal
// round. A claim's credibility is its own confidence discounted by the
// strength of the best-matching rebuttal:
//
//	credibility = confidence * (1 - rebuttal_strength * 0.5)
//
// so even a maximal rebuttal halves a claim rather than erasing it.
func (s *Synthesizer) GradeEvidence(ctx context.Context, bull *debate.BullCase, bear *debate.BearCase, rebuttals *debate.Rebuttals) []debate.EvidenceGrade {
	grades := make([]debate.EvidenceGrade, 0, len(bull.KeyClaims)+len(bear.KeyClaims))

	var bearToBull, bullToBear []debate.Rebuttal
	if rebuttals != nil {
		bearToBull = rebuttals.BearToBull
		bullToBear = rebuttals.BullToBear
	}

	grades = append(grades, s.gradeSide(ctx, "bull", bull.KeyClaims, bearToBull)...)
	grades = append(grades, s.gradeSide(ctx, "bear", bear.KeyClaims, bullToBear)...)
	return grades
}

func (s *Synthesizer) gradeSide(ctx context.Context, side string, claims []debate.Claim, incoming []debate.Rebuttal) []debate.EvidenceGrade {
	matcher := s.newMatcher(ctx, claims, incoming)

	grades := make([]debate.EvidenceGrade, 0, len(claims))
	for i, claim := range claims {
		strength, matched := matcher.strengthFor(i, claim)
		grades = append(grades, debate.EvidenceGrade{
			Claim:              claim.Statement,
			SourceAgent:        side,
			HasCounterEvidence: matched,
			DataSupportScore:   claim.Confidence,
			RebuttalStrength:   strength,
			FinalCredibility:   claim.Confidence * (1 - strength*0.5),
		})
	}
	return grades
}

// rebuttalMatcher pairs claims with incoming rebuttals, preferring
// semantic similarity and degrading to lexical overlap.
type rebuttalMatcher struct {
	rebuttals  []debate.Rebuttal
	claimVecs  [][]float32
	targetVecs [][]float32
}

func (s *Synthesizer) newMatcher(ctx context.Context, claims []debate.Claim, rebuttals []debate.Rebuttal) *rebuttalMatcher {
	m := &rebuttalMatcher{rebuttals: rebuttals}
	if s.embedder == nil || len(claims) == 0 || len(rebuttals) == 0 {
		return m
	}

	claimTexts := make([]string, len(claims))
	for i, c := range claims {
		claimTexts[i] = c.Statement
	}
	targetTexts := make([]string, len(rebuttals))
	for i, r := range rebuttals {
		targetTexts[i] = r.TargetClaim
	}

	claimVecs, err := s.embedder.GenerateBatchEmbeddings(ctx, claimTexts)
	if err != nil {
		s.log.Warnf("Claim embedding failed, falling back to lexical matching: %v", err)
		return m
	}
	targetVecs, err := s.embedder.GenerateBatchEmbeddings(ctx, targetTexts)
	if err != nil {
		s.log.Warnf("Rebuttal embedding failed, falling back to lexical matching: %v", err)
		return m
	}

	m.claimVecs = claimVecs
	m.targetVecs = targetVecs
	return m
}

// strengthFor returns the strength of the best rebuttal aimed at the
// claim, and whether any rebuttal matched at all.
func (m *rebuttalMatcher) strengthFor(claimIdx int, claim debate.Claim) (float64, bool) {
	best := 0.0
	matched := false

	for j, rebuttal := range m.rebuttals {
		if m.matches(claimIdx, j, claim, rebuttal) {
			matched = true
			if rebuttal.Strength > best {
				best = rebuttal.Strength
			}
		}
	}
	return best, matched
}

func (m *rebuttalMatcher) matches(claimIdx, rebuttalIdx int, claim debate.Claim, rebuttal debate.Rebuttal) bool {
	if m.claimVecs != nil && claimIdx < len(m.claimVecs) && rebuttalIdx < len(m.targetVecs) {
		return cosineSimilarity(m.claimVecs[claimIdx], m.targetVecs[rebuttalIdx]) >= rebuttalMatchThreshold
	}
	return lexicalMatch(claim.Statement, rebuttal.TargetClaim)
}

// lexicalMatch checks whether any of the first three words of the claim
// appear in the rebuttal's target text.
func lexicalMatch(claim, target string) bool {
	words := strings.Fields(strings.ToLower(claim))
	if len(words) > 3 {
		words = words[:3]
	}
	lowerTarget := strings.ToLower(target)
	for _, w := range words {
		if strings.Contains(lowerTarget, w) {
			return true
		}
	}
	return false
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// ArgumentStrengths averages final credibility per side. A side with no
// graded claims scores the neutral 0.5.
func ArgumentStrengths(grades []debate.EvidenceGrade) debate.ArgumentStrength {
	var bullSum, bearSum float64
	var bullN, bearN int
	for _, g := range grades {
		switch g.SourceAgent {
		case "bull":
			bullSum += g.FinalCredibility
			bullN++
		case "bear":
			bearSum += g.FinalCredibility
			bearN++
		}
	}

	strength := debate.ArgumentStrength{Bull: 0.5, Bear: 0.5}
	if bullN > 0 {
		strength.Bull = bullSum / float64(bullN)
	}
	if bearN > 0 {
		strength.Bear = bearSum / float64(bearN)
	}
	return strength
}

type synthesisOutput struct {
	BullProbability     float64  `json:"bull_probability"`
	BaseProbability     float64  `json:"base_probability"`
	BearProbability     float64  `json:"bear_probability"`
	Recommendation      string   `json:"recommendation"`
	Conviction          float64  `json:"conviction"`
	DecisiveFactors     []string `json:"decisive_factors"`
	UnresolvedQuestions []string `json:"unresolved_questions"`
	Reasoning           string   `json:"reasoning"`
}

// Synthesize grades the debate and produces the final verdict. Model
// failure degrades to a neutral Hold verdict so the debate always
// concludes.
func (s *Synthesizer) Synthesize(ctx context.Context, ticker, analysisID string, bull *debate.BullCase, bear *debate.BearCase, rebuttals *debate.Rebuttals) *debate.Verdict {
	start := time.Now()
	defer func() {
		metrics.DebatePhaseDuration.WithLabelValues("synthesis").Observe(time.Since(start).Seconds())
	}()

	grades := s.GradeEvidence(ctx, bull, bear, rebuttals)
	strength := ArgumentStrengths(grades)

	// Callers without a persisted analysis pass an empty id; the verdict
	// still needs one so theses can reference it as their origin snapshot.
	if analysisID == "" {
		analysisID = uuid.NewString()
	}

	verdict := &debate.Verdict{
		Ticker:           ticker,
		AnalysisID:       analysisID,
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		ArgumentStrength: strength,
		EvidenceGrades:   grades,
		DebateSummary: debate.DebateSummary{
			Bull: bull.Thesis,
			Bear: bear.Thesis,
		},
	}

	prompt := s.buildPrompt(ticker, bull, bear, rebuttals, strength)

	callStart := time.Now()
	resp, err := s.provider.Chat(ctx, ai.ChatRequest{
		Model:       s.model,
		Temperature: 0.3,
		Messages: []ai.Message{
			{Role: ai.RoleSystem, Content: synthesizerSystemPrompt},
			{Role: ai.RoleUser, Content: prompt},
		},
	})
	var in, out int
	if resp != nil {
		in, out = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}
	metrics.RecordLLMCall("synthesizer", s.model, time.Since(callStart), in, out, err)

	var output synthesisOutput
	parsed := false
	if err == nil && len(resp.Choices) > 0 {
		if perr := analysis.ExtractJSON(resp.Choices[0].Message.Content, &output); perr == nil {
			parsed = true
		} else {
			s.log.Warnf("Failed to parse synthesis for %s: %v", ticker, perr)
		}
	} else if err != nil {
		s.log.Warnf("Synthesis call failed for %s: %v", ticker, err)
	}

	if !parsed {
		output = synthesisOutput{
			BullProbability:     0.33,
			BaseProbability:     0.34,
			BearProbability:     0.33,
			Recommendation:      debate.RecommendationHold,
			Conviction:          0.5,
			DecisiveFactors:     []string{"LLM synthesis failed"},
			UnresolvedQuestions: []string{"Full analysis unavailable"},
			Reasoning:           "LLM synthesis failed",
		}
	}

	probs := normalizeProbabilities(output.BullProbability, output.BaseProbability, output.BearProbability)
	verdict.ScenarioProbabilities = probs
	verdict.Recommendation = normalizeRecommendation(output.Recommendation)
	verdict.Conviction = clamp01(output.Conviction)
	verdict.DecisiveFactors = output.DecisiveFactors
	verdict.UnresolvedQuestions = output.UnresolvedQuestions
	verdict.DebateSummary.Synthesis = output.Reasoning

	return verdict
}

func (s *Synthesizer) buildPrompt(ticker string, bull *debate.BullCase, bear *debate.BearCase, rebuttals *debate.Rebuttals, strength debate.ArgumentStrength) string {
	var b strings.Builder

	fmt.Fprintf(&b, "DEBATE OVER %s\n\n", ticker)

	fmt.Fprintf(&b, "BULL THESIS (confidence %.2f, evidence strength %.2f):\n%s\n", bull.Confidence, strength.Bull, bull.Thesis)
	writeClaims(&b, bull.KeyClaims)

	fmt.Fprintf(&b, "\nBEAR THESIS (confidence %.2f, evidence strength %.2f):\n%s\n", bear.Confidence, strength.Bear, bear.Thesis)
	writeClaims(&b, bear.KeyClaims)

	if rebuttals != nil {
		b.WriteString("\nSTRONGEST REBUTTALS:\n")
		writeRebuttals(&b, "Bear vs bull", rebuttals.BearToBull)
		writeRebuttals(&b, "Bull vs bear", rebuttals.BullToBear)
	}

	b.WriteString(`
Weigh the surviving evidence and decide.

Respond with ONLY a JSON object in this exact format:
{
  "bull_probability": 0.0-1.0,
  "base_probability": 0.0-1.0,
  "bear_probability": 0.0-1.0,
  "recommendation": "Strong Buy|Buy|Hold|Sell|Strong Sell",
  "conviction": 0.0-1.0,
  "decisive_factors": ["what decided it"],
  "unresolved_questions": ["what the debate could not settle"],
  "reasoning": "your synthesis in 3-5 sentences"
}
The three probabilities must sum to 1.0.`)

	return b.String()
}

func writeClaims(b *strings.Builder, claims []debate.Claim) {
	n := len(claims)
	if n > 3 {
		n = 3
	}
	for _, c := range claims[:n] {
		fmt.Fprintf(b, "  - %s (evidence: %s, confidence %.2f)\n", c.Statement, c.Evidence, c.Confidence)
	}
}

func writeRebuttals(b *strings.Builder, label string, rebuttals []debate.Rebuttal) {
	n := len(rebuttals)
	if n > 3 {
		n = 3
	}
	if n == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", label)
	for _, r := range rebuttals[:n] {
		fmt.Fprintf(b, "  - vs %q: %s (strength %.2f)\n", r.TargetClaim, r.CounterArgument, r.Strength)
	}
}

// normalizeProbabilities rescales the split when it drifts more than
// 0.05 from summing to 1.0. Degenerate outputs reset to the neutral
// split.
func normalizeProbabilities(bullP, baseP, bearP float64) debate.ScenarioProbabilities {
	bullP, baseP, bearP = clamp01(bullP), clamp01(baseP), clamp01(bearP)
	sum := bullP + baseP + bearP
	if sum <= 0 {
		return debate.ScenarioProbabilities{Bull: 0.33, Base: 0.34, Bear: 0.33}
	}
	if math.Abs(sum-1.0) > 0.05 {
		bullP, baseP, bearP = bullP/sum, baseP/sum, bearP/sum
	}
	return debate.ScenarioProbabilities{Bull: bullP, Base: baseP, Bear: bearP}
}

func normalizeRecommendation(rec string) string {
	switch rec {
	case debate.RecommendationStrongBuy, debate.RecommendationBuy,
		debate.RecommendationHold, debate.RecommendationSell,
		debate.RecommendationStrongSell:
		return rec
	default:
		return debate.RecommendationHold
	}
}

// FallbackVerdict is the verdict used when the debate pipeline itself
// cannot run both sides.
func FallbackVerdict(ticker string) *debate.Verdict {
	return &debate.Verdict{
		Ticker:                ticker,
		AnalysisID:            uuid.NewString(),
		Timestamp:             time.Now().UTC().Format(time.RFC3339),
		ScenarioProbabilities: debate.ScenarioProbabilities{Bull: 0.33, Base: 0.34, Bear: 0.33},
		Recommendation:        debate.RecommendationHold,
		Conviction:            0.3,
		ArgumentStrength:      debate.ArgumentStrength{Bull: 0.5, Bear: 0.5},
		EvidenceGrades:        []debate.EvidenceGrade{},
		DecisiveFactors:       []string{"debate could not be completed"},
		UnresolvedQuestions:   []string{"Full analysis unavailable"},
		DebateSummary:         debate.DebateSummary{Synthesis: "LLM synthesis failed"},
	}
}
