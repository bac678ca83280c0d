package classifier

import (
	"strings"

	"github.com/lemony-ai/cascadeflow-sub010/pkg/cascade"
)

// domainRule is one keyword/pattern cluster for the rule-based strategy.
type domainRule struct {
	domain   cascade.Domain
	keywords []string
}

// Order matters only for tie-breaking among rules with equal hit counts:
// earlier entries win, giving a stable, deterministic default ordering.
var domainRules = []domainRule{
	{cascade.DomainCode, []string{"function", "code", "bug", "compile", "stack trace", "refactor", "```"}},
	{cascade.DomainMedical, []string{"diagnosis", "symptom", "patient", "treatment", "medication", "dosage"}},
	{cascade.DomainLegal, []string{"contract", "statute", "liability", "plaintiff", "defendant", "clause"}},
	{cascade.DomainFinancial, []string{"portfolio", "invoice", "revenue", "balance sheet", "tax", "equity"}},
	{cascade.DomainMath, []string{"prove", "theorem", "integral", "derivative", "equation", "sqrt"}},
	{cascade.DomainData, []string{"sql", "dataframe", "csv", "schema", "query the", "pivot table"}},
	{cascade.DomainStructured, []string{"json schema", "yaml", "xml", "structured output"}},
	{cascade.DomainTranslation, []string{"translate", "translation", "in spanish", "in french", "into japanese"}},
	{cascade.DomainSummary, []string{"summarize", "tl;dr", "summary of", "key points"}},
	{cascade.DomainRAG, []string{"according to the document", "based on the provided context", "cite the source"}},
	{cascade.DomainTool, []string{"call the", "use the tool", "invoke", "api call"}},
	{cascade.DomainCreative, []string{"write a poem", "write a story", "creative writing", "brainstorm"}},
	{cascade.DomainMultimodal, []string{"this image", "the attached photo", "in the picture"}},
	{cascade.DomainConversation, []string{"how are you", "hello", "hi there", "thanks"}},
}

// EmbeddingStrategy is the optional semantic override for domain
// classification. It is a capability: when absent the classifier degrades
// silently to rule-based-only (spec §4.4). An implementation is expected to
// use a preloaded, read-only embedding model (spec §5).
type EmbeddingStrategy interface {
	// Classify returns a candidate domain and a similarity margin over the
	// next-best candidate. A low margin means the override should not fire.
	Classify(text string) (domain cascade.Domain, margin float64, ok bool)
}

// DomainResult is the domain classifier's output.
type DomainResult struct {
	Domain     cascade.Domain
	Confidence float64
}

// DomainClassifier composes the rule-based base strategy with an optional
// embedding override (spec §4.4).
type DomainClassifier struct {
	Embedding    EmbeddingStrategy
	MarginFloor  float64 // minimum similarity margin required to override
}

// NewDomainClassifier builds a classifier with an optional embedding
// strategy; pass nil to run rule-based-only.
func NewDomainClassifier(embedding EmbeddingStrategy, marginFloor float64) *DomainClassifier {
	if marginFloor <= 0 {
		marginFloor = 0.15
	}
	return &DomainClassifier{Embedding: embedding, MarginFloor: marginFloor}
}

// Classify never panics and never returns an error: an unavailable or
// failing embedding path degrades silently to the rule-based candidate or,
// failing that, cascade.DomainGeneral (spec §4.4).
func (c *DomainClassifier) Classify(text string) DomainResult {
	base, baseHits := classifyRuleBased(text)

	if c.Embedding != nil {
		if domain, margin, ok := safeEmbeddingClassify(c.Embedding, text); ok && margin > c.MarginFloor {
			return DomainResult{Domain: domain, Confidence: 0.6 + margin}
		}
	}

	if baseHits == 0 {
		return DomainResult{Domain: cascade.DomainGeneral, Confidence: 0.5}
	}

	confidence := 0.5 + 0.1*float64(baseHits)
	if confidence > 0.95 {
		confidence = 0.95
	}
	return DomainResult{Domain: base, Confidence: confidence}
}

func classifyRuleBased(text string) (cascade.Domain, int) {
	lower := strings.ToLower(text)

	bestDomain := cascade.DomainGeneral
	bestHits := 0
	for _, rule := range domainRules {
		hits := 0
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > bestHits {
			bestHits = hits
			bestDomain = rule.domain
		}
	}
	return bestDomain, bestHits
}

// safeEmbeddingClassify isolates a panicking or misbehaving embedding
// backend so the overall classifier never throws (spec §4.4).
func safeEmbeddingClassify(strategy EmbeddingStrategy, text string) (domain cascade.Domain, margin float64, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			domain, margin, ok = "", 0, false
		}
	}()
	return strategy.Classify(text)
}
