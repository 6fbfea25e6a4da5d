// ABOUTME: Prospect scoring engine ranking leads with a weighted multi-factor rubric
// ABOUTME: Title, seniority, company, keyword and experience buckets sum to at most 100
package scoring

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// Factor names used as Breakdown keys.
const (
	FactorTitleMatch          = "titleMatch"
	FactorSeniority           = "seniority"
	FactorCompanyRelevance    = "companyRelevance"
	FactorKeywordMatch        = "keywordMatch"
	FactorExperienceRelevance = "experienceRelevance"
)

// Weights caps each factor; the caps sum to MaxScore.
var Weights = map[string]int{
	FactorTitleMatch:          30,
	FactorSeniority:           25,
	FactorCompanyRelevance:    20,
	FactorKeywordMatch:        15,
	FactorExperienceRelevance: 10,
}

const MaxScore = 100

// Factors lists the rubric in weight order.
var Factors = []string{
	FactorTitleMatch,
	FactorSeniority,
	FactorCompanyRelevance,
	FactorKeywordMatch,
	FactorExperienceRelevance,
}

type Tier string

const (
	TierCLevel   Tier = "C-Level"
	TierVP       Tier = "VP"
	TierDirector Tier = "Director"
	TierManager  Tier = "Manager"
	TierIC       Tier = "IC"
)

// TierOrder is the lookup priority: a title matching several tiers resolves
// to the earliest one here.
var TierOrder = []Tier{TierCLevel, TierVP, TierDirector, TierManager, TierIC}

var SeniorityKeywords = map[Tier][]string{
	TierCLevel:   {"ceo", "cto", "cfo", "coo", "cmo", "cio", "cro", "chief", "founder", "co-founder", "president", "owner"},
	TierVP:       {"vp", "vice president", "svp", "evp", "avp"},
	TierDirector: {"director", "head of"},
	TierManager:  {"manager", "lead", "supervisor", "team lead"},
	TierIC:       {"engineer", "developer", "analyst", "specialist", "associate", "consultant", "coordinator", "representative"},
}

// masked phrases are hidden from a tier's lookup so "vice president" is not
// read as "president".
var masked = map[Tier][]string{
	TierCLevel: {"vice president"},
}

var SeniorityScores = map[Tier]int{
	TierCLevel:   25,
	TierVP:       20,
	TierDirector: 15,
	TierManager:  10,
	TierIC:       5,
}

// Candidate is a lead profile as scraped from a profile page.
type Candidate struct {
	Name       string   `json:"name" yaml:"name"`
	Title      string   `json:"title" yaml:"title"`
	Company    string   `json:"company" yaml:"company"`
	Headline   string   `json:"headline,omitempty" yaml:"headline"`
	Summary    string   `json:"summary,omitempty" yaml:"summary"`
	Skills     []string `json:"skills,omitempty" yaml:"skills"`
	Experience string   `json:"experience,omitempty" yaml:"experience"`
	ProfileURL string   `json:"profile_url,omitempty" yaml:"profile_url"`
}

// Criteria are the caller's targets. Empty lists score zero for their factor.
type Criteria struct {
	TargetTitles       []string `json:"target_titles" yaml:"target_titles"`
	TargetCompanies    []string `json:"target_companies" yaml:"target_companies"`
	Keywords           []string `json:"keywords" yaml:"keywords"`
	ExperienceKeywords []string `json:"experience_keywords" yaml:"experience_keywords"`
	// ExtraSeniorityKeywords extends SeniorityKeywords, e.g. company-specific titles.
	ExtraSeniorityKeywords map[Tier][]string `json:"extra_seniority_keywords,omitempty" yaml:"extra_seniority_keywords"`
}

type Result struct {
	Total     float64            `json:"total"`
	Tier      Tier               `json:"tier,omitempty"`
	Breakdown map[string]float64 `json:"breakdown"`
}

type Ranked struct {
	Candidate Candidate `json:"candidate"`
	Result    Result    `json:"result"`
}

// Score evaluates one candidate. It is pure and deterministic.
func Score(c Candidate, criteria Criteria) Result {
	tier, _ := DetectTier(c.Title, criteria.ExtraSeniorityKeywords)

	breakdown := map[string]float64{
		FactorTitleMatch:          titleScore(c.Title, criteria.TargetTitles),
		FactorSeniority:           seniorityScore(tier),
		FactorCompanyRelevance:    companyScore(c.Company, criteria.TargetCompanies),
		FactorKeywordMatch:        fractionScore(keywordText(c), criteria.Keywords, Weights[FactorKeywordMatch]),
		FactorExperienceRelevance: fractionScore(c.Experience, experienceKeywords(criteria), Weights[FactorExperienceRelevance]),
	}

	total := 0.0
	for _, factor := range Factors {
		v := clamp(breakdown[factor], 0, float64(Weights[factor]))
		breakdown[factor] = round2(v)
		total += v
	}

	return Result{
		Total:     round2(clamp(total, 0, MaxScore)),
		Tier:      tier,
		Breakdown: breakdown,
	}
}

// Rank scores candidates and orders them best first. Ties keep input order.
func Rank(candidates []Candidate, criteria Criteria) []Ranked {
	out := make([]Ranked, len(candidates))
	for i, c := range candidates {
		out[i] = Ranked{Candidate: c, Result: Score(c, criteria)}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Result.Total > out[j].Result.Total
	})
	return out
}

// DetectTier returns the highest-priority tier whose keywords appear in title
// as whole words.
func DetectTier(title string, extra map[Tier][]string) (Tier, bool) {
	normalized := normalizeText(title)
	if normalized == "" {
		return "", false
	}
	for _, tier := range TierOrder {
		text := normalized
		for _, m := range masked[tier] {
			text = strings.TrimSpace(strings.ReplaceAll(" "+text+" ", " "+m+" ", " "))
		}
		keywords := SeniorityKeywords[tier]
		if len(extra[tier]) > 0 {
			keywords = append(append([]string(nil), keywords...), extra[tier]...)
		}
		for _, kw := range keywords {
			if containsPhrase(text, kw) {
				return tier, true
			}
		}
	}
	return "", false
}

func seniorityScore(tier Tier) float64 {
	if tier == "" {
		return 0
	}
	best := 0
	for _, s := range SeniorityScores {
		if s > best {
			best = s
		}
	}
	if best == 0 {
		return 0
	}
	return float64(SeniorityScores[tier]) / float64(best) * float64(Weights[FactorSeniority])
}

// titleScore gives the full weight when a target title appears in the
// candidate's title, otherwise the best share of a target's words present.
func titleScore(title string, targets []string) float64 {
	normalized := normalizeText(title)
	if normalized == "" || len(targets) == 0 {
		return 0
	}
	weight := float64(Weights[FactorTitleMatch])
	best := 0.0
	for _, target := range targets {
		if containsPhrase(normalized, target) {
			return weight
		}
		words := contentWords(target)
		if len(words) == 0 {
			continue
		}
		hits := 0
		for _, w := range words {
			if containsPhrase(normalized, w) {
				hits++
			}
		}
		if share := float64(hits) / float64(len(words)); share > best {
			best = share
		}
	}
	return best * weight
}

var stopWords = map[string]bool{"of": true, "the": true, "and": true, "for": true, "&": true, "at": true}

func contentWords(s string) []string {
	var out []string
	for _, w := range strings.Fields(normalizeText(s)) {
		if !stopWords[w] {
			out = append(out, w)
		}
	}
	return out
}

func companyScore(company string, targets []string) float64 {
	name := normalizeCompany(company)
	if name == "" {
		return 0
	}
	for _, target := range targets {
		t := normalizeCompany(target)
		if t == "" {
			continue
		}
		if name == t || containsPhrase(name, t) || containsPhrase(t, name) {
			return float64(Weights[FactorCompanyRelevance])
		}
	}
	return 0
}

// fractionScore scales weight by the share of keywords found in text.
func fractionScore(text string, keywords []string, weight int) float64 {
	normalized := normalizeText(text)
	if normalized == "" {
		return 0
	}
	total, hits := 0, 0
	for _, kw := range keywords {
		if normalizeText(kw) == "" {
			continue
		}
		total++
		if containsPhrase(normalized, kw) {
			hits++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * float64(weight)
}

func keywordText(c Candidate) string {
	parts := []string{c.Title, c.Headline, c.Summary}
	parts = append(parts, c.Skills...)
	return strings.Join(parts, " ")
}

func experienceKeywords(criteria Criteria) []string {
	if len(criteria.ExperienceKeywords) > 0 {
		return criteria.ExperienceKeywords
	}
	return criteria.Keywords
}

var nonWord = regexp.MustCompile(`[^a-z0-9+#&]+`)

// normalizeText lowercases and collapses punctuation so matching works on
// space-separated words. Hyphens become spaces, so "co-founder" matches "co founder".
func normalizeText(s string) string {
	s = nonWord.ReplaceAllString(strings.ToLower(s), " ")
	return strings.TrimSpace(s)
}

var companySuffixes = []string{" inc", " llc", " ltd", " corp", " corporation", " co", " gmbh", " plc"}

func normalizeCompany(s string) string {
	s = normalizeText(s)
	for _, suffix := range companySuffixes {
		s = strings.TrimSuffix(s, suffix)
	}
	return strings.TrimSpace(s)
}

// containsPhrase reports whether phrase occurs in normalized text on word
// boundaries, so "cto" does not match inside "director".
func containsPhrase(normalized, phrase string) bool {
	p := normalizeText(phrase)
	if p == "" {
		return false
	}
	return strings.Contains(" "+normalized+" ", " "+p+" ")
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
