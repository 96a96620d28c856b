package scoring

import (
	"regexp"
	"strings"
)

// tokenRe keeps alphanumerics plus the punctuation that appears inside tech
// terms (c++, c#, node.js, ci/cd).
var tokenRe = regexp.MustCompile(`[a-z0-9+#./-]+`)

// stopwords are common words that never count as keywords.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "you": true,
	"are": true, "our": true, "will": true, "have": true, "this": true,
	"that": true, "from": true, "your": true, "who": true, "what": true,
	"all": true, "can": true, "not": true, "but": true, "has": true,
	"was": true, "were": true, "been": true, "being": true, "their": true,
	"they": true, "them": true, "its": true, "about": true, "into": true,
	"over": true, "under": true, "more": true, "most": true, "other": true,
	"some": true, "such": true, "than": true, "then": true, "also": true,
	"each": true, "must": true, "should": true, "would": true, "could": true,
	"may": true, "might": true, "per": true, "via": true, "etc": true,
	"including": true, "include": true, "includes": true, "within": true,
	"across": true, "using": true, "use": true, "used": true, "ability": true,
	"experience": true, "years": true, "year": true, "work": true,
	"working": true, "team": true, "role": true, "strong": true,
	"excellent": true, "required": true, "preferred": true, "plus": true,
}

// Tokenize lowercases a text and splits it into tokens.
func Tokenize(text string) []string {
	return tokenRe.FindAllString(strings.ToLower(text), -1)
}

// KeywordSet extracts the candidate keywords of a text: tokens of at least
// three characters that are not stopwords.
func KeywordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range Tokenize(text) {
		if len(tok) < 3 || stopwords[tok] {
			continue
		}
		set[tok] = true
	}
	return set
}

// Coverage is the fraction of the job description's keywords present in the
// resume text, in [0,1]. An empty keyword set counts as full coverage.
func Coverage(resumeText, jdText string) float64 {
	jdKeywords := KeywordSet(jdText)
	if len(jdKeywords) == 0 {
		return 1.0
	}
	resumeTokens := KeywordSet(resumeText)

	matched := 0
	for kw := range jdKeywords {
		if resumeTokens[kw] {
			matched++
		}
	}
	return float64(matched) / float64(len(jdKeywords))
}

// termWeights ranks term groups by how much a miss should hurt. Concrete
// tools are weighted hardest; seniority and certification words are soft
// signals.
var termWeights = map[string]float64{
	"tools":            3,
	"skills":           2,
	"responsibilities": 2,
	"domains":          2,
	"certifications":   1,
	"seniority":        1,
}

// WeightedCoverage scores the resume against extracted term groups. A term
// counts as covered when every one of its tokens appears in the resume.
// Returns a value in [0,1]; empty term sets count as full coverage.
func WeightedCoverage(resumeText string, terms *Terms) float64 {
	resumeTokens := KeywordSet(resumeText)

	var total, matched float64
	score := func(group string, items []string) {
		weight := termWeights[group]
		for _, term := range items {
			covered := true
			scoreable := false
			for _, tok := range Tokenize(term) {
				if len(tok) < 3 || stopwords[tok] {
					continue
				}
				scoreable = true
				if !resumeTokens[tok] {
					covered = false
					break
				}
			}
			if !scoreable {
				continue
			}
			total += weight
			if covered {
				matched += weight
			}
		}
	}

	score("skills", terms.Skills)
	score("tools", terms.Tools)
	score("domains", terms.Domains)
	score("responsibilities", terms.Responsibilities)
	score("seniority", terms.Seniority)
	score("certifications", terms.Certifications)

	if total == 0 {
		return 1.0
	}
	return matched / total
}
