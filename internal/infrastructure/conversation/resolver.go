// Package conversation rewrites follow-up questions into self-contained ones
// using a short key=value brief of the preceding dialogue.
package conversation

import (
	"regexp"
	"strings"
)

var (
	briefPair = regexp.MustCompile(`([\p{L}\p{N}_]+)\s*=\s*([^\s,，;；]+)`)

	englishReference = regexp.MustCompile(`(?i)\b(?:(?:this|that|the)\s+(?:product|system|model|release)|its|it)\b`)
	cjkReference     = regexp.MustCompile(`该(?:产品|系统|模型)?|上文|这个|此项|它|其`)
)

// entityKeys are checked in order before falling back to the first pair.
var entityKeys = []string{"entity", "上文实体", "subject", "product"}

type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve replaces pronoun references in query with the entity named in
// history. Without a usable entity the query is returned unchanged.
func (r *Resolver) Resolve(query, history string) string {
	entity := EntityFromBrief(history)
	if entity == "" {
		return query
	}

	out := englishReference.ReplaceAllStringFunc(query, func(match string) string {
		if strings.EqualFold(match, "its") {
			return entity + "'s"
		}
		return entity
	})
	return replaceCJK(out, entity)
}

// EntityFromBrief extracts the referenced entity from a brief such as
// "entity=GPT-5, event=release".
func EntityFromBrief(history string) string {
	if strings.TrimSpace(history) == "" {
		return ""
	}
	pairs := briefPair.FindAllStringSubmatch(history, -1)
	if len(pairs) == 0 {
		return ""
	}
	values := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key := strings.ToLower(p[1])
		if _, seen := values[key]; !seen {
			values[key] = p[2]
		}
	}
	for _, key := range entityKeys {
		if v := values[key]; v != "" {
			return v
		}
	}
	return pairs[0][2]
}

// Compounds where 其 is not a reference.
var qiCompounds = []string{"其他", "其中", "其实", "其余", "尤其"}

// replaceCJK skips 该 inside 应该 and 其 inside common compounds.
func replaceCJK(s, entity string) string {
	locs := cjkReference.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return s
	}
	var b strings.Builder
	last := 0
	for _, loc := range locs {
		if strings.HasPrefix(s[loc[0]:], "该") && strings.HasSuffix(s[:loc[0]], "应") {
			continue
		}
		if s[loc[0]:loc[1]] == "其" && inCompound(s, loc[0]) {
			continue
		}
		b.WriteString(s[last:loc[0]])
		b.WriteString(entity)
		last = loc[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

func inCompound(s string, i int) bool {
	for _, c := range qiCompounds {
		start := i - strings.Index(c, "其")
		if start >= 0 && strings.HasPrefix(s[start:], c) {
			return true
		}
	}
	return false
}
