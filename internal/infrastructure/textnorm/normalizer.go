// Package textnorm implements retrieval-friendly query normalization.
package textnorm

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"
)

var (
	disallowedPunct = regexp.MustCompile(`[^\p{L}\p{N}\s:/\-_.·，。；、：%（）()【】\[\]]`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
	relativeDate    = regexp.MustCompile(`(?i)\b(?:yesterday|today|tomorrow|last\s+week|last\s+month|(\d+)\s+(days?|weeks?|months?)\s+ago)\b|上周|上个月|昨天|明天|今天`)
)

type Options struct {
	CaseFold      bool
	PunctTrim     bool
	DateNormalize bool
	// Aliases maps lowercase terms to their canonical form.
	Aliases map[string]string
}

func DefaultOptions() Options {
	return Options{CaseFold: true, PunctTrim: true, DateNormalize: true}
}

// Normalizer implements ports.QueryNormalizer. It never invents entities:
// it folds case, canonicalizes relative dates and aliases, and drops
// decorative punctuation.
type Normalizer struct {
	opts    Options
	aliases []alias
	now     func() time.Time
}

type alias struct {
	pattern *regexp.Regexp
	target  string
	bounded bool
}

func New(opts Options, now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	keys := make([]string, 0, len(opts.Aliases))
	for k := range opts.Aliases {
		if strings.TrimSpace(k) != "" {
			keys = append(keys, k)
		}
	}
	// Longest first so "gpt 5 turbo" wins over "gpt 5".
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	aliases := make([]alias, 0, len(keys))
	for _, k := range keys {
		aliases = append(aliases, alias{
			pattern: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(k)),
			target:  opts.Aliases[k],
			bounded: !allHan(k),
		})
	}
	return &Normalizer{opts: opts, aliases: aliases, now: now}
}

func (n *Normalizer) Normalize(text string) string {
	s := strings.TrimSpace(text)
	if s == "" {
		return s
	}
	if n.opts.CaseFold {
		s = strings.ToLower(s)
	}
	if n.opts.DateNormalize {
		s = n.absoluteDates(s)
	}
	for _, a := range n.aliases {
		s = a.replace(s)
	}
	if n.opts.PunctTrim {
		s = disallowedPunct.ReplaceAllString(s, " ")
		s = strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
	}
	return s
}

func (n *Normalizer) absoluteDates(s string) string {
	today := n.now()
	return relativeDate.ReplaceAllStringFunc(s, func(match string) string {
		var t time.Time
		switch phrase := strings.ToLower(whitespaceRun.ReplaceAllString(match, " ")); phrase {
		case "today", "今天":
			t = today
		case "yesterday", "昨天":
			t = today.AddDate(0, 0, -1)
		case "tomorrow", "明天":
			t = today.AddDate(0, 0, 1)
		case "last week", "上周":
			t = today.AddDate(0, 0, -7)
		case "last month", "上个月":
			t = today.AddDate(0, -1, 0)
		default:
			fields := strings.Fields(phrase)
			if len(fields) != 3 {
				return match
			}
			count, err := strconv.Atoi(fields[0])
			if err != nil {
				return match
			}
			switch strings.TrimSuffix(fields[1], "s") {
			case "day":
				t = today.AddDate(0, 0, -count)
			case "week":
				t = today.AddDate(0, 0, -7*count)
			case "month":
				t = today.AddDate(0, -count, 0)
			default:
				return match
			}
		}
		return t.Format("2006-01-02")
	})
}

// replace substitutes the alias. Keys containing non-Han characters only
// match on ASCII word boundaries.
func (a alias) replace(s string) string {
	locs := a.pattern.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return s
	}
	var b strings.Builder
	last := 0
	for _, loc := range locs {
		if a.bounded && !(boundaryBefore(s, loc[0]) && boundaryAfter(s, loc[1])) {
			continue
		}
		b.WriteString(s[last:loc[0]])
		b.WriteString(a.target)
		last = loc[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

func boundaryBefore(s string, i int) bool {
	return i == 0 || !isASCIIAlnum(s[i-1])
}

func boundaryAfter(s string, i int) bool {
	return i == len(s) || !isASCIIAlnum(s[i])
}

func isASCIIAlnum(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func allHan(s string) bool {
	for _, r := range s {
		if !unicode.Is(unicode.Han, r) {
			return false
		}
	}
	return true
}

// LoadAliases reads a flat YAML mapping of term to canonical form. Keys are
// lowercased. An empty path yields no aliases.
func LoadAliases(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alias table: %w", err)
	}
	return ParseAliases(raw)
}

func ParseAliases(raw []byte) (map[string]string, error) {
	var table map[string]string
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("parse alias table: %w", err)
	}
	out := make(map[string]string, len(table))
	for k, v := range table {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out, nil
}
