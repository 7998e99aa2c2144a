package subtitles

import (
	"regexp"
	"strconv"
	"strings"
)

// Rule is one ordered text rewrite. Replace receives the submatches of
// Pattern (index 0 is the whole match) and returns the replacement. Keep, if
// set, sees the same submatches and the text after the match and returns
// true to leave the match as written.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Replace func(groups []string) string
	Keep    func(groups []string, rest string) bool
}

// Apply rewrites every non-overlapping match in s.
func (r Rule) Apply(s string) string {
	locs := r.Pattern.FindAllStringSubmatchIndex(s, -1)
	if locs == nil {
		return s
	}

	var b strings.Builder
	last := 0
	for _, loc := range locs {
		groups := make([]string, len(loc)/2)
		for g := range groups {
			if loc[2*g] >= 0 {
				groups[g] = s[loc[2*g]:loc[2*g+1]]
			}
		}
		b.WriteString(s[last:loc[0]])
		if r.Keep != nil && r.Keep(groups, s[loc[1]:]) {
			b.WriteString(groups[0])
		} else {
			b.WriteString(r.Replace(groups))
		}
		last = loc[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

var nativeOnes = map[string]int{
	"하나": 1, "한": 1, "둘": 2, "두": 2, "셋": 3, "세": 3, "석": 3,
	"넷": 4, "네": 4, "넉": 4, "다섯": 5, "여섯": 6, "일곱": 7, "여덟": 8, "아홉": 9,
}

var nativeTens = map[string]int{
	"열": 10, "스물": 20, "스무": 20, "서른": 30, "마흔": 40, "쉰": 50,
	"예순": 60, "일흔": 70, "여든": 80, "아흔": 90,
}

var sinoDigits = map[string]int{
	"일": 1, "이": 2, "삼": 3, "사": 4, "오": 5, "육": 6, "칠": 7, "팔": 8, "구": 9,
}

const (
	// boundary is the start of text or any character that is neither Hangul
	// nor a digit. RE2 has no lookbehind, so the character is captured and
	// written back.
	boundary     = `(^|[^가-힣0-9])`
	magBoundary  = `(^|[^가-힣0-9]|[백천만억])`
	onesAlt      = `하나|다섯|여섯|일곱|여덟|아홉|한|둘|두|셋|세|석|넷|네|넉`
	tensAlt      = `스물|스무|서른|마흔|쉰|예순|일흔|여든|아흔|열`
	sinoDigitCls = `[일이삼사오육칠팔구]`
	unitAlt      = `번째|시간|마리|가지|퍼센트|살|명|개|번|시|분|초|권|대|장|잔|년|월|일|주|원|층|세|배|곳|달|점`
)

// NumeralRules is the ordered display-normalization pipeline: compound
// tens+ones, bare tens, unit-gated ones, magnitudes, then unit joining.
var NumeralRules = []Rule{
	{
		Name:    "native-compound",
		Pattern: regexp.MustCompile(boundary + `(` + tensAlt + `)(` + onesAlt + `)`),
		Replace: func(g []string) string {
			return g[1] + strconv.Itoa(nativeTens[g[2]]+nativeOnes[g[3]])
		},
	},
	{
		Name:    "sino-compound",
		Pattern: regexp.MustCompile(magBoundary + `(` + sinoDigitCls + `)?십(` + sinoDigitCls + `)`),
		Replace: func(g []string) string {
			return g[1] + strconv.Itoa(tensValue(g[2])+sinoDigits[g[3]])
		},
	},
	{
		Name:    "native-tens",
		Pattern: regexp.MustCompile(boundary + `(` + tensAlt + `)(\s*)(` + unitAlt + `|만|억)`),
		Replace: func(g []string) string {
			return g[1] + strconv.Itoa(nativeTens[g[2]]) + g[3] + g[4]
		},
	},
	{
		Name:    "sino-tens",
		Pattern: regexp.MustCompile(magBoundary + `(` + sinoDigitCls + `)?십(\s*)(` + unitAlt + `|만|억)`),
		Replace: func(g []string) string {
			return g[1] + strconv.Itoa(tensValue(g[2])) + g[3] + g[4]
		},
		Keep: func(g []string, rest string) bool {
			return politeEnding(g[4], rest)
		},
	},
	{
		Name:    "ones-with-unit",
		Pattern: regexp.MustCompile(boundary + `(` + onesAlt + `|` + sinoDigitCls + `)(\s*)(` + unitAlt + `)`),
		Replace: func(g []string) string {
			v, ok := nativeOnes[g[2]]
			if !ok {
				v = sinoDigits[g[2]]
			}
			return g[1] + strconv.Itoa(v) + g[4]
		},
		Keep: func(g []string, rest string) bool {
			return politeEnding(g[4], rest) || demonstrative(g[2])
		},
	},
	{
		Name:    "hundreds",
		Pattern: regexp.MustCompile(`(^|[^가-힣0-9]|[천만억])(\d+|` + sinoDigitCls + `)?백(\d{1,2}|` + sinoDigitCls + `)?(만|억|` + unitAlt + `|[^가-힣0-9]|$)`),
		Replace: func(g []string) string {
			return g[1] + strconv.Itoa(multiplier(g[2])*100+tailValue(g[3])) + g[4]
		},
	},
	{
		Name:    "thousands",
		Pattern: regexp.MustCompile(`(^|[^가-힣0-9]|[만억])(\d+|` + sinoDigitCls + `)?천(\d{1,3}|` + sinoDigitCls + `)?(만|억|` + unitAlt + `|[^가-힣0-9]|$)`),
		Replace: func(g []string) string {
			return g[1] + strconv.Itoa(multiplier(g[2])*1000+tailValue(g[3])) + g[4]
		},
	},
	{
		Name:    "digit-magnitude",
		Pattern: regexp.MustCompile(boundary + `(` + sinoDigitCls + `)(만|억)(\s*)(` + unitAlt + `)`),
		Replace: func(g []string) string {
			return g[1] + strconv.Itoa(sinoDigits[g[2]]) + g[3] + g[4] + g[5]
		},
	},
	{
		Name:    "join-units",
		Pattern: regexp.MustCompile(`(\d(?:만|억)?)\s+(` + unitAlt + `)`),
		Replace: func(g []string) string {
			return g[1] + g[2]
		},
	},
}

// politeEnding reports a 시 that opens the honorific ending -시오/-시요
// ("오십시오") rather than the hour unit.
func politeEnding(unit, rest string) bool {
	return unit == "시" && (strings.HasPrefix(rest, "오") || strings.HasPrefix(rest, "요"))
}

// demonstrative reports a bare 이 before a unit ("이 일", "이번"), which
// reads as "this" rather than two. 이 only counts inside a compound or before
// a magnitude, handled by the other rules.
func demonstrative(digit string) bool {
	return digit == "이"
}

// Normalize rewrites spoken Korean numerals to Arabic digits for on-screen
// display. Speech text must not be passed through it.
func Normalize(text string) string {
	for _, r := range NumeralRules {
		text = r.Apply(text)
	}
	return text
}

// RuleByName returns the named rule.
func RuleByName(name string) (Rule, bool) {
	for _, r := range NumeralRules {
		if r.Name == name {
			return r, true
		}
	}
	return Rule{}, false
}

func tensValue(prefix string) int {
	if prefix == "" {
		return 10
	}
	return sinoDigits[prefix] * 10
}

func multiplier(prefix string) int {
	if prefix == "" {
		return 1
	}
	if v, ok := sinoDigits[prefix]; ok {
		return v
	}
	n, err := strconv.Atoi(prefix)
	if err != nil || n == 0 {
		return 1
	}
	return n
}

func tailValue(tail string) int {
	if tail == "" {
		return 0
	}
	if v, ok := sinoDigits[tail]; ok {
		return v
	}
	n, _ := strconv.Atoi(tail)
	return n
}
