package review

import (
	"regexp"
	"strings"
)

// Target is a UI element class a rule applies to.
type Target int

const (
	// TargetUnknown is any tag that resolves to no known class. It matches
	// every unit so unrecognised rule metadata never hides a rule.
	TargetUnknown Target = iota
	TargetAll
	TargetInputField
	TargetToast
	TargetTooltip
	TargetHelperText
	TargetModal
	TargetButton
)

var targetNames = map[Target]string{
	TargetUnknown:    "unknown",
	TargetAll:        "ALL",
	TargetInputField: "input-field",
	TargetToast:      "toast",
	TargetTooltip:    "tooltip",
	TargetHelperText: "helper-text",
	TargetModal:      "modal",
	TargetButton:     "button",
}

func (t Target) String() string {
	if name, ok := targetNames[t]; ok {
		return name
	}
	return "unknown"
}

// knownTargets is the resolution order used by ParseTarget.
var knownTargets = []Target{
	TargetInputField,
	TargetToast,
	TargetTooltip,
	TargetHelperText,
	TargetModal,
	TargetButton,
}

// targetPatterns bind each class to English and Korean synonyms.
var targetPatterns = map[Target]*regexp.Regexp{
	TargetInputField: regexp.MustCompile(`(?i)input|text\s?field|textarea|placeholder|search\s?bar|입력|인풋|검색창|플레이스홀더`),
	TargetToast:      regexp.MustCompile(`(?i)toast|snack\s?bar|토스트|스낵바`),
	TargetTooltip:    regexp.MustCompile(`(?i)tool\s?tip|popover|툴팁|말풍선`),
	TargetHelperText: regexp.MustCompile(`(?i)helper|hint|caption|error\s?message|헬퍼|도움말|안내\s?문구|캡션|에러\s?메시지`),
	TargetModal:      regexp.MustCompile(`(?i)modal|dialog|pop-?up|alert|bottom\s?sheet|모달|다이얼로그|팝업|바텀\s?시트`),
	TargetButton:     regexp.MustCompile(`(?i)button|btn|\bcta\b|버튼`),
}

// ParseTarget resolves a free-form corpus tag into a Target.
func ParseTarget(tag string) Target {
	tag = strings.TrimSpace(tag)
	switch strings.ToLower(tag) {
	case "all", "any", "*", "전체", "공통", "모든 요소":
		return TargetAll
	}
	for _, t := range knownTargets {
		if targetPatterns[t].MatchString(tag) {
			return t
		}
	}
	return TargetUnknown
}

// Matches reports whether the unit's structural context belongs to the
// target class.
func (t Target) Matches(u TextUnit) bool {
	switch t {
	case TargetAll, TargetUnknown:
		return true
	}
	pat, ok := targetPatterns[t]
	if !ok {
		return true
	}
	return pat.MatchString(u.contextText())
}
