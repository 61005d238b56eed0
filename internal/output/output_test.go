package output

import "github.com/dshills/tonecheck/internal/review"

func sampleReport() *Report {
	r := &Report{
		Tool:     "tonecheck",
		Version:  "1.0",
		Provider: "openai",
		Model:    "gpt-4o-mini",
		Units:    3,
		Rules:    2,
		Results: []review.ReviewResult{
			{NodeID: "1:2", Original: "확인", Suggestion: "확인"},
			{
				NodeID:        "1:3",
				Original:      "저장 하기",
				Suggestion:    "저장하기",
				Reason:        "동사형 버튼 문구는 붙여 씁니다",
				ViolationType: "버튼 문구",
			},
			{NodeID: "1:4", Original: "삭제됬습니다", Suggestion: "삭제됐습니다", Applied: true},
		},
		TotalMs: 1200,
	}
	r.Summarize()
	return r
}
