package dispatcher

import "strings"

// structuredKeywords mirrors aggregator_agent.py's SmartRouter.DB_KEYWORDS:
// a bilingual (Thai/English) cue set for "this question wants a number or
// a row out of a table" intent. It is deliberately small and literal --
// spec §4.3 calls for "a cheap deterministic classifier" using keyword
// cues, not an ML model.
var structuredKeywords = []string{
	"employee", "employees", "พนักงาน",
	"salary", "salaries", "เงินเดือน",
	"project", "projects", "โปรเจค",
	"count", "จำนวน", "กี่คน", "กี่",
	"average", "avg", "เฉลี่ย",
	"sum", "total", "รวม",
	"budget", "งบประมาณ",
	"department", "แผนก",
	"statistics", "สถิติ",
	"how many", "table", "column", "row",
	"date", "ว้นที่", "วันที่",
	"price", "cost", "ราคา", "บาท",
}

// unstructuredKeywords cue "this question wants explanation of written
// policy/documentation" intent, favoring the knowledge-base agent.
var unstructuredKeywords = []string{
	"policy", "นโยบาย", "procedure", "ขั้นตอน",
	"explain", "อธิบาย", "how do i", "how to", "วิธี",
	"document", "เอกสาร", "manual", "คู่มือ",
	"rule", "กฎ", "benefit", "สวัสดิการ",
}

// classify scores question against both keyword sets and reports which
// intent scored higher. A tie (including 0-0) is ambiguous and the
// dispatcher falls through to the LLM tie-breaker.
func classify(question string) (intent intent, ambiguous bool) {
	lower := strings.ToLower(question)

	structuredScore := countMatches(lower, structuredKeywords)
	unstructuredScore := countMatches(lower, unstructuredKeywords)

	switch {
	case structuredScore > unstructuredScore && structuredScore > 0:
		return intentStructured, false
	case unstructuredScore > structuredScore && unstructuredScore > 0:
		return intentUnstructured, false
	default:
		return intentUnknown, true
	}
}

func countMatches(lower string, keywords []string) int {
	score := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			score++
		}
	}
	return score
}

type intent int

const (
	intentUnknown intent = iota
	intentStructured
	intentUnstructured
)
