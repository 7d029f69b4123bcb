package dispatcher

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		name          string
		question      string
		wantIntent    intent
		wantAmbiguous bool
	}{
		{"english structured", "How many employees are in the sales department?", intentStructured, false},
		{"thai structured", "พนักงานมีกี่คน", intentStructured, false},
		{"english unstructured", "Can you explain the leave policy?", intentUnstructured, false},
		{"thai unstructured", "นโยบายการลาเป็นอย่างไร", intentUnstructured, false},
		{"empty question is ambiguous", "", intentUnknown, true},
		{"no keyword match is ambiguous", "good morning", intentUnknown, true},
		{"tied score is ambiguous", "explain employee", intentUnknown, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotIntent, gotAmbiguous := classify(tc.question)
			if gotIntent != tc.wantIntent {
				t.Errorf("classify(%q) intent = %v, want %v", tc.question, gotIntent, tc.wantIntent)
			}
			if gotAmbiguous != tc.wantAmbiguous {
				t.Errorf("classify(%q) ambiguous = %v, want %v", tc.question, gotAmbiguous, tc.wantAmbiguous)
			}
		})
	}
}

func TestAgentForIntent(t *testing.T) {
	cases := []struct {
		intent intent
		want   string
	}{
		{intentStructured, "postgres"},
		{intentUnstructured, "knowledge_base"},
		{intentUnknown, "fallback"},
	}

	for _, tc := range cases {
		if got := agentForIntent(tc.intent); string(got) != tc.want {
			t.Errorf("agentForIntent(%v) = %v, want %v", tc.intent, got, tc.want)
		}
	}
}
