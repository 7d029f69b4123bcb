package postgres

import "testing"

func TestRenderEmpty(t *testing.T) {
	got := renderEmpty("employees hired in Sales after 2023", []string{"public.employees"}, "en")
	want := "No rows matched \"employees hired in Sales after 2023\".\n\n_source: tables public.employees (0 rows)_"
	if got != want {
		t.Errorf("renderEmpty = %q, want %q", got, want)
	}
}

func TestRenderEmptyThai(t *testing.T) {
	got := renderEmpty("พนักงานที่เข้าร่วมฝ่ายขายหลังปี 2023", []string{"public.employees"}, "th")
	want := "ไม่พบข้อมูลที่ตรงกับคำถาม \"พนักงานที่เข้าร่วมฝ่ายขายหลังปี 2023\"\n\n_ที่มา: ตาราง public.employees (0 แถว)_"
	if got != want {
		t.Errorf("renderEmpty = %q, want %q", got, want)
	}
}
