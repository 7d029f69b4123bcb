package postgres

import (
	"fmt"
	"strings"
)

const smallTableRowCap = 20
const headSummaryRows = 10

// render turns a QueryResult into the human-readable answer of spec §4.4
// step 5: a restated-question sentence for a scalar, a Markdown table for
// a small result, or a head summary with a total-count note for a large
// one, always closed with a "source" footer naming the tables used.
func render(question string, result *QueryResult, tablesUsed []string, responseLanguage string) string {
	var body string
	switch {
	case len(result.Rows) == 1 && len(result.Columns) == 1:
		body = renderScalar(question, result, responseLanguage)
	case len(result.Rows) <= smallTableRowCap:
		body = renderMarkdownTable(result.Rows, result.Columns)
	default:
		body = renderHeadSummary(result, responseLanguage)
	}

	footer := renderFooter(tablesUsed, len(result.Rows), responseLanguage)
	return body + "\n\n" + footer
}

func renderScalar(question string, result *QueryResult, lang string) string {
	value := formatCell(result.Rows[0][0])
	if lang == "th" {
		return fmt.Sprintf("จากคำถาม \"%s\" คำตอบคือ %s", question, value)
	}
	return fmt.Sprintf("The answer to \"%s\" is %s.", question, value)
}

func renderMarkdownTable(rows [][]any, columns []string) string {
	var b strings.Builder
	b.WriteString("| " + strings.Join(columns, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(columns)) + "\n")
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatCell(v)
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return b.String()
}

func renderHeadSummary(result *QueryResult, lang string) string {
	head := result.Rows
	if len(head) > headSummaryRows {
		head = head[:headSummaryRows]
	}
	table := renderMarkdownTable(head, result.Columns)

	note := fmt.Sprintf("Showing the first %d of %d rows.", len(head), len(result.Rows))
	if result.Truncated {
		note = fmt.Sprintf("Showing the first %d rows; the result was truncated at the row limit.", len(head))
	}
	if lang == "th" {
		note = fmt.Sprintf("แสดง %d แถวแรกจากทั้งหมด %d แถว", len(head), len(result.Rows))
		if result.Truncated {
			note = fmt.Sprintf("แสดง %d แถวแรก ผลลัพธ์ถูกตัดที่ขีดจำกัดจำนวนแถว", len(head))
		}
	}
	return table + "\n" + note
}

// renderEmpty answers a query that ran cleanly but matched no rows, with no
// misunderstanding hint to justify a clarifying question instead (spec
// §4.4 step 6): a plain "no rows matched" statement, still closed with the
// usual source footer.
func renderEmpty(question string, tablesUsed []string, lang string) string {
	var body string
	if lang == "th" {
		body = fmt.Sprintf("ไม่พบข้อมูลที่ตรงกับคำถาม \"%s\"", question)
	} else {
		body = fmt.Sprintf("No rows matched \"%s\".", question)
	}
	return body + "\n\n" + renderFooter(tablesUsed, 0, lang)
}

func renderFooter(tablesUsed []string, rowCount int, lang string) string {
	tables := "none"
	if len(tablesUsed) > 0 {
		tables = strings.Join(tablesUsed, ", ")
	}
	if lang == "th" {
		return fmt.Sprintf("_ที่มา: ตาราง %s (%d แถว)_", tables, rowCount)
	}
	return fmt.Sprintf("_source: tables %s (%d rows)_", tables, rowCount)
}

func formatCell(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}
