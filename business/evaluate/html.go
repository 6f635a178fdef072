package evaluate

import (
	"fmt"
	"html/template"
	"io"

	"github.com/ardanlabs/qcommerce-evals/business/resultset"
)

// htmlRows is how many rows of each table the comparison page shows.
const htmlRows = 50

var page = template.Must(template.New("compare").Funcs(template.FuncMap{
	"color": scoreColor,
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Agent}} {{.RunID}}</title>
<style>
body { font-family: system-ui, sans-serif; color: #000; background: #fafafa; }
.card { background: #fff; border: 1px solid #ddd; border-radius: 8px; padding: 20px; margin-bottom: 24px; }
.question { font-size: 15px; font-weight: 600; margin-bottom: 12px; }
.badge { color: #fff; padding: 4px 10px; border-radius: 4px; font-weight: 600; font-size: 14px; }
.reason { font-size: 12px; margin-top: 4px; }
.row { display: flex; gap: 16px; margin-bottom: 20px; }
.panel { flex: 1; min-width: 0; overflow-x: auto; }
.panel h4 { margin: 0 0 8px 0; font-size: 14px; }
pre { background: #fff; padding: 12px; border-radius: 6px; font-size: 12px; line-height: 1.5; margin: 0;
      border: 1px solid #ddd; white-space: pre-wrap; word-break: break-word; }
.compare-table { font-size: 12px; border-collapse: collapse; width: 100%; }
.compare-table th { background: #f0f0f0; padding: 6px 8px; text-align: left; border-bottom: 2px solid #ddd; white-space: nowrap; }
.compare-table td { padding: 4px 8px; border-bottom: 1px solid #eee; }
</style>
</head>
<body>
{{range .Items}}
<div class="card">
  <div class="question">{{.Question}}</div>
  <div style="margin-bottom:16px;">
    <span class="badge" style="background:{{color .Score}};">Answer Quality: {{printf "%.2f" .Score}}</span>
    {{with .Reasoning}}<div class="reason">{{.}}</div>{{end}}
  </div>
  <div class="row">
    <div class="panel"><h4>Reference SQL</h4>{{if .ReferenceSQL}}<pre>{{.ReferenceSQL}}</pre>{{else}}<em>No SQL</em>{{end}}</div>
    <div class="panel"><h4>Agent SQL</h4>{{if .AgentSQL}}<pre>{{.AgentSQL}}</pre>{{else}}<em>No SQL</em>{{end}}</div>
  </div>
  <div class="row">
    {{template "table" .Expected}}
    {{template "table" .Agent}}
  </div>
</div>
{{end}}
</body>
</html>
{{define "table"}}<div class="panel"><h4>{{.Title}}</h4>
{{- if .Raw}}<pre>{{.Raw}}</pre>
{{- else if not .Columns}}<em style="color:#999;">No output</em>
{{- else}}<table class="compare-table"><thead><tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>{{end}}</tbody></table>
{{- end}}</div>{{end}}`))

type htmlTable struct {
	Title   string
	Columns []string
	Rows    [][]string
	Raw     string
}

type htmlItem struct {
	Question     string
	Score        float64
	Reasoning    string
	ReferenceSQL string
	AgentSQL     string
	Expected     htmlTable
	Agent        htmlTable
}

// WriteHTML renders a side by side comparison of every result with its
// example: reference against agent SQL and expected against agent output.
func WriteHTML(w io.Writer, examples []Example, run Run) error {
	byID := make(map[string]Example, len(examples))
	for _, ex := range examples {
		byID[ex.ID] = ex
	}

	data := struct {
		Agent string
		RunID string
		Items []htmlItem
	}{
		Agent: run.Agent,
		RunID: run.ID,
	}

	for _, r := range run.Results {
		ex := byID[r.ID]

		question := ex.Question
		if question == "" {
			question = r.ID
		}

		data.Items = append(data.Items, htmlItem{
			Question:     question,
			Score:        r.AnswerQuality,
			Reasoning:    r.AnswerReasoning,
			ReferenceSQL: ex.ReferenceSQL,
			AgentSQL:     r.AgentSQL,
			Expected:     newHTMLTable("Expected Output", ex.ExpectedAnswer),
			Agent:        newHTMLTable("Agent Output", r.AgentCSV),
		})
	}

	if err := page.Execute(w, data); err != nil {
		return fmt.Errorf("render: %w", err)
	}

	return nil
}

func newHTMLTable(title string, csv string) htmlTable {
	t := htmlTable{Title: title}
	if csv == "" {
		return t
	}

	tbl, err := resultset.ParseCSV(csv)
	if err != nil {
		t.Raw = clip(csv, 2000)
		return t
	}

	tbl = tbl.Head(htmlRows)

	t.Columns = tbl.ColumnNames()
	for _, row := range tbl.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = resultset.FormatCell(v)
		}
		t.Rows = append(t.Rows, cells)
	}

	return t
}

func scoreColor(score float64) template.CSS {
	switch {
	case score >= 0.8:
		return "#22c55e"
	case score >= 0.5:
		return "#eab308"
	default:
		return "#ef4444"
	}
}
