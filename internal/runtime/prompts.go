package runtime

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/aretw0/tabloop/pkg/domain"
	"github.com/aretw0/tabloop/pkg/table"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.New("prompts").Funcs(template.FuncMap{
	"join": strings.Join,
	"inc":  func(i int) int { return i + 1 },
}).ParseFS(promptFS, "prompts/*.tmpl"))

// maxSchemaColumns caps the schema hint listed in the task prompt.
const maxSchemaColumns = 20

const (
	// thinkContinuation follows every THINK round.
	thinkContinuation = `
Good thinking! Based on your analysis, what's your next step?

You can:
- Use **[CODE]** to write and execute code
- Use **[THINK]** to continue analyzing
- Use **[Final Answer]** if you have the complete answer

What would you like to do?
`

	// tagReminder follows a response without a recognized tag.
	tagReminder = `
Please use one of these tags to indicate your action:

- **[THINK]** - Analyze the current situation and plan next steps
- **[CODE]** - Write a Go snippet to process the table
- **[Final Answer]** - Provide your final answer to the question

What would you like to do next?
`

	// emptyCodeCorrection follows a CODE round with nothing to run.
	emptyCodeCorrection = "No code was extracted. Please provide a valid Go snippet in a [CODE] block."

	// unknownNotice is the telemetry content of an UNKNOWN round.
	unknownNotice = "No clear action tag detected, reminding the model..."
)

type step struct {
	Name        string
	Description string
	Category    string
	Known       bool
}

type tableView struct {
	Shape       table.Shape
	Columns     string
	Preview     string
	PreviewRows int
}

func newTableView(t *table.Table, rows int) tableView {
	return tableView{
		Shape:       t.Shape(),
		Columns:     fmt.Sprintf("%q", t.Columns()),
		Preview:     t.Preview(rows),
		PreviewRows: rows,
	}
}

// visibleMeta returns the metadata worth showing, or nil when it is empty or
// reports a loading error.
func visibleMeta(m domain.TableMeta) *domain.TableMeta {
	if m == (domain.TableMeta{}) || m.Error != "" {
		return nil
	}
	return &m
}

func render(name string, data any) (string, error) {
	var b strings.Builder
	if err := prompts.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return b.String(), nil
}

func (e *Engine) taskPrompt(req domain.Request, budget int) (string, error) {
	steps := make([]step, len(req.ReferenceSteps))
	for i, name := range req.ReferenceSteps {
		op, ok := req.Catalog[name]
		steps[i] = step{Name: name, Known: ok}
		if ok {
			if op.Name != "" {
				steps[i].Name = op.Name
			}
			steps[i].Description = op.Description
			steps[i].Category = op.Category
		}
	}
	schema := req.Schema.SelectedColumns
	return render("task.tmpl", struct {
		tableView
		Question      string
		SchemaColumns []string
		SchemaCount   int
		Meta          *domain.TableMeta
		Steps         []step
		MaxIterations int
	}{
		tableView:     newTableView(req.Table, e.previewRows),
		Question:      req.Question,
		SchemaColumns: schema[:min(len(schema), maxSchemaColumns)],
		SchemaCount:   len(schema),
		Meta:          visibleMeta(req.Meta),
		Steps:         steps,
		MaxIterations: budget,
	})
}

func (e *Engine) successFeedback(t *table.Table, stdout string) (string, error) {
	return render("success.tmpl", struct {
		tableView
		Stdout string
	}{newTableView(t, e.previewRows), strings.TrimSpace(stdout)})
}

func failureFeedback(errText string) (string, error) {
	return render("failure.tmpl", struct{ Error string }{errText})
}

func (e *Engine) forcePrompt(question string, t *table.Table, meta domain.TableMeta, recent string) (string, error) {
	return render("force.tmpl", struct {
		tableView
		Question      string
		Meta          *domain.TableMeta
		Recent        string
		RecentEntries int
	}{
		tableView:     newTableView(t, e.previewRows),
		Question:      question,
		Meta:          visibleMeta(meta),
		Recent:        recent,
		RecentEntries: forceRecentEntries,
	})
}

// plainFeedback is used when a feedback template cannot be rendered.
func plainFeedback(res domain.ExecutionResult, t *table.Table) string {
	if !res.Succeeded {
		return feedbackEntry("Code execution failed: " + res.Error)
	}
	text := fmt.Sprintf("Code executed successfully. Shape: %s. Columns: %q.", t.Shape(), t.Columns())
	if out := strings.TrimSpace(res.Stdout); out != "" {
		text += "\nOutput:\n" + out
	}
	return feedbackEntry(text)
}

func responseEntry(round int, response string) string {
	return fmt.Sprintf("\n## Assistant Response (Round %d)\n%s", round, response)
}

func feedbackEntry(text string) string {
	return "\n## System Feedback\n" + text
}
