package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/tick-md/tick/pkg/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// tableParser only needs GFM tables; the roster is the one place the
// document is read as markdown rather than line by line.
var tableParser = goldmark.New(goldmark.WithExtensions(extension.Table))

type sectionKind int

const (
	sectionPreamble sectionKind = iota
	sectionAgents
	sectionTasks
	sectionExtra
)

// chunk is a run of body lines belonging to one section or task.
type chunk struct {
	kind    sectionKind
	heading string
	isTask  bool
	line    int // 1-based line number of the heading
	lines   []string
}

// Parse reads a document. It never drops a task silently: anything it cannot
// interpret is reported as a *ParseError.
func Parse(data []byte) (*models.TickFile, error) {
	src := strings.ReplaceAll(string(data), "\r\n", "\n")
	lines := strings.Split(src, "\n")

	meta, bodyStart, err := parseFrontMatter(lines)
	if err != nil {
		return nil, err
	}

	f := &models.TickFile{Meta: meta}
	chunks := splitBody(lines[bodyStart:], bodyStart+1)

	seen := make(map[string]int)
	for _, c := range chunks {
		switch c.kind {
		case sectionPreamble:
			f.Notes = preambleNotes(c.lines)
		case sectionAgents:
			agents, err := parseAgentTable(c)
			if err != nil {
				return nil, err
			}
			f.Agents = agents
		case sectionTasks:
			if !c.isTask {
				// Prose between "## Tasks" and the first task heading is not
				// part of the model.
				continue
			}
			task, err := parseTask(c)
			if err != nil {
				return nil, err
			}
			if task.ID != "" {
				if first, dup := seen[task.ID]; dup {
					return nil, &ParseError{
						Section: "task " + task.ID,
						Line:    c.line,
						Msg:     fmt.Sprintf("duplicate task ID (first defined on line %d)", first),
					}
				}
				seen[task.ID] = c.line
			}
			f.Tasks = append(f.Tasks, task)
		case sectionExtra:
			f.Extra = append(f.Extra, models.Section{
				Heading: c.heading,
				Body:    trimBlankLines(c.lines),
			})
		}
	}

	return f, nil
}

func parseFrontMatter(lines []string) (models.ProjectMeta, int, error) {
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return models.ProjectMeta{}, 0, &ParseError{Section: "front matter", Line: 1, Msg: "document must start with a --- metadata block"}
	}
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end < 0 {
		return models.ProjectMeta{}, 0, &ParseError{Section: "front matter", Line: 1, Msg: "metadata block is not closed with ---"}
	}

	var mb metaBlock
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:end], "\n")), &mb); err != nil {
		return models.ProjectMeta{}, 0, &ParseError{Section: "front matter", Line: 2, Msg: "malformed metadata", Err: err}
	}

	created, err := parseTime(mb.Created)
	if err != nil {
		return models.ProjectMeta{}, 0, &ParseError{Section: "front matter", Msg: "bad created timestamp", Err: err}
	}
	updated, err := parseTime(mb.Updated)
	if err != nil {
		return models.ProjectMeta{}, 0, &ParseError{Section: "front matter", Msg: "bad updated timestamp", Err: err}
	}
	if mb.NextID < 1 {
		return models.ProjectMeta{}, 0, &ParseError{Section: "front matter", Msg: fmt.Sprintf("next_id must be at least 1, got %d", mb.NextID)}
	}

	return models.ProjectMeta{
		Project:         mb.Project,
		Title:           mb.Title,
		SchemaVersion:   mb.SchemaVersion,
		Created:         created,
		Updated:         updated,
		DefaultWorkflow: nilIfEmpty(mb.DefaultWorkflow),
		IDPrefix:        mb.IDPrefix,
		NextID:          mb.NextID,
	}, end + 1, nil
}

// splitBody groups body lines by heading. Headings inside fenced code blocks
// are ignored. firstLine is the 1-based line number of lines[0].
func splitBody(lines []string, firstLine int) []chunk {
	cur := chunk{kind: sectionPreamble, line: firstLine}
	var out []chunk
	inTasks := false
	fence := ""

	for i, line := range lines {
		lineNo := firstLine + i
		if fence != "" {
			if isFenceClose(line, fence) {
				fence = ""
			}
			cur.lines = append(cur.lines, line)
			continue
		}
		if marker := fenceMarker(line); marker != "" {
			fence = marker
			cur.lines = append(cur.lines, line)
			continue
		}

		switch {
		case strings.HasPrefix(line, "## "):
			out = append(out, cur)
			name := strings.TrimSpace(strings.TrimPrefix(line, "## "))
			inTasks = false
			switch {
			case strings.EqualFold(name, agentsHeading):
				cur = chunk{kind: sectionAgents, line: lineNo}
			case strings.EqualFold(name, tasksHeading):
				cur = chunk{kind: sectionTasks, line: lineNo}
				inTasks = true
			default:
				cur = chunk{kind: sectionExtra, heading: name, line: lineNo}
			}
		case inTasks && strings.HasPrefix(line, "### "):
			out = append(out, cur)
			cur = chunk{
				kind:    sectionTasks,
				heading: strings.TrimSpace(strings.TrimPrefix(line, "### ")),
				isTask:  true,
				line:    lineNo,
			}
		case cur.kind == sectionPreamble && strings.HasPrefix(line, "# "):
			// The title heading is regenerated from the metadata.
			cur.lines = nil
		default:
			cur.lines = append(cur.lines, line)
		}
	}
	return append(out, cur)
}

func fenceMarker(line string) string {
	trimmed := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(trimmed, "```"):
		return "```"
	case strings.HasPrefix(trimmed, "~~~"):
		return "~~~"
	}
	return ""
}

// isFenceClose reports whether line closes a fence opened with marker. A
// closing fence carries no info string.
func isFenceClose(line, marker string) bool {
	trimmed := strings.TrimSpace(line)
	return len(trimmed) >= len(marker) && strings.Trim(trimmed, marker[:1]) == ""
}

func preambleNotes(lines []string) string {
	return unescapeProse(trimBlankLines(lines))
}

func parseTask(c chunk) (models.Task, error) {
	headingID := strings.Trim(firstField(c.heading), "·:")
	section := "task " + headingID

	start := -1
	for i, line := range c.lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if trimmed == "```yaml" || trimmed == "```yml" {
			start = i
		}
		break
	}
	if start < 0 {
		return models.Task{}, &ParseError{Section: section, Line: c.line, Msg: "task heading is not followed by a ```yaml block"}
	}
	end := -1
	for i := start + 1; i < len(c.lines); i++ {
		if strings.TrimSpace(c.lines[i]) == "```" {
			end = i
			break
		}
	}
	if end < 0 {
		return models.Task{}, &ParseError{Section: section, Line: c.line + start + 1, Msg: "yaml block is not closed"}
	}

	var tb taskBlock
	if err := yaml.Unmarshal([]byte(strings.Join(c.lines[start+1:end], "\n")), &tb); err != nil {
		return models.Task{}, &ParseError{Section: section, Line: c.line + start + 1, Msg: "malformed task block", Err: err}
	}
	if tb.ID == "" {
		tb.ID = headingID
	}

	task, err := taskFromBlock(tb)
	if err != nil {
		return models.Task{}, &ParseError{Section: "task " + tb.ID, Line: c.line + start + 1, Msg: err.Error()}
	}
	task.Description = unescapeProse(trimBlankLines(c.lines[end+1:]))
	return task, nil
}

func taskFromBlock(b taskBlock) (models.Task, error) {
	status := models.TaskStatus(b.Status)
	if !status.Valid() {
		return models.Task{}, fmt.Errorf("unknown status %q", b.Status)
	}
	priority := models.Priority(b.Priority)
	if priority != "" && !priority.Valid() {
		return models.Task{}, fmt.Errorf("unknown priority %q", b.Priority)
	}
	created, err := parseTime(b.CreatedAt)
	if err != nil {
		return models.Task{}, fmt.Errorf("bad created_at: %w", err)
	}
	updated, err := parseTime(b.UpdatedAt)
	if err != nil {
		return models.Task{}, fmt.Errorf("bad updated_at: %w", err)
	}

	t := models.Task{
		ID:             b.ID,
		Title:          b.Title,
		Status:         status,
		Priority:       priority,
		AssignedTo:     b.AssignedTo,
		ClaimedBy:      b.ClaimedBy,
		CreatedBy:      b.CreatedBy,
		CreatedAt:      created,
		UpdatedAt:      updated,
		Tags:           nilIfEmpty(b.Tags),
		DependsOn:      nilIfEmpty(b.DependsOn),
		Blocks:         nilIfEmpty(b.Blocks),
		EstimatedHours: b.EstimatedHours,
		ActualHours:    b.ActualHours,
		DetailFile:     b.DetailFile,
	}
	if b.DueDate != "" {
		due, err := parseTime(b.DueDate)
		if err != nil {
			return models.Task{}, fmt.Errorf("bad due_date: %w", err)
		}
		t.DueDate = &due
	}
	for _, d := range b.Deliverables {
		t.Deliverables = append(t.Deliverables, models.Deliverable{Name: d.Name, Path: d.Path, Completed: d.Completed})
	}
	for i, h := range b.History {
		at, err := parseTime(h.At)
		if err != nil {
			return models.Task{}, fmt.Errorf("history entry %d: bad ts: %w", i+1, err)
		}
		entry, err := models.NewHistoryEntry(at, h.Actor, models.HistoryAction(h.Action))
		if err != nil {
			return models.Task{}, fmt.Errorf("history entry %d: %w", i+1, err)
		}
		entry = entry.WithNote(h.Note)
		if h.From != "" || h.To != "" {
			entry = entry.WithTransition(models.TaskStatus(h.From), models.TaskStatus(h.To))
		}
		t.History = append(t.History, entry)
	}
	return t, nil
}

// parseAgentTable reads the roster table. Columns are matched by header
// name so hand-edited tables may reorder or omit optional columns.
func parseAgentTable(c chunk) ([]models.Agent, error) {
	body := strings.Join(c.lines, "\n")
	if strings.TrimSpace(body) == "" {
		return nil, nil
	}
	source := []byte(body)
	doc := tableParser.Parser().Parse(text.NewReader(source))

	var table ast.Node
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if n.Kind() == extast.KindTable {
			table = n
			break
		}
	}
	if table == nil {
		return nil, &ParseError{Section: "agents", Line: c.line, Msg: "agents section does not contain a table"}
	}

	columns := make(map[string]int)
	var agents []models.Agent
	rowNo := 0
	for row := table.FirstChild(); row != nil; row = row.NextSibling() {
		cells := tableRowCells(row, source)
		switch row.Kind() {
		case extast.KindTableHeader:
			for i, name := range cells {
				columns[strings.ToLower(name)] = i
			}
			if _, ok := columns["name"]; !ok {
				return nil, &ParseError{Section: "agents", Line: c.line, Msg: "agents table has no Name column"}
			}
		case extast.KindTableRow:
			rowNo++
			cell := func(col string) string {
				i, ok := columns[col]
				if !ok || i >= len(cells) || cells[i] == emptyCell {
					return ""
				}
				return cells[i]
			}
			a := models.Agent{
				Name:       cell("name"),
				Type:       models.AgentType(cell("type")),
				Status:     models.AgentStatus(cell("status")),
				WorkingOn:  cell("working on"),
				TrustLevel: models.TrustLevel(cell("trust")),
			}
			if a.Name == "" {
				return nil, &ParseError{Section: "agents", Line: c.line, Msg: fmt.Sprintf("row %d has no agent name", rowNo)}
			}
			for _, r := range strings.Split(cell("roles"), ",") {
				if r = strings.TrimSpace(r); r != "" {
					a.Roles = append(a.Roles, r)
				}
			}
			if ts := cell("last active"); ts != "" {
				at, err := parseTime(ts)
				if err != nil {
					return nil, &ParseError{Section: "agents", Line: c.line, Msg: fmt.Sprintf("agent %s: bad last active timestamp", a.Name), Err: err}
				}
				a.LastActive = at
			}
			agents = append(agents, a)
		}
	}
	return agents, nil
}

func tableRowCells(row ast.Node, source []byte) []string {
	var cells []string
	for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
		if cell.Kind() != extast.KindTableCell {
			continue
		}
		var sb strings.Builder
		_ = ast.Walk(cell, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
			if !entering {
				return ast.WalkContinue, nil
			}
			switch v := n.(type) {
			case *ast.Text:
				sb.Write(v.Segment.Value(source))
			case *ast.String:
				sb.Write(v.Value)
			}
			return ast.WalkContinue, nil
		})
		cells = append(cells, strings.ReplaceAll(strings.TrimSpace(sb.String()), `\|`, "|"))
	}
	return cells
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC 3339 or YYYY-MM-DD, got %q", s)
	}
	return t, nil
}

func trimBlankLines(lines []string) string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}

func firstField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}
