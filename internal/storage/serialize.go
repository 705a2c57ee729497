package storage

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/tick-md/tick/pkg/models"
	"gopkg.in/yaml.v3"
)

// metaBlock is the wire form of the front matter. Field order here is the
// order fields appear on disk.
type metaBlock struct {
	Project         string   `yaml:"project"`
	Title           string   `yaml:"title,omitempty"`
	SchemaVersion   string   `yaml:"schema_version"`
	Created         string   `yaml:"created"`
	Updated         string   `yaml:"updated"`
	DefaultWorkflow []string `yaml:"default_workflow,flow"`
	IDPrefix        string   `yaml:"id_prefix"`
	NextID          int      `yaml:"next_id"`
}

type deliverableBlock struct {
	Name      string `yaml:"name"`
	Path      string `yaml:"path,omitempty"`
	Completed bool   `yaml:"completed,omitempty"`
}

type historyBlock struct {
	At     string `yaml:"ts"`
	Actor  string `yaml:"who"`
	Action string `yaml:"action"`
	Note   string `yaml:"note,omitempty"`
	From   string `yaml:"from,omitempty"`
	To     string `yaml:"to,omitempty"`
}

// taskBlock is the wire form of the fenced yaml block under each task heading.
type taskBlock struct {
	ID             string             `yaml:"id"`
	Title          string             `yaml:"title"`
	Status         string             `yaml:"status"`
	Priority       string             `yaml:"priority,omitempty"`
	AssignedTo     string             `yaml:"assigned_to,omitempty"`
	ClaimedBy      string             `yaml:"claimed_by,omitempty"`
	CreatedBy      string             `yaml:"created_by,omitempty"`
	CreatedAt      string             `yaml:"created_at"`
	UpdatedAt      string             `yaml:"updated_at"`
	DueDate        string             `yaml:"due_date,omitempty"`
	Tags           []string           `yaml:"tags,omitempty,flow"`
	DependsOn      []string           `yaml:"depends_on,omitempty,flow"`
	Blocks         []string           `yaml:"blocks,omitempty,flow"`
	EstimatedHours *float64           `yaml:"estimated_hours,omitempty"`
	ActualHours    *float64           `yaml:"actual_hours,omitempty"`
	DetailFile     string             `yaml:"detail_file,omitempty"`
	Deliverables   []deliverableBlock `yaml:"deliverables,omitempty"`
	History        []historyBlock     `yaml:"history,omitempty"`
}

const (
	agentsHeading = "Agents"
	tasksHeading  = "Tasks"
	emptyCell     = "-"
)

var agentColumns = []string{"Name", "Type", "Roles", "Status", "Working On", "Last Active", "Trust"}

// Serialize renders a document in canonical form. The same model always
// yields byte-identical output.
func Serialize(f *models.TickFile) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("serializing document: nil document")
	}

	var buf bytes.Buffer

	meta, err := encodeYAML(metaFromModel(f.Meta))
	if err != nil {
		return nil, fmt.Errorf("serializing front matter: %w", err)
	}
	buf.WriteString("---\n")
	buf.Write(meta)
	buf.WriteString("---\n\n")

	heading := f.Meta.Title
	if heading == "" {
		heading = f.Meta.Project
	}
	fmt.Fprintf(&buf, "# %s\n\n", heading)
	if f.Notes != "" {
		buf.WriteString(escapeProse(f.Notes, notesHeadings...))
		buf.WriteString("\n\n")
	}

	if len(f.Agents) > 0 {
		fmt.Fprintf(&buf, "## %s\n\n", agentsHeading)
		writeAgentTable(&buf, f.Agents)
		buf.WriteString("\n")
	}

	fmt.Fprintf(&buf, "## %s\n", tasksHeading)
	for i := range f.Tasks {
		if err := writeTask(&buf, &f.Tasks[i]); err != nil {
			return nil, err
		}
	}

	for _, s := range f.Extra {
		fmt.Fprintf(&buf, "\n## %s\n", s.Heading)
		if s.Body != "" {
			buf.WriteString("\n")
			buf.WriteString(s.Body)
			buf.WriteString("\n")
		}
	}

	return buf.Bytes(), nil
}

func writeTask(buf *bytes.Buffer, t *models.Task) error {
	block, err := encodeYAML(taskToBlock(t))
	if err != nil {
		return fmt.Errorf("serializing task %s: %w", t.ID, err)
	}
	for _, line := range strings.Split(string(block), "\n") {
		if fenceMarker(line) != "" {
			return fmt.Errorf("serializing task %s: a field value has a line starting with %q", t.ID, fenceMarker(line))
		}
	}
	fmt.Fprintf(buf, "\n### %s · %s\n\n", t.ID, singleLine(t.Title))
	buf.WriteString("```yaml\n")
	buf.Write(block)
	buf.WriteString("```\n")
	if t.Description != "" {
		buf.WriteString("\n")
		buf.WriteString(escapeProse(t.Description, descriptionHeadings...))
		buf.WriteString("\n")
	}
	return nil
}

func writeAgentTable(buf *bytes.Buffer, agents []models.Agent) {
	buf.WriteString("| " + strings.Join(agentColumns, " | ") + " |\n")
	seps := make([]string, len(agentColumns))
	for i, c := range agentColumns {
		seps[i] = strings.Repeat("-", len(c))
	}
	buf.WriteString("| " + strings.Join(seps, " | ") + " |\n")
	for _, a := range agents {
		cells := []string{
			a.Name,
			string(a.Type),
			strings.Join(a.Roles, ", "),
			string(a.Status),
			a.WorkingOn,
			formatOptionalTime(a.LastActive),
			string(a.TrustLevel),
		}
		for i, c := range cells {
			cells[i] = tableCell(c)
		}
		buf.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
}

func tableCell(s string) string {
	s = strings.TrimSpace(singleLine(s))
	if s == "" {
		return emptyCell
	}
	return strings.ReplaceAll(s, "|", `\|`)
}

// Headings the parser splits on in the preamble and inside the task list.
var (
	notesHeadings       = []string{"# ", "## "}
	descriptionHeadings = []string{"## ", "### "}
)

// escapeProse backslash-escapes the lines of free text that would otherwise
// end the section it is written in: lines starting with one of headings
// outside a code fence, and the opening line of a fence that never closes.
// Lines already starting with backslashes before "#" or a fence marker get
// one more so unescapeProse restores them exactly.
func escapeProse(s string, headings ...string) string {
	lines := strings.Split(s, "\n")
	fence := ""
	for i, line := range lines {
		if strings.HasPrefix(line, `\`) {
			if proseMarker(strings.TrimLeft(line, `\`)) {
				lines[i] = `\` + line
			}
			continue
		}
		if fence != "" {
			if isFenceClose(line, fence) {
				fence = ""
			}
			continue
		}
		if marker := fenceMarker(line); marker != "" {
			if fenceCloses(lines[i+1:], marker) {
				fence = marker
			} else {
				lines[i] = `\` + line
			}
			continue
		}
		for _, h := range headings {
			if strings.HasPrefix(line, h) {
				lines[i] = `\` + line
				break
			}
		}
	}
	return strings.Join(lines, "\n")
}

// unescapeProse reverses escapeProse.
func unescapeProse(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, `\`) && proseMarker(strings.TrimLeft(line, `\`)) {
			lines[i] = line[1:]
		}
	}
	return strings.Join(lines, "\n")
}

func proseMarker(line string) bool {
	return strings.HasPrefix(line, "#") || fenceMarker(line) != ""
}

func fenceCloses(lines []string, marker string) bool {
	for _, line := range lines {
		if isFenceClose(line, marker) {
			return true
		}
	}
	return false
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func encodeYAML(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func metaFromModel(m models.ProjectMeta) metaBlock {
	return metaBlock{
		Project:         m.Project,
		Title:           m.Title,
		SchemaVersion:   m.SchemaVersion,
		Created:         formatTime(m.Created),
		Updated:         formatTime(m.Updated),
		DefaultWorkflow: m.DefaultWorkflow,
		IDPrefix:        m.IDPrefix,
		NextID:          m.NextID,
	}
}

func taskToBlock(t *models.Task) taskBlock {
	b := taskBlock{
		ID:             t.ID,
		Title:          t.Title,
		Status:         string(t.Status),
		Priority:       string(t.Priority),
		AssignedTo:     t.AssignedTo,
		ClaimedBy:      t.ClaimedBy,
		CreatedBy:      t.CreatedBy,
		CreatedAt:      formatTime(t.CreatedAt),
		UpdatedAt:      formatTime(t.UpdatedAt),
		Tags:           t.Tags,
		DependsOn:      t.DependsOn,
		Blocks:         t.Blocks,
		EstimatedHours: t.EstimatedHours,
		ActualHours:    t.ActualHours,
		DetailFile:     t.DetailFile,
	}
	if t.DueDate != nil {
		b.DueDate = formatTime(*t.DueDate)
	}
	for _, d := range t.Deliverables {
		b.Deliverables = append(b.Deliverables, deliverableBlock{Name: d.Name, Path: d.Path, Completed: d.Completed})
	}
	for _, h := range t.History {
		b.History = append(b.History, historyBlock{
			At:     formatTime(h.At),
			Actor:  h.Actor,
			Action: string(h.Action),
			Note:   h.Note,
			From:   string(h.From),
			To:     string(h.To),
		})
	}
	return b
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatOptionalTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return formatTime(t)
}
