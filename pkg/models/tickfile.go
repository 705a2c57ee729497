package models

import "time"

// SchemaVersion is written into newly created documents.
const SchemaVersion = "1.0"

// DefaultWorkflow is the status order used when a project does not set one.
var DefaultWorkflow = []string{"backlog", "todo", "in_progress", "review", "done"}

// ProjectMeta is the front matter of a document.
type ProjectMeta struct {
	Project         string
	Title           string
	SchemaVersion   string
	Created         time.Time
	Updated         time.Time
	DefaultWorkflow []string
	IDPrefix        string
	NextID          int
}

// Section is a second-level document section the tool does not interpret.
type Section struct {
	Heading string
	Body    string
}

// TickFile is the full in-memory content of a document.
type TickFile struct {
	Meta   ProjectMeta
	Notes  string
	Agents []Agent
	Tasks  []Task
	Extra  []Section
}

// Task returns a pointer to the task with the given ID, or nil.
func (f *TickFile) Task(id string) *Task {
	for i := range f.Tasks {
		if f.Tasks[i].ID == id {
			return &f.Tasks[i]
		}
	}
	return nil
}

// Agent returns a pointer to the agent with the given name, or nil.
func (f *TickFile) Agent(name string) *Agent {
	for i := range f.Agents {
		if f.Agents[i].Name == name {
			return &f.Agents[i]
		}
	}
	return nil
}

// Touch refreshes Meta.Updated.
func (f *TickFile) Touch(at time.Time) {
	f.Meta.Updated = at
}

// Clone returns a deep copy of the document.
func (f *TickFile) Clone() *TickFile {
	if f == nil {
		return nil
	}
	c := &TickFile{
		Meta:  f.Meta,
		Notes: f.Notes,
	}
	c.Meta.DefaultWorkflow = cloneStrings(f.Meta.DefaultWorkflow)
	if f.Agents != nil {
		c.Agents = make([]Agent, len(f.Agents))
		for i, a := range f.Agents {
			a.Roles = cloneStrings(a.Roles)
			c.Agents[i] = a
		}
	}
	if f.Tasks != nil {
		c.Tasks = make([]Task, len(f.Tasks))
		for i, t := range f.Tasks {
			c.Tasks[i] = t.Clone()
		}
	}
	if f.Extra != nil {
		c.Extra = append([]Section(nil), f.Extra...)
	}
	return c
}
