package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Ref is a reference to another entity. The API sends it either as a
// bare id string or as an embedded (populated) object; both decode to
// the id.
type Ref string

// UnmarshalJSON accepts "id", {"_id": "id"}, {"id": "id"} and null.
func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = Ref(s)
		return nil
	}

	var obj struct {
		ID      string `json:"id"`
		MongoID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decoding reference: %w", err)
	}
	if obj.ID != "" {
		*r = Ref(obj.ID)
	} else {
		*r = Ref(obj.MongoID)
	}
	return nil
}

// Project is a project as served by GET/POST /api/projects.
type Project struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Task carries the fields needed to find a task's parent project.
type Task struct {
	ID      string `json:"id" db:"id"`
	Title   string `json:"title" db:"title"`
	Project Ref    `json:"project" db:"project_id"`
}

// Comment belongs directly to a project or to a task.
type Comment struct {
	ID      string `json:"id" db:"id"`
	Content string `json:"content" db:"content"`
	Project Ref    `json:"project,omitempty" db:"project_id"`
	Task    Ref    `json:"task,omitempty" db:"task_id"`
}

// Document always belongs to a project.
type Document struct {
	ID      string `json:"id" db:"id"`
	Name    string `json:"name" db:"name"`
	Project Ref    `json:"project" db:"project_id"`
}
