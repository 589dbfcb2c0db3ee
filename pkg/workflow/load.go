package workflow

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	pkgerrors "github.com/tombee/drover/pkg/errors"
)

// Load reads a workflow document. The format is chosen by extension:
// .yaml/.yml, .json, or .xml. The returned workflow is validated and its
// when expressions are compiled.
func Load(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}

	var wf Workflow
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &wf)
	case ".json":
		err = json.Unmarshal(data, &wf)
	case ".xml":
		err = xml.Unmarshal(data, &wf)
	default:
		return nil, &pkgerrors.ValidationError{
			Field:      "path",
			Message:    fmt.Sprintf("unsupported workflow format %q", filepath.Ext(path)),
			Suggestion: "use a .yaml, .json or .xml workflow file",
		}
	}
	if err != nil {
		return nil, fmt.Errorf("parse workflow %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	wf.Path = abs

	normalize(&wf)
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	if err := compileWhens(&wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// normalize folds the steps alias into Transitions and defaults the
// initial state to the first transition's from.
func normalize(wf *Workflow) {
	if len(wf.Transitions) == 0 && len(wf.Steps) > 0 {
		wf.Transitions = wf.Steps
	}
	wf.Steps = nil
	if wf.InitialState == "" && len(wf.Transitions) > 0 {
		wf.InitialState = wf.Transitions[0].From()
	}
}
