package runner

import (
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/VatsalSy/SyncGuard/internal/errors"
	"github.com/VatsalSy/SyncGuard/internal/model"
)

// JobFile is the YAML document read by the CLI. A state on an operation
// overrides the file-wide one.
type JobFile struct {
	SystemState *model.SystemState `yaml:"system_state"`
	Operations  []JobSpec          `yaml:"operations"`
}

// JobSpec is one failed operation in a JobFile.
type JobSpec struct {
	model.SyncOperation `yaml:",inline"`

	State    *model.SystemState `yaml:"system_state,omitempty"`
	Conflict *ConflictSpec      `yaml:"conflict,omitempty"`
}

// ConflictSpec describes a conflicting record pair.
type ConflictSpec struct {
	Local  *RecordSpec `yaml:"local"`
	Remote *RecordSpec `yaml:"remote"`
	Base   *RecordSpec `yaml:"base,omitempty"`
}

// RecordSpec is one version of a record.
type RecordSpec struct {
	Data      map[string]interface{} `yaml:"data"`
	UpdatedAt time.Time              `yaml:"updated_at"`
}

func (r *RecordSpec) record() *model.Record {
	if r == nil {
		return nil
	}
	return &model.Record{Data: r.Data, UpdatedAt: r.UpdatedAt}
}

// LoadJobs decodes a JobFile into jobs. Operations without a status are
// taken to be FAILED.
func LoadJobs(r io.Reader) ([]Job, error) {
	var file JobFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, errors.Configuration("load_jobs", "invalid job file: %v", err)
	}

	jobs := make([]Job, 0, len(file.Operations))
	for i := range file.Operations {
		spec := file.Operations[i]
		if spec.ID == "" {
			return nil, errors.Configuration("load_jobs", "operation %d has no id", i)
		}

		op := spec.SyncOperation
		if op.Status == "" {
			op.Status = model.StatusFailed
		}

		job := Job{Operation: &op, State: file.SystemState}
		if spec.State != nil {
			job.State = spec.State
		}
		if c := spec.Conflict; c != nil {
			job.Conflict = &model.Conflict{
				Table:    op.Table,
				RecordID: op.RecordID,
				Local:    c.Local.record(),
				Remote:   c.Remote.record(),
				Base:     c.Base.record(),
			}
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
