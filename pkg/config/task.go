package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TaskFile describes a browser task run from a YAML file.
//
//	task: go to example.com and report the title
//	context: research
//	timeout: 5m
//	takeover: false
//	serve: ":8089"
type TaskFile struct {
	Task     string        `yaml:"task" json:"task"`
	Context  string        `yaml:"context" json:"context"`
	Reset    bool          `yaml:"reset" json:"reset"`
	Takeover bool          `yaml:"takeover" json:"takeover"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
	Serve    string        `yaml:"serve" json:"serve"`
}

// LoadTaskFile reads and validates a YAML task file.
func LoadTaskFile(path string) (*TaskFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}

	var tf TaskFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("failed to parse task file: %w", err)
	}
	if err := tf.Validate(); err != nil {
		return nil, err
	}
	return &tf, nil
}

// Validate checks the task file.
func (tf *TaskFile) Validate() error {
	if tf.Task == "" && !tf.Takeover {
		return fmt.Errorf("task description is required")
	}
	if tf.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}
