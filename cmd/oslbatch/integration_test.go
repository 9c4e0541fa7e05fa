package main

import (
	"os"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// CommandTestSpec is a single oslbatch run
type CommandTestSpec struct {
	Name      string   `yaml:"name"`
	Args      []string `yaml:"args"`
	Group     string   `yaml:"group"`
	Fail      bool     `yaml:"fail"`
	Expect    []string `yaml:"expect"`     // Strings that must appear in stdout
	ExpectErr []string `yaml:"expect_err"` // Strings that must appear in stderr
	Skip      string   `yaml:"skip,omitempty"`
}

// CommandTestFile represents the oslbatch.yaml file structure
type CommandTestFile struct {
	Tests []CommandTestSpec `yaml:"tests"`
}

func TestCommandYAML(t *testing.T) {
	data, err := os.ReadFile("../../testdata/oslbatch.yaml")
	if err != nil {
		t.Fatalf("failed to read oslbatch.yaml: %v", err)
	}
	var tf CommandTestFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		t.Fatalf("failed to parse oslbatch.yaml: %v", err)
	}
	if len(tf.Tests) == 0 {
		t.Fatal("no tests in oslbatch.yaml")
	}

	for _, tc := range tf.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			if tc.Skip != "" {
				t.Skip(tc.Skip)
			}
			file := writeFile(t, "group.yaml", tc.Group)
			args := append(append([]string{}, tc.Args...), file)
			out, errOut, err := execute(t, args...)
			if tc.Fail && err == nil {
				t.Fatalf("expected oslbatch to fail\nStdout: %s", out)
			}
			if !tc.Fail && err != nil {
				t.Fatalf("oslbatch failed: %v\nStderr: %s", err, errOut)
			}
			for _, exp := range tc.Expect {
				if !strings.Contains(out, exp) {
					t.Errorf("expected stdout to contain %q\nGot:\n%s", exp, out)
				}
			}
			for _, exp := range tc.ExpectErr {
				if !strings.Contains(errOut, exp) {
					t.Errorf("expected stderr to contain %q\nGot:\n%s", exp, errOut)
				}
			}
		})
	}
}
