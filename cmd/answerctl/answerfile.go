package main

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Kocoro-lab/Shannon/go/answerview/internal/answer"
	"github.com/Kocoro-lab/Shannon/go/answerview/internal/citations"
)

// loadAnswer reads a YAML (or JSON) answer file; "-" reads stdin.
func loadAnswer(path string, in io.Reader) (*answer.Answer, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(in)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read answer: %w", err)
	}
	var a answer.Answer
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse answer %s: %w", path, err)
	}
	return &a, nil
}

func parseAnswer(a *answer.Answer, logger *zap.Logger) *answer.ParsedAnswer {
	return answer.NewParser(citations.NewResolver(logger), 1).Parse(a)
}
