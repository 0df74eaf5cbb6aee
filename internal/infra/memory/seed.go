package memory

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	"quiz-participation-service/internal/domain"
)

// Seed is a catalog snapshot for running without Postgres.
type Seed struct {
	Quizzes     map[string]domain.QuizConfig
	Invitations map[string][]Invitation
}

// LoadSeed reads quizzes and invitations from a YAML file. Keys follow the JSON
// field names of domain.QuizConfig; times must be RFC 3339.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, err
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) (Seed, error) {
	var raw struct {
		Quizzes     []any                   `yaml:"quizzes"`
		Invitations map[string][]Invitation `yaml:"invitations"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Seed{}, fmt.Errorf("parse seed: %w", err)
	}

	// Quiz configs only carry JSON tags, so hop through JSON.
	buf, err := json.Marshal(raw.Quizzes)
	if err != nil {
		return Seed{}, fmt.Errorf("encode seed quizzes: %w", err)
	}
	var quizzes []domain.QuizConfig
	if err := json.Unmarshal(buf, &quizzes); err != nil {
		return Seed{}, fmt.Errorf("decode seed quizzes: %w", err)
	}

	seed := Seed{
		Quizzes:     make(map[string]domain.QuizConfig, len(quizzes)),
		Invitations: raw.Invitations,
	}
	for _, q := range quizzes {
		if q.ID == "" {
			return Seed{}, fmt.Errorf("seed quiz without id")
		}
		seed.Quizzes[q.ID] = q
	}
	return seed, nil
}
