// Package settings persists what the user typed last time: API key, prompts,
// output format and a short most-recently-used prompt history.
package settings

import (
	"context"
	"errors"
	"sort"
	"time"
)

// HistorySize bounds the prompt history.
const HistorySize = 10

// Settings is the persisted state. It is loaded explicitly, changed in memory
// and written back with Store.Save.
type Settings struct {
	APIKey       string         `yaml:"apiKey" json:"apiKey"`
	SystemPrompt string         `yaml:"systemPrompt" json:"systemPrompt"`
	UserPrompt   string         `yaml:"userPrompt" json:"userPrompt"`
	Format       string         `yaml:"format" json:"format"`
	History      []HistoryEntry `yaml:"history" json:"history"`
}

// HistoryEntry is one remembered user prompt.
type HistoryEntry struct {
	Prompt   string    `yaml:"prompt" json:"prompt"`
	LastUsed time.Time `yaml:"lastUsed" json:"lastUsed"`
	UseCount int       `yaml:"useCount" json:"useCount"`
}

// Store loads and saves Settings. Load on a store that was never written
// returns zero Settings and no error.
type Store interface {
	Load(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings) error
}

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("settings store closed")

// RecordPrompt moves prompt to the front of the history. A prompt already
// present (exact match) has its use count incremented instead of being
// duplicated. The history keeps the HistorySize most recently used entries.
func (s *Settings) RecordPrompt(prompt string, now time.Time) {
	if prompt == "" {
		return
	}
	found := false
	for i := range s.History {
		if s.History[i].Prompt == prompt {
			s.History[i].LastUsed = now
			s.History[i].UseCount++
			found = true
			break
		}
	}
	if !found {
		s.History = append([]HistoryEntry{{Prompt: prompt, LastUsed: now, UseCount: 1}}, s.History...)
	}
	sort.SliceStable(s.History, func(i, j int) bool {
		return s.History[i].LastUsed.After(s.History[j].LastUsed)
	})
	if len(s.History) > HistorySize {
		s.History = s.History[:HistorySize]
	}
}
