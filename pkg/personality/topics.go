package personality

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Topic is one conversation starter the proactive evaluator can pick.
type Topic struct {
	Name   string `yaml:"name"`
	Prompt string `yaml:"prompt"`
}

// DefaultTopics returns the built-in conversation starters.
func DefaultTopics() []Topic {
	return []Topic{
		{Name: "dia_a_dia", Prompt: "Mande uma mensagem casual perguntando como ta o dia da pessoa. Seja natural."},
		{Name: "meme_reference", Prompt: "Mande algo engracado ou uma observacao com humor sobre o cotidiano."},
		{Name: "food", Prompt: "Mande algo sobre comida, tipo \"ja comeu?\" ou comente algo que voce \"comeu\"."},
		{Name: "plans", Prompt: "Pergunte o que a pessoa vai fazer hoje ou no final de semana."},
		{Name: "random_thought", Prompt: "Compartilhe um pensamento aleatorio sobre algo do dia a dia."},
		{Name: "music", Prompt: "Comente sobre uma musica ou algo que voce ta \"ouvindo\"."},
		{Name: "complain", Prompt: "Reclame de algo cotidiano de forma leve e engracada."},
		{Name: "question", Prompt: "Faca uma pergunta aleatoria interessante ou engracada."},
	}
}

type topicsFile struct {
	Topics []Topic `yaml:"topics"`
}

// LoadTopics reads topics from a YAML file. An empty path returns the
// built-in set.
func LoadTopics(path string) ([]Topic, error) {
	if path == "" {
		return DefaultTopics(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("personality: read topics file: %w", err)
	}
	var f topicsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("personality: parse topics file: %w", err)
	}
	if len(f.Topics) == 0 {
		return nil, fmt.Errorf("personality: topics file %s defines no topics", path)
	}
	for i, t := range f.Topics {
		if t.Name == "" || t.Prompt == "" {
			return nil, fmt.Errorf("personality: topic %d is missing a name or prompt", i)
		}
	}
	return f.Topics, nil
}

// PromptFor resolves the prompt for a topic name, falling back to the
// first topic when the name is unknown.
func PromptFor(topics []Topic, name string) string {
	for _, t := range topics {
		if t.Name == name {
			return t.Prompt
		}
	}
	return topics[0].Prompt
}
