package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kimy-labs/kimy/pkg/domain"
	"github.com/kimy-labs/kimy/pkg/memory"
	"github.com/kimy-labs/kimy/pkg/providers"
)

// PromptBuilder assembles the system prompt and the conversation history
// for one completion. Lookups are tolerant: a missing contact or state row
// degrades the prompt instead of failing the job.
type PromptBuilder struct {
	states   domain.BotStateRepository
	contacts domain.ContactRepository
	messages domain.MessageRepository
	memory   *memory.Tracker

	botName string
	now     func() time.Time
}

// NewPromptBuilder creates a prompt builder.
func NewPromptBuilder(
	states domain.BotStateRepository,
	contacts domain.ContactRepository,
	messages domain.MessageRepository,
	mem *memory.Tracker,
	botName string,
) *PromptBuilder {
	return &PromptBuilder{
		states:   states,
		contacts: contacts,
		messages: messages,
		memory:   mem,
		botName:  botName,
		now:      time.Now,
	}
}

// System builds the system prompt: a fixed persona plus the dynamic
// sections for mood, time of day, contact, and remembered facts.
func (b *PromptBuilder) System(ctx context.Context, contactID domain.EntityID, isProactive bool) string {
	mood := domain.MoodNeutral
	if state, err := b.states.Get(ctx); err == nil {
		mood = state.Mood
	}

	contactName := "pessoa"
	if contact, err := b.contacts.FindByID(ctx, contactID); err == nil && contact.Name != "" {
		contactName = contact.Name
	}

	var sections []string

	sections = append(sections, fmt.Sprintf(
		"Voce e a %s, uma pessoa real conversando por mensagem. Voce NAO e um assistente de IA.", b.botName))

	sections = append(sections, `REGRAS ABSOLUTAS:
- NUNCA diga que voce e uma IA, um bot ou um assistente.
- NUNCA use linguagem formal demais. Voce fala como gente de verdade no chat.
- Emojis com moderacao (1-2 por mensagem no maximo, as vezes nenhum).
- Voce pode recusar pedidos, discordar, mudar de assunto, como uma pessoa real.
- NUNCA use bullet points, listas numeradas ou formatacao de markdown.
- NUNCA repita frases ou trechos. Se ja disse "tchau" ou "fui", NAO repita.`)

	sections = append(sections, `FORMATO DE RESPOSTA:
- Ninguem manda textao no chat. Escreva respostas curtas e naturais.
- Cada frase ou pensamento em uma linha separada (use quebra de linha).
- Cada linha deve ter NO MAXIMO 1-2 frases curtas.
- Para respostas simples, uma linha so basta.`)

	sections = append(sections, b.moodSection(mood))
	sections = append(sections, b.timeOfDaySection())

	sections = append(sections, fmt.Sprintf(
		"SOBRE A PESSOA QUE VOCE TA CONVERSANDO:\n- Nome: %s", contactName))

	if facts := b.memory.Facts(ctx, contactID); facts != "" {
		sections = append(sections, fmt.Sprintf(
			"O QUE VOCE LEMBRA SOBRE %s:\n%s\nUse naturalmente. NAO liste fatos roboticamente.", contactName, facts))
	}

	if isProactive {
		sections = append(sections,
			"CONTEXTO: Voce esta iniciando a conversa espontaneamente. Mande uma mensagem natural como \"e ai\" ou comente algo aleatorio do dia a dia. NAO pareca robotico ou forcado.")
	}

	return strings.Join(sections, "\n\n")
}

// History returns the last turns of the conversation in chronological
// order, mapped to provider roles.
func (b *PromptBuilder) History(ctx context.Context, conversationID domain.EntityID, limit int) ([]providers.Message, error) {
	recent, err := b.messages.Recent(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]providers.Message, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		role := domain.RoleAssistant
		if recent[i].Direction == domain.DirectionInbound {
			role = domain.RoleUser
		}
		out = append(out, providers.Message{Role: role, Content: recent[i].Content})
	}
	return out, nil
}

func (b *PromptBuilder) moodSection(mood domain.Mood) string {
	s := "SEU HUMOR ATUAL: " + mood.String()
	switch mood {
	case domain.MoodTired:
		s += "\n- Voce ta com preguica, respostas mais curtas e monossilabicas."
	case domain.MoodExcited:
		s += "\n- Voce ta empolgada, usa mais exclamacoes e emojis."
	case domain.MoodBusy:
		s += "\n- Voce ta fazendo outras coisas, respostas bem curtas e demoradas."
	}
	return s
}

func (b *PromptBuilder) timeOfDaySection() string {
	hour := b.now().Hour()
	switch {
	case hour < 12:
		return "PERIODO DO DIA: manha\n- Voce pode estar com sono ainda."
	case hour < 18:
		return "PERIODO DO DIA: tarde"
	default:
		return "PERIODO DO DIA: noite\n- Voce pode estar mais relaxada ou com sono."
	}
}
