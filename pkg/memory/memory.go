// Package memory maintains long-lived facts about each contact. Outbound
// messages bump a per-contact counter; when it crosses the threshold the
// recent dialogue is run through the LLM to re-extract a compact fact list.
// Everything here is best-effort: a failed update is logged and the
// conversation goes on.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kimy-labs/kimy/pkg/domain"
	"github.com/kimy-labs/kimy/pkg/logger"
	"github.com/kimy-labs/kimy/pkg/providers"
)

const component = "memory"

// maxDialogueMessages bounds how much conversation one extraction sees.
const maxDialogueMessages = 30

const extractionSystem = "Voce extrai e organiza fatos sobre pessoas a partir de conversas."

// Tracker owns the counter-then-extract cycle.
type Tracker struct {
	memories domain.ContactMemoryRepository
	messages domain.MessageRepository
	provider providers.Provider

	botName   string
	threshold int
}

// NewTracker creates a memory tracker that re-extracts facts every
// threshold outbound messages.
func NewTracker(
	memories domain.ContactMemoryRepository,
	messages domain.MessageRepository,
	provider providers.Provider,
	botName string,
	threshold int,
) *Tracker {
	return &Tracker{
		memories:  memories,
		messages:  messages,
		provider:  provider,
		botName:   botName,
		threshold: threshold,
	}
}

// TrackOutbound counts one outbound message and, at the threshold, updates
// the contact's memory in the background. Errors never propagate.
func (t *Tracker) TrackOutbound(ctx context.Context, contactID, conversationID domain.EntityID) {
	count, err := t.memories.TrackOutbound(ctx, contactID)
	if err != nil {
		logger.ErrorCF(component, "Failed to track outbound message", map[string]interface{}{
			"contact_id": string(contactID),
			"error":      err.Error(),
		})
		return
	}
	if count < t.threshold {
		return
	}
	go func() {
		updateCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := t.Update(updateCtx, contactID, conversationID); err != nil {
			logger.ErrorCF(component, "Failed to update memory", map[string]interface{}{
				"contact_id": string(contactID),
				"error":      err.Error(),
			})
		}
	}()
}

// Update re-extracts the fact list from the dialogue since the last
// processed message. Fewer than three new messages is not worth a call.
func (t *Tracker) Update(ctx context.Context, contactID, conversationID domain.EntityID) error {
	existing := ""
	var after time.Time

	mem, err := t.memories.Get(ctx, contactID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// first extraction for this contact
	case err != nil:
		return err
	default:
		existing = mem.Facts
		if mem.LastProcessedMessageID != "" {
			last, err := t.messages.FindByID(ctx, mem.LastProcessedMessageID)
			if err == nil {
				after = last.CreatedAt
			} else if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
		}
	}

	recent, err := t.messages.Since(ctx, conversationID, after, maxDialogueMessages)
	if err != nil {
		return err
	}
	if len(recent) < 3 {
		logger.DebugCF(component, "Too few new messages, skipping update", map[string]interface{}{
			"contact_id": string(contactID),
			"messages":   len(recent),
		})
		return nil
	}

	facts, err := t.provider.Generate(ctx, providers.GenerateRequest{
		SystemInstruction: extractionSystem,
		UserMessage:       t.extractionPrompt(existing, recent),
	})
	if err != nil {
		return fmt.Errorf("memory: extract facts: %w", err)
	}
	facts = strings.TrimSpace(facts)
	if facts == "" {
		return nil
	}

	lastID := recent[len(recent)-1].ID
	if err := t.memories.SaveFacts(ctx, contactID, facts, lastID); err != nil {
		return err
	}

	logger.InfoCF(component, "Memory updated", map[string]interface{}{
		"contact_id": string(contactID),
	})
	return nil
}

// Facts returns the stored fact list, or empty when there is none yet.
func (t *Tracker) Facts(ctx context.Context, contactID domain.EntityID) string {
	mem, err := t.memories.Get(ctx, contactID)
	if err != nil {
		return ""
	}
	return mem.Facts
}

func (t *Tracker) extractionPrompt(existing string, msgs []*domain.Message) string {
	var dialogue strings.Builder
	for i, m := range msgs {
		if i > 0 {
			dialogue.WriteByte('\n')
		}
		speaker := t.botName
		if m.Direction == domain.DirectionInbound {
			speaker = "Pessoa"
		}
		dialogue.WriteString(speaker)
		dialogue.WriteString(": ")
		dialogue.WriteString(m.Content)
	}

	if existing == "" {
		existing = "(nenhum ainda)"
	}

	return fmt.Sprintf(`Voce e um sistema de extracao de memoria. Analise a conversa abaixo e extraia fatos importantes sobre a PESSOA (NAO sobre voce).

FATOS EXISTENTES:
%s

CONVERSA RECENTE:
%s

INSTRUCOES:
- Extraia fatos sobre a pessoa: nome, idade, cidade, trabalho, hobbies, gostos, familia, rotina, problemas, planos, etc.
- Mantenha fatos antigos que ainda sao validos.
- Atualize fatos que mudaram (ex: "mora em SP" -> "mudou pra BH").
- Adicione fatos novos relevantes.
- Remova informacoes temporarias (ex: "ta com fome agora").
- Maximo 15 fatos.
- Formato: um fato por linha, sem numeracao, sem bullet points.
- Escreva de forma concisa e direta.
- Se nao houver fatos novos relevantes, retorne os existentes sem mudanca.
- Retorne APENAS os fatos, sem explicacoes.`, existing, dialogue.String())
}
