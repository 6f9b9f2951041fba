// Package app is the composition root: it wires the repositories, queue
// backend, transports, and the personality core into one runnable unit.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kimy-labs/kimy/pkg/bus"
	"github.com/kimy-labs/kimy/pkg/channels"
	"github.com/kimy-labs/kimy/pkg/config"
	"github.com/kimy-labs/kimy/pkg/debounce"
	"github.com/kimy-labs/kimy/pkg/domain"
	"github.com/kimy-labs/kimy/pkg/infrastructure/eventbus"
	"github.com/kimy-labs/kimy/pkg/infrastructure/persistence"
	"github.com/kimy-labs/kimy/pkg/infrastructure/queue"
	"github.com/kimy-labs/kimy/pkg/logger"
	"github.com/kimy-labs/kimy/pkg/memory"
	"github.com/kimy-labs/kimy/pkg/mood"
	"github.com/kimy-labs/kimy/pkg/personality"
	"github.com/kimy-labs/kimy/pkg/providers"
	"github.com/kimy-labs/kimy/pkg/randx"
	"github.com/kimy-labs/kimy/pkg/scheduler"
)

// Mood re-rolls happen somewhere in this window.
const (
	moodMinPeriod = 2 * time.Hour
	moodMaxPeriod = 6 * time.Hour
)

// Container holds every long-lived component of the process.
type Container struct {
	Config *config.Config

	db     *sql.DB
	events domain.EventBus
	bus    *bus.MessageBus
	queue  *queue.SQLiteBackend

	registry   *channels.Registry
	transports []channels.Transport

	moodMachine *mood.Machine
	debouncer   *debounce.Debouncer
	dispatcher  *Dispatcher
	scheduler   *scheduler.Scheduler
}

// New builds the full object graph from configuration. Nothing starts
// running until Start is called.
func New(cfg *config.Config) (*Container, error) {
	db, err := persistence.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	contacts := persistence.NewContactRepository(db)
	conversations := persistence.NewConversationRepository(db)
	messages := persistence.NewMessageRepository(db)
	states := persistence.NewBotStateRepository(db, persistence.BotStateDefaults{
		ProactiveEnabled: true,
		SleepStart:       cfg.SleepStart,
		SleepEnd:         cfg.SleepEnd,
	})
	memories := persistence.NewContactMemoryRepository(db)

	events := eventbus.New()
	mb := bus.New(256)
	rng := randx.New()

	backend, err := queue.NewSQLiteBackend(db, queue.WithEventBus(events))
	if err != nil {
		db.Close()
		return nil, err
	}

	provider, err := providers.New(cfg.LLMProvider, cfg.LLMAPIKey, cfg.LLMModel)
	if err != nil {
		db.Close()
		return nil, err
	}

	topics, err := personality.LoadTopics(cfg.TopicsPath)
	if err != nil {
		db.Close()
		return nil, err
	}

	moodMachine := mood.NewMachine(states, events, rng, moodMinPeriod, moodMaxPeriod)

	skip := personality.NewSkipEvaluator(contacts, messages, moodMachine, rng, cfg.BotName, cfg.SkipProbability)
	delay := personality.NewDelayCalculator(moodMachine, rng, cfg.BaseDelayMs, cfg.MaxDelayMs)
	engine := personality.NewEngine(skip, delay, cfg.InstantResponse)
	proactive := personality.NewProactiveEvaluator(
		states, contacts, conversations, rng, topics,
		cfg.ProactiveMinIntervalHours, cfg.ProactiveMaxIntervalHours,
	)

	sched := scheduler.New(backend, events)
	tracker := memory.NewTracker(memories, messages, provider, cfg.BotName, cfg.MemoryUpdateThreshold)
	prompts := scheduler.NewPromptBuilder(states, contacts, messages, tracker, cfg.BotName)

	registry := channels.NewRegistry()
	backend.OnJob(domain.QueueTyping, scheduler.NewTypingProcessor(registry).Handle)
	backend.OnJob(domain.QueueResponse, scheduler.NewResponseProcessor(
		provider, registry, conversations, messages, tracker, prompts, events,
	).Handle)
	backend.OnJob(domain.QueueProactive, scheduler.NewProactiveProcessor(
		proactive, sched, provider, registry, conversations, messages, tracker, prompts, events, rng,
	).Handle)

	dispatcher := NewDispatcher(mb, contacts, conversations, messages, engine, sched, events, rng)
	debouncer := debounce.New(time.Duration(cfg.DebounceMs)*time.Millisecond, dispatcher.OnFlush, events)
	dispatcher.SetDebouncer(debouncer)

	c := &Container{
		Config:      cfg,
		db:          db,
		events:      events,
		bus:         mb,
		queue:       backend,
		registry:    registry,
		moodMachine: moodMachine,
		debouncer:   debouncer,
		dispatcher:  dispatcher,
		scheduler:   sched,
	}

	if cfg.TelegramToken != "" {
		t := channels.NewTelegramTransport(cfg.TelegramToken, mb)
		registry.Register(t)
		c.transports = append(c.transports, t)
	}
	if cfg.DiscordToken != "" {
		t := channels.NewDiscordTransport(cfg.DiscordToken, mb)
		registry.Register(t)
		c.transports = append(c.transports, t)
	}
	if len(c.transports) == 0 {
		db.Close()
		return nil, fmt.Errorf("app: no transport configured, set TELEGRAM_TOKEN or DISCORD_TOKEN")
	}

	return c, nil
}

// Start brings the process up: event logging, queue workers, the mood
// cycle, the transports, and the dispatcher loop. It returns once
// everything is running; ctx cancellation winds it all down.
func (c *Container) Start(ctx context.Context) error {
	c.events.SubscribeAll(func(e domain.Event) {
		logger.DebugCF("events", string(e.EventType()), map[string]interface{}{
			"aggregate_id": string(e.AggregateID()),
		})
	})

	if err := c.queue.Start(ctx); err != nil {
		return fmt.Errorf("app: start queue backend: %w", err)
	}
	if err := c.scheduler.RegisterRecurringEvaluation(ctx); err != nil {
		return fmt.Errorf("app: register proactive evaluation: %w", err)
	}

	go func() {
		if err := c.moodMachine.Run(ctx); err != nil && ctx.Err() == nil {
			logger.ErrorCF("app", "Mood machine stopped", map[string]interface{}{"error": err.Error()})
		}
	}()

	for _, t := range c.transports {
		if err := t.Start(ctx); err != nil {
			return fmt.Errorf("app: start %s transport: %w", t.Type(), err)
		}
	}

	go c.dispatcher.Run(ctx)

	c.events.Publish(domain.NewEvent(domain.EventSystemStartup, "", map[string]interface{}{
		"transports": len(c.transports),
	}))
	logger.InfoCF("app", "All components started", map[string]interface{}{
		"transports": len(c.transports),
		"provider":   c.Config.LLMProvider,
	})
	return nil
}

// Stop flushes what can be flushed and releases resources. Pending queue
// jobs survive in SQLite and run on the next start.
func (c *Container) Stop() {
	c.events.Publish(domain.NewEvent(domain.EventSystemShutdown, "", nil))

	for _, t := range c.transports {
		if err := t.Stop(); err != nil {
			logger.WarnCF("app", "Transport stop failed", map[string]interface{}{
				"transport": t.Type().String(),
				"error":     err.Error(),
			})
		}
	}
	c.bus.Close()
	c.debouncer.FlushAll()
	c.queue.Wait()
	c.events.Close()
	if err := c.db.Close(); err != nil {
		logger.WarnCF("app", "Database close failed", map[string]interface{}{"error": err.Error()})
	}
	logger.InfoC("app", "Shutdown complete")
}
