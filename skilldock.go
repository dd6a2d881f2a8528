// Package skilldock provides a high-level façade over the core Engine and
// its services (message dispatch, context storage, dialogue sessions &
// logging) for hosting event-driven skills. Most applications interact
// with this package by:
//  1. Creating a SkillDock via New() (optionally overriding the default
//     volatile context backend)
//  2. Starting skills from their manifests (StartSkill / StartSkillFile)
//  3. Publishing topic and event messages (Publish) and feeding dialogue
//     replies (SubmitReply)
//
// The façade delegates orchestration to engine.Engine while keeping setup
// and usage ergonomics concise. All defaults are safe for local development
// and testing; production deployments typically supply a durable context
// backend (such as contextstore/sqlite) and a structured logger.
package skilldock

import (
	"context"

	"github.com/skilldock/skilldock/clock"
	"github.com/skilldock/skilldock/contextstore"
	"github.com/skilldock/skilldock/core"
	"github.com/skilldock/skilldock/dialogue"
	"github.com/skilldock/skilldock/engine"
	"github.com/skilldock/skilldock/logging"
)

// Options configures the SkillDock instance.
type Options struct {
	// Engine configuration (hook timeouts, reply window, sweep cadence)
	EngineConfig engine.Config

	// ContextBackend persists entries stored with the durable flag. The
	// default keeps everything in memory; pass a contextstore/sqlite
	// backend for restart survival.
	ContextBackend contextstore.Backend

	// ConfigSource resolves the configuration constants manifests declare
	// as required. A skill whose constants cannot be resolved fails to
	// start.
	ConfigSource core.ConfigSource

	// Clock drives TTL expiry and sweeps (defaults to the wall clock)
	Clock clock.Clock

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// SkillDock is the high-level façade aggregating the underlying engine and
// services.
type SkillDock struct {
	opts   Options
	engine *engine.Engine
}

// New creates a new SkillDock instance with optional overrides. Any unset
// service is initialized with an in-memory implementation.
func New(sandbox core.Sandbox, optFns ...func(o *Options)) *SkillDock {
	opts := Options{
		EngineConfig:   engine.DefaultConfig,
		ContextBackend: contextstore.NoopBackend{},
		ConfigSource:   core.EmptyConfigSource{},
		Clock:          clock.Real(),
		Logger:         logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	e := engine.New(sandbox, func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.ContextBackend = opts.ContextBackend
		o.ConfigSource = opts.ConfigSource
		o.Clock = opts.Clock
		o.Logger = opts.Logger
	})

	return &SkillDock{opts: opts, engine: e}
}

// StartSkill registers and starts a skill from its manifest.
func (d *SkillDock) StartSkill(ctx context.Context, m engine.Manifest) error {
	return d.engine.StartSkill(ctx, m)
}

// StartSkillFile loads a YAML manifest from disk and starts the skill.
func (d *SkillDock) StartSkillFile(ctx context.Context, path string) error {
	m, err := engine.LoadManifest(path)
	if err != nil {
		return err
	}
	return d.engine.StartSkill(ctx, m)
}

// StopSkill stops a running skill, draining its queued work first.
func (d *SkillDock) StopSkill(ctx context.Context, skillID string) error {
	return d.engine.StopSkill(ctx, skillID)
}

// Subscribe installs one subscription for an active skill, replacing any
// prior handler the skill bound to the same (type, channel).
func (d *SkillDock) Subscribe(skillID string, channelType core.ChannelType, channel string, handler core.HandlerRef) error {
	return d.engine.Subscribe(skillID, channelType, channel, handler)
}

// Publish routes a message to every active subscriber of the channel.
func (d *SkillDock) Publish(channelType core.ChannelType, channel string, payload core.Value, sender *core.SenderInfo) {
	d.engine.Publish(channelType, channel, payload, sender)
}

// PublishTopic is shorthand for publishing on a topic channel.
func (d *SkillDock) PublishTopic(channel string, payload core.Value, sender *core.SenderInfo) {
	d.engine.Publish(core.ChannelTopic, channel, payload, sender)
}

// PublishEvent is shorthand for publishing on an event channel.
func (d *SkillDock) PublishEvent(channel string, payload core.Value) {
	d.engine.Publish(core.ChannelEvent, channel, payload, nil)
}

// RegisterReply arms a dialogue session with a pending reply handler.
func (d *SkillDock) RegisterReply(sessionID, skillID string, handler core.HandlerRef, validator dialogue.Validator) {
	d.engine.RegisterReply(sessionID, skillID, handler, validator)
}

// SubmitReply feeds raw user input to a session's pending reply handler.
// It reports whether the reply was accepted.
func (d *SkillDock) SubmitReply(sessionID, raw string) bool {
	return d.engine.SubmitReply(sessionID, raw)
}

// Context returns the context store shared with the sandbox.
func (d *SkillDock) Context() *contextstore.Store { return d.engine.Context() }

// Skill returns a snapshot of one skill's lifecycle state.
func (d *SkillDock) Skill(skillID string) (core.SkillInfo, bool) { return d.engine.Skill(skillID) }

// Skills returns a snapshot of all registered skills.
func (d *SkillDock) Skills() []core.SkillInfo { return d.engine.Skills() }

// Shutdown stops all skills and releases the context backend.
func (d *SkillDock) Shutdown(ctx context.Context) error { return d.engine.Shutdown(ctx) }
