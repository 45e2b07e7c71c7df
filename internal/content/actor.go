// Package content implements the content-generation actor: turning a
// completed act's JSON response into persisted rows in a destination
// table. It runs as an independent message-driven component — every
// operation is enqueued on a single mailbox and the actor pulls one
// message at a time, so destination-table DDL and inserts are serialized
// without an explicit lock.
package content

import (
	"context"
	"strings"
	"time"

	narrataerrors "narrata/internal/errors"
	"narrata/internal/narrative"
	"narrata/internal/observability"
	"narrata/internal/storage"
)

// store is the persistence surface the actor drives. *storage.Store
// satisfies this; declaring it locally keeps the actor's dependency
// narrow and lets tests swap in a fake without touching internal/storage.
type store interface {
	StartGeneration(ctx context.Context, table, templateSource, narrativeFile, description string) error
	CompleteGeneration(ctx context.Context, table string, rowCount, durationMS int64, status, errMsg string) error
	CreateTableFromTemplate(ctx context.Context, table, templateTable string) error
	CreateTableFromInference(ctx context.Context, table, sampleJSON string) error
	InsertContent(ctx context.Context, table, jsonObject, narrativeName, actName, model string) error
}

var _ store = (*storage.Store)(nil)

type startGenerationMsg struct {
	table, templateSource, narrativeFile, description string
	reply                                              chan error
}

type completeGenerationMsg struct {
	table                 string
	rowCount, durationMS  int64
	status, errMsg        string
	reply                 chan error
}

type createFromTemplateMsg struct {
	table, templateTable string
	reply                chan error
}

type createFromInferenceMsg struct {
	table, sampleJSON string
	reply             chan error
}

type insertContentMsg struct {
	table, jsonObject, narrativeName, actName, model string
	reply                                             chan error
}

// Actor owns the mailbox goroutine. Callers never touch the underlying
// store directly once an Actor wraps it.
type Actor struct {
	store   store
	mailbox chan any
	done    chan struct{}
}

// NewActor starts the mailbox goroutine and returns the Actor handle.
// Close stops it.
func NewActor(s store) *Actor {
	a := &Actor{store: s, mailbox: make(chan any), done: make(chan struct{})}
	go a.loop()
	return a
}

// Close stops the mailbox goroutine once its current message, if any,
// finishes. Calling any method after Close panics, since it sends on the
// closed mailbox channel — callers are expected to stop issuing work
// before closing.
func (a *Actor) Close() {
	close(a.mailbox)
	<-a.done
}

func (a *Actor) loop() {
	defer close(a.done)
	ctx := context.Background()
	for msg := range a.mailbox {
		switch m := msg.(type) {
		case startGenerationMsg:
			m.reply <- a.store.StartGeneration(ctx, m.table, m.templateSource, m.narrativeFile, m.description)
		case completeGenerationMsg:
			m.reply <- a.store.CompleteGeneration(ctx, m.table, m.rowCount, m.durationMS, m.status, m.errMsg)
		case createFromTemplateMsg:
			m.reply <- a.store.CreateTableFromTemplate(ctx, m.table, m.templateTable)
		case createFromInferenceMsg:
			m.reply <- a.store.CreateTableFromInference(ctx, m.table, m.sampleJSON)
		case insertContentMsg:
			m.reply <- a.store.InsertContent(ctx, m.table, m.jsonObject, m.narrativeName, m.actName, m.model)
		}
	}
}

// send enqueues msg and blocks on its reply channel or ctx, whichever
// comes first. A canceled ctx after the message is already enqueued still
// lets the actor finish processing it — only the caller stops waiting.
func (a *Actor) send(ctx context.Context, msg any, reply chan error) error {
	select {
	case a.mailbox <- msg:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Actor) StartGeneration(ctx context.Context, table, templateSource, narrativeFile, description string) error {
	reply := make(chan error, 1)
	return a.send(ctx, startGenerationMsg{table, templateSource, narrativeFile, description, reply}, reply)
}

func (a *Actor) CompleteGeneration(ctx context.Context, table string, rowCount, durationMS int64, status, errMsg string) error {
	reply := make(chan error, 1)
	return a.send(ctx, completeGenerationMsg{table, rowCount, durationMS, status, errMsg, reply}, reply)
}

func (a *Actor) CreateTableFromTemplate(ctx context.Context, table, templateTable string) error {
	reply := make(chan error, 1)
	return a.send(ctx, createFromTemplateMsg{table, templateTable, reply}, reply)
}

func (a *Actor) CreateTableFromInference(ctx context.Context, table, sampleJSON string) error {
	reply := make(chan error, 1)
	return a.send(ctx, createFromInferenceMsg{table, sampleJSON, reply}, reply)
}

func (a *Actor) InsertContent(ctx context.Context, table, jsonObject, narrativeName, actName, model string) error {
	reply := make(chan error, 1)
	return a.send(ctx, insertContentMsg{table, jsonObject, narrativeName, actName, model, reply}, reply)
}

// ProcessResponse runs the full content-generation flow for one act's
// response: picks template or inference mode from the narrative's
// metadata, ensures the destination table exists, brackets the insert
// with StartGeneration/CompleteGeneration, and inserts the row. The
// destination table is always named after the narrative; in template mode
// its schema is copied from n.Template, in inference mode it's inferred
// from responseJSON. skipped is true (with a nil error) when the
// narrative opts out of content generation entirely.
func (a *Actor) ProcessResponse(ctx context.Context, n narrative.Narrative, actName, model, responseJSON string) (skipped bool, err error) {
	if n.SkipContentGeneration {
		return true, nil
	}

	table := n.Name
	mode := "inferred"
	start := time.Now()

	if n.Template != "" {
		mode = "template"
		if strings.TrimSpace(n.Template) == "" {
			return false, narrataerrors.New(narrataerrors.KindContentGeneration, narrataerrors.ReasonMissingTemplate, "narrative names a template but it is blank")
		}
		if err := a.CreateTableFromTemplate(ctx, table, n.Template); err != nil {
			return false, err
		}
	} else {
		if err := a.CreateTableFromInference(ctx, table, responseJSON); err != nil {
			return false, err
		}
	}

	if err := a.StartGeneration(ctx, table, mode, n.Name, n.Description); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Str("table", table).Msg("content generation tracking row failed to start")
	}

	insertErr := a.InsertContent(ctx, table, responseJSON, n.Name, actName, model)

	status, errMsg, rowCount := "completed", "", int64(1)
	if insertErr != nil {
		status, rowCount = "failed", 0
		errMsg = insertErr.Error()
	}
	durationMS := time.Since(start).Milliseconds()
	if completeErr := a.CompleteGeneration(ctx, table, rowCount, durationMS, status, errMsg); completeErr != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(completeErr).Str("table", table).Msg("content generation tracking row failed to complete")
	}

	return false, insertErr
}
