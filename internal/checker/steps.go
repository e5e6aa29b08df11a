package checker

import (
	"context"

	"github.com/nao1215/linkcheck/internal/fileset"
	"github.com/nao1215/linkcheck/internal/index"
	"github.com/nao1215/linkcheck/internal/model"
	"github.com/nao1215/linkcheck/internal/pipeline"
	"github.com/nao1215/linkcheck/internal/report"
	"github.com/nao1215/linkcheck/internal/resolve"
)

// Step names, in execution order.
const (
	StepExtract   = "extract"
	StepIndex     = "index"
	StepIgnore    = "ignore"
	StepDispatch  = "dispatch"
	StepRemote    = "remote"
	StepAggregate = "aggregate"
)

// runState is the data passed between the steps of one run.
type runState struct {
	set *fileset.FileSet

	refsByDoc map[string][]string
	idx       *index.Index
	ignored   int
	remote    []string
	outcomes  *model.Outcomes
	report    *model.LinkReport
	steps     []string
}

// RecordStep implements pipeline.Recorder.
func (s *runState) RecordStep(name string) {
	s.steps = append(s.steps, name)
}

func (c *Checker) steps() []pipeline.Step[runState] {
	return []pipeline.Step[runState]{
		pipeline.NewStepFunc(StepExtract, c.extractStep),
		pipeline.NewStepFunc(StepIndex, indexStep),
		pipeline.NewStepFunc(StepIgnore, c.ignoreStep),
		pipeline.NewStepFunc(StepDispatch, dispatchStep),
		pipeline.NewStepFunc(StepRemote, c.remoteStep),
		pipeline.NewStepFunc(StepAggregate, aggregateStep),
	}
}

func (c *Checker) extractStep(_ context.Context, s *runState) error {
	s.refsByDoc = c.extractor.Extract(s.set)
	return nil
}

func indexStep(_ context.Context, s *runState) error {
	s.idx = index.Build(s.refsByDoc)
	return nil
}

// ignoreStep removes ignored references from both the index and the
// per-document lists so they are neither validated nor reported.
func (c *Checker) ignoreStep(_ context.Context, s *runState) error {
	if len(c.ignore) == 0 {
		return nil
	}
	before := s.idx.Len()
	s.idx = s.idx.Without(c.ignored)
	s.ignored = before - s.idx.Len()
	s.refsByDoc = c.filterRefs(s.refsByDoc)
	return nil
}

// dispatchStep resolves local references, marks other schemes valid, and
// collects remote references for the remote step.
func dispatchStep(_ context.Context, s *runState) error {
	s.outcomes = model.NewOutcomes()
	resolver := resolve.NewLocal(s.set)

	for _, ref := range s.idx.Refs() {
		switch Classify(ref) {
		case KindRemote:
			s.remote = append(s.remote, ref)
		case KindOther:
			s.outcomes.SetShared(ref, model.Valid())
		case KindLocal:
			// A relative path names a different file in each citing document.
			for _, doc := range s.idx.Docs(ref) {
				s.outcomes.SetCitation(ref, doc, resolver.Resolve(doc, ref))
			}
		}
	}
	return nil
}

func (c *Checker) remoteStep(ctx context.Context, s *runState) error {
	if len(s.remote) == 0 {
		return nil
	}
	results, err := c.validator.ValidateAll(ctx, s.remote)
	if err != nil {
		return err
	}
	for _, ref := range s.remote {
		s.outcomes.SetShared(ref, results[ref])
	}
	return nil
}

func aggregateStep(_ context.Context, s *runState) error {
	s.report = report.Aggregate(s.refsByDoc, s.idx, s.outcomes)
	return nil
}
