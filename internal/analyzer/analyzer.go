package analyzer

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"go.uber.org/zap"

	"formrunner/internal/config"
)

// Analyzer runs the full analysis pipeline on a loaded page.
type Analyzer struct {
	tenant *config.Tenant
	log    *zap.Logger
}

func New(tenant *config.Tenant, log *zap.Logger) *Analyzer {
	return &Analyzer{tenant: tenant, log: log}
}

// Analyze discovers the form, maps fields and assembles the input plan. The
// returned frame is the one owning the form; the caller holds it through
// submission. companyName feeds template expansion.
func (a *Analyzer) Analyze(ctx context.Context, page *rod.Page, companyName string) (*Analysis, *rod.Page, error) {
	frame, iframeSel, err := FindFormFrame(ctx, page)
	if err != nil {
		return nil, nil, fmt.Errorf("locate form frame: %w", err)
	}

	if err := a.maybeScroll(ctx, frame); err != nil {
		a.log.Debug("progressive scroll failed", zap.Error(err))
	}

	structure, hasTextarea, err := Collect(ctx, frame)
	if err != nil {
		return nil, nil, err
	}
	structure.IframeSelector = iframeSel

	analysis := &Analysis{Structure: structure, HasTextarea: hasTextarea}
	if !structure.Found {
		return analysis, frame, nil
	}

	analysis.Mappings, analysis.SplitGroups, analysis.Assignments = a.Plan(structure, companyName)
	analysis.Warnings = Validate(analysis)

	a.log.Info("analysis complete",
		zap.String("form", structure.FormSelector),
		zap.String("form_type", string(structure.FormType)),
		zap.Int("mappings", len(analysis.Mappings)),
		zap.Int("split_groups", len(analysis.SplitGroups)),
		zap.Int("assignments", len(analysis.Assignments)),
		zap.Strings("warnings", analysis.Warnings))
	return analysis, frame, nil
}

// Plan runs the browser-free part of the pipeline over a collected
// structure. Tests drive this directly with synthetic structures.
func (a *Analyzer) Plan(structure *FormStructure, companyName string) (map[string]*FieldMapping, []*SplitGroup, []InputAssignment) {
	ctxIndex := BuildContextIndex(structure.Elements)
	scorer := NewScorer(ctxIndex)
	guard := NewDuplicateGuard()
	mapper := NewMapper(scorer, guard, a.log)

	mappings, groups := mapper.Map(structure)
	ApplyRequiredFallback(structure, mappings)

	auto := HandleUnmapped(structure, mappings, guard, ctxIndex, a.log)

	assigner := NewAssigner(a.tenant, companyName, a.log)
	assignments := assigner.Assign(structure, mappings, groups, auto, guard)
	return mappings, groups, assignments
}

// maybeScroll walks the page once top to bottom when lazy rendering is
// likely, then returns to the top.
func (a *Analyzer) maybeScroll(ctx context.Context, frame *rod.Page) error {
	res, err := frame.Context(ctx).Evaluate(&rod.EvalOptions{
		JS: `() => ({
			height: document.documentElement ? document.documentElement.scrollHeight : 0,
			inputs: document.querySelectorAll('input, textarea, select').length
		})`,
		ByValue: true,
	})
	if err != nil {
		return err
	}
	height := res.Value.Get("height").Num()
	inputs := int(res.Value.Get("inputs").Num())
	if !NeedsProgressiveScroll(inputs, height) {
		return nil
	}
	for y := 0.0; y < height; y += 800 {
		if err := frame.Context(ctx).Mouse.Scroll(0, 800, 1); err != nil {
			return err
		}
	}
	_, err = frame.Context(ctx).Evaluate(&rod.EvalOptions{JS: `() => window.scrollTo(0, 0)`, ByValue: true})
	return err
}
