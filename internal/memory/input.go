// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package memory

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/palais-dev/palais/internal/store"
	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

const (
	defaultListLimit   = 50
	defaultSearchLimit = 10
	maxLimit           = 200
)

// NodeInput is the payload of the node creation entry point.
type NodeInput struct {
	Kind       store.NodeKind   `json:"kind" validate:"required,oneof=episodic semantic procedural"`
	Content    string           `json:"content" validate:"required,max=65536"`
	Summary    string           `json:"summary,omitempty" validate:"max=4096"`
	EntityType store.EntityType `json:"entityType,omitempty" validate:"omitempty,max=64"`
	EntityID   string           `json:"entityId,omitempty" validate:"omitempty,max=128"`
	Tags       []string         `json:"tags,omitempty" validate:"max=32,dive,required,max=64"`
	Metadata   map[string]any   `json:"metadata,omitempty"`
	CreatedBy  store.Creator    `json:"createdBy,omitempty" validate:"omitempty,oneof=user agent system"`
	ValidFrom  *time.Time       `json:"validFrom,omitempty"`
	ValidUntil *time.Time       `json:"validUntil,omitempty"`
}

// EdgeInput is the payload of explicit edge creation. Weight defaults to 1.
type EdgeInput struct {
	SourceNodeID int64          `json:"sourceNodeId" validate:"required,gt=0"`
	TargetNodeID int64          `json:"targetNodeId" validate:"required,gt=0"`
	Relation     store.Relation `json:"relation" validate:"required,oneof=caused_by resolved_by related_to learned_from supersedes"`
	Weight       *float64       `json:"weight,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// SearchInput is the payload of hybrid search. Limit defaults to 10 and is
// clamped to 200.
type SearchInput struct {
	Query      string           `json:"query" validate:"required,max=2000"`
	Limit      int              `json:"limit,omitempty" validate:"gte=0"`
	EntityType store.EntityType `json:"entityType,omitempty" validate:"omitempty,max=64"`
}

// ListInput filters node listing. Limit defaults to 50 and is clamped to 200.
type ListInput struct {
	Kind       store.NodeKind   `json:"kind,omitempty" validate:"omitempty,oneof=episodic semantic procedural"`
	EntityType store.EntityType `json:"entityType,omitempty" validate:"omitempty,max=64"`
	Limit      int              `json:"limit,omitempty" validate:"gte=0"`
}

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateInput runs struct validation and reports every failing field
// under code.
func validateInput(v any, code palaiserr.Code) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return palaiserr.Wrap(err, code, "invalid input")
	}

	msgs := make([]string, 0, len(verrs))
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, formatFieldError(fe))
		fields = append(fields, fe.Field())
	}
	return palaiserr.New(code, strings.Join(msgs, "; "), palaiserr.Field("fields", fields))
}

func formatFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "gt", "gte", "lte":
		return fmt.Sprintf("%s is out of range", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, maxLimit)
}
