package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/creditmeter/internal/eventdef/domain"
)

// eventDocument mirrors domain.Definition with pointers so absent fields can
// be told apart from zero values.
type eventDocument struct {
	EventType   string               `json:"eventType"`
	BaseCredits *float64             `json:"baseCredits" validate:"required,gte=0"`
	Description string               `json:"description" validate:"required"`
	Category    string               `json:"category" validate:"required"`
	Endpoint    string               `json:"endpoint"`
	Multipliers *multipliersDocument `json:"multipliers" validate:"omitempty"`
}

type multipliersDocument struct {
	Complexity *complexityDocument `json:"complexity" validate:"omitempty"`
	Features   map[string]float64  `json:"features" validate:"omitempty,dive,keys,required,endkeys"`
}

type complexityDocument struct {
	Min *float64 `json:"min" validate:"required"`
	Max *float64 `json:"max" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeDefinition parses and validates a stored or merged document. The key
// always wins over any eventType inside the body.
func decodeDefinition(key string, body []byte) (domain.Definition, error) {
	var doc eventDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return domain.Definition{}, fmt.Errorf("%w: %v", domain.ErrInvalidEventDefinition, err)
	}
	if err := validate.Struct(doc); err != nil {
		return domain.Definition{}, fmt.Errorf("%w: %s", domain.ErrInvalidEventDefinition, describe(err))
	}

	def := domain.Definition{
		EventType:   key,
		BaseCredits: *doc.BaseCredits,
		Description: strings.TrimSpace(doc.Description),
		Category:    strings.TrimSpace(doc.Category),
		Endpoint:    strings.TrimSpace(doc.Endpoint),
	}
	if m := doc.Multipliers; m != nil {
		mult := &domain.Multipliers{}
		if c := m.Complexity; c != nil {
			if *c.Min > *c.Max {
				return domain.Definition{}, fmt.Errorf("%w: multipliers.complexity.min must not exceed max", domain.ErrInvalidEventDefinition)
			}
			mult.Complexity = &domain.ComplexityRange{Min: *c.Min, Max: *c.Max}
		}
		if len(m.Features) > 0 {
			mult.Features = make(map[string]float64, len(m.Features))
			for flag, credits := range m.Features {
				mult.Features[flag] = credits
			}
		}
		if mult.Complexity != nil || mult.Features != nil {
			def.Multipliers = mult
		}
	}
	return def, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "eventDocument.")
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
