package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/creditmeter/internal/plandef/domain"
)

type planDocument struct {
	PlanName       string           `json:"planName"`
	DisplayName    string           `json:"displayName" validate:"required"`
	MonthlyCredits *int64           `json:"monthlyCredits" validate:"required,allotment"`
	Pricing        *pricingDocument `json:"pricing" validate:"required"`
	Limits         *limitsDocument  `json:"limits" validate:"required"`
	Features       []string         `json:"features" validate:"omitempty,dive,required"`
	OverageRate    *float64         `json:"overageRate" validate:"omitempty,gte=0"`
}

type pricingDocument struct {
	Monthly *float64 `json:"monthly" validate:"required,gte=0"`
	Annual  *float64 `json:"annual" validate:"omitempty,gte=0"`
}

type limitsDocument struct {
	AICallsPerMonth    *int64 `json:"aiCallsPerMonth" validate:"required,gte=-1"`
	PDFExportsPerMonth *int64 `json:"pdfExportsPerMonth" validate:"omitempty,gte=-1"`
	SessionLimit       *int64 `json:"sessionLimit" validate:"omitempty,gte=-1"`
	TeamMembersLimit   *int64 `json:"teamMembersLimit" validate:"omitempty,gte=-1"`
	StorageLimit       *int64 `json:"storageLimit" validate:"omitempty,gte=-1"`
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
	// allotment: the unlimited sentinel or a positive amount
	_ = v.RegisterValidation("allotment", func(fl validator.FieldLevel) bool {
		n := fl.Field().Int()
		return n == domain.Unlimited || n > 0
	})
	return v
}

func decodeDefinition(key string, body []byte) (domain.Definition, error) {
	var doc planDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return domain.Definition{}, fmt.Errorf("%w: %v", domain.ErrInvalidPlanDefinition, err)
	}
	if err := validate.Struct(doc); err != nil {
		return domain.Definition{}, fmt.Errorf("%w: %s", domain.ErrInvalidPlanDefinition, describe(err))
	}

	def := domain.Definition{
		PlanName:       key,
		DisplayName:    strings.TrimSpace(doc.DisplayName),
		MonthlyCredits: *doc.MonthlyCredits,
		Pricing:        domain.Pricing{Monthly: *doc.Pricing.Monthly, Annual: deref(doc.Pricing.Annual)},
		Limits: domain.Limits{
			AICallsPerMonth:    *doc.Limits.AICallsPerMonth,
			PDFExportsPerMonth: deref(doc.Limits.PDFExportsPerMonth),
			SessionLimit:       deref(doc.Limits.SessionLimit),
			TeamMembersLimit:   deref(doc.Limits.TeamMembersLimit),
			StorageLimit:       deref(doc.Limits.StorageLimit),
		},
		Features:    append([]string{}, doc.Features...),
		OverageRate: deref(doc.OverageRate),
	}
	return def, nil
}

func deref[T int64 | float64](v *T) T {
	if v == nil {
		return 0
	}
	return *v
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "planDocument.")
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
