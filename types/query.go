package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type Validater interface {
	Validate() map[string]string
}

type ModelParams struct {
	URL    string `json:"url" validate:"required,url"`
	Model  string `json:"model" validate:"required"`
	APIKey string `json:"api_key"`
}

type ConfigParams struct {
	Analysis *ModelParams `json:"analysis_model" validate:"omitempty"`
	Solving  *ModelParams `json:"solving_model" validate:"omitempty"`
}

type QuestionFilter struct {
	Type    string `query:"type" validate:"omitempty,oneof=example exercise"`
	Chapter string `query:"chapter"`
}

type FragmentFilter struct {
	Type    string `query:"type" validate:"omitempty,oneof=knowledge example exercise"`
	Chapter string `query:"chapter"`
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

func (params *ConfigParams) Validate() map[string]string {
	errs := validateStruct(params)
	if params.Analysis == nil && params.Solving == nil {
		if errs == nil {
			errs = make(map[string]string)
		}
		errs["ConfigParams"] = "at least one model must be given"
	}
	return errs
}

func (params *QuestionFilter) Validate() map[string]string {
	return validateStruct(params)
}

func (params *FragmentFilter) Validate() map[string]string {
	return validateStruct(params)
}

func validateStruct(s any) map[string]string {
	if err := validate.Struct(s); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return map[string]string{"request": err.Error()}
		}
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

func (params *QuestionFilter) Match(q Question) bool {
	if params.Type != "" && string(q.QuestionType) != params.Type {
		return false
	}
	return params.Chapter == "" || q.Chapter == params.Chapter
}

func (params *FragmentFilter) Match(f *Fragment) bool {
	if params.Type != "" && string(f.Metadata.DocType) != params.Type {
		return false
	}
	return params.Chapter == "" || f.Metadata.Chapter == params.Chapter
}
