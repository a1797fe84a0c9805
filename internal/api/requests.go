package api

import (
	"encoding/json"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/FocuswithJustin/hwpxreport/core/errors"
	"github.com/FocuswithJustin/hwpxreport/core/report"
	"github.com/FocuswithJustin/hwpxreport/internal/guide"
	"github.com/FocuswithJustin/hwpxreport/internal/jobs"
)

const (
	maxFilenameLength  = 200
	maxStyleSpecLength = 1024
)

// SubmitRequest is the JSON body of POST /v1/jobs. Form submissions use the
// same field names.
type SubmitRequest struct {
	Source     string          `json:"source"`
	TemplateID string          `json:"template_id,omitempty"`
	Filename   string          `json:"filename,omitempty"`
	Preprocess *bool           `json:"preprocess,omitempty"`
	Styles     json.RawMessage `json:"styles,omitempty"`
	StyleSpec  string          `json:"style_spec,omitempty"`
}

// Validate checks the request shape. Size and front matter are checked by
// the job manager.
func (r SubmitRequest) Validate() error {
	return validationError(validation.ValidateStruct(&r,
		validation.Field(&r.Source, validation.Required.Error("source text is required")),
		validation.Field(&r.TemplateID, validation.By(isID)),
		validation.Field(&r.Filename, validation.RuneLength(0, maxFilenameLength)),
		validation.Field(&r.StyleSpec, validation.Length(0, maxStyleSpecLength)),
	))
}

// JobRequest converts r for the job manager. Style spec entries are applied
// first, then the JSON styles object.
func (r SubmitRequest) JobRequest() (jobs.Request, error) {
	spec, err := report.ParseStyleSpec(r.StyleSpec)
	if err != nil {
		return jobs.Request{}, err
	}
	styles, err := report.ParseFragmentJSON(r.Styles)
	if err != nil {
		return jobs.Request{}, err
	}
	return jobs.Request{
		Source:     r.Source,
		TemplateID: r.TemplateID,
		Filename:   r.Filename,
		Styles:     spec.Merge(styles),
		Raw:        r.Preprocess != nil && !*r.Preprocess,
	}, nil
}

// MarkupRequest is the JSON body of POST /v1/markup.
type MarkupRequest struct {
	Source     string          `json:"source"`
	TemplateID string          `json:"template_id,omitempty"`
	Styles     json.RawMessage `json:"styles,omitempty"`
	StyleSpec  string          `json:"style_spec,omitempty"`
}

// Validate checks the request shape.
func (r MarkupRequest) Validate() error {
	return validationError(validation.ValidateStruct(&r,
		validation.Field(&r.TemplateID, validation.By(isID)),
		validation.Field(&r.StyleSpec, validation.Length(0, maxStyleSpecLength)),
	))
}

// Fragment returns the caller style overrides.
func (r MarkupRequest) Fragment() (report.Fragment, error) {
	spec, err := report.ParseStyleSpec(r.StyleSpec)
	if err != nil {
		return nil, err
	}
	styles, err := report.ParseFragmentJSON(r.Styles)
	if err != nil {
		return nil, err
	}
	return spec.Merge(styles), nil
}

// SourceRequest is the JSON body of POST /v1/markup/source.
type SourceRequest struct {
	Markup string `json:"markup"`
}

// Validate checks the request shape.
func (r SourceRequest) Validate() error {
	return validationError(validation.ValidateStruct(&r,
		validation.Field(&r.Markup, validation.Required.Error("markup is required")),
	))
}

// PromptRequest is the JSON body of POST /v1/prompt.
type PromptRequest struct {
	Topic string `json:"topic"`
}

// Validate checks the request shape.
func (r PromptRequest) Validate() error {
	return validationError(validation.ValidateStruct(&r,
		validation.Field(&r.Topic,
			validation.Required.Error("topic is required"),
			validation.RuneLength(1, guide.MaxTopicLength)),
	))
}

// isID accepts an empty value or a UUID.
func isID(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := uuid.Parse(s); err != nil {
		return validation.NewError("validation_is_id", "must be a valid id")
	}
	return nil
}

// validationError converts ozzo field errors into a ValidationError naming
// the first failing field.
func validationError(err error) error {
	if err == nil {
		return nil
	}
	var fields validation.Errors
	if errors.As(err, &fields) && len(fields) > 0 {
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		name := names[0]
		return &errors.ValidationError{Field: name, Message: fields[name].Error(), Err: err}
	}
	return &errors.ValidationError{Message: err.Error(), Err: err}
}
