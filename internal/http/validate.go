package httpapp

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/truthtally/truthtally/internal/model"
	"github.com/truthtally/truthtally/internal/moderation"
)

// validate checks request DTOs. Initialized in init() with the custom tags.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("isodate", validateISODate)
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"}

func parseDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", value)
}

func validateISODate(fl validator.FieldLevel) bool {
	_, err := parseDate(fl.Field().String())
	return err == nil
}

// requestError is a malformed or invalid request body.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

// decodeBody reads a JSON body into dest and validates it.
func decodeBody(r *http.Request, dest any) error {
	if err := readJSON(r.Body, dest); err != nil {
		return &requestError{err: fmt.Errorf("invalid json: %w", err)}
	}
	if err := validate.Struct(dest); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return &requestError{err: describe(verrs)}
		}
		return &requestError{err: err}
	}
	return nil
}

func describe(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

type credentialsRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type createPoliticianRequest struct {
	Name      string `json:"name" validate:"required,max=200"`
	Party     string `json:"party" validate:"required,max=200"`
	Office    string `json:"office" validate:"required,max=200"`
	Region    string `json:"region" validate:"required,max=200"`
	TermStart string `json:"termStart" validate:"required,isodate"`
	TermEnd   string `json:"termEnd" validate:"required,isodate"`
}

func (req createPoliticianRequest) input() moderation.PoliticianInput {
	start, _ := parseDate(req.TermStart)
	end, _ := parseDate(req.TermEnd)
	return moderation.PoliticianInput{
		Name:      req.Name,
		Party:     req.Party,
		Office:    req.Office,
		Region:    req.Region,
		TermStart: start,
		TermEnd:   end,
	}
}

type updatePoliticianRequest struct {
	Name      *string `json:"name" validate:"omitnil,min=1,max=200"`
	Party     *string `json:"party" validate:"omitnil,min=1,max=200"`
	Office    *string `json:"office" validate:"omitnil,min=1,max=200"`
	Region    *string `json:"region" validate:"omitnil,min=1,max=200"`
	TermStart *string `json:"termStart" validate:"omitnil,isodate"`
	TermEnd   *string `json:"termEnd" validate:"omitnil,isodate"`
}

func (req updatePoliticianRequest) patch() moderation.PoliticianPatch {
	p := moderation.PoliticianPatch{
		Name:   req.Name,
		Party:  req.Party,
		Office: req.Office,
		Region: req.Region,
	}
	if req.TermStart != nil {
		t, _ := parseDate(*req.TermStart)
		p.TermStart = &t
	}
	if req.TermEnd != nil {
		t, _ := parseDate(*req.TermEnd)
		p.TermEnd = &t
	}
	return p
}

type createStatementRequest struct {
	PoliticianID string `json:"politicianId" validate:"required,uuid"`
	Text         string `json:"text" validate:"required,max=5000"`
	SourceURL    string `json:"sourceUrl" validate:"required,url"`
	DateMade     string `json:"dateMade" validate:"required,isodate"`
}

func (req createStatementRequest) input() moderation.StatementInput {
	made, _ := parseDate(req.DateMade)
	return moderation.StatementInput{
		PoliticianID: req.PoliticianID,
		Text:         req.Text,
		SourceURL:    req.SourceURL,
		DateMade:     made,
	}
}

type statusRequest struct {
	Status model.StatementStatus `json:"status" validate:"required,oneof=pending kept broken"`
}

type voteRequest struct {
	Value int `json:"value" validate:"required,oneof=1 -1"`
}
