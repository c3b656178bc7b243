package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sosodev/duration"

	"github.com/tbourn/recipe-notebook/internal/domain"
)

const (
	maxIDLen   = 64
	maxTextLen = 255
)

var slugRe = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugRe.MatchString(fl.Field().String())
	})
	return v
}

// Result is the tagged outcome of Validate: exactly one of Recipe or Partial
// is set.
type Result struct {
	Recipe  *domain.Recipe
	Partial *Partial
}

// OK reports whether the candidate passed validation.
func (r Result) OK() bool { return r.Partial == nil }

// Partial describes an invalid candidate: one message per offending field and
// the subset of fields that passed on their own.
type Partial struct {
	Errors  map[string]string `json:"errors"`
	Salvage Candidate         `json:"salvage"`
}

type fieldRule struct {
	name     string
	required bool
	apply    func(raw json.RawMessage, r *domain.Recipe) error
}

// schema is the known field list, in the order fields are checked.
var schema = []fieldRule{
	{"id", false, applyID},
	{"name", true, applyName},
	{"slug", false, applySlug},
	{"ingredients", true, applyIngredients},
	{"instructions", true, applyInstructions},
	{"prepTime", false, durationField(func(r *domain.Recipe, s string) { r.PrepTime = s })},
	{"cookTime", false, durationField(func(r *domain.Recipe, s string) { r.CookTime = s })},
	{"totalTime", false, durationField(func(r *domain.Recipe, s string) { r.TotalTime = s })},
	{"servings", true, applyServings},
	{"keywords", false, applyKeywords},
	{"author", false, applyAuthor},
	{"createdAt", false, timeField(func(r *domain.Recipe, t time.Time) { r.CreatedAt = t })},
	{"updatedAt", false, timeField(func(r *domain.Recipe, t time.Time) { r.UpdatedAt = t })},
	{"images", false, applyImages},
}

// Fields returns the names of all fields known to the schema.
func Fields() []string {
	out := make([]string, len(schema))
	for i, f := range schema {
		out[i] = f.name
	}
	return out
}

// Validate checks c against the recipe schema. Each known field is checked
// independently; unknown fields are ignored for a valid candidate and dropped
// from the salvage of an invalid one. A null value counts as absent.
func Validate(c Candidate) Result {
	rec := &domain.Recipe{}
	errs := map[string]string{}
	salvage := Candidate{}

	for _, f := range schema {
		raw, present := c[f.name]
		if !present || isNull(raw) {
			if f.required {
				errs[f.name] = "is required"
			}
			continue
		}
		if err := f.apply(raw, rec); err != nil {
			errs[f.name] = err.Error()
			continue
		}
		salvage[f.name] = raw
	}

	if len(errs) > 0 {
		return Result{Partial: &Partial{Errors: errs, Salvage: salvage}}
	}
	return Result{Recipe: rec}
}

func applyID(raw json.RawMessage, r *domain.Recipe) error {
	s, err := decodeString(raw)
	if err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	if err := check(s, fmt.Sprintf("max=%d", maxIDLen)); err != nil {
		return err
	}
	r.ID = s
	return nil
}

func applyName(raw json.RawMessage, r *domain.Recipe) error {
	s, err := decodeString(raw)
	if err != nil {
		return err
	}
	if err := check(s, fmt.Sprintf("required,max=%d", maxTextLen)); err != nil {
		return err
	}
	r.Name = s
	return nil
}

func applySlug(raw json.RawMessage, r *domain.Recipe) error {
	s, err := decodeString(raw)
	if err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	if err := check(s, fmt.Sprintf("max=%d,slug", maxTextLen)); err != nil {
		return err
	}
	r.Slug = s
	return nil
}

type ingredientIn struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Amount *float64 `json:"amount"`
	Unit   string   `json:"unit"`
}

func applyIngredients(raw json.RawMessage, r *domain.Recipe) error {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return errors.New("must be an array")
	}
	out := make([]domain.Ingredient, 0, len(elems))
	for i, e := range elems {
		var name string
		if json.Unmarshal(e, &name) == nil {
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, domain.Ingredient{Name: name})
			}
			continue
		}
		var in ingredientIn
		if err := json.Unmarshal(e, &in); err != nil {
			return fmt.Errorf("entry %d must be a string or an object with a name", i)
		}
		in.Name = strings.TrimSpace(in.Name)
		if in.Name == "" {
			continue
		}
		if err := check(in.Name, fmt.Sprintf("max=%d", maxTextLen)); err != nil {
			return fmt.Errorf("entry %d: name %s", i, err)
		}
		if in.Amount != nil {
			if err := check(*in.Amount, "gte=0"); err != nil {
				return fmt.Errorf("entry %d: amount %s", i, err)
			}
		}
		out = append(out, domain.Ingredient{
			ID:     strings.TrimSpace(in.ID),
			Name:   in.Name,
			Amount: in.Amount,
			Unit:   strings.TrimSpace(in.Unit),
		})
	}
	if len(out) == 0 {
		return errors.New("must contain at least one ingredient")
	}
	r.Ingredients = out
	return nil
}

func applyInstructions(raw json.RawMessage, r *domain.Recipe) error {
	steps, err := decodeStrings(raw, "step")
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		return errors.New("must contain at least one step")
	}
	r.Instructions = steps
	return nil
}

func durationField(set func(*domain.Recipe, string)) func(json.RawMessage, *domain.Recipe) error {
	return func(raw json.RawMessage, r *domain.Recipe) error {
		s, err := decodeString(raw)
		if err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		if _, err := duration.Parse(s); err != nil {
			return fmt.Errorf("must be an ISO-8601 duration such as PT10M")
		}
		set(r, s)
		return nil
	}
}

func applyServings(raw json.RawMessage, r *domain.Recipe) error {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return errors.New("must be a number")
	}
	if f != math.Trunc(f) || f > math.MaxInt32 {
		return errors.New("must be a whole number")
	}
	n := int(f)
	if err := check(n, "gte=1"); err != nil {
		return err
	}
	r.Servings = n
	return nil
}

func applyKeywords(raw json.RawMessage, r *domain.Recipe) error {
	kws, err := decodeStrings(raw, "keyword")
	if err != nil {
		return err
	}
	r.Keywords = kws
	return nil
}

func applyAuthor(raw json.RawMessage, r *domain.Recipe) error {
	s, err := decodeString(raw)
	if err != nil {
		return err
	}
	if err := check(s, fmt.Sprintf("max=%d", maxTextLen)); err != nil {
		return err
	}
	r.Author = s
	return nil
}

func timeField(set func(*domain.Recipe, time.Time)) func(json.RawMessage, *domain.Recipe) error {
	return func(raw json.RawMessage, r *domain.Recipe) error {
		s, err := decodeString(raw)
		if err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		t, err := ParseTimestamp(s)
		if err != nil {
			return err
		}
		set(r, t)
		return nil
	}
}

// ParseTimestamp accepts RFC 3339 timestamps and bare YYYY-MM-DD dates
// (midnight UTC).
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, errors.New("must be an RFC 3339 timestamp or a YYYY-MM-DD date")
}

type imageIn struct {
	ID       string `json:"id"`
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
	Filename string `json:"filename"`
}

func applyImages(raw json.RawMessage, r *domain.Recipe) error {
	var in []imageIn
	if err := json.Unmarshal(raw, &in); err != nil {
		return errors.New("must be an array of image objects")
	}
	out := make([]domain.RecipeImage, 0, len(in))
	for i, img := range in {
		data, mediaType, err := DecodeDataURL(img.Data)
		if err != nil {
			return fmt.Errorf("image %d: %v", i, err)
		}
		mime := strings.TrimSpace(img.MimeType)
		if mime == "" {
			mime = mediaType
		}
		out = append(out, domain.RecipeImage{
			ID:       strings.TrimSpace(img.ID),
			Position: i,
			Data:     data,
			MimeType: mime,
			Filename: strings.TrimSpace(img.Filename),
		})
	}
	r.Images = out
	return nil
}

func decodeString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errors.New("must be a string")
	}
	return strings.TrimSpace(s), nil
}

// decodeStrings decodes an array of strings, trimming each and dropping blanks.
func decodeStrings(raw json.RawMessage, what string) ([]string, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, errors.New("must be an array")
	}
	out := make([]string, 0, len(elems))
	for i, e := range elems {
		var s string
		if err := json.Unmarshal(e, &s); err != nil {
			return nil, fmt.Errorf("%s %d must be a string", what, i)
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// check runs a validator tag against a single value and turns the first
// failure into a short message.
func check(v any, tag string) error {
	err := validate.Var(v, tag)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return errors.New("must not be empty")
	case "max":
		return fmt.Errorf("must be at most %s characters", fe.Param())
	case "gte", "min":
		return fmt.Errorf("must be at least %s", fe.Param())
	case "slug":
		return errors.New("must contain only lowercase letters, digits and single hyphens")
	default:
		return fmt.Errorf("failed %s check", fe.Tag())
	}
}
