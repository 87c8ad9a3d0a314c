package geminiservice

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"FitCoach_V0.1/internal/fitness"
	"github.com/go-playground/validator/v10"
)

var (
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
	schemaCheck   = newSchemaValidator()
)

// newSchemaValidator reports field paths using the JSON names the model sees.
func newSchemaValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("reps", func(fl validator.FieldLevel) bool {
		return fitness.Reps(fl.Field().String()).Valid()
	}); err != nil {
		panic(err)
	}
	return v
}

// The wire types mirror fitness.PlanResponse with pointers, so that a
// missing field can be told apart from a zero value.
type wirePlan struct {
	DietPlan []wireMeal `json:"diet_plan" validate:"required,min=1,dive"`
	GymPlan  []wireDay  `json:"gym_plan" validate:"required,min=1,dive"`
}

type wireMeal struct {
	Name        *string         `json:"name" validate:"required,min=1"`
	Calories    *float64        `json:"calories" validate:"required,gte=0"`
	Macros      *fitness.Macros `json:"macros"`
	Description string          `json:"description"`
}

type wireDay struct {
	Day       *string        `json:"day" validate:"required,min=1"`
	Focus     string         `json:"focus"`
	Exercises []wireExercise `json:"exercises" validate:"required,min=1,dive"`
}

type wireExercise struct {
	Name      *string       `json:"name" validate:"required,min=1"`
	Sets      *int          `json:"sets" validate:"required,gte=1"`
	Reps      *fitness.Reps `json:"reps" validate:"required,reps"`
	Rest      string        `json:"rest"`
	FormNotes string        `json:"form_notes"`
}

// ParsePlan validates the model's text reply and builds a PlanResponse. It
// returns a *PlanError of kind MalformedResponse when the text is not JSON
// and IncompleteResponse when the JSON does not satisfy the plan schema.
func ParsePlan(text string) (*fitness.PlanResponse, error) {
	cleaned := cleanModelText(text)
	if cleaned == "" {
		return nil, malformedErr(errors.New("empty response text"))
	}
	if !json.Valid([]byte(cleaned)) {
		return nil, malformedErr(fmt.Errorf("response is not valid JSON: %.80q", cleaned))
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &top); err != nil {
		return nil, incompleteErr(fmt.Errorf("response is not a JSON object: %w", err))
	}
	for _, key := range []string{"diet_plan", "gym_plan"} {
		raw, ok := top[key]
		if !ok {
			return nil, incompleteErr(fmt.Errorf("missing %q", key))
		}
		switch strings.TrimSpace(string(raw)) {
		case "null", "[]", `""`, "{}":
			return nil, incompleteErr(fmt.Errorf("%q is empty", key))
		}
	}

	var wp wirePlan
	if err := json.Unmarshal([]byte(cleaned), &wp); err != nil {
		return nil, incompleteErr(fmt.Errorf("response does not match plan schema: %w", err))
	}
	if err := schemaCheck.Struct(wp); err != nil {
		return nil, incompleteErr(describeValidation(err))
	}

	return wp.toPlan(), nil
}

// cleanModelText removes a markdown code fence and, only when the result is
// not already valid JSON, trailing commas before a closing bracket.
func cleanModelText(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if json.Valid([]byte(s)) {
		return s
	}
	return trailingComma.ReplaceAllString(s, "$1")
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		// Namespace is "wirePlan.diet_plan[0].name"; drop the struct name.
		ns := fe.Namespace()
		if i := strings.IndexByte(ns, '.'); i >= 0 {
			ns = ns[i+1:]
		}
		fields = append(fields, fmt.Sprintf("%s (%s)", ns, fe.Tag()))
	}
	return fmt.Errorf("plan schema violations: %s", strings.Join(fields, ", "))
}

func (wp wirePlan) toPlan() *fitness.PlanResponse {
	plan := &fitness.PlanResponse{
		DietPlan: make([]fitness.Meal, 0, len(wp.DietPlan)),
		GymPlan:  make([]fitness.WorkoutDay, 0, len(wp.GymPlan)),
	}
	for _, m := range wp.DietPlan {
		plan.DietPlan = append(plan.DietPlan, fitness.Meal{
			Name:        *m.Name,
			Calories:    *m.Calories,
			Macros:      m.Macros,
			Description: m.Description,
		})
	}
	for _, d := range wp.GymPlan {
		day := fitness.WorkoutDay{
			Day:       *d.Day,
			Focus:     d.Focus,
			Exercises: make([]fitness.Exercise, 0, len(d.Exercises)),
		}
		for _, e := range d.Exercises {
			day.Exercises = append(day.Exercises, fitness.Exercise{
				Name:      *e.Name,
				Sets:      *e.Sets,
				Reps:      *e.Reps,
				Rest:      e.Rest,
				FormNotes: e.FormNotes,
			})
		}
		plan.GymPlan = append(plan.GymPlan, day)
	}
	return plan
}
