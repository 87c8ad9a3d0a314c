/*
Package fitness holds the domain model of the plan service: the biometric
profile that drives plan generation, the generated diet and workout plan,
and the session's weight progress log.
*/
package fitness

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is shared by every model in this package; validator caches struct
// metadata so a single instance is reused.
var validate = validator.New()

// Validator exposes the package validator so the HTTP layer can plug the same
// rules into echo.
func Validator() *validator.Validate {
	return validate
}

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// Genders lists the accepted genders in form order.
var Genders = []Gender{GenderMale, GenderFemale, GenderOther}

type Goal string

const (
	GoalLoseWeight     Goal = "lose_weight"
	GoalGainMuscle     Goal = "gain_muscle"
	GoalMaintain       Goal = "maintain"
	GoalImproveFitness Goal = "improve_fitness"
)

var Goals = []Goal{GoalLoseWeight, GoalGainMuscle, GoalMaintain, GoalImproveFitness}

// Label returns the human readable goal used in prompts and pages.
func (g Goal) Label() string {
	switch g {
	case GoalLoseWeight:
		return "Weight Loss"
	case GoalGainMuscle:
		return "Muscle Gain"
	case GoalMaintain:
		return "Maintain Weight"
	case GoalImproveFitness:
		return "Improve Fitness"
	}
	return string(g)
}

type DietPreference string

const (
	DietNoPreference  DietPreference = "no_preference"
	DietVegetarian    DietPreference = "vegetarian"
	DietVegan         DietPreference = "vegan"
	DietNonVegetarian DietPreference = "non_vegetarian"
)

var DietPreferences = []DietPreference{DietNoPreference, DietVegetarian, DietVegan, DietNonVegetarian}

// Label returns the human readable diet preference.
func (d DietPreference) Label() string {
	switch d {
	case DietVegetarian:
		return "Vegetarian"
	case DietVegan:
		return "Vegan"
	case DietNonVegetarian:
		return "Non-Vegetarian"
	}
	return "No Preference"
}

/* =================================================================================
							USER PROFILE
=================================================================================*/

// UserProfile is the form input a plan is generated from. A profile is built
// once per submission and never mutated afterwards.
type UserProfile struct {
	Age               int            `json:"age" form:"age" validate:"required,min=1,max=100"`
	Gender            Gender         `json:"gender" form:"gender" validate:"required,oneof=male female other"`
	HeightCm          float64        `json:"height_cm" form:"height_cm" validate:"required,gte=100,lte=220"`
	WeightKg          float64        `json:"weight_kg" form:"weight_kg" validate:"required,gte=30,lte=200"`
	MedicalConditions string         `json:"medical_conditions" form:"medical_conditions" validate:"max=1000"`
	DietPreference    DietPreference `json:"diet_preference" form:"diet_preference" validate:"omitempty,oneof=no_preference vegetarian vegan non_vegetarian"`
	Goal              Goal           `json:"goal" form:"goal" validate:"required,oneof=lose_weight gain_muscle maintain improve_fitness"`
}

// Normalize returns a copy with enum values lower-cased, free text trimmed
// and an empty diet preference defaulted.
func (p UserProfile) Normalize() UserProfile {
	p.Gender = Gender(strings.ToLower(strings.TrimSpace(string(p.Gender))))
	p.Goal = Goal(strings.ToLower(strings.TrimSpace(string(p.Goal))))
	p.DietPreference = DietPreference(strings.ToLower(strings.TrimSpace(string(p.DietPreference))))
	if p.DietPreference == "" {
		p.DietPreference = DietNoPreference
	}
	p.MedicalConditions = strings.TrimSpace(p.MedicalConditions)
	return p
}

// Validate checks the profile against its field rules.
func (p UserProfile) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}
	return nil
}

// BMI is weight over height in meters squared, rounded to two decimals.
func (p UserProfile) BMI() float64 {
	if p.HeightCm <= 0 {
		return 0
	}
	m := p.HeightCm / 100
	return math.Round(p.WeightKg/(m*m)*100) / 100
}

// MedicalSummary returns the medical conditions or "None" when empty.
func (p UserProfile) MedicalSummary() string {
	if p.MedicalConditions == "" {
		return "None"
	}
	return p.MedicalConditions
}
