package fitness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PlanResponse is a validated plan: both sub-documents are always non-empty.
type PlanResponse struct {
	DietPlan []Meal       `json:"diet_plan"`
	GymPlan  []WorkoutDay `json:"gym_plan"`
}

// Meal is one entry of the diet plan.
type Meal struct {
	Name        string  `json:"name"`
	Calories    float64 `json:"calories"`
	Macros      *Macros `json:"macros,omitempty"`
	Description string  `json:"description,omitempty"`
}

// Macros are gram estimates for a meal.
type Macros struct {
	ProteinG float64 `json:"protein_g"`
	CarbsG   float64 `json:"carbs_g"`
	FatG     float64 `json:"fat_g"`
}

// WorkoutDay is one day of the gym plan.
type WorkoutDay struct {
	Day       string     `json:"day"`
	Focus     string     `json:"focus,omitempty"`
	Exercises []Exercise `json:"exercises"`
}

type Exercise struct {
	Name      string `json:"name"`
	Sets      int    `json:"sets"`
	Reps      Reps   `json:"reps"`
	Rest      string `json:"rest,omitempty"`
	FormNotes string `json:"form_notes,omitempty"`
}

// Reps is either a plain count ("10") or a range ("8-12"). The model is
// allowed to send either a JSON number or a string.
type Reps string

func (r *Reps) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = Reps(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("reps must be a number or a string: %w", err)
	}
	if _, err := n.Int64(); err != nil {
		return fmt.Errorf("reps must be a whole number: %w", err)
	}
	*r = Reps(n.String())
	return nil
}

// MarshalJSON keeps plain counts numeric on the way out.
func (r Reps) MarshalJSON() ([]byte, error) {
	if n, ok := r.Count(); ok {
		return []byte(strconv.Itoa(n)), nil
	}
	return json.Marshal(string(r))
}

// Count returns the repetition count when Reps is a plain number.
func (r Reps) Count() (int, bool) {
	n, err := strconv.Atoi(string(r))
	if err != nil {
		return 0, false
	}
	return n, true
}

// Valid reports whether r is a positive count or a range "N-M" with
// 1 <= N <= M.
func (r Reps) Valid() bool {
	if n, ok := r.Count(); ok {
		return n >= 1
	}
	lo, hi, found := strings.Cut(string(r), "-")
	if !found {
		return false
	}
	low, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return false
	}
	high, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return false
	}
	return low >= 1 && low <= high
}

// Text renders the plan as the plain text document offered for download.
func (p PlanResponse) Text() string {
	var b strings.Builder

	b.WriteString("--- DIET PLAN ---\n\n")
	for _, m := range p.DietPlan {
		fmt.Fprintf(&b, "%s (%.0f kcal)\n", m.Name, m.Calories)
		if m.Macros != nil {
			fmt.Fprintf(&b, "  Protein %.0fg | Carbs %.0fg | Fat %.0fg\n", m.Macros.ProteinG, m.Macros.CarbsG, m.Macros.FatG)
		}
		if m.Description != "" {
			fmt.Fprintf(&b, "  %s\n", m.Description)
		}
		b.WriteString("\n")
	}

	b.WriteString("--- GYM/EXERCISE PLAN ---\n\n")
	for _, d := range p.GymPlan {
		if d.Focus != "" {
			fmt.Fprintf(&b, "%s: %s\n", d.Day, d.Focus)
		} else {
			fmt.Fprintf(&b, "%s\n", d.Day)
		}
		for _, e := range d.Exercises {
			fmt.Fprintf(&b, "  - %s: %d x %s", e.Name, e.Sets, e.Reps)
			if e.Rest != "" {
				fmt.Fprintf(&b, ", rest %s", e.Rest)
			}
			b.WriteString("\n")
			if e.FormNotes != "" {
				fmt.Fprintf(&b, "    Form: %s\n", e.FormNotes)
			}
		}
		b.WriteString("\n")
	}

	return b.String()
}
