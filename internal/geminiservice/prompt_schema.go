package geminiservice

import (
	"fmt"

	"FitCoach_V0.1/internal/fitness"
)

/* =================================================================================
							GEMINI SCHEMA DEFINITION
	Tells Gemini how to format its JSON response (structured output).
=================================================================================*/

// GeminiSchema is the OpenAPI subset accepted by generationConfig.responseSchema.
type GeminiSchema struct {
	// Type is one of "OBJECT", "ARRAY", "STRING", "INTEGER", "NUMBER".
	Type string `json:"type"`

	// Description explains the field to the model.
	Description string `json:"description,omitempty"`

	// Properties maps field names to child schemas when Type is "OBJECT".
	Properties map[string]*GeminiSchema `json:"properties,omitempty"`

	// Items is the element schema when Type is "ARRAY".
	Items *GeminiSchema `json:"items,omitempty"`

	// Required lists the fields the model MUST include.
	Required []string `json:"required,omitempty"`
}

/* =================================================================================
						PROMPT ENGINEERING & GUARDRAILS
=================================================================================*/

// SystemPrompt is the persona sent as the system instruction.
const SystemPrompt = `You are an expert AI Fitness Instructor.
Create professional, detailed and encouraging personalized plans.
Be knowledgeable and motivational, and always stay within safe limits for the user's medical conditions.
Respond ONLY with the JSON structure defined in the schema. Do NOT add markdown, explanations or preamble.`

// UserPromptTemplate is filled by BuildPrompt. Every placeholder is rendered
// with a fixed format so equal profiles produce equal prompts.
const UserPromptTemplate = `Based on the user's details, create a comprehensive diet and gym plan.

User Details:
- Age: %d
- Gender: %s
- Height: %.1f cm
- Weight: %.1f kg
- BMI: %.2f
- Medical Conditions: %s
- Diet Preference: %s
- Primary Goal: %s

Instructions:
1. Diet Plan: provide a meal plan with calorie and macro estimates. Emphasize hydration and portion control.
2. Gym Plan: create a structured weekly workout schedule. For each exercise include sets, reps, rest time and a brief description of proper form.
3. Format: respond with a single JSON object with exactly two top-level keys, "diet_plan" and "gym_plan".
   - "diet_plan" is an array of meals. Each meal is an object with "name" (string), "calories" (number), "macros" (object with "protein_g", "carbs_g", "fat_g" numbers) and "description" (string).
   - "gym_plan" is an array of days. Each day is an object with "day" (string), "focus" (string) and "exercises" (array). Each exercise is an object with "name" (string), "sets" (integer), "reps" (integer or range string such as "8-12"), "rest" (string) and "form_notes" (string).
   Both arrays MUST be non-empty.`

// BuildPrompt serializes the profile into the user prompt. It is a pure
// function of its input.
func BuildPrompt(p fitness.UserProfile) string {
	return fmt.Sprintf(
		UserPromptTemplate,
		p.Age,
		genderLabel(p.Gender),
		p.HeightCm,
		p.WeightKg,
		p.BMI(),
		p.MedicalSummary(),
		p.DietPreference.Label(),
		p.Goal.Label(),
	)
}

func genderLabel(g fitness.Gender) string {
	switch g {
	case fitness.GenderMale:
		return "Male"
	case fitness.GenderFemale:
		return "Female"
	}
	return "Other"
}

// PlanSchema describes the exact JSON the model must return.
var PlanSchema = &GeminiSchema{
	Type: "OBJECT",
	Properties: map[string]*GeminiSchema{
		"diet_plan": {
			Type:        "ARRAY",
			Description: "Meals for one day, in eating order. MUST NOT be empty.",
			Items: &GeminiSchema{
				Type: "OBJECT",
				Properties: map[string]*GeminiSchema{
					"name":     {Type: "STRING", Description: "Meal name, e.g. 'Breakfast'"},
					"calories": {Type: "NUMBER", Description: "Estimated kcal for the meal"},
					"macros": {
						Type: "OBJECT",
						Properties: map[string]*GeminiSchema{
							"protein_g": {Type: "NUMBER"},
							"carbs_g":   {Type: "NUMBER"},
							"fat_g":     {Type: "NUMBER"},
						},
					},
					"description": {Type: "STRING", Description: "Foods and portions, with alternatives"},
				},
				Required: []string{"name", "calories"},
			},
		},
		"gym_plan": {
			Type:        "ARRAY",
			Description: "Weekly schedule, one entry per training day. MUST NOT be empty.",
			Items: &GeminiSchema{
				Type: "OBJECT",
				Properties: map[string]*GeminiSchema{
					"day":   {Type: "STRING", Description: "Day label, e.g. 'Mon'"},
					"focus": {Type: "STRING", Description: "Muscle group or training focus"},
					"exercises": {
						Type: "ARRAY",
						Items: &GeminiSchema{
							Type: "OBJECT",
							Properties: map[string]*GeminiSchema{
								"name":       {Type: "STRING"},
								"sets":       {Type: "INTEGER"},
								"reps":       {Type: "STRING", Description: "Count or range, e.g. '10' or '8-12'"},
								"rest":       {Type: "STRING", Description: "Rest between sets, e.g. '90s'"},
								"form_notes": {Type: "STRING", Description: "One or two sentences on proper form"},
							},
							Required: []string{"name", "sets", "reps"},
						},
					},
				},
				Required: []string{"day", "exercises"},
			},
		},
	},
	Required: []string{"diet_plan", "gym_plan"},
}
