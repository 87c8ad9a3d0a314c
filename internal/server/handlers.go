package server

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"FitCoach_V0.1/internal/fitness"
	"FitCoach_V0.1/internal/geminiservice"
	"FitCoach_V0.1/internal/utility"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

const planFileName = "ai_fitness_plan.txt"

var templateFuncs = template.FuncMap{
	"title": func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	},
}

// RequestProgress is the body of POST /progress. An empty date means today.
type RequestProgress struct {
	Date     string  `json:"date" form:"date"`
	WeightKg float64 `json:"weight_kg" form:"weight_kg" validate:"required,gte=30,lte=200"`
}

// ProgressChart is the series the page plots, ordered by date.
type ProgressChart struct {
	Labels  []string                `json:"labels"`
	Weights []float64               `json:"weights"`
	Entries []fitness.ProgressEntry `json:"entries"`
}

type indexPage struct {
	Genders []fitness.Gender
	Goals   []fitness.Goal
	Diets   []fitness.DietPreference
	Profile fitness.UserProfile
	BMI     float64
	Plan    *fitness.PlanResponse
	Chart   ProgressChart
}

func newProgressChart(entries []fitness.ProgressEntry) ProgressChart {
	chart := ProgressChart{
		Labels:  make([]string, 0, len(entries)),
		Weights: make([]float64, 0, len(entries)),
		Entries: entries,
	}
	for _, e := range entries {
		chart.Labels = append(chart.Labels, e.Date.Format(fitness.DateLayout))
		chart.Weights = append(chart.Weights, e.WeightKg)
	}
	return chart
}

// validationMessage turns validator errors into a short user-facing sentence.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid request"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return "Invalid or missing fields: " + strings.Join(fields, ", ")
}

// indexHandler serves the form, plan tabs and progress chart page.
func (s *Server) indexHandler(c echo.Context) error {
	sess := getSession(c)

	profile, ok := sess.Profile()
	if !ok {
		profile = fitness.UserProfile{
			Age:            25,
			Gender:         fitness.GenderMale,
			HeightCm:       170,
			WeightKg:       70,
			DietPreference: fitness.DietNoPreference,
			Goal:           fitness.GoalLoseWeight,
		}
	}

	return c.Render(http.StatusOK, "index.html", indexPage{
		Genders: fitness.Genders,
		Goals:   fitness.Goals,
		Diets:   fitness.DietPreferences,
		Profile: profile,
		BMI:     profile.BMI(),
		Plan:    sess.Plan(),
		Chart:   newProgressChart(sess.Progress()),
	})
}

// generatePlanHandler validates the submitted profile and requests a new plan.
// The session's previous plan is only replaced on success.
func (s *Server) generatePlanHandler(c echo.Context) error {
	ctx := c.Request().Context()
	logger := utility.GetLogger(c)
	sess := getSession(c)

	var req fitness.UserProfile
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	profile := req.Normalize()
	if err := c.Validate(&profile); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": validationMessage(err)})
	}

	if !sess.AllowPlan() {
		return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "Too many plan requests, please wait a moment"})
	}

	sess.SetProfile(profile)

	plan, err := s.planner.GeneratePlan(ctx, logger, profile, s.cfg.Gemini.APIKey)
	if err != nil {
		var pe *geminiservice.PlanError
		if errors.As(err, &pe) {
			logger.Warn().Err(err).Str("kind", pe.Kind.String()).Msg("generatePlanHandler: plan request failed")
			return c.JSON(http.StatusBadGateway, map[string]string{
				"error": pe.UserMessage(),
				"kind":  pe.Kind.String(),
			})
		}
		logger.Error().Err(err).Msg("generatePlanHandler: unexpected error")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to generate plan"})
	}

	sess.SetPlan(plan)
	s.hub.Notify(sess.ID)

	return c.JSON(http.StatusOK, plan)
}

func (s *Server) getPlanHandler(c echo.Context) error {
	plan := getSession(c).Plan()
	if plan == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "No plan generated yet"})
	}
	return c.JSON(http.StatusOK, plan)
}

// downloadPlanHandler returns the current plan as a plain-text attachment.
func (s *Server) downloadPlanHandler(c echo.Context) error {
	plan := getSession(c).Plan()
	if plan == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "No plan generated yet"})
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", planFileName))
	return c.Blob(http.StatusOK, "text/plain; charset=utf-8", []byte(plan.Text()))
}

func (s *Server) addProgressHandler(c echo.Context) error {
	logger := utility.GetLogger(c)
	sess := getSession(c)

	var req RequestProgress
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": validationMessage(err)})
	}

	date, err := fitness.ParseLogDate(strings.TrimSpace(req.Date), time.Now())
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if err := sess.AppendProgress(fitness.ProgressEntry{Date: date, WeightKg: req.WeightKg}); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	logger.Info().Str("date", date.Format(fitness.DateLayout)).Float64("weight_kg", req.WeightKg).Msg("Progress logged")

	s.hub.Notify(sess.ID)

	return c.JSON(http.StatusCreated, newProgressChart(sess.Progress()))
}

func (s *Server) getProgressHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, newProgressChart(getSession(c).Progress()))
}

// progressSocketHandler keeps a websocket open so the page can reload its
// chart and plan when another tab changes them.
func (s *Server) progressSocketHandler(c echo.Context) error {
	sess := getSession(c)

	ws, err := utility.Upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	s.hub.Register(sess.ID, ws)
	defer s.hub.Unregister(sess.ID, ws)

	// We don't expect messages from the client, but we must read to keep the socket open
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
	return nil
}

// endSessionHandler drops all session data and expires the cookie.
func (s *Server) endSessionHandler(c echo.Context) error {
	sess := getSession(c)

	s.hub.CloseSession(sess.ID)
	s.sessions.End(sess.ID)

	cs, _ := s.cookies.Get(c.Request(), s.cfg.Session.CookieName)
	cs.Options.MaxAge = -1
	if err := cs.Save(c.Request(), c.Response()); err != nil {
		utility.GetLogger(c).Error().Err(err).Msg("endSessionHandler: failed to clear cookie")
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Session ended"})
}

// healthHandler collects and returns process and host metrics.
func (s *Server) healthHandler(c echo.Context) error {
	v, _ := mem.VirtualMemory()
	cpuPercent, _ := cpu.Percent(0, false)
	hInfo, _ := host.Info()

	resp := map[string]interface{}{
		"status": "online",
		"runtime": map[string]interface{}{
			"uptime":     time.Since(s.startTime).String(),
			"start_time": s.startTime.Format(time.RFC3339),
		},
		"sessions": s.sessions.Len(),
	}
	if hInfo != nil {
		resp["host"] = map[string]interface{}{
			"os":       hInfo.OS,
			"platform": hInfo.Platform,
			"arch":     hInfo.KernelArch,
			"procs":    hInfo.Procs,
		}
	}
	if len(cpuPercent) > 0 {
		resp["cpu"] = map[string]interface{}{
			"usage_percent": fmt.Sprintf("%.2f%%", cpuPercent[0]),
		}
	}
	if v != nil {
		resp["memory"] = map[string]interface{}{
			"total_gb":     fmt.Sprintf("%.2f GB", float64(v.Total)/1024/1024/1024),
			"used_percent": fmt.Sprintf("%.2f%%", v.UsedPercent),
		}
	}
	return c.JSON(http.StatusOK, resp)
}
