package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tastelab/cupping-rooms/internal/domain"
	"github.com/tastelab/cupping-rooms/internal/repository"
)

const (
	DefaultDashboardDays = 30
	MaxDashboardDays     = 365
	dayLayout            = "2006-01-02"
)

type DashboardService struct {
	games   repository.GameRepository
	cupping repository.CuppingRepository
	now     func() time.Time
}

func NewDashboardService(repos *repository.Repositories) *DashboardService {
	return &DashboardService{
		games:   repos.Game,
		cupping: repos.Cupping,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type RoundHistoryEntry struct {
	RoundID   uuid.UUID `json:"roundId"`
	Date      time.Time `json:"date"`
	Correct   int       `json:"correct"`
	Total     int       `json:"total"`
	ElapsedMs int64     `json:"elapsedMs"`
	Overtime  bool      `json:"overtime"`
}

type DailyAccuracy struct {
	Date     string  `json:"date"`
	Correct  int     `json:"correct"`
	Total    int     `json:"total"`
	Accuracy float64 `json:"accuracy"`
}

type TriangulationDashboard struct {
	Rounds           int                 `json:"rounds"`
	Accuracy         float64             `json:"accuracy"`
	AverageElapsedMs int64               `json:"averageElapsedMs"`
	History          []RoundHistoryEntry `json:"history"`
	Daily            []DailyAccuracy     `json:"daily"`
}

type SampleAverage struct {
	Name     string                 `json:"name"`
	FormType domain.CuppingFormType `json:"formType"`
	Average  float64                `json:"average"`
	Count    int                    `json:"count"`
}

type ScorePoint struct {
	Date       time.Time              `json:"date"`
	SampleName string                 `json:"sampleName"`
	FormType   domain.CuppingFormType `json:"formType"`
	Total      float64                `json:"total"`
}

type CuppingDashboard struct {
	Scores   int             `json:"scores"`
	Averages []SampleAverage `json:"averages"`
	Timeline []ScorePoint    `json:"timeline"`
}

type Dashboard struct {
	Days          int                     `json:"days"`
	Triangulation *TriangulationDashboard `json:"triangulation"`
	Cupping       *CuppingDashboard       `json:"cupping"`
}

func clampDays(days int) int {
	if days <= 0 {
		return DefaultDashboardDays
	}
	if days > MaxDashboardDays {
		return MaxDashboardDays
	}
	return days
}

func (s *DashboardService) since(days int) time.Time {
	return s.now().AddDate(0, 0, -days)
}

// Overview loads both dashboards concurrently.
func (s *DashboardService) Overview(ctx context.Context, profileID uuid.UUID, days int) (*Dashboard, error) {
	days = clampDays(days)
	out := &Dashboard{Days: days}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tri, err := s.Triangulation(gctx, profileID, days)
		out.Triangulation = tri
		return err
	})
	g.Go(func() error {
		cup, err := s.Cupping(gctx, profileID, days)
		out.Cupping = cup
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *DashboardService) Triangulation(ctx context.Context, profileID uuid.UUID, days int) (*TriangulationDashboard, error) {
	results, err := s.games.GetResultsByProfile(ctx, profileID, s.since(clampDays(days)))
	if err != nil {
		return nil, err
	}
	return buildTriangulationDashboard(results), nil
}

func (s *DashboardService) Cupping(ctx context.Context, profileID uuid.UUID, days int) (*CuppingDashboard, error) {
	scores, err := s.cupping.GetScoresByProfile(ctx, profileID, s.since(clampDays(days)))
	if err != nil {
		return nil, err
	}
	return buildCuppingDashboard(scores), nil
}

func buildTriangulationDashboard(results []*domain.RoundResult) *TriangulationDashboard {
	dash := &TriangulationDashboard{
		Rounds:  len(results),
		History: make([]RoundHistoryEntry, 0, len(results)),
		Daily:   []DailyAccuracy{},
	}
	if len(results) == 0 {
		return dash
	}

	var correct, total int
	var elapsed int64
	daily := make(map[string]*DailyAccuracy)
	for _, r := range results {
		dash.History = append(dash.History, RoundHistoryEntry{
			RoundID:   r.RoundID,
			Date:      r.SubmittedAt,
			Correct:   r.CorrectCount,
			Total:     r.TotalCount,
			ElapsedMs: r.ElapsedMs,
			Overtime:  r.Overtime,
		})
		correct += r.CorrectCount
		total += r.TotalCount
		elapsed += r.ElapsedMs

		day := r.SubmittedAt.UTC().Format(dayLayout)
		d, ok := daily[day]
		if !ok {
			d = &DailyAccuracy{Date: day}
			daily[day] = d
		}
		d.Correct += r.CorrectCount
		d.Total += r.TotalCount
	}

	dash.Accuracy = ratio(correct, total)
	dash.AverageElapsedMs = elapsed / int64(len(results))
	for _, d := range daily {
		d.Accuracy = ratio(d.Correct, d.Total)
		dash.Daily = append(dash.Daily, *d)
	}
	sort.Slice(dash.Daily, func(i, j int) bool { return dash.Daily[i].Date < dash.Daily[j].Date })
	sort.SliceStable(dash.History, func(i, j int) bool { return dash.History[i].Date.Before(dash.History[j].Date) })
	return dash
}

func ratio(correct, total int) float64 {
	if total == 0 {
		return 0
	}
	return domain.RoundTo2(float64(correct) / float64(total))
}

// buildCuppingDashboard groups scores by form and sample name, ignoring case.
func buildCuppingDashboard(scores []*domain.CuppingScore) *CuppingDashboard {
	dash := &CuppingDashboard{
		Scores:   len(scores),
		Averages: []SampleAverage{},
		Timeline: make([]ScorePoint, 0, len(scores)),
	}

	type acc struct {
		name  string
		form  domain.CuppingFormType
		sum   float64
		count int
	}
	byName := make(map[string]*acc)
	for _, sc := range scores {
		name := ""
		if sc.Sample != nil {
			name = sc.Sample.Name
		}
		dash.Timeline = append(dash.Timeline, ScorePoint{
			Date:       sc.SubmittedAt,
			SampleName: name,
			FormType:   sc.FormType,
			Total:      sc.TotalScore,
		})

		key := string(sc.FormType) + "/" + strings.ToLower(strings.TrimSpace(name))
		a, ok := byName[key]
		if !ok {
			a = &acc{name: name, form: sc.FormType}
			byName[key] = a
		}
		a.sum += sc.TotalScore
		a.count++
	}

	for _, a := range byName {
		dash.Averages = append(dash.Averages, SampleAverage{
			Name:     a.name,
			FormType: a.form,
			Average:  domain.RoundTo2(a.sum / float64(a.count)),
			Count:    a.count,
		})
	}
	sort.Slice(dash.Averages, func(i, j int) bool {
		if dash.Averages[i].Average != dash.Averages[j].Average {
			return dash.Averages[i].Average > dash.Averages[j].Average
		}
		return dash.Averages[i].Name < dash.Averages[j].Name
	})
	sort.SliceStable(dash.Timeline, func(i, j int) bool { return dash.Timeline[i].Date.Before(dash.Timeline[j].Date) })
	return dash
}
