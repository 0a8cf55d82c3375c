package scorm

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type (
	SessionSummary struct {
		SessionID         string     `json:"session_id"`
		UserID            string     `json:"user_id"`
		Attempt           int        `json:"attempt"`
		Status            Status     `json:"status"`
		Score             *float64   `json:"score"`
		TotalTime         string     `json:"total_time"`
		TimeSeconds       *float64   `json:"time_seconds"`
		StartedAt         *time.Time `json:"started_at"`
		EndedAt           *time.Time `json:"ended_at"`
		LastInteractionAt *time.Time `json:"last_interaction_at"`
	}

	Report struct {
		PackageID      string           `json:"package_id"`
		SessionCount   int              `json:"session_count"`
		CompletedCount int              `json:"completed_count"`
		CompletionRate float64          `json:"completion_rate"`
		AvgScore       *float64         `json:"avg_score"`
		AvgTimeSeconds *float64         `json:"avg_time_seconds"`
		Sessions       []SessionSummary `json:"sessions"`
	}
)

// Aggregate summarizes every session of a package.
// Sessions without a score or with an unparsable time are left out of the matching average.
func (svc *Service) Aggregate(ctx context.Context, packageID string) (Report, error) {
	if _, err := svc.repo.GetPackage(ctx, packageID); err != nil {
		return Report{}, err
	}

	sessions, err := svc.repo.QuerySessions(ctx, SessionFilter{PackageID: packageID})
	if err != nil {
		return Report{}, errors.Wrap(err, "querying sessions")
	}

	ids := make([]string, 0, len(sessions))
	for _, sess := range sessions {
		ids = append(ids, sess.ID)
	}
	lastTimes, err := svc.repo.LastInteractionTimes(ctx, ids)
	if err != nil {
		return Report{}, errors.Wrap(err, "querying last interaction times")
	}
	return buildReport(packageID, sessions, lastTimes), nil
}

func buildReport(packageID string, sessions []Session, lastTimes map[string]time.Time) Report {
	rep := Report{
		PackageID:    packageID,
		SessionCount: len(sessions),
		Sessions:     make([]SessionSummary, 0, len(sessions)),
	}

	var (
		scoreSum, timeSum     float64
		scoreCount, timeCount int
	)
	for _, sess := range sessions {
		sum := SessionSummary{
			SessionID: sess.ID,
			UserID:    sess.UserID,
			Attempt:   sess.Attempt,
			Status:    sess.Status,
			Score:     sess.Score,
			TotalTime: sess.TotalTime,
			StartedAt: sess.StartedAt,
			EndedAt:   sess.EndedAt,
		}
		if t, ok := lastTimes[sess.ID]; ok {
			t := t
			sum.LastInteractionAt = &t
		}

		if sess.Status == StatusCompleted {
			rep.CompletedCount++
		}
		if sess.Score != nil {
			scoreSum += *sess.Score
			scoreCount++
		}
		if d, ok := ParseSessionTime(sess.TotalTime); ok {
			secs := d.Seconds()
			sum.TimeSeconds = &secs
			timeSum += secs
			timeCount++
		}
		rep.Sessions = append(rep.Sessions, sum)
	}

	if rep.SessionCount > 0 {
		rep.CompletionRate = float64(rep.CompletedCount) / float64(rep.SessionCount)
	}
	if scoreCount > 0 {
		avg := scoreSum / float64(scoreCount)
		rep.AvgScore = &avg
	}
	if timeCount > 0 {
		avg := timeSum / float64(timeCount)
		rep.AvgTimeSeconds = &avg
	}
	return rep
}

var (
	// HHHH:MM:SS(.SS)
	clockTimeRegex = regexp.MustCompile(`^(\d{1,4}):(\d{2}):(\d{2})(\.\d{1,2})?$`)
	// P[nY][nM][nD][T[nH][nM][n(.n)S]]
	isoDurationRegex = regexp.MustCompile(`^P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)
)

const maxDuration = time.Duration(math.MaxInt64)

// addScaled returns d + n*unit, false when the result does not fit a time.Duration.
func addScaled(d time.Duration, n int64, unit time.Duration) (time.Duration, bool) {
	if n < 0 || n > int64((maxDuration-d)/unit) {
		return 0, false
	}
	return d + time.Duration(n)*unit, true
}

// ParseSessionTime parses a reported session time, either the HHHH:MM:SS.SS clock form
// or an ISO 8601 duration. Years and months count as 365 and 30 days.
// Durations too long for a time.Duration are rejected.
func ParseSessionTime(raw string) (time.Duration, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}

	if m := clockTimeRegex.FindStringSubmatch(raw); m != nil {
		h, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		sec, _ := strconv.Atoi(m[3])
		if mins > 59 || sec > 59 {
			return 0, false
		}
		d := time.Duration(h)*time.Hour + time.Duration(mins)*time.Minute + time.Duration(sec)*time.Second
		if m[4] != "" {
			frac, _ := strconv.ParseFloat("0"+m[4], 64)
			d += time.Duration(frac * float64(time.Second))
		}
		return d, true
	}

	m := isoDurationRegex.FindStringSubmatch(raw)
	if m == nil || raw == "P" || strings.HasSuffix(raw, "T") {
		return 0, false
	}
	units := []time.Duration{365 * 24 * time.Hour, 30 * 24 * time.Hour, 24 * time.Hour, time.Hour, time.Minute}
	var (
		d  time.Duration
		ok bool
	)
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil {
			return 0, false
		}
		if d, ok = addScaled(d, n, unit); !ok {
			return 0, false
		}
	}
	if m[6] != "" {
		secs, err := strconv.ParseFloat(m[6], 64)
		if err != nil || secs*float64(time.Second) >= float64(maxDuration-d) {
			return 0, false
		}
		d += time.Duration(secs * float64(time.Second))
	}
	return d, true
}
