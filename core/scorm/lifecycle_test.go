package scorm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2021, 3, 4, 10, 30, 0, 0, time.UTC)

func TestMapReportedStatus(t *testing.T) {
	tests := []struct {
		raw    string
		want   Status
		wantOk bool
	}{
		{"completed", StatusCompleted, true},
		{"passed", StatusCompleted, true},
		{" Passed ", "", false},
		{"Completed", "", false},
		{"failed", StatusFailed, true},
		{"FAILED", "", false},
		{"incomplete", "", false},
		{"browsed", "", false},
		{"not attempted", "", false},
		{"unknown", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := MapReportedStatus(tt.raw)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSession_Begin(t *testing.T) {
	sess := Session{Status: StatusNotStarted}
	require.True(t, sess.Begin(testNow))
	assert.Equal(t, StatusInProgress, sess.Status)
	require.NotNil(t, sess.StartedAt)
	assert.Equal(t, testNow, *sess.StartedAt)

	// only once
	assert.False(t, sess.Begin(testNow.Add(time.Hour)))
	assert.Equal(t, testNow, *sess.StartedAt)

	done := Session{Status: StatusCompleted}
	assert.False(t, done.Begin(testNow))
	assert.Equal(t, StatusCompleted, done.Status)
}

func TestSession_RecordStatus(t *testing.T) {
	ended := testNow.Add(-time.Hour)
	tests := []struct {
		name        string
		status      Status
		endedAt     *time.Time
		raw         string
		wantChanged bool
		wantStatus  Status
		wantEnded   *time.Time
		wantStarted bool
	}{
		{"not started completes", StatusNotStarted, nil, "completed", true, StatusCompleted, &testNow, true},
		{"not started incomplete begins", StatusNotStarted, nil, "incomplete", true, StatusInProgress, nil, true},
		{"in progress passes", StatusInProgress, nil, "passed", true, StatusCompleted, &testNow, false},
		{"in progress fails", StatusInProgress, nil, "failed", true, StatusFailed, &testNow, false},
		{"in progress incomplete", StatusInProgress, nil, "incomplete", false, StatusInProgress, nil, false},
		{"in progress unknown value", StatusInProgress, nil, "lol", false, StatusInProgress, nil, false},
		{"completed stays completed", StatusCompleted, &ended, "failed", false, StatusCompleted, &ended, false},
		{"failed stays failed", StatusFailed, &ended, "passed", false, StatusFailed, &ended, false},
		{"failed ignores incomplete", StatusFailed, &ended, "incomplete", false, StatusFailed, &ended, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := Session{Status: tt.status, EndedAt: tt.endedAt}
			changed := sess.RecordStatus(tt.raw, testNow)

			assert.Equal(t, tt.wantChanged, changed)
			assert.Equal(t, tt.wantStatus, sess.Status)
			assert.Equal(t, tt.wantEnded, sess.EndedAt)
			if tt.wantStarted {
				require.NotNil(t, sess.StartedAt)
				assert.Equal(t, testNow, *sess.StartedAt)
			}
		})
	}
}

func TestSession_RecordScore(t *testing.T) {
	prev := 50.0
	tests := []struct {
		raw         string
		wantChanged bool
		want        float64
	}{
		{"85", true, 85},
		{" 72.5 ", true, 72.5},
		{"-10", true, -10},
		{"150", true, 150},
		{"", false, prev},
		{"abc", false, prev},
		{"NaN", false, prev},
		{"Inf", false, prev},
		{"-Inf", false, prev},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			p := prev
			sess := Session{Score: &p}
			assert.Equal(t, tt.wantChanged, sess.RecordScore(tt.raw))
			require.NotNil(t, sess.Score)
			assert.Equal(t, tt.want, *sess.Score)
		})
	}

	var sess Session
	assert.False(t, sess.RecordScore("x"))
	assert.Nil(t, sess.Score)
}

func TestSession_RecordTimeAndElements(t *testing.T) {
	var sess Session
	assert.True(t, sess.RecordTime("0000:01:00"))
	assert.True(t, sess.RecordTime("PT2M"))
	assert.Equal(t, "PT2M", sess.TotalTime)

	_, ok := sess.Value("cmi.core.lesson_location")
	assert.False(t, ok)
	sess.WriteElement("cmi.core.lesson_location", "1")
	sess.WriteElement("cmi.core.lesson_location", "2")
	v, ok := sess.Value("cmi.core.lesson_location")
	assert.True(t, ok)
	assert.Equal(t, "2", v)
}

func TestSession_Clone(t *testing.T) {
	score := 10.0
	started := testNow
	sess := Session{ID: "s", Score: &score, StartedAt: &started, Data: map[string]string{"a": "1"}}

	c := sess.Clone()
	c.Data["a"] = "2"
	*c.Score = 20
	*c.StartedAt = testNow.Add(time.Hour)

	assert.Equal(t, "1", sess.Data["a"])
	assert.Equal(t, 10.0, *sess.Score)
	assert.Equal(t, testNow, *sess.StartedAt)
	assert.Nil(t, c.EndedAt)
}

func TestStatusAndVersion(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusInProgress.IsTerminal())
	assert.True(t, StatusNotStarted.IsActive())
	assert.True(t, StatusInProgress.IsActive())
	assert.False(t, StatusFailed.IsActive())

	assert.True(t, Version12.IsValid())
	assert.True(t, Version2004.IsValid())
	assert.False(t, Version("1.3").IsValid())

	assert.True(t, Package{EntryPath: "index.html", Version: Version12}.Launchable())
	assert.False(t, Package{Version: Version12}.Launchable())
	assert.False(t, Package{EntryPath: "index.html"}.Launchable())
}
