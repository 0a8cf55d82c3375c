package player

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/masomo-scorm/core/scorm"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		version  scorm.Version
		function string
		want     Op
		wantOk   bool
	}{
		{scorm.Version12, "LMSInitialize", OpInitialize, true},
		{scorm.Version12, "LMSFinish", OpTerminate, true},
		{scorm.Version12, "LMSGetValue", OpGetValue, true},
		{scorm.Version12, "LMSSetValue", OpSetValue, true},
		{scorm.Version12, "LMSCommit", OpCommit, true},
		{scorm.Version12, "LMSGetLastError", OpGetLastError, true},
		{scorm.Version12, "LMSGetErrorString", OpGetErrorString, true},
		{scorm.Version12, "LMSGetDiagnostic", OpGetDiagnostic, true},
		{scorm.Version12, "Initialize", 0, false},
		{scorm.Version12, "LMSTerminate", 0, false},
		{scorm.Version2004, "Initialize", OpInitialize, true},
		{scorm.Version2004, "Terminate", OpTerminate, true},
		{scorm.Version2004, "GetValue", OpGetValue, true},
		{scorm.Version2004, "SetValue", OpSetValue, true},
		{scorm.Version2004, "Commit", OpCommit, true},
		{scorm.Version2004, "GetLastError", OpGetLastError, true},
		{scorm.Version2004, "GetErrorString", OpGetErrorString, true},
		{scorm.Version2004, "GetDiagnostic", OpGetDiagnostic, true},
		{scorm.Version2004, "LMSInitialize", 0, false},
		{scorm.Version2004, "initialize", 0, false},
		{"1.1", "LMSInitialize", 0, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.version)+"/"+tt.function, func(t *testing.T) {
			got, ok := Lookup(tt.version, tt.function)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFunctionsAndAPIObject(t *testing.T) {
	assert.Equal(t, []string{
		"Commit", "GetDiagnostic", "GetErrorString", "GetLastError", "GetValue", "Initialize", "SetValue", "Terminate",
	}, Functions(scorm.Version2004))
	assert.Len(t, Functions(scorm.Version12), 8)
	assert.Empty(t, Functions("1.1"))

	assert.Equal(t, "API", APIObject(scorm.Version12))
	assert.Equal(t, "API_1484_11", APIObject(scorm.Version2004))
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"0", ""},
		{"101", "General exception"},
		{"201", "Invalid argument error"},
		{"301", "Not initialized"},
		{"401", "Not implemented error"},
		{"402", ""},
		{"", ""},
		{"abc", ""},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorString(tt.code))
		})
	}
	assert.Equal(t, "301", NotInitialized.String())
}

func TestDefaultValue(t *testing.T) {
	learner := scorm.Learner{ID: "u1", Name: "Doe, Jane"}
	tests := []struct {
		version scorm.Version
		element string
		status  scorm.Status
		want    string
		wantOk  bool
	}{
		{scorm.Version12, "cmi.core.student_id", scorm.StatusInProgress, "u1", true},
		{scorm.Version12, "cmi.core.student_name", scorm.StatusInProgress, "Doe, Jane", true},
		{scorm.Version12, "cmi.core.entry", scorm.StatusInProgress, entryAbInitio, true},
		{scorm.Version12, "cmi.core.lesson_status", scorm.StatusNotStarted, "not attempted", true},
		{scorm.Version12, "cmi.core.lesson_status", scorm.StatusInProgress, "incomplete", true},
		{scorm.Version12, "cmi.core.lesson_status", scorm.StatusFailed, "failed", true},
		{scorm.Version12, "cmi.learner_id", scorm.StatusInProgress, "", false},
		{scorm.Version2004, "cmi.learner_id", scorm.StatusInProgress, "u1", true},
		{scorm.Version2004, "cmi.completion_status", scorm.StatusFailed, "completed", true},
		{scorm.Version2004, "cmi.success_status", scorm.StatusFailed, "failed", true},
		{scorm.Version2004, "cmi.success_status", scorm.StatusCompleted, "unknown", true},
		{scorm.Version2004, "cmi.suspend_data", scorm.StatusInProgress, "", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.version)+"/"+tt.element, func(t *testing.T) {
			got, ok := defaultValue(tt.version, tt.element, learner, entryAbInitio, tt.status)
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
