package player

import (
	"sort"

	"github.com/trezcool/masomo-scorm/core/scorm"
)

// Op is a canonical SCORM API operation. Both dialects map onto the same set.
type Op int

const (
	OpInitialize Op = iota + 1
	OpTerminate
	OpGetValue
	OpSetValue
	OpCommit
	OpGetLastError
	OpGetErrorString
	OpGetDiagnostic
)

// API object names content looks up on the launching window.
const (
	apiObject12   = "API"
	apiObject2004 = "API_1484_11"
)

var dialects = map[scorm.Version]map[string]Op{
	scorm.Version12: {
		"LMSInitialize":     OpInitialize,
		"LMSFinish":         OpTerminate,
		"LMSGetValue":       OpGetValue,
		"LMSSetValue":       OpSetValue,
		"LMSCommit":         OpCommit,
		"LMSGetLastError":   OpGetLastError,
		"LMSGetErrorString": OpGetErrorString,
		"LMSGetDiagnostic":  OpGetDiagnostic,
	},
	scorm.Version2004: {
		"Initialize":     OpInitialize,
		"Terminate":      OpTerminate,
		"GetValue":       OpGetValue,
		"SetValue":       OpSetValue,
		"Commit":         OpCommit,
		"GetLastError":   OpGetLastError,
		"GetErrorString": OpGetErrorString,
		"GetDiagnostic":  OpGetDiagnostic,
	},
}

// Lookup resolves a dialect function name to its canonical operation.
func Lookup(version scorm.Version, function string) (Op, bool) {
	op, ok := dialects[version][function]
	return op, ok
}

// Functions lists the function names of a dialect.
func Functions(version scorm.Version) []string {
	names := make([]string, 0, len(dialects[version]))
	for name := range dialects[version] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// APIObject returns the global the content of a dialect looks for.
func APIObject(version scorm.Version) string {
	if version == scorm.Version2004 {
		return apiObject2004
	}
	return apiObject12
}
