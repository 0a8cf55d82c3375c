package player

import "strconv"

// ErrorCode is a SCORM API error code. The 1.2 vocabulary is used for both dialects.
type ErrorCode int

const (
	NoError          ErrorCode = 0
	GeneralException ErrorCode = 101
	InvalidArgument  ErrorCode = 201
	NotInitialized   ErrorCode = 301
	NotImplemented   ErrorCode = 401
)

// errorStrings has no entry for NoError: with no error the description is empty.
var errorStrings = map[ErrorCode]string{
	GeneralException: "General exception",
	InvalidArgument:  "Invalid argument error",
	NotInitialized:   "Not initialized",
	NotImplemented:   "Not implemented error",
}

func (c ErrorCode) String() string {
	return strconv.Itoa(int(c))
}

// ErrorString returns the description of a code given as a string, "" when unknown.
func ErrorString(code string) string {
	n, err := strconv.Atoi(code)
	if err != nil {
		return ""
	}
	return errorStrings[ErrorCode(n)]
}
