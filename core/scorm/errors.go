package scorm

import "errors"

var (
	ErrPackageNotFound = errors.New("package not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrNotLaunchable   = errors.New("package not launchable")

	// ErrSessionConflict is returned by repositories when a session would break the
	// one-active-session or unique-attempt constraint of a (package, learner) pair.
	ErrSessionConflict = errors.New("session conflict")

	ErrManifestNotFound = errors.New("imsmanifest.xml not found")
	ErrNoEntryPoint     = errors.New("manifest declares no launchable entry point")
)
