package testutil

import (
	"context"
	"fmt"
	"io/fs"
	"testing"
	"testing/fstest"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/trezcool/masomo-scorm/core"
	"github.com/trezcool/masomo-scorm/core/scorm"
)

// Config returns a configuration suitable for tests.
func Config() *core.Config {
	return &core.Config{
		AppName:   "scorm-test",
		Env:       "TEST",
		Debug:     true,
		TestMode:  true,
		SecretKey: "test-secret",
		Server: core.ServerConfig{
			JWTExpirationDelta: time.Hour,
			ShutdownTimeout:    time.Second,
		},
		Content: core.ContentConfig{ProxyPrefix: "/content"},
		Runtime: core.RuntimeConfig{
			CommitTimeout:          time.Second,
			FlushInterval:          time.Hour,
			FlushBatchSize:         100,
			MaxPendingInteractions: 1000,
			InteractionLimit:       50,
			MaxInteractionLimit:    500,
		},
	}
}

// NewValidator returns a validator with every custom validation registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")

	validate := validator.New()
	core.InitValidators(validate, translator)
	scorm.InitValidators(validate, translator)
	return validate, translator
}

func CreatePackage(t *testing.T, repo scorm.PackageRepository, title, contentRoot string, version scorm.Version, entryPath string) scorm.Package {
	now := time.Now().UTC()
	pkg, err := repo.CreatePackage(context.Background(), scorm.Package{
		ID:          uuid.New().String(),
		Title:       title,
		Version:     version,
		EntryPath:   entryPath,
		ContentRoot: contentRoot,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("CreatePackage() failed: %v", err)
	}
	return pkg
}

func CreateSession(
	t *testing.T,
	repo scorm.SessionRepository,
	pkgID, userID string,
	attempt int,
	status scorm.Status,
	createdAt ...time.Time,
) scorm.Session {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	sess := scorm.Session{
		ID:        uuid.New().String(),
		PackageID: pkgID,
		UserID:    userID,
		Attempt:   attempt,
		Status:    status,
		Data:      map[string]string{},
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if status != scorm.StatusNotStarted {
		sess.StartedAt = &tstamp
	}
	if status.IsTerminal() {
		sess.EndedAt = &tstamp
	}
	sess, err := repo.CreateSession(context.Background(), sess)
	if err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}
	return sess
}

// ContentStore serves package contents from memory, keyed by content root.
type ContentStore map[string]fs.FS

func (s ContentStore) Open(pkg scorm.Package) (fs.FS, error) {
	fsys, ok := s[pkg.ContentRoot]
	if !ok {
		return nil, fmt.Errorf("content root %q: %w", pkg.ContentRoot, fs.ErrNotExist)
	}
	return fsys, nil
}

// Manifest12 returns a SCORM 1.2 manifest launching href.
func Manifest12(href string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<manifest identifier="m1" xmlns="http://www.imsproject.org/xsd/imscp_rootv1p1p2"
          xmlns:adlcp="http://www.adlnet.org/xsd/adlcp_rootv1p2">
  <metadata><schema>ADL SCORM</schema><schemaversion>1.2</schemaversion></metadata>
  <organizations default="org1">
    <organization identifier="org1">
      <title>Course</title>
      <item identifier="i1" identifierref="r1"><title>Lesson</title></item>
    </organization>
  </organizations>
  <resources>
    <resource identifier="r1" type="webcontent" adlcp:scormtype="sco" href="` + href + `"/>
  </resources>
</manifest>`
}

// Manifest2004 returns a SCORM 2004 manifest launching href.
func Manifest2004(href string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<manifest identifier="m1" xmlns="http://www.imsglobal.org/xsd/imscp_v1p1"
          xmlns:adlcp="http://www.adlnet.org/xsd/adlcp_v1p3">
  <metadata><schema>ADL SCORM</schema><schemaversion>2004 4th Edition</schemaversion></metadata>
  <organizations default="org1">
    <organization identifier="org1">
      <title>Course</title>
      <item identifier="i1" identifierref="r1"><title>Lesson</title></item>
    </organization>
  </organizations>
  <resources>
    <resource identifier="r1" type="webcontent" adlcp:scormType="sco" href="` + href + `"/>
  </resources>
</manifest>`
}

// PackageFS returns the files of a package whose manifest launches index.html.
func PackageFS(manifest string) fstest.MapFS {
	return fstest.MapFS{
		"imsmanifest.xml": {Data: []byte(manifest)},
		"index.html":      {Data: []byte("<html><body>lesson</body></html>")},
		"assets/app.js":   {Data: []byte("console.log('lesson');")},
	}
}
