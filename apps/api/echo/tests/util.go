package tests

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/masomo-scorm/apps/api/echo"
	"github.com/trezcool/masomo-scorm/core"
	"github.com/trezcool/masomo-scorm/core/scorm"
	"github.com/trezcool/masomo-scorm/core/scorm/manifest"
	"github.com/trezcool/masomo-scorm/core/scorm/player"
	logsvc "github.com/trezcool/masomo-scorm/services/logger"
	"github.com/trezcool/masomo-scorm/services/metrics"
	"github.com/trezcool/masomo-scorm/services/notify"
	"github.com/trezcool/masomo-scorm/storage/database/inmem"
	"github.com/trezcool/masomo-scorm/tests"
)

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

type apiEnv struct {
	app          *Server
	conf         *core.Config
	repo         scorm.Repository
	svc          *scorm.Service
	player       *player.Player
	interactions *scorm.InteractionLog
	inbox        *notify.Inbox
	launches     player.LaunchStore
}

func setup(t *testing.T) *apiEnv {
	return newEnv(t, inmemdb.NewScormRepository(inmemdb.Open()), player.NewMemoryLaunchStore())
}

// newEnv builds an API process on top of shared storage.
func newEnv(t *testing.T, repo scorm.Repository, launches player.LaunchStore) *apiEnv {
	t.Helper()
	conf := testutil.Config()
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)

	content := testutil.ContentStore{
		"intro":  testutil.PackageFS(testutil.Manifest12("index.html")),
		"adv":    testutil.PackageFS(testutil.Manifest2004("index.html?lang=en")),
		"broken": fstest.MapFS{"readme.txt": {Data: []byte("no manifest")}},
	}

	// set up services
	validate, translator := testutil.NewValidator()
	recorder := metrics.NewRecorder()
	inbox := notify.NewInbox(0)
	svc := scorm.NewService(repo, manifest.NewResolver(content), logger, recorder)
	interactions := scorm.NewInteractionLog(repo, inbox, logger, recorder, scorm.InteractionLogOptions{
		FlushInterval: conf.Runtime.FlushInterval,
		BatchSize:     conf.Runtime.FlushBatchSize,
		MaxPending:    conf.Runtime.MaxPendingInteractions,
		DefaultLimit:  conf.Runtime.InteractionLimit,
		MaxLimit:      conf.Runtime.MaxInteractionLimit,
	})
	pl := player.New(svc, interactions, launches, inbox, recorder, logger, player.Options{
		ProxyPrefix:   conf.Content.ProxyPrefix,
		CommitTimeout: conf.Runtime.CommitTimeout,
		IdleTimeout:   conf.Redis.LaunchTTL,
	})

	// set up server
	app := NewServer(conf, logger, &Deps{
		Scorm:        svc,
		Player:       pl,
		Interactions: interactions,
		Inbox:        inbox,
		Content:      content,
		Metrics:      recorder.Handler(),
		Validate:     validate,
		Translator:   translator,
	})
	return &apiEnv{
		app:          app,
		conf:         conf,
		repo:         repo,
		svc:          svc,
		player:       pl,
		interactions: interactions,
		inbox:        inbox,
		launches:     launches,
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func (env *apiEnv) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	env.app.ServeHTTP(rec, req)
	return rec
}

func getToken(t *testing.T, conf *core.Config, learner scorm.Learner, isAdmin bool) string {
	token, err := GenerateToken(conf, GetLearnerClaims(conf, learner, isAdmin))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarshall(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("unmarshall() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	if _, ok := j1.([]interface{}); !ok {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, env *apiEnv, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
