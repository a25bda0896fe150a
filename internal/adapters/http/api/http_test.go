package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/keystudy/internal/adapters/http/api"
	"github.com/okian/keystudy/internal/adapters/repository"
	service "github.com/okian/keystudy/internal/app"
	"github.com/okian/keystudy/internal/domain/dedupe"
	"github.com/okian/keystudy/internal/domain/model"
	"github.com/okian/keystudy/internal/domain/types"
	"github.com/okian/keystudy/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const exportHeader = "participant_id,condition,total_keys_pressed,total_backspaces,error_rate,typing_accuracy,hold_time_mean,hold_time_std,hold_time_median,latency_mean,latency_std,latency_median,typing_speed_wpm,session_duration_ms\n"

const zeroFeatures = `{"total_keys_pressed": 0, "total_backspaces": 0, "error_rate": 0, "typing_accuracy": 0,
	"hold_time_mean": 0, "hold_time_std": 0, "hold_time_median": 0,
	"latency_mean": 0, "latency_std": 0, "latency_median": 0,
	"typing_speed_wpm": 42.5, "session_duration_ms": 0}`

func init() {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
}

// failingDeps returns the same error from every operation.
type failingDeps struct {
	err error
}

func (f failingDeps) CreateParticipant(context.Context) (int64, error) { return 0, f.err }
func (f failingDeps) GetParticipant(context.Context, int64) (model.ParticipantView, error) {
	return model.ParticipantView{}, f.err
}
func (f failingDeps) SaveEvents(context.Context, string, int64, string, []model.EventRecord) (int, bool, error) {
	return 0, false, f.err
}
func (f failingDeps) SaveFeatures(context.Context, string, int64, string, model.FeatureRecord) (bool, error) {
	return false, f.err
}
func (f failingDeps) GetAllData(context.Context) ([]model.ParticipantView, error) { return nil, f.err }
func (f failingDeps) ExportCSV(context.Context, io.Writer) (int, error)           { return 0, f.err }
func (f failingDeps) Ping(context.Context) error                                  { return f.err }
func (f failingDeps) GetStats() map[string]interface{}                            { return map[string]interface{}{} }

func newMux(deps api.Dependencies, stats api.StatsProvider, opts ...api.ServerOption) http.Handler {
	mux := http.NewServeMux()
	api.NewServer(deps, stats, opts...).Register(context.Background(), mux)
	return api.RequestID(mux)
}

func newServiceMux(t *testing.T, opts ...api.ServerOption) http.Handler {
	t.Helper()
	svc := service.New(service.WithDBPath(repository.MemoryPath))
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Stop)
	return newMux(svc, svc, opts...)
}

func do(h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](w *httptest.ResponseRecorder) T {
	var v T
	So(json.Unmarshal(w.Body.Bytes(), &v), ShouldBeNil)
	return v
}

func TestStudyFlow(t *testing.T) {
	Convey("Given the API backed by an in-memory store", t, func() {
		h := newServiceMux(t)

		Convey("When no data has been recorded", func() {
			w := do(h, http.MethodGet, "/api/export_csv", "")

			Convey("Then the export is only the header", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldStartWith, "text/csv")
				So(w.Header().Get("Content-Disposition"), ShouldEqual, "attachment; filename=keystroke_data.csv")
				So(w.Body.String(), ShouldEqual, exportHeader)
			})

			Convey("Then get_data returns an empty list", func() {
				w := do(h, http.MethodGet, "/api/get_data", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"data":[]`)
			})
		})

		Convey("When a participant types and submits features", func() {
			created := do(h, http.MethodPost, "/api/create_participant", "")
			So(created.Code, ShouldEqual, http.StatusOK)
			cp := decode[types.CreateParticipantResponse](created)
			So(cp.Success, ShouldBeTrue)
			So(cp.ParticipantID, ShouldEqual, 1)

			events := do(h, http.MethodPost, "/api/save_events", `{"participant_id": 1, "task_type": "relaxed", "events": [
				{"type": "keydown", "key": "a", "code": "KeyA", "timestamp": 100.5},
				{"type": "keyup", "key": "a", "code": "KeyA", "timestamp": 180.25}]}`)
			features := do(h, http.MethodPost, "/api/save_features",
				`{"participant_id": 1, "condition": "control", "features": `+zeroFeatures+`}`)

			Convey("Then both writes succeed", func() {
				So(events.Code, ShouldEqual, http.StatusOK)
				ev := decode[types.SaveEventsResponse](events)
				So(ev.Success, ShouldBeTrue)
				So(ev.Saved, ShouldEqual, 2)
				So(ev.Message, ShouldEqual, "Saved 2 events")

				So(features.Code, ShouldEqual, http.StatusOK)
				So(decode[types.SaveFeaturesResponse](features).Success, ShouldBeTrue)
			})

			Convey("Then the export has the expected row", func() {
				w := do(h, http.MethodGet, "/api/export_csv", "")
				So(w.Body.String(), ShouldEqual, exportHeader+"1,control,0,0,0,0,0,0,0,0,0,0,42.5,0\n")
			})

			Convey("Then the participant view carries both", func() {
				w := do(h, http.MethodGet, "/api/participants/1", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				resp := decode[types.ParticipantResponse](w)
				So(resp.Data.ID, ShouldEqual, 1)
				So(len(resp.Data.Events), ShouldEqual, 2)
				So(resp.Data.Events[1].Timestamp, ShouldEqual, 180.25)
				So(len(resp.Data.Features), ShouldEqual, 1)
				So(resp.Data.Features[0].TypingSpeedWPM, ShouldEqual, 42.5)
			})

			Convey("Then stats count the rows", func() {
				w := do(h, http.MethodGet, "/stats", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				stats := decode[map[string]any](w)
				So(stats["participants"], ShouldEqual, float64(1))
				So(stats["events"], ShouldEqual, float64(2))
				So(stats["featureSets"], ShouldEqual, float64(1))
			})
		})

		Convey("When the same Idempotency-Key is retried", func() {
			do(h, http.MethodPost, "/api/create_participant", "")
			body := `{"participant_id": 1, "task_type": "stressed", "events": [{"type": "keydown", "key": "b", "code": "KeyB", "timestamp": 1}]}`
			first := do(h, http.MethodPost, "/api/save_events", body, types.IdempotencyKeyHeader, "abc")
			second := do(h, http.MethodPost, "/api/save_events", body, types.IdempotencyKeyHeader, "abc")

			Convey("Then the retry is acknowledged without storing again", func() {
				So(decode[types.SaveEventsResponse](first).Duplicate, ShouldBeFalse)
				dup := decode[types.SaveEventsResponse](second)
				So(second.Code, ShouldEqual, http.StatusOK)
				So(dup.Duplicate, ShouldBeTrue)
				So(dup.Saved, ShouldEqual, 0)

				view := decode[types.ParticipantResponse](do(h, http.MethodGet, "/api/participants/1", ""))
				So(len(view.Data.Events), ShouldEqual, 1)
			})
		})
	})
}

func TestValidationErrors(t *testing.T) {
	Convey("Given the API with one participant", t, func() {
		h := newServiceMux(t, api.WithMaxBodyBytes(512))
		do(h, http.MethodPost, "/api/create_participant", "")

		cases := []struct {
			name   string
			path   string
			body   string
			status int
			code   string
			field  string
		}{
			{"missing participant", "/api/save_events", `{"task_type": "relaxed", "events": []}`, 400, "validation_error", "participant_id"},
			{"missing events", "/api/save_events", `{"participant_id": 1, "task_type": "relaxed"}`, 400, "validation_error", "events"},
			{"event without key", "/api/save_events", `{"participant_id": 1, "task_type": "r", "events": [{"type": "keydown", "code": "KeyA", "timestamp": 1}]}`, 400, "validation_error", "events[0].key"},
			{"unknown participant", "/api/save_events", `{"participant_id": 99, "task_type": "r", "events": []}`, 404, "not_found", ""},
			{"malformed json", "/api/save_events", `{"participant_id": `, 400, "bad_request", ""},
			{"unknown field", "/api/save_events", `{"participant_id": 1, "task_type": "r", "events": [], "extra": true}`, 400, "bad_request", ""},
			{"empty body", "/api/save_features", ``, 400, "bad_request", ""},
			{"missing feature", "/api/save_features", `{"participant_id": 1, "condition": "c", "features": {"total_keys_pressed": 1}}`, 400, "validation_error", "features.total_backspaces"},
			{"fractional count", "/api/save_features", `{"participant_id": 1, "condition": "c", "features": {"total_keys_pressed": 1.5}}`, 400, "bad_request", ""},
			{"too large", "/api/save_events", `{"participant_id": 1, "task_type": "` + strings.Repeat("x", 1024) + `", "events": []}`, 413, "payload_too_large", ""},
		}

		for _, tc := range cases {
			Convey(fmt.Sprintf("When the request has %s", tc.name), func() {
				w := do(h, http.MethodPost, tc.path, tc.body)
				resp := decode[types.ErrorResponse](w)

				Convey("Then the status and envelope match", func() {
					So(w.Code, ShouldEqual, tc.status)
					So(resp.Success, ShouldBeFalse)
					So(resp.Code, ShouldEqual, tc.code)
					if tc.field != "" {
						So(resp.Message, ShouldStartWith, tc.field+":")
					}
				})
			})
		}

		Convey("When a participant id in the path is not a number", func() {
			w := do(h, http.MethodGet, "/api/participants/abc", "")

			Convey("Then it is a bad request", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When an unknown participant is fetched", func() {
			w := do(h, http.MethodGet, "/api/participants/42", "")

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When a write route is called with PUT", func() {
			w := do(h, http.MethodPut, "/api/save_events", "")

			Convey("Then the method is not allowed", func() {
				So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
			})
		})
	})
}

func TestStorageFailures(t *testing.T) {
	Convey("Given dependencies whose store fails", t, func() {
		h := newMux(failingDeps{err: fmt.Errorf("op: %w: disk I/O error", repository.ErrStorage)}, failingDeps{})

		Convey("When any data route is called", func() {
			for _, path := range []string{"/api/get_data", "/api/export_csv"} {
				w := do(h, http.MethodGet, path, "")
				resp := decode[types.ErrorResponse](w)

				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(resp.Code, ShouldEqual, "storage_error")
				So(resp.Message, ShouldNotContainSubstring, "disk")
			}
			w := do(h, http.MethodPost, "/api/create_participant", "")
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
		})

		Convey("When health is checked", func() {
			w := do(h, http.MethodGet, "/healthz", "")

			Convey("Then it reports unavailable", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(decode[types.HealthResponse](w).Status, ShouldEqual, "unavailable")
			})
		})
	})

	Convey("Given a write whose idempotency key is still in flight", t, func() {
		h := newMux(failingDeps{err: fmt.Errorf("save_events: %w", dedupe.ErrInProgress)}, failingDeps{})
		body := `{"participant_id": 1, "task_type": "relaxed", "events": []}`
		w := do(h, http.MethodPost, "/api/save_events", body, types.IdempotencyKeyHeader, "abc")

		So(w.Code, ShouldEqual, http.StatusConflict)
		So(decode[types.ErrorResponse](w).Code, ShouldEqual, "in_progress")
	})

	Convey("Given dependencies that fail with an unclassified error", t, func() {
		h := newMux(failingDeps{err: errors.New("boom")}, failingDeps{})
		w := do(h, http.MethodGet, "/api/get_data", "")

		So(w.Code, ShouldEqual, http.StatusInternalServerError)
		So(decode[types.ErrorResponse](w).Code, ShouldEqual, "internal_error")
	})
}

func TestOperationalRoutes(t *testing.T) {
	Convey("Given the API", t, func() {
		h := newServiceMux(t)

		Convey("When /healthz is called", func() {
			w := do(h, http.MethodGet, "/healthz", "")

			Convey("Then the store answers", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode[types.HealthResponse](w).Status, ShouldEqual, "ok")
			})
		})

		Convey("When /metrics is scraped after a request", func() {
			do(h, http.MethodPost, "/api/create_participant", "")
			w := do(h, http.MethodGet, "/metrics", "")

			Convey("Then study metrics are exposed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "keystudy_backend_participants_created_total")
				So(w.Body.String(), ShouldContainSubstring, "keystudy_backend_http_requests_total")
			})
		})

		Convey("When a request carries no request id", func() {
			w := do(h, http.MethodGet, "/healthz", "")

			Convey("Then one is generated", func() {
				So(len(w.Header().Get(api.RequestIDHeader)), ShouldEqual, 36)
			})
		})

		Convey("When a request carries a valid request id", func() {
			id := "1b4e28ba-2fa1-41d2-883f-0016d3cca427"
			w := do(h, http.MethodGet, "/healthz", "", api.RequestIDHeader, id)

			Convey("Then it is echoed", func() {
				So(w.Header().Get(api.RequestIDHeader), ShouldEqual, id)
			})
		})

		Convey("When a browser sends a preflight request", func() {
			w := do(h, http.MethodOptions, "/api/save_events", "", "Origin", "http://localhost:3000")

			Convey("Then CORS headers are returned", func() {
				So(w.Code, ShouldEqual, http.StatusNoContent)
				So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "*")
				So(w.Header().Get("Access-Control-Allow-Headers"), ShouldContainSubstring, "Idempotency-Key")
			})
		})

		Convey("When CORS is disabled", func() {
			h := newServiceMux(t, api.WithCORSOrigin(""))
			w := do(h, http.MethodGet, "/api/get_data", "")

			Convey("Then no CORS header is set", func() {
				So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "")
			})
		})
	})
}

func TestRegisterNilMux(t *testing.T) {
	Convey("Given a server", t, func() {
		s := api.NewServer(failingDeps{}, failingDeps{})

		Convey("Then registering on a nil mux panics", func() {
			So(func() { s.Register(context.Background(), nil) }, ShouldPanic)
		})
	})
}
