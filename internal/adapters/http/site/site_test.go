package site

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func get(mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestSiteHandler(t *testing.T) {
	Convey("Given the embedded frontend", t, func() {
		mux := http.NewServeMux()
		So(Register(context.Background(), mux), ShouldBeNil)

		Convey("When / is requested", func() {
			w := get(mux, "/")

			Convey("Then the study page is served", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/html")
				So(w.Body.String(), ShouldContainSubstring, "Keystroke Study")
				So(w.Header().Get("Cache-Control"), ShouldEqual, "no-cache")
			})
		})

		Convey("When the assets are requested", func() {
			js := get(mux, "/script.js")
			css := get(mux, "/style.css")

			Convey("Then they are served with their types", func() {
				So(js.Code, ShouldEqual, http.StatusOK)
				So(js.Body.String(), ShouldContainSubstring, "/api/save_events")
				So(css.Code, ShouldEqual, http.StatusOK)
				So(css.Header().Get("Content-Type"), ShouldContainSubstring, "text/css")
			})
		})

		Convey("When a missing file is requested", func() {
			w := get(mux, "/nope.txt")

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestSiteDirOverride(t *testing.T) {
	Convey("Given a frontend directory on disk", t, func() {
		dir := t.TempDir()
		So(os.WriteFile(filepath.Join(dir, "index.html"), []byte("<p>custom</p>"), 0o600), ShouldBeNil)

		Convey("When it is registered", func() {
			mux := http.NewServeMux()
			So(Register(context.Background(), mux, WithDir(dir)), ShouldBeNil)

			Convey("Then its files replace the embedded ones", func() {
				w := get(mux, "/")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "custom")
				So(get(mux, "/script.js").Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When the directory does not exist", func() {
			err := Register(context.Background(), http.NewServeMux(), WithDir(filepath.Join(dir, "missing")))

			Convey("Then registration fails", func() {
				So(errors.Is(err, ErrStaticDir), ShouldBeTrue)
			})
		})

		Convey("When the mux is nil", func() {
			So(func() { _ = Register(context.Background(), nil) }, ShouldPanic)
		})
	})
}
