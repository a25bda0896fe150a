package export_test

import (
	"encoding/csv"
	"strings"
	"testing"

	"github.com/okian/keystudy/internal/domain/export"
	"github.com/okian/keystudy/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

const headerLine = "participant_id,condition,total_keys_pressed,total_backspaces,error_rate,typing_accuracy,hold_time_mean,hold_time_std,hold_time_median,latency_mean,latency_std,latency_median,typing_speed_wpm,session_duration_ms\n"

func TestRender(t *testing.T) {
	Convey("Given the CSV exporter", t, func() {
		Convey("When there are no rows", func() {
			out, err := export.Render(nil)

			Convey("Then only the header line and its newline are written", func() {
				So(err, ShouldBeNil)
				So(out, ShouldEqual, headerLine)
			})
		})

		Convey("When a row has zeros and one speed value", func() {
			rows := []model.ExportRow{{
				ParticipantID: 1,
				Condition:     "control",
				Features:      model.Features{TypingSpeedWPM: 42.5},
			}}
			out, err := export.Render(rows)

			Convey("Then numbers use their shortest form", func() {
				So(err, ShouldBeNil)
				So(out, ShouldEqual, headerLine+"1,control,0,0,0,0,0,0,0,0,0,0,42.5,0\n")
			})
		})

		Convey("When rows carry fractional values", func() {
			rows := []model.ExportRow{
				{ParticipantID: 2, Condition: "relaxed", Features: model.Features{TotalKeysPressed: 250, TotalBackspaces: 12, ErrorRate: 0.048, HoldTimeMean: 101.25, SessionDurationMS: 60123.4}},
				{ParticipantID: 2, Condition: "stressed", Features: model.Features{TotalKeysPressed: 310, LatencyStd: 1e-7}},
			}
			out, err := export.Render(rows)
			lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")

			Convey("Then each row keeps the column order", func() {
				So(err, ShouldBeNil)
				So(len(lines), ShouldEqual, 3)
				So(lines[1], ShouldEqual, "2,relaxed,250,12,0.048,0,101.25,0,0,0,0,0,0,60123.4")
				So(lines[2], ShouldEqual, "2,stressed,310,0,0,0,0,0,0,0,0.0000001,0,0,0")
			})
		})

		Convey("When a condition label contains a comma and a quote", func() {
			rows := []model.ExportRow{{ParticipantID: 5, Condition: `noise, "loud"`}}
			out, err := export.Render(rows)

			Convey("Then the label is quoted and the file still parses to 14 columns", func() {
				So(err, ShouldBeNil)
				So(out, ShouldContainSubstring, `5,"noise, ""loud""",0`)

				records, perr := csv.NewReader(strings.NewReader(out)).ReadAll()
				So(perr, ShouldBeNil)
				So(len(records), ShouldEqual, 2)
				So(len(records[1]), ShouldEqual, len(export.Header))
				So(records[1][1], ShouldEqual, `noise, "loud"`)
			})
		})
	})
}

func TestRecord(t *testing.T) {
	Convey("Given a single export row", t, func() {
		rec := export.Record(model.ExportRow{ParticipantID: 9, Condition: "c", Features: model.Features{TotalBackspaces: 3}})

		Convey("Then it has one value per header column", func() {
			So(len(rec), ShouldEqual, len(export.Header))
			So(rec[0], ShouldEqual, "9")
			So(rec[3], ShouldEqual, "3")
		})
	})
}
