package model_test

import (
	"errors"
	"math"
	"testing"

	model "github.com/okian/keystudy/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestEventRecordValidate(t *testing.T) {
	convey.Convey("Given event records", t, func() {
		convey.Convey("When every field is present", func() {
			rec := model.NewEventRecord("keydown", "a", "KeyA", 12.5)

			convey.Convey("Then validation passes and conversion keeps every field", func() {
				convey.So(rec.Validate("events[0]"), convey.ShouldBeNil)
				ev := rec.Event(3, "relaxed")
				convey.So(ev, convey.ShouldResemble, model.Event{
					ParticipantID: 3,
					TaskType:      "relaxed",
					EventType:     "keydown",
					Key:           "a",
					Code:          "KeyA",
					Timestamp:     12.5,
				})
			})
		})

		convey.Convey("When the code is an empty string", func() {
			rec := model.NewEventRecord("keyup", "Unidentified", "", 1)

			convey.Convey("Then it is accepted since some keyboards report no physical code", func() {
				convey.So(rec.Validate(""), convey.ShouldBeNil)
			})
		})

		convey.Convey("When a field is absent", func() {
			cases := map[string]func(r *model.EventRecord){
				"events[2].type":      func(r *model.EventRecord) { r.Type = nil },
				"events[2].key":       func(r *model.EventRecord) { r.Key = nil },
				"events[2].code":      func(r *model.EventRecord) { r.Code = nil },
				"events[2].timestamp": func(r *model.EventRecord) { r.Timestamp = nil },
			}

			convey.Convey("Then the error names that field", func() {
				for field, mutate := range cases {
					rec := model.NewEventRecord("keydown", "a", "KeyA", 1)
					mutate(&rec)
					err := rec.Validate("events[2]")

					var verr *model.ValidationError
					convey.So(errors.As(err, &verr), convey.ShouldBeTrue)
					convey.So(verr.Field, convey.ShouldEqual, field)
					convey.So(errors.Is(err, model.ErrValidation), convey.ShouldBeTrue)
				}
			})
		})

		convey.Convey("When the timestamp is not finite", func() {
			rec := model.NewEventRecord("keydown", "a", "KeyA", math.Inf(1))

			convey.Convey("Then it is rejected", func() {
				convey.So(rec.Validate(""), convey.ShouldNotBeNil)
				convey.So(rec.Validate("").Error(), convey.ShouldContainSubstring, "timestamp")
			})
		})

		convey.Convey("When the type is blank", func() {
			rec := model.NewEventRecord("  ", "a", "KeyA", 1)

			convey.Convey("Then it is rejected", func() {
				convey.So(rec.Validate("").Error(), convey.ShouldEqual, "type: must not be blank")
			})
		})
	})
}

func TestFeatureRecordValidate(t *testing.T) {
	convey.Convey("Given feature records", t, func() {
		full := model.Features{
			TotalKeysPressed:  120,
			TotalBackspaces:   7,
			ErrorRate:         0.058,
			TypingAccuracy:    94.2,
			HoldTimeMean:      96.1,
			HoldTimeStd:       21.4,
			HoldTimeMedian:    92,
			LatencyMean:       180.3,
			LatencyStd:        60.2,
			LatencyMedian:     171,
			TypingSpeedWPM:    42.5,
			SessionDurationMS: 61234,
		}

		convey.Convey("When every field is present", func() {
			rec := model.NewFeatureRecord(full)

			convey.Convey("Then it round-trips exactly", func() {
				convey.So(rec.Validate(), convey.ShouldBeNil)
				convey.So(rec.Features(), convey.ShouldResemble, full)
			})
		})

		convey.Convey("When any single field is missing", func() {
			mutations := map[string]func(r *model.FeatureRecord){
				"features.total_keys_pressed":  func(r *model.FeatureRecord) { r.TotalKeysPressed = nil },
				"features.total_backspaces":    func(r *model.FeatureRecord) { r.TotalBackspaces = nil },
				"features.error_rate":          func(r *model.FeatureRecord) { r.ErrorRate = nil },
				"features.typing_accuracy":     func(r *model.FeatureRecord) { r.TypingAccuracy = nil },
				"features.hold_time_mean":      func(r *model.FeatureRecord) { r.HoldTimeMean = nil },
				"features.hold_time_std":       func(r *model.FeatureRecord) { r.HoldTimeStd = nil },
				"features.hold_time_median":    func(r *model.FeatureRecord) { r.HoldTimeMedian = nil },
				"features.latency_mean":        func(r *model.FeatureRecord) { r.LatencyMean = nil },
				"features.latency_std":         func(r *model.FeatureRecord) { r.LatencyStd = nil },
				"features.latency_median":      func(r *model.FeatureRecord) { r.LatencyMedian = nil },
				"features.typing_speed_wpm":    func(r *model.FeatureRecord) { r.TypingSpeedWPM = nil },
				"features.session_duration_ms": func(r *model.FeatureRecord) { r.SessionDurationMS = nil },
			}

			convey.Convey("Then the validation error names exactly that field", func() {
				for field, mutate := range mutations {
					rec := model.NewFeatureRecord(full)
					mutate(&rec)

					var verr *model.ValidationError
					convey.So(errors.As(rec.Validate(), &verr), convey.ShouldBeTrue)
					convey.So(verr.Field, convey.ShouldEqual, field)
					convey.So(verr.Reason, convey.ShouldEqual, "is required")
				}
			})
		})

		convey.Convey("When a count is negative", func() {
			bad := full
			bad.TotalBackspaces = -1
			rec := model.NewFeatureRecord(bad)

			convey.Convey("Then it is rejected", func() {
				convey.So(rec.Validate().Error(), convey.ShouldEqual, "features.total_backspaces: must not be negative")
			})
		})

		convey.Convey("When a rate is NaN", func() {
			bad := full
			bad.ErrorRate = math.NaN()

			convey.Convey("Then it is rejected", func() {
				convey.So(model.NewFeatureRecord(bad).Validate(), convey.ShouldNotBeNil)
			})
		})
	})
}

func TestLabelAndIDValidation(t *testing.T) {
	convey.Convey("Given label and id validators", t, func() {
		convey.So(model.ValidateLabel("condition", "control"), convey.ShouldBeNil)
		convey.So(model.ValidateLabel("condition", " \t"), convey.ShouldNotBeNil)
		convey.So(model.ValidateParticipantID(1), convey.ShouldBeNil)
		convey.So(model.ValidateParticipantID(0), convey.ShouldNotBeNil)
		convey.So(model.ValidateParticipantID(-4), convey.ShouldNotBeNil)
	})
}
