package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given the global logger", t, func() {
		Convey("When initialized with defaults", func() {
			So(Init(), ShouldBeNil)

			Convey("Then Get returns a logger", func() {
				So(Get(), ShouldNotBeNil)
				So(Sync(), ShouldBeNil)
			})
		})

		Convey("When initialized with an unknown format", func() {
			err := Init(WithFormat("xml"))

			Convey("Then it fails", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestLoggerJSONOutput(t *testing.T) {
	Convey("Given a JSON logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(Init(WithFormat("json"), WithOutput(&buf), WithSource(false)), ShouldBeNil)
		So(SetLevelString("info"), ShouldBeNil)
		defer func() { _ = Init() }()

		Convey("When logging with fields from a named logger", func() {
			Named("cache").Info(context.Background(), "cache miss",
				String("key", "ranking:333"),
				Int("limit", 10),
				Bool("hit", false),
				Duration("took", 1500*time.Millisecond),
				Error(errors.New("boom")),
			)

			Convey("Then every field is encoded", func() {
				var got map[string]any
				So(json.Unmarshal(buf.Bytes(), &got), ShouldBeNil)
				So(got["msg"], ShouldEqual, "cache miss")
				So(got["component"], ShouldEqual, "cache")
				So(got["key"], ShouldEqual, "ranking:333")
				So(got["limit"], ShouldEqual, float64(10))
				So(got["hit"], ShouldEqual, false)
				So(got["took"], ShouldEqual, "1.5s")
				So(got["error"], ShouldEqual, "boom")
			})
		})

		Convey("When logging below the configured level", func() {
			Get().Debug(context.Background(), "hidden")

			Convey("Then nothing is written", func() {
				So(buf.Len(), ShouldEqual, 0)
			})
		})
	})
}

func TestSetLevelString(t *testing.T) {
	Convey("Given level strings", t, func() {
		for _, lvl := range []string{"debug", "INFO", " warn ", "warning", "error", ""} {
			So(SetLevelString(lvl), ShouldBeNil)
		}
		So(SetLevelString("verbose"), ShouldNotBeNil)
		_ = SetLevelString("info")
	})
}

func TestDiscard(t *testing.T) {
	Convey("Given a discard logger", t, func() {
		l := Discard().Named("x")

		Convey("Then logging does not panic", func() {
			So(func() { l.Error(context.Background(), "ignored", String("k", "v")) }, ShouldNotPanic)
		})
	})
}

func TestGetCallerFormat(t *testing.T) {
	Convey("Given a text logger with source enabled", t, func() {
		var buf bytes.Buffer
		So(Init(WithOutput(&buf)), ShouldBeNil)
		defer func() { _ = Init() }()

		Get().Warn(context.Background(), "with source")

		Convey("Then the caller points at this file", func() {
			So(strings.Contains(buf.String(), "logger_test.go:"), ShouldBeTrue)
		})
	})
}
