package logger

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	. "github.com/smartystreets/goconvey/convey"
)

func readRecords(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, sc.Err()
}

func TestLogger(t *testing.T) {
	Convey("Given a logger writing to a file", t, func() {
		logFile := filepath.Join(t.TempDir(), "logs", "sitekeep.log")

		Convey("The log directory is created and records are JSON", func() {
			log, err := New("info", logFile)
			So(err, ShouldBeNil)

			log.Named("jobs").Infof("[%s] Backup completed", "job-1")
			log.Close()

			records, err := readRecords(logFile)
			So(err, ShouldBeNil)
			So(len(records), ShouldEqual, 1)
			So(records[0]["level"], ShouldEqual, "INFO")
			So(records[0]["logger"], ShouldEqual, "jobs")
			So(records[0]["msg"], ShouldEqual, "[job-1] Backup completed")
			So(records[0], ShouldContainKey, "timestamp")
		})

		Convey("Records below the configured level are dropped", func() {
			log, err := New("warn", logFile)
			So(err, ShouldBeNil)

			log.Debugf("skipping %s", "a.txt")
			log.Infof("tick done")
			log.Warnf("Retention sweep incomplete")
			log.Close()

			records, err := readRecords(logFile)
			So(err, ShouldBeNil)
			So(len(records), ShouldEqual, 1)
			So(records[0]["level"], ShouldEqual, "WARN")
		})

		Convey("An unknown level falls back to info", func() {
			log, err := New("verbose", logFile)
			So(err, ShouldBeNil)

			log.Debugf("hidden")
			log.Infof("shown")
			log.Close()

			records, err := readRecords(logFile)
			So(err, ShouldBeNil)
			So(len(records), ShouldEqual, 1)
			So(records[0]["msg"], ShouldEqual, "shown")
		})
	})

	Convey("Given an unusable log location", t, func() {
		blocker := filepath.Join(t.TempDir(), "file")
		So(os.WriteFile(blocker, nil, 0644), ShouldBeNil)

		log, err := New("info", filepath.Join(blocker, "sitekeep.log"))
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "failed to create log directory")
		So(log, ShouldBeNil)
	})

	Convey("Console-only and no-op loggers are usable", t, func() {
		log, err := New("debug", "")
		So(err, ShouldBeNil)
		So(func() { log.Debugf("console") }, ShouldNotPanic)
		So(func() { log.Close() }, ShouldNotPanic)

		nop := NewNop().Named("scheduler")
		So(func() { nop.Errorf("Scheduled backup failed: %v", "boom") }, ShouldNotPanic)
	})
}
