package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/sitekeep/internal/domain"
)

const minimalConfig = `
site:
  root: /var/www/site
  url: https://example.test
  name: Example Site
backup:
  destination: /srv/backups/
database:
  driver: mysql
  name: wordpress
`

func writeConfig(t *testing.T, body string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	Convey("Given a config file", t, func() {
		Convey("When only required fields are set", func() {
			cfg, err := Load(writeConfig(t, minimalConfig))

			Convey("It should apply defaults", func() {
				So(err, ShouldBeNil)
				So(cfg.App.Name, ShouldEqual, "sitekeep")
				So(cfg.Backup.RetainDays, ShouldEqual, 7)
				So(cfg.Backup.BatchSize, ShouldEqual, 300)
				So(cfg.Backup.JobTTL, ShouldEqual, 2*time.Hour)
				So(cfg.Backup.LockTTL, ShouldEqual, 30*time.Minute)
				So(cfg.Backup.ExcludeDirs, ShouldContain, "node_modules")
				So(cfg.Backup.ExcludePatterns, ShouldContain, "*.log")
				So(cfg.Schedule.Frequency, ShouldEqual, "daily")
				So(cfg.Schedule.Time, ShouldEqual, "03:00")
				So(cfg.Database.ChunkRows, ShouldEqual, 1000)
				So(cfg.Database.CompressionLevel, ShouldEqual, -1)
				So(cfg.Database.UseDumpTool, ShouldBeTrue)
				So(cfg.Store.Type, ShouldEqual, "badger")
				So(cfg.Store.GCInterval, ShouldEqual, 10*time.Minute)
			})

			Convey("Settings should be a trimmed, independent copy", func() {
				So(err, ShouldBeNil)
				s := cfg.Settings()
				So(s.Destination, ShouldEqual, "/srv/backups")
				So(s.Site.AppVersion, ShouldEqual, Version)

				s.ExcludeDirs[0] = "changed"
				So(cfg.Backup.ExcludeDirs[0], ShouldNotEqual, "changed")
			})
		})

		Convey("When the schedule is configured", func() {
			cfg, err := Load(writeConfig(t, minimalConfig+`
schedule:
  enabled: true
  frequency: monthly
  time: "22:15"
`))
			So(err, ShouldBeNil)
			sched := cfg.ScheduleSettings()
			So(sched.Enabled, ShouldBeTrue)
			So(sched.Frequency, ShouldEqual, domain.FrequencyMonthly)
			So(sched.Time, ShouldEqual, "22:15")
			So(sched.Location, ShouldEqual, time.Local)
		})

		Convey("When the file does not exist", func() {
			_, err := Load("/nonexistent/config.yaml")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "failed to read config")
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Given a valid config", t, func() {
		base := func() *Config {
			return &Config{
				Site:     SiteConfig{Root: "/var/www"},
				Backup:   BackupConfig{Destination: "/backups", BatchSize: 300},
				Schedule: ScheduleConfig{Frequency: "daily", Time: "03:00"},
				Database: DatabaseConfig{Driver: "mysql", Name: "wp"},
				Store:    StoreConfig{Type: "badger", Path: "data"},
			}
		}

		So(base().Validate(), ShouldBeNil)

		Convey("Missing site root is rejected", func() {
			c := base()
			c.Site.Root = ""
			So(c.Validate(), ShouldNotBeNil)
		})

		Convey("Unknown frequency is rejected", func() {
			c := base()
			c.Schedule.Frequency = "hourly"
			So(c.Validate().Error(), ShouldContainSubstring, "schedule.frequency")
		})

		Convey("Malformed time is rejected", func() {
			c := base()
			c.Schedule.Time = "25:00"
			So(c.Validate().Error(), ShouldContainSubstring, "schedule.time")
		})

		Convey("Sqlite needs a path", func() {
			c := base()
			c.Database.Driver = "sqlite"
			So(c.Validate(), ShouldNotBeNil)
			c.Database.Path = "/tmp/site.db"
			So(c.Validate(), ShouldBeNil)
		})

		Convey("Compression level must be a gzip level", func() {
			c := base()
			c.Database.CompressionLevel = 12
			So(c.Validate().Error(), ShouldContainSubstring, "database.compression_level")
			c.Database.CompressionLevel = 9
			So(c.Validate(), ShouldBeNil)
		})

		Convey("Redis store needs a URL", func() {
			c := base()
			c.Store.Type = "redis"
			So(c.Validate(), ShouldNotBeNil)
			c.Store.RedisURL = "redis://localhost:6379/0"
			So(c.Validate(), ShouldBeNil)
		})

		Convey("Unknown timezone is rejected", func() {
			c := base()
			c.Site.Timezone = "Mars/Olympus"
			So(c.Validate().Error(), ShouldContainSubstring, "site.timezone")
		})

		Convey("Telegram needs credentials", func() {
			c := base()
			c.Notify.Telegram.Enabled = true
			So(c.Validate(), ShouldNotBeNil)
		})
	})
}
