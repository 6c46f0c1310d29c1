package usecase

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/sitekeep/internal/domain"
)

func TestRenderName(t *testing.T) {
	Convey("RenderName", t, func() {
		orig := randToken
		randToken = func(n int) string { return "abcdefgh"[:n] }
		Reset(func() { randToken = orig })

		now := time.Date(2026, 3, 7, 4, 5, 9, 0, time.UTC)
		site := domain.Site{Name: "My Blog!", AppVersion: "6.5.2"}

		Convey("Substitutes every token", func() {
			got := RenderName("{site}_{YYYY}{YY}{MM}{DD}-{HH}{mm}{SS}_{ver}_{rand4}_{rand6}", site, now)
			So(got, ShouldEqual, "my-blog_2026260307-040509_6.5.2_abcd_abcdef")
		})

		Convey("Uses the default pattern when empty", func() {
			So(RenderName("", site, now), ShouldEqual, "site-20260307-040509")
		})

		Convey("Falls back for an empty site name", func() {
			So(RenderName("{site}", domain.Site{}, now), ShouldEqual, "site")
		})

		Convey("Falls back to backup when nothing survives", func() {
			So(RenderName("///", site, now), ShouldEqual, "backup")
		})

		Convey("Uses 0 for a missing version", func() {
			So(RenderName("v{ver}", domain.Site{}, now), ShouldEqual, "v0")
		})

		Convey("Leaves unknown tokens to sanitization", func() {
			So(RenderName("{nope}-{DD}", site, now), ShouldEqual, "nope-07")
		})
	})
}

func TestSanitize(t *testing.T) {
	Convey("Sanitize", t, func() {
		So(Sanitize("a b/c"), ShouldEqual, "a-b-c")
		So(Sanitize("..hidden.."), ShouldEqual, "hidden")
		So(Sanitize("--x--"), ShouldEqual, "x")
		So(Sanitize("ünïcode"), ShouldEqual, "n-code")
		So(Sanitize(""), ShouldEqual, "backup")
		So(Sanitize("keep_this.one-ok"), ShouldEqual, "keep_this.one-ok")
	})
}
