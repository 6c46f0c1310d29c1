package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/sitekeep/internal/config"
	"github.com/semmidev/sitekeep/internal/domain"
)

type fakeBotAPI struct {
	mu    sync.Mutex
	texts []string
	chats []string
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"sitekeep","username":"sitekeep_bot"}}`))
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		r.ParseForm()
		f.mu.Lock()
		f.texts = append(f.texts, r.FormValue("text"))
		f.chats = append(f.chats, r.FormValue("chat_id"))
		f.mu.Unlock()
		w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`))
	default:
		w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
	}
}

func TestTelegramNotifier(t *testing.T) {
	Convey("Given a Telegram notifier backed by a fake Bot API", t, func() {
		api := &fakeBotAPI{}
		server := httptest.NewServer(api)
		defer server.Close()

		cfg := &config.TelegramConfig{Enabled: true, BotToken: "123:abc", ChatID: "42"}
		endpoint := server.URL + "/bot%s/%s"

		Convey("It should send a message for a finished job", func() {
			n, err := NewTelegramWithEndpoint(cfg, "Example Site", endpoint, server.Client())
			So(err, ShouldBeNil)

			err = n.Notify(context.Background(), domain.Event{
				JobID:   "job-1",
				Status:  domain.StatusDone,
				WorkDir: "/srv/backups/site-20260101-030000-030000123456",
			})
			So(err, ShouldBeNil)

			So(len(api.texts), ShouldEqual, 1)
			So(api.chats[0], ShouldEqual, "42")
			So(api.texts[0], ShouldContainSubstring, "Backup Created")
			So(api.texts[0], ShouldContainSubstring, "site-20260101-030000-030000123456")
			So(api.texts[0], ShouldContainSubstring, "job-1")
		})

		Convey("It should reject a non-numeric chat id", func() {
			bad := *cfg
			bad.ChatID = "@channel"
			_, err := NewTelegramWithEndpoint(&bad, "", endpoint, server.Client())
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "invalid telegram chat id")
		})
	})
}

func TestFormat(t *testing.T) {
	Convey("Format renders failures with their error", t, func() {
		text := Format("", domain.Event{JobID: "j", Status: domain.StatusError, Error: "dump failed"})
		So(text, ShouldStartWith, "❌ Backup Failed")
		So(text, ShouldContainSubstring, "dump failed")
		So(text, ShouldNotContainSubstring, "Site:")
	})

	Convey("Nop never fails", t, func() {
		So(Nop{}.Notify(context.Background(), domain.Event{}), ShouldBeNil)
	})
}
