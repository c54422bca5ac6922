// Command mockserver fakes the two external collaborators for local
// testing: the anemometer feed and the Telegram Bot API. Point the server
// at it with WIND_URL and TELEGRAM_API_BASE_URL.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

var (
	requestCount atomic.Int64
	sendCount    atomic.Int64
)

func main() {
	port := "9090"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}

	// Fake anemometer page: a ramp from calm to strong southerly wind,
	// one reading per minute, newest row first like the real feed.
	http.HandleFunc("/anemometer", func(w http.ResponseWriter, r *http.Request) {
		requestCount.Add(1)

		now := time.Now().Truncate(time.Minute)
		var sb strings.Builder
		sb.WriteString("<table><tr><th>Time</th><th>Direction</th><th>Speed</th></tr>\n")
		for i := 0; i < 10; i++ {
			ts := now.Add(-time.Duration(i) * time.Minute)
			speed := 7.5 - float64(i)*0.7
			if speed < 1.0 {
				speed = 1.0
			}
			fmt.Fprintf(&sb, "<tr><td>%s</td><td>Ю (180°)</td><td>%.1f</td></tr>\n",
				ts.Format("02.01.2006 15:04"), speed)
		}
		sb.WriteString("</table>\n")

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, sb.String())
	})

	// Fake Telegram sendMessage. Chat id picks the behavior:
	//   negative        -> 403 (bot blocked, permanent)
	//   multiple of 5   -> 500 on every other request (transient)
	//   anything else   -> 200
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			http.NotFound(w, r)
			return
		}

		var req struct {
			ChatID int64  `json:"chat_id"`
			Text   string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeTelegram(w, http.StatusBadRequest, false, "Bad Request: can't parse JSON")
			return
		}

		n := sendCount.Add(1)
		switch {
		case req.ChatID < 0:
			log.Printf("sendMessage chat_id=%d -> 403", req.ChatID)
			writeTelegram(w, http.StatusForbidden, false, "Forbidden: bot was blocked by the user")
		case req.ChatID%5 == 0 && n%2 == 0:
			log.Printf("sendMessage chat_id=%d -> 500 (flaky)", req.ChatID)
			writeTelegram(w, http.StatusInternalServerError, false, "Internal Server Error")
		default:
			log.Printf("sendMessage chat_id=%d -> 200 %q", req.ChatID, req.Text)
			writeTelegram(w, http.StatusOK, true, "")
		}
	})

	http.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int64{
			"feed_requests": requestCount.Load(),
			"messages_sent": sendCount.Load(),
		})
	})

	log.Printf("Mock server starting on :%s", port)
	log.Printf("  GET  /anemometer            -> fake wind feed")
	log.Printf("  POST /bot<token>/sendMessage -> fake Telegram API")
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatal(err)
	}
}

func writeTelegram(w http.ResponseWriter, status int, ok bool, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if ok {
		json.NewEncoder(w).Encode(map[string]interface{}{"ok": true, "result": map[string]interface{}{}})
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ok":          false,
		"error_code":  status,
		"description": description,
	})
}
