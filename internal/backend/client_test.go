package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, 5*time.Second, nil)
}

func TestListChats(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chats/" {
			t.Errorf("path = %q, want /api/chats/", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`[{"id":-1001234,"title":"Go","type":"supergroup","is_forum":true,"members_count":42}]`))
	})

	chats, err := c.ListChats(context.Background(), true)
	if err != nil {
		t.Fatalf("ListChats() error = %v", err)
	}
	if gotQuery != "refresh=true" {
		t.Errorf("query = %q, want refresh=true", gotQuery)
	}
	if len(chats) != 1 {
		t.Fatalf("len = %d, want 1", len(chats))
	}
	if chats[0].ID != -1001234 || !chats[0].IsForum || *chats[0].MembersCount != 42 {
		t.Errorf("chat = %+v", chats[0])
	}
}

func TestAPIErrorDetail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Not authorized in Telegram"}`))
	})

	_, err := c.ListChats(context.Background(), false)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want APIError", err)
	}
	if apiErr.StatusCode != 401 || apiErr.Detail != "Not authorized in Telegram" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestParseDetail(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"string detail", `{"detail":"boom"}`, "boom"},
		{"list detail", `{"detail":[{"loc":["body"]}]}`, `[{"loc":["body"]}]`},
		{"plain text", "Internal Server Error\n", "Internal Server Error"},
		{"no detail", `{"other":1}`, `{"other":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseDetail([]byte(tt.body)); got != tt.want {
				t.Errorf("parseDetail() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSearchRequestBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Query != "deploy" || req.TopK != 5 || len(req.Sources) != 2 {
			t.Errorf("req = %+v", req)
		}
		_, _ = w.Write([]byte(`{"query":"deploy","results":[{"message":{"id":1,"chat_id":10,"chat_title":"ops","author":{"id":7},"text":"hi","date":"2024-01-01T00:00:00"},"score":0.9}],"total_found":1}`))
	})

	resp, err := c.Search(context.Background(), SearchRequest{Query: "deploy", Sources: []int64{1, 2}, TopK: 5})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if resp.TotalFound != 1 || resp.Results[0].Message.ChatID != 10 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestAnswerErrorMarker(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"llm unavailable","citations":[]}`))
	})

	resp, err := c.Answer(context.Background(), AnswerRequest{Query: "q"})
	if !errors.Is(err, ErrAnswerFailed) {
		t.Fatalf("error = %v, want ErrAnswerFailed", err)
	}
	if resp == nil || resp.Error != "llm unavailable" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestAnswerOK(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"answer":{"summary":"s","sections":[{"title":"t","text":"x","cids":["a"]}],"rejected":[],"markdown":"# s"},"citations":[{"cid":"a","message_id":1,"chat_id":10}],"retrieval":{"used":3,"top_k":10,"latency_ms":120}}`))
	})

	resp, err := c.Answer(context.Background(), AnswerRequest{Query: "q", TopK: 10})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if resp.Answer.Summary != "s" || len(resp.Citations) != 1 || resp.Retrieval.Used != 3 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestStartDownloadStreams(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req DownloadRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.ChatID != 5 || req.TopicID == nil || *req.TopicID != 9 {
			t.Errorf("req = %+v", req)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = w.Write([]byte("{\"type\":\"progress\",\"downloaded\":1}\n"))
		w.(http.Flusher).Flush()
		_, _ = w.Write([]byte("{\"type\":\"complete\",\"total_downloaded\":1}\n"))
	})

	topic := int64(9)
	body, err := c.StartDownload(context.Background(), DownloadRequest{ChatID: 5, TopicID: &topic, Limit: 10})
	if err != nil {
		t.Fatalf("StartDownload() error = %v", err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	if strings.Count(string(data), "\n") != 2 {
		t.Errorf("body = %q, want two frames", data)
	}
}

func TestStartDownloadRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Not authorized in Telegram"}`))
	})

	_, err := c.StartDownload(context.Background(), DownloadRequest{ChatID: 1})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 401 {
		t.Fatalf("error = %v, want 401 APIError", err)
	}
}

func TestDeleteSourcePath(t *testing.T) {
	var gotPath, gotQuery, gotMethod string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotQuery = r.Method, r.URL.Path, r.URL.RawQuery
		_, _ = w.Write([]byte(`{"deleted":3}`))
	})

	topic := int64(4)
	if err := c.DeleteSource(context.Background(), -100777, &topic); err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/api/rag/sources/-100777" || gotQuery != "topic_id=4" {
		t.Errorf("request = %s %s?%s", gotMethod, gotPath, gotQuery)
	}
}

func TestUnreachable(t *testing.T) {
	c := New("http://127.0.0.1:1", time.Second, nil)
	if _, err := c.Stats(context.Background()); err == nil || !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %v, want not reachable", err)
	}
}

func TestMessageLink(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"public", Message{ID: 5, ChatID: -1001, ChatUsername: "golang"}, "https://t.me/golang/5"},
		{"private supergroup", Message{ID: 7, ChatID: -1001234567}, "https://t.me/c/1234567/7"},
		{"plain id", Message{ID: 7, ChatID: 42}, "https://t.me/c/42/7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.Link(); got != tt.want {
				t.Errorf("Link() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContactName(t *testing.T) {
	if got := (Contact{ID: 3, FirstName: "Ada", LastName: "L"}).Name(); got != "Ada L" {
		t.Errorf("Name() = %q", got)
	}
	if got := (Contact{ID: 3}).Name(); got != "User 3" {
		t.Errorf("Name() = %q", got)
	}
	if got := (Contact{ID: 3}).Link(); got != "tg://user?id=3" {
		t.Errorf("Link() = %q", got)
	}
}

func TestDownloadRequestValidate(t *testing.T) {
	tests := []struct {
		name string
		req  DownloadRequest
		ok   bool
	}{
		{"minimal", DownloadRequest{ChatID: 1, Limit: 1}, true},
		{"range", DownloadRequest{ChatID: 1, Limit: 10, MinID: 5, MaxID: 9}, true},
		{"only max", DownloadRequest{ChatID: 1, Limit: 10, MaxID: 9}, true},
		{"zero limit", DownloadRequest{ChatID: 1}, false},
		{"negative offset", DownloadRequest{ChatID: 1, Limit: 1, OffsetID: -1}, false},
		{"inverted range", DownloadRequest{ChatID: 1, Limit: 1, MinID: 9, MaxID: 5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.req.Validate(); (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}
